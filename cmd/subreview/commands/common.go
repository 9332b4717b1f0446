package commands

import (
	"context"
	"io"
	"os"

	"github.com/btcsuite/btclog/v2"
	"github.com/roasbeef/subreview/internal/build"
	"github.com/roasbeef/subreview/internal/config"
	"github.com/roasbeef/subreview/internal/ledger"
	"github.com/roasbeef/subreview/internal/output"
	"github.com/roasbeef/subreview/internal/session"
)

// debugEnabled reports whether logs should be mirrored to stderr.
func debugEnabled() bool {
	return debug || os.Getenv("DEBUG") == "1"
}

// loadConfig reads the configuration selected by the global flags.
func loadConfig() (*config.Config, error) {
	return config.Load(config.Options{
		File:       configFile,
		ProjectDir: projectDir,
	})
}

// openLogs builds the process loggers writing to <output_dir>/hook.log.
func openLogs(cfg *config.Config, console io.Writer) (*build.Logs, error) {
	return build.NewLogs(build.LogConfig{
		Dir:            cfg.OutputDir,
		Level:          cfg.Log.Level,
		MaxLogFiles:    cfg.Log.MaxFiles,
		MaxLogFileSize: cfg.Log.MaxFileSizeMB,
		Console:        console,
	})
}

// newStore opens the session store of cfg.
func newStore(cfg *config.Config, log btclog.Logger) *session.Store {
	return session.NewStore(session.Config{
		SessionsDir: cfg.SessionsDir(),
		Log:         log,
	})
}

// openLedger opens the usage ledger. Nil is returned when the ledger is
// disabled.
func openLedger(ctx context.Context, cfg *config.Config,
	log btclog.Logger) (*ledger.Ledger, error) {

	if !cfg.Ledger.Enabled {
		return nil, nil
	}

	return ledger.Open(ctx, cfg.Ledger.Path, log)
}

// newUI returns the output writer for a command.
func newUI(w, errW io.Writer) *output.UI {
	return &output.UI{
		Verbose: verbose,
		Out:     w,
		ErrOut:  errW,
	}
}
