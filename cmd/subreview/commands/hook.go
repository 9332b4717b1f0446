package commands

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/btcsuite/btclog/v2"
	"github.com/roasbeef/subreview/internal/build"
	"github.com/roasbeef/subreview/internal/config"
	"github.com/roasbeef/subreview/internal/ledger"
	"github.com/roasbeef/subreview/internal/orchestrator"
	"github.com/roasbeef/subreview/internal/reviewer"
	"github.com/spf13/cobra"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Handle a SubagentStart or SubagentStop event read from stdin",
	Long: `Read one hook event as JSON from stdin and handle it.

SubagentStart events are recorded. SubagentStop events of configured agent
types are reviewed; a failed review prints a block decision on stdout and
any other outcome prints nothing.

The command always exits 0. Errors are logged to <output_dir>/hook.log, and
to stderr as well when DEBUG=1.`,
	Args: cobra.NoArgs,
	RunE: runHook,
}

func init() {
	rootCmd.AddCommand(hookCmd)
}

func runHook(cmd *cobra.Command, args []string) error {
	handleHook(
		cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(),
		cmd.ErrOrStderr(),
	)

	return nil
}

// handleHook processes one hook event. Nothing it does can fail the hook.
func handleHook(ctx context.Context, stdin io.Reader, stdout,
	stderr io.Writer) {

	var console io.Writer
	if debugEnabled() {
		console = stderr
	}

	cfg, err := loadConfig()
	if err != nil {
		if console != nil {
			fmt.Fprintf(console, "subreview: %v\n", err)
		}
		_, _ = io.Copy(io.Discard, stdin)
		return
	}

	logs, err := openLogs(cfg, console)
	if err != nil {
		if console != nil {
			fmt.Fprintf(console, "subreview: %v\n", err)
		}
		logs = nil
	}
	defer logs.Close()

	log := logs.Logger("HOOK")

	in, err := orchestrator.ReadHookInput(stdin)
	if err != nil {
		log.ErrorS(ctx, "Unable to read hook input", err)
		return
	}

	orch, cleanup := newOrchestrator(ctx, cfg, logs)
	defer cleanup()

	res := orch.Handle(ctx, in)
	if err := orchestrator.WriteResponse(stdout, res); err != nil {
		log.ErrorS(ctx, "Unable to write hook response", err)
	}
}

// lazyLedger opens the usage ledger on the first recorded review, so events
// that never finish a review leave the database untouched.
type lazyLedger struct {
	cfg *config.Config
	log btclog.Logger

	once   sync.Once
	ledger *ledger.Ledger
	err    error
}

// Record opens the ledger if needed and appends e.
func (l *lazyLedger) Record(ctx context.Context, e ledger.Entry) error {
	l.once.Do(func() {
		l.ledger, l.err = ledger.Open(ctx, l.cfg.Ledger.Path, l.log)
	})
	if l.err != nil {
		return fmt.Errorf("open usage ledger %s: %w", l.cfg.Ledger.Path,
			l.err)
	}

	return l.ledger.Record(ctx, e)
}

// Close releases the ledger if it was opened.
func (l *lazyLedger) Close() error {
	if l.ledger == nil {
		return nil
	}

	return l.ledger.Close()
}

// newOrchestrator wires the orchestrator for cfg. The returned func releases
// the ledger.
func newOrchestrator(ctx context.Context, cfg *config.Config,
	logs *build.Logs) (*orchestrator.Orchestrator, func()) {

	log := logs.Logger("ORCH")
	cleanup := func() {}

	var recorder orchestrator.Recorder
	if cfg.Ledger.Enabled {
		l := &lazyLedger{cfg: cfg, log: logs.Logger("LDGR")}
		recorder = l
		cleanup = func() {
			if err := l.Close(); err != nil {
				log.WarnS(ctx, "Unable to close ledger", err)
			}
		}
	}

	client := reviewer.New(reviewer.Config{
		Command: cfg.Reviewer.Command,
		Args:    cfg.Reviewer.Args,
		Timeout: cfg.Reviewer.Timeout,
		WorkDir: cfg.ProjectDir,
		Log:     logs.Logger("RVWR"),
	})

	orch := orchestrator.New(orchestrator.Config{
		Store:    newStore(cfg, logs.Logger("SESS")),
		Reviewer: client,
		Ledger:   recorder,
		Policy: orchestrator.Policy{
			AgentsToReview:      cfg.AgentsToReview,
			SkipIfNoFileChanges: cfg.Settings.SkipIfNoFileChanges,
			MaxReviewCycles:     cfg.Settings.MaxReviewCycles,
		},
		PruneMaxAge:      cfg.Retention.MaxAge,
		PruneMaxSessions: cfg.Retention.MaxSessions,
		ProjectDir:       cfg.ProjectDir,
		Logs:             logs,
		Log:              log,
	})

	return orch, cleanup
}
