package commands

import (
	"os"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/roasbeef/subreview/internal/build"
	"github.com/roasbeef/subreview/internal/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve sessions, reviews and usage over MCP on stdio",
	Long: `Run a read-only MCP server on stdin/stdout exposing the list_sessions,
get_session, get_review and usage_summary tools. Logs go to hook.log.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var logs *build.Logs
	if debugEnabled() {
		logs, err = openLogs(cfg, os.Stderr)
	} else {
		logs, err = openLogs(cfg, nil)
	}
	if err != nil {
		return err
	}
	defer logs.Close()

	ctx := cmd.Context()
	log := logs.Logger("MCPS")

	srvCfg := mcp.Config{
		Store: newStore(cfg, logs.Logger("SESS")),
	}

	l, err := openLedger(ctx, cfg, logs.Logger("LDGR"))
	switch {
	case err != nil:
		log.WarnS(ctx, "Usage ledger unavailable", err)

	case l != nil:
		defer l.Close()
		srvCfg.Usage = l
	}

	log.InfoS(ctx, "Starting MCP server", "sessions_dir",
		cfg.SessionsDir())

	return mcp.NewServer(srvCfg).Run(ctx, &sdkmcp.StdioTransport{})
}
