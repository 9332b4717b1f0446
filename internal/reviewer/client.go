package reviewer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/btcsuite/btclog/v2"
	"github.com/roasbeef/subreview/internal/review"
)

const (
	// DefaultTimeout bounds a single reviewer run.
	DefaultTimeout = 90 * time.Second

	// ProjectDirEnv is set for the reviewer to the project directory.
	ProjectDirEnv = "CLAUDE_PROJECT_DIR"

	// waitDelay bounds how long output pipes held open by grandchildren
	// may delay returning after the reviewer is killed.
	waitDelay = 2 * time.Second
)

// Config configures how the external reviewer is invoked.
type Config struct {
	// Command is the reviewer executable. A value containing a path
	// separator is used as a path, anything else is looked up in PATH.
	Command string

	// Args are placed before the generated flags.
	Args []string

	// Timeout bounds a run. Zero means DefaultTimeout.
	Timeout time.Duration

	// WorkDir is the project directory the reviewer runs in.
	WorkDir string

	// Env holds extra KEY=VALUE pairs on top of the current environment.
	Env []string

	// Log receives invocation details. Nil disables logging.
	Log btclog.Logger
}

// Request is one review of a set of changed files.
type Request struct {
	// Files are the changed paths, in first-seen order.
	Files []string

	// Task is the agent's original prompt, if known.
	Task string
}

// Verdict is the outcome of a review run.
type Verdict struct {
	Result   review.Result
	Usage    Usage
	Feedback string

	// Raw is the reviewer's standard output.
	Raw string

	Duration time.Duration
}

// Client runs the reviewer as a child process.
type Client struct {
	cfg Config
	log btclog.Logger
}

// New creates a reviewer client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	log := cfg.Log
	if log == nil {
		log = btclog.Disabled
	}

	return &Client{cfg: cfg, log: log}
}

// Timeout returns the effective per-run timeout.
func (c *Client) Timeout() time.Duration {
	return c.cfg.Timeout
}

// Review runs the reviewer on the requested files. It never returns an
// error: failures to run the reviewer allow the agent with a note, and
// output that cannot be understood after a failed run is inconclusive.
func (c *Client) Review(ctx context.Context, req Request) Verdict {
	start := time.Now()

	res, usage, raw := c.run(ctx, req)

	return Verdict{
		Result:   res,
		Usage:    usage,
		Feedback: review.Feedback(res),
		Raw:      raw,
		Duration: time.Since(start),
	}
}

func (c *Client) run(ctx context.Context,
	req Request) (review.Result, Usage, string) {

	if len(req.Files) == 0 {
		return review.Allowed{}, Usage{}, ""
	}

	path, err := c.resolveCommand()
	if err != nil {
		c.log.WarnS(ctx, "Reviewer not found", err,
			"command", c.cfg.Command)

		return reviewError("Code reviewer not found: " + c.cfg.Command),
			Usage{}, ""
	}

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	args := c.buildArgs(req)
	cmd := exec.CommandContext(runCtx, path, args...)
	cmd.Dir = c.cfg.WorkDir
	cmd.Env = c.buildEnv()
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.log.InfoS(ctx, "Running reviewer", "command", path,
		"files", len(req.Files), "timeout", c.cfg.Timeout)

	runErr := cmd.Run()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		c.log.WarnS(ctx, "Reviewer timed out", runCtx.Err(),
			"timeout", c.cfg.Timeout)

		return reviewError(fmt.Sprintf("Review timed out after %ds",
			int(c.cfg.Timeout.Seconds()))), Usage{}, stdout.String()
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			c.log.ErrorS(ctx, "Reviewer failed to run", runErr)

			return reviewError(runErr.Error()), Usage{},
				stdout.String()
		}
		exitCode = exitErr.ExitCode()
	}

	res, usage := ParseOutput(stdout.String(), stderr.String(), exitCode)

	c.log.InfoS(ctx, "Reviewer finished", "exit_code", exitCode,
		"result", res.String(), "input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens)

	return res, usage, stdout.String()
}

// resolveCommand checks the reviewer exists before it is run.
func (c *Client) resolveCommand() (string, error) {
	if c.cfg.Command == "" {
		return "", errors.New("no reviewer command configured")
	}

	if strings.ContainsRune(c.cfg.Command, os.PathSeparator) {
		info, err := os.Stat(c.cfg.Command)
		if err != nil {
			return "", err
		}
		if info.IsDir() {
			return "", fmt.Errorf("%s is a directory", c.cfg.Command)
		}

		return c.cfg.Command, nil
	}

	return exec.LookPath(c.cfg.Command)
}

func (c *Client) buildArgs(req Request) []string {
	args := append([]string(nil), c.cfg.Args...)
	args = append(args, "--files", strings.Join(req.Files, ", "), "--json")
	if req.Task != "" {
		args = append(args, "--task", req.Task)
	}

	return args
}

func (c *Client) buildEnv() []string {
	env := append(os.Environ(), c.cfg.Env...)
	if c.cfg.WorkDir != "" {
		env = append(env, ProjectDirEnv+"="+c.cfg.WorkDir)
	}

	return env
}

func reviewError(msg string) review.Result {
	return review.Allowed{Note: "Review error: " + msg}
}
