package orchestrator

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// gitTimeout bounds each git invocation.
const gitTimeout = 5 * time.Second

// GitInfo is the branch and commit a session started on.
type GitInfo struct {
	Branch string
	Commit string
}

// GitInfoFunc reports the git state of a directory.
type GitInfoFunc func(ctx context.Context, dir string) fn.Option[GitInfo]

// CurrentGitInfo reads the checked out branch and short commit of dir. None
// is returned when dir is not a git work tree or git is unavailable.
func CurrentGitInfo(ctx context.Context, dir string) fn.Option[GitInfo] {
	branch, err := gitOutput(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return fn.None[GitInfo]()
	}

	commit, err := gitOutput(ctx, dir, "rev-parse", "--short", "HEAD")
	if err != nil {
		return fn.None[GitInfo]()
	}

	return fn.Some(GitInfo{Branch: branch, Commit: commit})
}

func gitOutput(ctx context.Context, dir string, args ...string) (string,
	error) {

	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	out, err := cmd.Output()
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(out)), nil
}
