// Package vcs drives the git command line for the analysed source tree.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Commit describes one revision.
type Commit struct {
	Hash  string
	Title string
	Time  time.Time
}

// Git runs git against a single working tree. Calls block until git exits
// and are not safe to overlap, since they share the working tree.
type Git struct {
	Dir    string // working tree root
	Remote string // remote name, e.g. "origin"
	Branch string // local branch tracking the analysed history

	// Stdout and Stderr receive the output of state-changing commands.
	// Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

// New returns a Git for dir tracking remote/branch.
func New(dir, remote, branch string) *Git {
	return &Git{Dir: dir, Remote: remote, Branch: branch}
}

// LocalRef names the local branch.
func (g *Git) LocalRef() string {
	return g.Branch
}

// RemoteRef names the remote-tracking branch.
func (g *Git) RemoteRef() string {
	return g.Remote + "/" + g.Branch
}

// EnsureRepository checks that Dir holds a git working tree.
func (g *Git) EnsureRepository() error {
	stat, err := os.Stat(filepath.Join(g.Dir, ".git"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s is not a git repository", g.Dir)
		}
		return err
	}
	if !stat.IsDir() {
		return fmt.Errorf("%s/.git is not a directory", g.Dir)
	}
	return nil
}

// Fetch updates remote-tracking refs from the remote.
func (g *Git) Fetch(ctx context.Context) error {
	return g.stream(ctx, "fetch", g.Remote)
}

// RevList returns the revisions reachable from to but not from from,
// newest first.
func (g *Git) RevList(ctx context.Context, from, to string) ([]string, error) {
	out, err := runGitCapture(ctx, g.Dir, "rev-list", from+".."+to)
	if err != nil {
		return nil, err
	}
	return strings.Fields(string(out)), nil
}

// Checkout switches the working tree to rev.
func (g *Git) Checkout(ctx context.Context, rev string) error {
	return g.stream(ctx, "checkout", "--quiet", rev)
}

// FastForward moves the local branch to rev. rev must descend from the
// current branch tip.
func (g *Git) FastForward(ctx context.Context, rev string) error {
	if err := g.stream(ctx, "checkout", "--quiet", g.Branch); err != nil {
		return err
	}
	return g.stream(ctx, "merge", "--ff-only", "--quiet", rev)
}

// CommitInfo reads the subject line and committer date of rev.
func (g *Git) CommitInfo(ctx context.Context, rev string) (Commit, error) {
	out, err := runGitCapture(ctx, g.Dir, "show", "-s", "--format=%H%x00%s%x00%cI", rev)
	if err != nil {
		return Commit{}, err
	}
	parts := strings.SplitN(strings.TrimRight(string(out), "\n"), "\x00", 3)
	if len(parts) != 3 {
		return Commit{}, fmt.Errorf("git show %s: unexpected output %q", rev, out)
	}
	when, err := time.Parse(time.RFC3339, parts[2])
	if err != nil {
		return Commit{}, fmt.Errorf("git show %s: parse date: %w", rev, err)
	}
	return Commit{Hash: parts[0], Title: parts[1], Time: when}, nil
}

// Clean removes untracked files and directories from the working tree.
func (g *Git) Clean(ctx context.Context) error {
	return g.stream(ctx, "clean", "-df")
}

// Clone clones src into dest and returns a Git for the new working tree.
func Clone(ctx context.Context, src, dest string, stdout, stderr io.Writer) (*Git, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	if err := runGitStreaming(ctx, "", stdout, stderr, "clone", "--quiet", src, dest); err != nil {
		return nil, err
	}
	return &Git{Dir: dest, Remote: "origin", Stdout: stdout, Stderr: stderr}, nil
}

func (g *Git) stream(ctx context.Context, args ...string) error {
	return runGitStreaming(ctx, g.Dir, g.Stdout, g.Stderr, args...)
}

func runGitCapture(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("git %s: %s", strings.Join(args, " "), msg)
	}
	return stdout.Bytes(), nil
}

func runGitStreaming(ctx context.Context, dir string, stdout, stderr io.Writer, args ...string) error {
	gitArgs := append([]string{}, args...)
	if strings.TrimSpace(dir) != "" {
		gitArgs = append([]string{"-C", dir}, gitArgs...)
	}
	if stdout == nil {
		stdout = io.Discard
	}
	var errBuf bytes.Buffer
	if stderr == nil {
		stderr = &errBuf
	} else {
		stderr = io.MultiWriter(stderr, &errBuf)
	}

	cmd := exec.CommandContext(ctx, "git", gitArgs...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(errBuf.String()); msg != "" {
			return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, msg)
		}
		return fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return nil
}
