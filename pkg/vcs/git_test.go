package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	full := append([]string{
		"-C", dir,
		"-c", "user.name=buildinfo-test",
		"-c", "user.email=buildinfo-test@localhost",
		"-c", "commit.gpgsign=false",
	}, args...)
	out, err := exec.Command("git", full...).CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

func commitFile(t *testing.T, dir, name, content, msg string) string {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	git(t, dir, "add", name)
	git(t, dir, "commit", "--quiet", "-m", msg)
	return git(t, dir, "rev-parse", "HEAD")
}

// setupRemote creates an upstream repository with one commit and a clone of
// it, then adds three more upstream commits. It returns the clone and the
// upstream hashes oldest first.
func setupRemote(t *testing.T) (*Git, []string) {
	t.Helper()
	requireGit(t)

	root := t.TempDir()
	upstream := filepath.Join(root, "upstream")
	if err := os.MkdirAll(upstream, 0o755); err != nil {
		t.Fatal(err)
	}
	git(t, upstream, "init", "--quiet", "-b", "master")
	a := commitFile(t, upstream, "README", "a\n", "A: initial")

	work := filepath.Join(root, "work")
	g, err := Clone(context.Background(), upstream, work, nil, nil)
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	g.Branch = "master"

	b := commitFile(t, upstream, "README", "b\n", "B: second")
	c := commitFile(t, upstream, "README", "c\n", "C: third")
	d := commitFile(t, upstream, "README", "d\n", "D: fourth")
	return g, []string{a, b, c, d}
}

func TestFetchAndRevList(t *testing.T) {
	g, hashes := setupRemote(t)
	ctx := context.Background()

	if err := g.EnsureRepository(); err != nil {
		t.Fatalf("EnsureRepository: %v", err)
	}
	if err := g.Fetch(ctx); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	revs, err := g.RevList(ctx, g.LocalRef(), g.RemoteRef())
	if err != nil {
		t.Fatalf("RevList: %v", err)
	}
	want := []string{hashes[3], hashes[2], hashes[1]}
	if strings.Join(revs, ",") != strings.Join(want, ",") {
		t.Fatalf("RevList = %v, want %v (newest first)", revs, want)
	}
}

func TestCheckoutAndFastForward(t *testing.T) {
	g, hashes := setupRemote(t)
	ctx := context.Background()
	if err := g.Fetch(ctx); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if err := g.Checkout(ctx, hashes[1]); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(g.Dir, "README"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "b\n" {
		t.Fatalf("README = %q, want %q", data, "b\n")
	}

	if err := g.FastForward(ctx, hashes[1]); err != nil {
		t.Fatalf("FastForward: %v", err)
	}
	revs, err := g.RevList(ctx, g.LocalRef(), g.RemoteRef())
	if err != nil {
		t.Fatalf("RevList: %v", err)
	}
	if len(revs) != 2 {
		t.Fatalf("remaining revisions = %v, want 2", revs)
	}
}

func TestCommitInfo(t *testing.T) {
	g, hashes := setupRemote(t)
	ctx := context.Background()
	if err := g.Fetch(ctx); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	info, err := g.CommitInfo(ctx, hashes[2])
	if err != nil {
		t.Fatalf("CommitInfo: %v", err)
	}
	if info.Hash != hashes[2] {
		t.Fatalf("hash = %s, want %s", info.Hash, hashes[2])
	}
	if info.Title != "C: third" {
		t.Fatalf("title = %q, want %q", info.Title, "C: third")
	}
	if info.Time.IsZero() {
		t.Fatal("commit time is zero")
	}
}

func TestCheckoutUnknownRevisionFails(t *testing.T) {
	g, _ := setupRemote(t)
	err := g.Checkout(context.Background(), "0000000000000000000000000000000000000000")
	if err == nil {
		t.Fatal("expected checkout of unknown revision to fail")
	}
	if !strings.Contains(err.Error(), "git checkout") {
		t.Fatalf("error = %v, want it to name the git command", err)
	}
}

func TestEnsureRepositoryRejectsPlainDir(t *testing.T) {
	g := New(t.TempDir(), "origin", "master")
	if err := g.EnsureRepository(); err == nil {
		t.Fatal("expected error for directory without .git")
	}
}

func TestClean(t *testing.T) {
	g, _ := setupRemote(t)
	stray := filepath.Join(g.Dir, "stray", "file.o")
	if err := os.MkdirAll(filepath.Dir(stray), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stray, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := g.Clean(context.Background()); err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if _, err := os.Stat(stray); !os.IsNotExist(err) {
		t.Fatalf("stray file still present: %v", err)
	}
}
