package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/shlex"

	"github.com/ipxe/people-mareo-ipxe/pkg/vcs"
)

// DefaultPlatform is used when a request names no platform.
const DefaultPlatform = "pcbios"

// platforms maps platform names to their build output directories.
var platforms = map[string]string{
	"pcbios":   "bin-i386-pcbios",
	"pcbios64": "bin-x86_64-pcbios",
	"linux":    "bin-i386-linux",
	"linux64":  "bin-x86_64-linux",
	"efi":      "bin-i386-efi",
	"efi64":    "bin-x86_64-efi",
}

// ErrUnknownPlatform is returned for platform names outside the table.
var ErrUnknownPlatform = errors.New("unknown platform")

// PlatformDir returns the build output directory for platform.
func PlatformDir(platform string) (string, error) {
	if platform == "" {
		platform = DefaultPlatform
	}
	dir, ok := platforms[platform]
	if !ok {
		return "", fmt.Errorf("%w %q (known: %s)", ErrUnknownPlatform, platform, strings.Join(Platforms(), ", "))
	}
	return dir, nil
}

// Platforms lists the known platform names.
func Platforms() []string {
	names := make([]string, 0, len(platforms))
	for name := range platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SplitMakeOpts splits a MAKEOPTS string with shell quoting rules.
func SplitMakeOpts(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	opts, err := shlex.Split(s)
	if err != nil {
		return nil, fmt.Errorf("parse MAKEOPTS: %w", err)
	}
	return opts, nil
}

// Request describes one firmware image to build.
type Request struct {
	Binary   string // e.g. "ipxe.lkrn"
	Commit   string // optional; builds in a per-commit checkout when set
	Platform string
	Embed    string // script to embed, passed as EMBED=
	Config   string // named configuration, passed as CONFIG=

	// Files maps paths relative to the source tree to contents written
	// before make runs, e.g. config/local/<name>/general.h.
	Files map[string][]byte
}

// Driver builds single firmware images.
//
// Builds for a specific commit run in BuildDir/build/<commit>, cloned on
// first use from BuildDir/origin. Builds without a commit run in SourceDir.
type Driver struct {
	BuildDir  string
	SourceDir string
	MakeOpts  []string
	Logger    *slog.Logger
	Stdout    io.Writer
	Stderr    io.Writer
	Program   string
}

// Build builds req and returns the path of the produced image.
func (d *Driver) Build(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Binary) == "" {
		return "", fmt.Errorf("build: binary name is required")
	}
	platformDir, err := PlatformDir(req.Platform)
	if err != nil {
		return "", err
	}
	target := platformDir + "/" + req.Binary

	dir := d.SourceDir
	if req.Commit != "" {
		dir, err = d.checkout(ctx, req.Commit)
		if err != nil {
			return "", err
		}
	}

	if err := writeFiles(dir, req.Files); err != nil {
		return "", err
	}

	args := []string{target}
	if req.Config != "" {
		args = append(args, "CONFIG="+req.Config)
	}
	if req.Embed != "" {
		args = append(args, "EMBED="+req.Embed)
	}
	args = append(args, d.MakeOpts...)

	d.logger().Info("building", "target", target, "dir", dir, "commit", req.Commit)
	m := &Make{Dir: dir, Program: d.Program, Stdout: d.Stdout, Stderr: d.Stderr}
	if err := m.Run(ctx, args...); err != nil {
		return "", fmt.Errorf("build %s: %w", target, err)
	}
	return filepath.Join(dir, platformDir, req.Binary), nil
}

// CommitDir returns the checkout directory used for commit.
func (d *Driver) CommitDir(commit string) string {
	return filepath.Join(d.BuildDir, "build", commit)
}

func (d *Driver) checkout(ctx context.Context, commit string) (string, error) {
	dir := d.CommitDir(commit)
	var g *vcs.Git
	if _, err := os.Stat(dir); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("checkout %s: %w", commit, err)
		}
		origin := filepath.Join(d.BuildDir, "origin")
		d.logger().Info("cloning build tree", "origin", origin, "dir", dir)
		g, err = vcs.Clone(ctx, origin, dir, d.Stdout, d.Stderr)
		if err != nil {
			return "", fmt.Errorf("checkout %s: %w", commit, err)
		}
	} else {
		g = &vcs.Git{Dir: dir, Stdout: d.Stdout, Stderr: d.Stderr}
	}

	if err := g.Clean(ctx); err != nil {
		return "", fmt.Errorf("checkout %s: %w", commit, err)
	}
	if err := g.Checkout(ctx, commit); err != nil {
		return "", fmt.Errorf("checkout %s: %w", commit, err)
	}
	return dir, nil
}

func writeFiles(dir string, files map[string][]byte) error {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rel := filepath.Clean(filepath.FromSlash(name))
		if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("build: override %q escapes the source tree", name)
		}
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("build: %w", err)
		}
		if err := os.WriteFile(path, files[name], 0o644); err != nil {
			return fmt.Errorf("build: %w", err)
		}
	}
	return nil
}

func (d *Driver) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
