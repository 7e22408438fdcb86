// Package builder invokes the firmware build system.
package builder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// Make runs make in a source directory. The build is opaque: it either
// succeeds or returns an error carrying the tail of its stderr.
type Make struct {
	Dir     string
	Program string // defaults to "make"
	Stdout  io.Writer
	Stderr  io.Writer
}

// NewMake returns a Make for dir.
func NewMake(dir string) *Make {
	return &Make{Dir: dir}
}

// Clean runs "make clean".
func (m *Make) Clean(ctx context.Context) error {
	return m.Run(ctx, "clean")
}

// BuildAll runs "make -j jobs all". A non-positive jobs value lets make
// pick its default.
func (m *Make) BuildAll(ctx context.Context, jobs int) error {
	if jobs > 0 {
		return m.Run(ctx, "-j", strconv.Itoa(jobs), "all")
	}
	return m.Run(ctx, "all")
}

// Run runs make with args in the source directory.
func (m *Make) Run(ctx context.Context, args ...string) error {
	program := m.Program
	if program == "" {
		program = "make"
	}
	full := append([]string{"-C", m.Dir}, args...)

	var tail bytes.Buffer
	stderr := io.Writer(&tail)
	if m.Stderr != nil {
		stderr = io.MultiWriter(m.Stderr, &tail)
	}
	stdout := m.Stdout
	if stdout == nil {
		stdout = io.Discard
	}

	cmd := exec.CommandContext(ctx, program, full...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		if msg := lastLines(tail.String(), 5); msg != "" {
			return fmt.Errorf("%s %s: %w: %s", program, strings.Join(args, " "), err, msg)
		}
		return fmt.Errorf("%s %s: %w", program, strings.Join(args, " "), err)
	}
	return nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
