package walker

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ipxe/people-mareo-ipxe/pkg/elfinfo"
)

// ErrMissingTarget reports a configured target directory that the build
// did not produce.
var ErrMissingTarget = errors.New("target directory missing")

// Collect analyses the build outputs of each target directory under root.
//
// Missing targets and files that fail to parse are logged and counted in
// skipped; they never abort collection. Files whose names are not build
// outputs are ignored without counting.
func Collect(root string, targets []string, log *slog.Logger) (arts []*elfinfo.Artifact, skipped int) {
	if log == nil {
		log = slog.Default()
	}
	arts = []*elfinfo.Artifact{}
	for _, t := range targets {
		dir := filepath.Join(root, t)
		target := TargetLabel(t)
		names, err := listFiles(dir)
		if err != nil {
			log.Warn("skipping target", "target", target, "err", err)
			skipped++
			continue
		}
		for _, name := range names {
			if _, err := elfinfo.KindOf(name); err != nil {
				continue
			}
			art, err := elfinfo.Analyze(filepath.Join(dir, name), target)
			if err != nil {
				log.Warn("skipping artifact", "target", target, "file", name, "err", err)
				skipped++
				continue
			}
			log.Debug("analysed artifact", "target", target, "file", name,
				"kind", art.Kind, "sections", len(art.Sections), "symbols", len(art.Symbols))
			arts = append(arts, art)
		}
	}
	return arts, skipped
}

// TargetLabel is the name artifacts of a target directory are stored
// under: the last element of the cleaned path, so "./bin" and "bin/" both
// become "bin".
func TargetLabel(dir string) string {
	return filepath.Base(filepath.Clean(dir))
}

// listFiles returns, in name order, the names of the regular files in dir.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", dir, ErrMissingTarget)
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
