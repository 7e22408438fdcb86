// Package report assembles size histories and exports them for charting.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/ipxe/people-mareo-ipxe/pkg/store"
)

// HistorySource provides per-commit sizes of one artifact.
type HistorySource interface {
	History(ctx context.Context, target, name string) ([]store.HistoryPoint, error)
}

// History is the size trend of one artifact, oldest commit first.
type History struct {
	Target    string               `json:"target"`
	Name      string               `json:"name"`
	Generated time.Time            `json:"generated"`
	Points    []store.HistoryPoint `json:"points"`
}

// Delta is the change of an artifact between two consecutive commits.
type Delta struct {
	Hash  string `json:"hash"`
	Title string `json:"title"`
	Total int64  `json:"total"`
	Text  int64  `json:"text"`
	Data  int64  `json:"data"`
	BSS   int64  `json:"bss"`
}

// BuildHistory collects the history of target/name from src.
func BuildHistory(ctx context.Context, src HistorySource, target, name string) (*History, error) {
	points, err := src.History(ctx, target, name)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("no history for %s/%s: %w", target, name, store.ErrNotFound)
	}
	return &History{
		Target:    target,
		Name:      name,
		Generated: time.Now().UTC(),
		Points:    points,
	}, nil
}

// Deltas returns the size changes between consecutive points. Commits that
// changed nothing are left out.
func (h *History) Deltas() []Delta {
	var out []Delta
	for i := 1; i < len(h.Points); i++ {
		prev, cur := h.Points[i-1].Sizes, h.Points[i].Sizes
		d := Delta{
			Hash:  h.Points[i].Hash,
			Title: h.Points[i].Title,
			Total: int64(cur.Total) - int64(prev.Total),
			Text:  int64(cur.Text) - int64(prev.Text),
			Data:  int64(cur.Data) - int64(prev.Data),
			BSS:   int64(cur.BSS) - int64(prev.BSS),
		}
		if d.Total == 0 && d.Text == 0 && d.Data == 0 && d.BSS == 0 {
			continue
		}
		out = append(out, d)
	}
	return out
}
