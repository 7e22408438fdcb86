package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ipxe/people-mareo-ipxe/pkg/elfinfo"
)

// CommitByHash returns the commit whose hash equals or starts with hash.
// A prefix matching more than one commit is an error.
func (s *Store) CommitByHash(ctx context.Context, hash string) (Commit, error) {
	if hash == "" {
		return Commit{}, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, hash, title, committed_at FROM commits WHERE substr(hash, 1, length(?)) = ? ORDER BY id LIMIT 2`,
		hash, hash)
	if err != nil {
		return Commit{}, fmt.Errorf("lookup commit %s: %w", hash, err)
	}
	defer rows.Close()

	var found []Commit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return Commit{}, err
		}
		found = append(found, c)
	}
	if err := rows.Err(); err != nil {
		return Commit{}, err
	}
	switch len(found) {
	case 0:
		return Commit{}, fmt.Errorf("commit %s: %w", hash, ErrNotFound)
	case 1:
		return found[0], nil
	default:
		return Commit{}, fmt.Errorf("commit prefix %s is ambiguous", hash)
	}
}

// LatestCommit returns the most recently committed stored commit.
func (s *Store) LatestCommit(ctx context.Context) (Commit, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, hash, title, committed_at FROM commits ORDER BY committed_at DESC, id DESC LIMIT 1`)
	c, err := scanCommit(row)
	if err != nil {
		return Commit{}, fmt.Errorf("latest commit: %w", err)
	}
	return c, nil
}

// Commits lists stored commits newest first. A non-positive limit returns
// all of them.
func (s *Store) Commits(ctx context.Context, limit int) ([]Commit, error) {
	query := `SELECT id, hash, title, committed_at FROM commits ORDER BY committed_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	defer rows.Close()

	var out []Commit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Artifacts returns the artifacts of a commit ordered by target and name,
// with their sections and symbols loaded.
func (s *Store) Artifacts(ctx context.Context, commitID int64) ([]StoredArtifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, commit_id, target, name, kind, COALESCE(digest, '') FROM artifacts WHERE commit_id = ? ORDER BY target, name`,
		commitID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	var out []StoredArtifact
	index := make(map[int64]int)
	for rows.Next() {
		var (
			a    StoredArtifact
			kind int
		)
		if err := rows.Scan(&a.ID, &a.CommitID, &a.Target, &a.Name, &kind, &a.Digest); err != nil {
			rows.Close()
			return nil, err
		}
		a.Kind = elfinfo.Kind(kind)
		a.Sections = []elfinfo.Section{}
		a.Symbols = []elfinfo.Symbol{}
		index[a.ID] = len(out)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(out) == 0 {
		return out, nil
	}

	secRows, err := s.db.QueryContext(ctx,
		`SELECT s.artifact_id, s.name, s.size, s.execinstr, s.progbits, s.writable
		 FROM sections s JOIN artifacts a ON a.id = s.artifact_id
		 WHERE a.commit_id = ? ORDER BY s.id`, commitID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	for secRows.Next() {
		var (
			id  int64
			sec elfinfo.Section
		)
		if err := secRows.Scan(&id, &sec.Name, &sec.Size, &sec.ExecInstr, &sec.ProgBits, &sec.Writable); err != nil {
			secRows.Close()
			return nil, err
		}
		if i, ok := index[id]; ok {
			out[i].Sections = append(out[i].Sections, sec)
		}
	}
	if err := secRows.Err(); err != nil {
		secRows.Close()
		return nil, err
	}
	secRows.Close()

	symRows, err := s.db.QueryContext(ctx,
		`SELECT y.artifact_id, y.name, y.size, y.role
		 FROM symbols y JOIN artifacts a ON a.id = y.artifact_id
		 WHERE a.commit_id = ? ORDER BY y.id`, commitID)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	defer symRows.Close()
	for symRows.Next() {
		var (
			id   int64
			role int
			sym  elfinfo.Symbol
		)
		if err := symRows.Scan(&id, &sym.Name, &sym.Size, &role); err != nil {
			return nil, err
		}
		sym.Role = elfinfo.Role(role)
		if i, ok := index[id]; ok {
			out[i].Symbols = append(out[i].Symbols, sym)
		}
	}
	return out, symRows.Err()
}

// ArtifactSizes computes the size aggregates of a stored artifact.
func (s *Store) ArtifactSizes(ctx context.Context, artifactID int64) (elfinfo.Sizes, error) {
	var sz elfinfo.Sizes
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN progbits THEN size END), 0),
			COALESCE(SUM(CASE WHEN execinstr THEN size END), 0),
			COALESCE(SUM(CASE WHEN NOT execinstr AND progbits THEN size END), 0),
			COALESCE(SUM(CASE WHEN NOT execinstr AND NOT progbits THEN size END), 0)
		FROM sections WHERE artifact_id = ?`, artifactID).Scan(&sz.Total, &sz.Text, &sz.Data, &sz.BSS)
	if err != nil {
		return elfinfo.Sizes{}, fmt.Errorf("artifact sizes: %w", err)
	}
	return sz, nil
}

// CommitCategories groups the artifacts of a commit by category. Every
// category is present in the result, possibly empty.
func (s *Store) CommitCategories(ctx context.Context, commitID int64) (map[elfinfo.Category][]StoredArtifact, error) {
	arts, err := s.Artifacts(ctx, commitID)
	if err != nil {
		return nil, err
	}
	out := make(map[elfinfo.Category][]StoredArtifact, len(elfinfo.Categories))
	for _, c := range elfinfo.Categories {
		out[c] = []StoredArtifact{}
	}
	for _, a := range arts {
		c := elfinfo.CategoryOf(a.Sections)
		out[c] = append(out[c], a)
	}
	return out, nil
}

// HistoryPoint is the size of one artifact at one commit.
type HistoryPoint struct {
	Hash   string        `json:"hash"`
	Title  string        `json:"title"`
	Time   time.Time     `json:"time"`
	Digest string        `json:"digest,omitempty"`
	Sizes  elfinfo.Sizes `json:"sizes"`
}

// History returns the sizes of target/name across stored commits, oldest
// first. Commits lacking the artifact are omitted.
func (s *Store) History(ctx context.Context, target, name string) ([]HistoryPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.hash, c.title, c.committed_at, COALESCE(a.digest, ''),
			COALESCE(SUM(CASE WHEN s.progbits THEN s.size END), 0),
			COALESCE(SUM(CASE WHEN s.execinstr THEN s.size END), 0),
			COALESCE(SUM(CASE WHEN NOT s.execinstr AND s.progbits THEN s.size END), 0),
			COALESCE(SUM(CASE WHEN NOT s.execinstr AND NOT s.progbits THEN s.size END), 0)
		FROM artifacts a
		JOIN commits c ON c.id = a.commit_id
		LEFT JOIN sections s ON s.artifact_id = a.id
		WHERE a.target = ? AND a.name = ?
		GROUP BY a.id
		ORDER BY c.committed_at, c.id`, target, name)
	if err != nil {
		return nil, fmt.Errorf("history %s/%s: %w", target, name, err)
	}
	defer rows.Close()

	var out []HistoryPoint
	for rows.Next() {
		var p HistoryPoint
		if err := rows.Scan(&p.Hash, &p.Title, &p.Time, &p.Digest,
			&p.Sizes.Total, &p.Sizes.Text, &p.Sizes.Data, &p.Sizes.BSS); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ArtifactNames lists the distinct target/name pairs ever stored, sorted.
func (s *Store) ArtifactNames(ctx context.Context) ([][2]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT target, name FROM artifacts`)
	if err != nil {
		return nil, fmt.Errorf("artifact names: %w", err)
	}
	defer rows.Close()
	var out [][2]string
	for rows.Next() {
		var p [2]string
		if err := rows.Scan(&p[0], &p[1]); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out, nil
}
