package settings

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var (
	settingRe        = regexp.MustCompile(`^\s*((?://)?#(?:undef|define))\s+(\S+)(.*)$`)
	trailerCommentRe = regexp.MustCompile(`^/\*\s*(.+?)\s*\*/\s*$`)

	headerStartRe = regexp.MustCompile(`^\s*/\*+`)
	headerOpenRe  = regexp.MustCompile(`(?:/|\s)\*+`)
	headerCloseRe = regexp.MustCompile(`\*/`)
	bodyCloseRe   = regexp.MustCompile(`\s\*/`)
)

// Parse reads a configuration header. Settings appearing before the first
// header comment are not part of any group and are dropped, as are lines
// that match no directive.
func Parse(r io.Reader) (*Document, error) {
	var (
		groups   []*Group
		cur      = &Group{}
		inHeader bool
		para     []string
	)
	flush := func() {
		if len(para) > 0 {
			cur.Header = append(cur.Header, strings.Join(para, " "))
			para = nil
		}
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}

		if !inHeader {
			if headerStartRe.MatchString(line) {
				groups = append(groups, cur)
				cur = &Group{}
				para = nil
				inHeader = true
			} else if len(groups) > 0 {
				if s, ok := parseSetting(line); ok {
					cur.Settings = append(cur.Settings, s)
				}
				continue
			} else {
				continue
			}
		}

		if body := headerBody(line); body == "" {
			flush()
		} else {
			para = append(para, body)
		}
		if headerCloseRe.MatchString(line) {
			flush()
			inHeader = false
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if len(cur.Header) > 0 || len(cur.Settings) > 0 {
		groups = append(groups, cur)
	}
	if len(groups) > 0 {
		groups = groups[1:]
	}
	return &Document{groups: groups, changed: make(map[*Setting]Setting)}, nil
}

// parseSetting matches one directive line:
//
//	[//]#define|#undef NAME [VALUE] [/* COMMENT */]
//
// VALUE never contains a comment opener.
func parseSetting(line string) (*Setting, bool) {
	m := settingRe.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	kw, ok := parseKeyword(m[1])
	if !ok {
		return nil, false
	}
	s := &Setting{Keyword: kw, Name: m[2], Active: kw.Active()}

	tail := strings.TrimSpace(m[3])
	if tail == "" {
		return s, true
	}

	idx := strings.Index(tail, "/*")
	switch {
	case idx < 0:
		s.Value = tail
		return s, true
	case idx > 0:
		value := tail[:idx]
		if strings.TrimRight(value, " \t") == value {
			return nil, false
		}
		s.Value = strings.TrimSpace(value)
	}

	cm := trailerCommentRe.FindStringSubmatch(tail[idx:])
	if cm == nil {
		return nil, false
	}
	s.Comment = cm[1]
	return s, true
}

// headerBody extracts the text of one line of a block comment. An empty
// result marks a paragraph break.
func headerBody(line string) string {
	loc := headerOpenRe.FindStringIndex(line)
	if loc == nil {
		return ""
	}
	rest := line[loc[1]:]
	if strings.HasPrefix(rest, "/") {
		return ""
	}
	if end := bodyCloseRe.FindStringIndex(rest); end != nil {
		rest = rest[:end[0]]
	}
	return strings.TrimSpace(rest)
}
