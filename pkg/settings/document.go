package settings

import (
	"fmt"
	"io"
	"os"
)

// Setting is one #define/#undef directive of a configuration header.
type Setting struct {
	Keyword Keyword
	Name    string
	Value   string // empty when the directive carries no value
	Comment string // trailing /* comment */ text, without delimiters
	Active  bool
}

// Group is a header comment and the settings that follow it, in file order.
type Group struct {
	Header   []string
	Settings []*Setting
}

// Document is a parsed configuration header with a set of staged edits.
// Staged edits are keyed by the setting they replace and never modify the
// parsed settings themselves.
type Document struct {
	Filename string

	groups  []*Group
	changed map[*Setting]Setting
}

// Load parses the configuration header at path.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}
	defer f.Close()

	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	doc.Filename = path
	return doc, nil
}

// Groups returns the setting groups in file order.
func (d *Document) Groups() []*Group {
	return append([]*Group(nil), d.groups...)
}

// Lookup returns the first setting named name, or nil.
func (d *Document) Lookup(name string) *Setting {
	for _, g := range d.groups {
		for _, s := range g.Settings {
			if s.Name == name {
				return s
			}
		}
	}
	return nil
}

// StageSet stages s to be written as an active #define with value. Setting
// a value the directive already has active clears any pending edit.
func (d *Document) StageSet(s *Setting, value string) {
	if s.Active && s.Value == value {
		delete(d.changed, s)
		return
	}
	d.changed[s] = Setting{
		Keyword: KeywordDefine,
		Name:    s.Name,
		Value:   value,
		Comment: s.Comment,
		Active:  true,
	}
}

// StageUnset stages s to be written as an #undef. Unsetting an inactive
// directive clears any pending edit.
func (d *Document) StageUnset(s *Setting) {
	if !s.Active {
		delete(d.changed, s)
		return
	}
	d.changed[s] = Setting{
		Keyword: KeywordUndef,
		Name:    s.Name,
		Comment: s.Comment,
	}
}

// Staged returns the pending edit for s, if any.
func (d *Document) Staged(s *Setting) (Setting, bool) {
	c, ok := d.changed[s]
	return c, ok
}

// Pending returns the number of staged edits.
func (d *Document) Pending() int {
	return len(d.changed)
}

// EmitChanges writes one line per staged edit, in file order:
//
//	KEYWORD\tNAME\tVALUE\t/* COMMENT */
//
// Value and comment columns are left empty when absent. Settings without a
// staged edit are not written.
func (d *Document) EmitChanges(w io.Writer) error {
	for _, g := range d.groups {
		for _, s := range g.Settings {
			c, ok := d.changed[s]
			if !ok {
				continue
			}
			comment := ""
			if c.Comment != "" {
				comment = "/* " + c.Comment + " */"
			}
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Keyword, c.Name, c.Value, comment); err != nil {
				return fmt.Errorf("emit %s: %w", c.Name, err)
			}
		}
	}
	return nil
}

// EmitOverride writes the staged edits, in file order, as a header that can
// be included after the original one. Every edited name is first undefined
// so that a changed value never redefines a macro.
func (d *Document) EmitOverride(w io.Writer) error {
	for _, g := range d.groups {
		for _, s := range g.Settings {
			c, ok := d.changed[s]
			if !ok {
				continue
			}
			line := "#undef\t" + c.Name
			if c.Keyword == KeywordDefine {
				line += "\n#define\t" + c.Name
				if c.Value != "" {
					line += "\t" + c.Value
				}
			}
			if c.Comment != "" {
				line += "\t/* " + c.Comment + " */"
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return fmt.Errorf("emit %s: %w", c.Name, err)
			}
		}
	}
	return nil
}
