package elfinfo

import (
	"crypto/sha256"
	"debug/elf"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnrecognizedFile is returned by KindOf for names that are not build
// outputs worth analysing.
var ErrUnrecognizedFile = errors.New("unrecognized build output")

// FormatError reports a file that could not be read as an ELF image.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// KindOf derives the artifact kind from a file name.
//
// Debug objects are named "<stem>.dbgN.o", other ".o" files are objects and
// ".tmp" files are the linked executables left behind by the build.
func KindOf(name string) (Kind, error) {
	switch {
	case strings.HasSuffix(name, ".o"):
		if len(name) >= 6 && name[len(name)-6:len(name)-3] == "dbg" {
			return KindDebug, nil
		}
		return KindObject, nil
	case strings.HasSuffix(name, ".tmp"):
		return KindExecutable, nil
	default:
		return 0, fmt.Errorf("%s: %w", name, ErrUnrecognizedFile)
	}
}

// Analyze opens path as an ELF image and returns its classified sections
// and symbols. The file is closed before Analyze returns.
func Analyze(path, target string) (*Artifact, error) {
	name := filepath.Base(path)
	kind, err := KindOf(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	digest, err := digestFile(f)
	if err != nil {
		return nil, fmt.Errorf("digest %s: %w", path, err)
	}

	ef, err := elf.NewFile(f)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	defer ef.Close()

	art, err := analyzeFile(ef, kind)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	art.Target = target
	art.Name = name
	art.Digest = digest
	return art, nil
}

func analyzeFile(ef *elf.File, kind Kind) (*Artifact, error) {
	art := &Artifact{
		Kind:     kind,
		Sections: make([]Section, 0, len(ef.Sections)),
		Symbols:  []Symbol{},
	}

	for _, s := range ef.Sections {
		if sec, ok := ClassifySection(s.Name, s.Size, s.Type, s.Flags); ok {
			art.Sections = append(art.Sections, sec)
		}
	}

	// Only relocatable objects contribute symbols, so nobody else needs a
	// readable symbol table.
	if kind != KindObject || ef.Type != elf.ET_REL {
		return art, nil
	}
	syms, err := ef.Symbols()
	if err != nil {
		if errors.Is(err, elf.ErrNoSymbols) {
			return art, nil
		}
		return nil, fmt.Errorf("read symbols: %w", err)
	}
	for _, s := range syms {
		sym, ok := ClassifySymbol(s.Name, s.Size, elf.ST_TYPE(s.Info), elf.ST_BIND(s.Info), kind, true)
		if ok {
			art.Symbols = append(art.Symbols, sym)
		}
	}
	return art, nil
}

func digestFile(f *os.File) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, io.NewSectionReader(f, 0, 1<<62)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
