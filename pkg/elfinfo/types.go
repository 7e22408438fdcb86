package elfinfo

import "fmt"

// Kind identifies what a build output file is, derived from its name.
type Kind uint8

const (
	KindExecutable Kind = iota
	KindObject
	KindDebug
)

func (k Kind) String() string {
	switch k {
	case KindExecutable:
		return "executable"
	case KindObject:
		return "object"
	case KindDebug:
		return "debug"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Role is the semantic role assigned to a retained symbol.
type Role uint8

const (
	RoleFunction Role = iota
	RoleData
	RoleReference
)

func (r Role) String() string {
	switch r {
	case RoleFunction:
		return "function"
	case RoleData:
		return "object"
	case RoleReference:
		return "reference"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Section is an allocated, non-empty section of an artifact.
type Section struct {
	Name      string `json:"name"`
	Size      uint64 `json:"size"`
	ExecInstr bool   `json:"execinstr"`
	ProgBits  bool   `json:"progbits"`
	Writable  bool   `json:"writable"`
}

// Symbol is a retained entry of a relocatable object's symbol table.
type Symbol struct {
	Name string `json:"name"`
	Size uint64 `json:"size"`
	Role Role   `json:"role"`
}

// Artifact is one analysed build output.
type Artifact struct {
	Target   string    `json:"target"`
	Name     string    `json:"name"`
	Kind     Kind      `json:"kind"`
	Digest   string    `json:"digest,omitempty"`
	Sections []Section `json:"sections"`
	Symbols  []Symbol  `json:"symbols"`
}

// Sizes holds the size aggregates of an artifact. All fields are derived
// from the artifact's sections.
type Sizes struct {
	Total uint64 `json:"total"`
	Text  uint64 `json:"text"`
	Data  uint64 `json:"data"`
	BSS   uint64 `json:"bss"`
}

// SumSections computes size aggregates over a set of sections.
//
// Total counts file-backed content, Text counts executable sections, Data
// counts file-backed non-executable sections and BSS counts zero-filled
// non-executable sections.
func SumSections(sections []Section) Sizes {
	var s Sizes
	for _, sec := range sections {
		if sec.ProgBits {
			s.Total += sec.Size
		}
		switch {
		case sec.ExecInstr:
			s.Text += sec.Size
		case sec.ProgBits:
			s.Data += sec.Size
		default:
			s.BSS += sec.Size
		}
	}
	return s
}

// Sizes returns the aggregates of the artifact's sections.
func (a *Artifact) Sizes() Sizes {
	if a == nil {
		return Sizes{}
	}
	return SumSections(a.Sections)
}
