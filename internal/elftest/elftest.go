// Package elftest synthesises small little-endian ELF images for tests.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// Section describes one section of a synthesised image.
type Section struct {
	Name  string
	Type  elf.SectionType
	Flags elf.SectionFlag
	Data  []byte
	Size  uint64 // used for SHT_NOBITS
}

// Symbol describes one symbol table entry.
type Symbol struct {
	Name  string
	Type  elf.SymType
	Bind  elf.SymBind
	Size  uint64
	Shndx uint16
}

// Image describes an ELF image. A nil Symbols slice omits the symbol table.
// The zero Class encodes ELF64 for x86-64; ELFCLASS32 encodes i386.
type Image struct {
	Class    elf.Class
	Type     elf.Type
	Sections []Section
	Symbols  []Symbol
}

// shdr is a section header wide enough for either class.
type shdr struct {
	name, typ, link, info uint32
	flags, off, size      uint64
	entsize               uint64
}

type layout struct {
	class     elf.Class
	machine   elf.Machine
	ehsize    int
	shentsize int
	symsize   int
}

func (img Image) layout() layout {
	if img.Class == elf.ELFCLASS32 {
		return layout{elf.ELFCLASS32, elf.EM_386, 52, 40, elf.Sym32Size}
	}
	return layout{elf.ELFCLASS64, elf.EM_X86_64, 64, 64, elf.Sym64Size}
}

// As32 returns a copy of img encoded as ELF32.
func (img Image) As32() Image {
	img.Class = elf.ELFCLASS32
	return img
}

type strtab struct {
	buf bytes.Buffer
}

func newStrtab() *strtab {
	s := &strtab{}
	s.buf.WriteByte(0)
	return s
}

func (s *strtab) add(name string) uint32 {
	if name == "" {
		return 0
	}
	off := uint32(s.buf.Len())
	s.buf.WriteString(name)
	s.buf.WriteByte(0)
	return off
}

func ident(class elf.Class) [elf.EI_NIDENT]byte {
	var id [elf.EI_NIDENT]byte
	copy(id[:], elf.ELFMAG)
	id[elf.EI_CLASS] = byte(class)
	id[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	id[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	return id
}

// Bytes encodes the image. Section indexes start at 1 in the order given;
// the symbol table, its string table and the section name table follow.
func (img Image) Bytes() []byte {
	lay := img.layout()
	shstr := newStrtab()
	headers := []shdr{{}}
	var body bytes.Buffer

	place := func(name string, typ elf.SectionType, flags elf.SectionFlag, data []byte, size uint64) int {
		off := uint64(lay.ehsize + body.Len())
		if typ != elf.SHT_NOBITS {
			body.Write(data)
			size = uint64(len(data))
		}
		headers = append(headers, shdr{
			name:  shstr.add(name),
			typ:   uint32(typ),
			flags: uint64(flags),
			off:   off,
			size:  size,
		})
		return len(headers) - 1
	}

	for _, s := range img.Sections {
		place(s.Name, s.Type, s.Flags, s.Data, s.Size)
	}

	if img.Symbols != nil {
		names := newStrtab()
		var symbuf bytes.Buffer
		writeSym(&symbuf, lay.class, 0, Symbol{})
		locals := uint32(1)
		for _, s := range img.Symbols {
			if s.Bind == elf.STB_LOCAL {
				locals++
			}
		}
		for _, s := range img.Symbols {
			writeSym(&symbuf, lay.class, names.add(s.Name), s)
		}
		symtab := place(".symtab", elf.SHT_SYMTAB, 0, symbuf.Bytes(), 0)
		strtabIdx := place(".strtab", elf.SHT_STRTAB, 0, names.buf.Bytes(), 0)
		headers[symtab].link = uint32(strtabIdx)
		headers[symtab].info = locals
		headers[symtab].entsize = uint64(lay.symsize)
	}

	// The name table has to hold its own name before it is laid out.
	shstrndx := place(".shstrtab", elf.SHT_STRTAB, 0, nil, 0)
	headers[shstrndx].size = uint64(shstr.buf.Len())
	body.Write(shstr.buf.Bytes())

	for body.Len()%8 != 0 {
		body.WriteByte(0)
	}

	var out bytes.Buffer
	writeHeader(&out, lay, img.Type, uint64(lay.ehsize+body.Len()), len(headers), shstrndx)
	out.Write(body.Bytes())
	for _, sh := range headers {
		if lay.class == elf.ELFCLASS32 {
			mustWrite(&out, elf.Section32{
				Name: sh.name, Type: sh.typ, Flags: uint32(sh.flags), Off: uint32(sh.off),
				Size: uint32(sh.size), Link: sh.link, Info: sh.info, Addralign: 1, Entsize: uint32(sh.entsize),
			})
			continue
		}
		mustWrite(&out, elf.Section64{
			Name: sh.name, Type: sh.typ, Flags: sh.flags, Off: sh.off,
			Size: sh.size, Link: sh.link, Info: sh.info, Addralign: 1, Entsize: sh.entsize,
		})
	}
	return out.Bytes()
}

func writeSym(buf *bytes.Buffer, class elf.Class, name uint32, s Symbol) {
	info := elf.ST_INFO(s.Bind, s.Type)
	if class == elf.ELFCLASS32 {
		mustWrite(buf, elf.Sym32{Name: name, Info: info, Shndx: s.Shndx, Size: uint32(s.Size)})
		return
	}
	mustWrite(buf, elf.Sym64{Name: name, Info: info, Shndx: s.Shndx, Size: s.Size})
}

func writeHeader(buf *bytes.Buffer, lay layout, typ elf.Type, shoff uint64, shnum, shstrndx int) {
	if lay.class == elf.ELFCLASS32 {
		mustWrite(buf, elf.Header32{
			Ident:     ident(lay.class),
			Type:      uint16(typ),
			Machine:   uint16(lay.machine),
			Version:   uint32(elf.EV_CURRENT),
			Shoff:     uint32(shoff),
			Ehsize:    uint16(lay.ehsize),
			Shentsize: uint16(lay.shentsize),
			Shnum:     uint16(shnum),
			Shstrndx:  uint16(shstrndx),
		})
		return
	}
	mustWrite(buf, elf.Header64{
		Ident:     ident(lay.class),
		Type:      uint16(typ),
		Machine:   uint16(lay.machine),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shoff,
		Ehsize:    uint16(lay.ehsize),
		Shentsize: uint16(lay.shentsize),
		Shnum:     uint16(shnum),
		Shstrndx:  uint16(shstrndx),
	})
}

// Empty returns a header-only relocatable image without any sections.
func Empty() []byte {
	var out bytes.Buffer
	mustWrite(&out, elf.Header64{
		Ident:   ident(elf.ELFCLASS64),
		Type:    uint16(elf.ET_REL),
		Machine: uint16(elf.EM_X86_64),
		Version: uint32(elf.EV_CURRENT),
		Ehsize:  64,
	})
	return out.Bytes()
}

// SampleObject is a relocatable object with code, data, bss, an empty
// allocated section and a non-allocated section.
func SampleObject() Image {
	return Image{
		Type: elf.ET_REL,
		Sections: []Section{
			{Name: ".text", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Data: make([]byte, 128)},
			{Name: ".data", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Data: make([]byte, 16)},
			{Name: ".bss", Type: elf.SHT_NOBITS, Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Size: 32},
			{Name: ".rodata.empty", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC},
			{Name: ".comment", Type: elf.SHT_PROGBITS, Data: []byte("GCC\x00")},
		},
		Symbols: []Symbol{
			{Name: "ipxe.c", Type: elf.STT_FILE, Bind: elf.STB_LOCAL},
			{Name: "helper", Type: elf.STT_FUNC, Bind: elf.STB_LOCAL, Size: 24, Shndx: 1},
			{Name: "main", Type: elf.STT_FUNC, Bind: elf.STB_GLOBAL, Size: 104, Shndx: 1},
			{Name: "stub", Type: elf.STT_FUNC, Bind: elf.STB_GLOBAL, Size: 0, Shndx: 1},
			{Name: "counter", Type: elf.STT_OBJECT, Bind: elf.STB_GLOBAL, Size: 16, Shndx: 2},
			{Name: "printf", Type: elf.STT_NOTYPE, Bind: elf.STB_GLOBAL},
			{Name: "local_label", Type: elf.STT_NOTYPE, Bind: elf.STB_LOCAL},
		},
	}
}

// TableObject is a relocatable object carrying a linker table section, as
// emitted for drivers, protocols and image types.
func TableObject(table string, textSize int) Image {
	return Image{
		Type: elf.ET_REL,
		Sections: []Section{
			{Name: ".text", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Data: make([]byte, textSize)},
			{Name: table, Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC, Data: make([]byte, 8)},
		},
		Symbols: []Symbol{},
	}
}

// Write stores data as dir/name and returns the path.
func Write(tb testing.TB, dir, name string, data []byte) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("mkdir for %s: %v", name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("write %s: %v", name, err)
	}
	return path
}

func mustWrite(buf *bytes.Buffer, v any) {
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
}
