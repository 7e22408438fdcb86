package elfinfo

import "debug/elf"

// ClassifySection decides whether a section is reported. Only sections that
// are allocated at run time and have a non-zero size are kept.
func ClassifySection(name string, size uint64, typ elf.SectionType, flags elf.SectionFlag) (Section, bool) {
	if flags&elf.SHF_ALLOC == 0 || size == 0 {
		return Section{}, false
	}
	return Section{
		Name:      name,
		Size:      size,
		ExecInstr: flags&elf.SHF_EXECINSTR != 0,
		ProgBits:  typ == elf.SHT_PROGBITS,
		Writable:  flags&elf.SHF_WRITE != 0,
	}, true
}

// ClassifySymbol decides whether a symbol is reported and with which role.
// Symbols are only reported for relocatable object files:
//
//	FUNC   with size > 0 -> function
//	OBJECT with size > 0 -> object
//	NOTYPE with GLOBAL   -> reference
//
// Everything else is dropped.
func ClassifySymbol(name string, size uint64, typ elf.SymType, bind elf.SymBind, kind Kind, relocatable bool) (Symbol, bool) {
	if kind != KindObject || !relocatable {
		return Symbol{}, false
	}

	var role Role
	switch {
	case typ == elf.STT_FUNC && size > 0:
		role = RoleFunction
	case typ == elf.STT_OBJECT && size > 0:
		role = RoleData
	case typ == elf.STT_NOTYPE && bind == elf.STB_GLOBAL:
		role = RoleReference
	default:
		return Symbol{}, false
	}
	return Symbol{Name: name, Size: size, Role: role}, true
}
