package rebind

import (
	"unsafe"

	"github.com/blacktop/go-macho/types"
)

const (
	segLinkedit  = "__LINKEDIT"
	segData      = "__DATA"
	segDataConst = "__DATA_CONST"
)

// Sizes of the 64-bit on-disk structures. They are part of the Mach-O ABI
// and are used as strides rather than trusting Go's layout of the types.
const (
	segmentCommand64Size = 72
	section64Size        = 80
	nlist64Size          = 16
	indirectEntrySize    = 4
	pointerSize          = 8
)

type loadCommand struct {
	Cmd types.LoadCmd
	Len uint32
}

// imageTables holds the linkedit tables of one image. It only lives for the
// duration of one scan.
type imageTables struct {
	image    Image
	symtab   uintptr
	strtab   uintptr
	indirect uintptr
}

func forEachLoadCommand(header uintptr, visit func(address uintptr, cmd types.LoadCmd)) {
	mh := (*types.FileHeader)(unsafe.Pointer(header))
	address := header + types.FileHeaderSize64
	for i := uint32(0); i < mh.NCommands; i++ {
		lc := (*loadCommand)(unsafe.Pointer(address))
		visit(address, lc.Cmd)
		address += uintptr(lc.Len)
	}
}

// locateTables finds the symbol, string and indirect symbol tables of image.
// ok is false for images that cannot be rebound: unknown to the loader, not
// 64-bit, stripped of their linkedit tables, or without indirect symbols.
func locateTables(loader Loader, image Image) (tables imageTables, ok bool) {
	if !loader.Contains(image.Header) {
		return
	}
	if (*types.FileHeader)(unsafe.Pointer(image.Header)).Magic != types.Magic64 {
		return
	}

	var linkedit *types.Segment64
	var symtab *types.SymtabCmd
	var dysymtab *types.DysymtabCmd
	forEachLoadCommand(image.Header, func(address uintptr, cmd types.LoadCmd) {
		switch cmd {
		case types.LC_SEGMENT_64:
			segment := (*types.Segment64)(unsafe.Pointer(address))
			if fixedCString(segment.Name[:]) == segLinkedit {
				linkedit = segment
			}
		case types.LC_SYMTAB:
			symtab = (*types.SymtabCmd)(unsafe.Pointer(address))
		case types.LC_DYSYMTAB:
			dysymtab = (*types.DysymtabCmd)(unsafe.Pointer(address))
		}
	})

	if linkedit == nil || symtab == nil || dysymtab == nil || dysymtab.Nindirectsyms == 0 {
		return
	}

	// File offsets in the symtab commands are relative to the file; the
	// linkedit segment maps them to memory.
	base := uintptr(image.Slide) + uintptr(linkedit.Addr) - uintptr(linkedit.Offset)
	tables = imageTables{
		image:    image,
		symtab:   base + uintptr(symtab.Symoff),
		strtab:   base + uintptr(symtab.Stroff),
		indirect: base + uintptr(dysymtab.Indirectsymoff),
	}
	ok = true
	return
}
