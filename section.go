package rebind

import (
	"fmt"
	"unsafe"

	"github.com/apex/log"
	"github.com/blacktop/go-macho/types"
)

const (
	sectionTypeMask       types.SectionFlag = 0x000000ff
	nonLazySymbolPointers types.SectionFlag = 0x6
	lazySymbolPointers    types.SectionFlag = 0x7

	indirectSymbolLocal uint32 = 0x80000000
	indirectSymbolAbs   uint32 = 0x40000000
)

// Slot describes one symbol pointer slot of a loaded image.
type Slot struct {
	Segment string
	Section string
	Index   int
	Address uintptr
	Value   uintptr
	// Symbol is the name as stored in the image, including the leading
	// underscore.
	Symbol string
	Lazy   bool
}

// Visits every lazy and non-lazy symbol pointer section of the image's
// __DATA and __DATA_CONST segments.
func forEachPointerSection(header uintptr, visit func(segment *types.Segment64, section *types.Section64)) {
	forEachLoadCommand(header, func(address uintptr, cmd types.LoadCmd) {
		if cmd != types.LC_SEGMENT_64 {
			return
		}
		segment := (*types.Segment64)(unsafe.Pointer(address))
		switch fixedCString(segment.Name[:]) {
		case segData, segDataConst:
		default:
			return
		}
		for j := uintptr(0); j < uintptr(segment.Nsect); j++ {
			section := (*types.Section64)(unsafe.Pointer(address + segmentCommand64Size + j*section64Size))
			switch section.Flags & sectionTypeMask {
			case lazySymbolPointers, nonLazySymbolPointers:
				visit(segment, section)
			}
		}
	})
}

// Visits each slot of section whose indirect symbol resolves to a usable
// name. name is the address of the NUL-terminated symbol name.
func (t *imageTables) forEachNamedSlot(section *types.Section64, visit func(index int, slot uintptr, name uintptr)) {
	indices := t.indirect + uintptr(section.Reserve1)*indirectEntrySize
	slots := uintptr(t.image.Slide) + uintptr(section.Addr)
	count := int(section.Size / pointerSize)

	for i := 0; i < count; i++ {
		symbolIndex := readUint32(indices + uintptr(i)*indirectEntrySize)
		switch symbolIndex {
		case indirectSymbolLocal, indirectSymbolAbs, indirectSymbolLocal | indirectSymbolAbs:
			continue
		}
		entry := (*types.Nlist64)(unsafe.Pointer(t.symtab + uintptr(symbolIndex)*nlist64Size))
		name := t.strtab + uintptr(entry.Name)
		// A C symbol is "_" followed by at least one character.
		if !cStringHasLength(name, 2) {
			continue
		}
		visit(i, slots+uintptr(i)*pointerSize, name)
	}
}

type slotPatch struct {
	slot      uintptr
	rebinding *Rebinding
}

func (t *imageTables) rebindSection(reg *registry, segment *types.Segment64, section *types.Section64, protectConst bool) {
	var patches []slotPatch
	t.forEachNamedSlot(section, func(_ int, slot uintptr, name uintptr) {
		rebinding := reg.find(func(want string) bool {
			return cStringEqual(name+1, want)
		})
		if rebinding != nil {
			patches = append(patches, slotPatch{slot: slot, rebinding: rebinding})
		}
	})
	if len(patches) == 0 {
		return
	}

	apply := func() {
		for _, patch := range patches {
			current := readPointer(patch.slot)
			// Leave an earlier capture alone if this slot already holds
			// the replacement.
			if patch.rebinding.Replaced != nil && current != patch.rebinding.Replacement {
				*patch.rebinding.Replaced = current
			}
			writePointer(patch.slot, patch.rebinding.Replacement)
			log.WithFields(log.Fields{
				"image":       t.image.Name,
				"symbol":      patch.rebinding.Name,
				"slot":        fmt.Sprintf("%#x", patch.slot),
				"replacement": fmt.Sprintf("%#x", patch.rebinding.Replacement),
			}).Debug("rebound slot")
		}
	}

	segmentName := fixedCString(segment.Name[:])
	if !protectConst || segmentName != segDataConst {
		apply()
		return
	}

	start := uintptr(t.image.Slide) + uintptr(section.Addr)
	if err := applyToProtectedMemory(start, uintptr(section.Size), apply); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"image":   t.image.Name,
			"section": segmentName + "." + fixedCString(section.Name[:]),
		}).Warn("cannot rebind read-only section")
	}
}

// rebindImage applies reg to every symbol pointer slot of image.
func rebindImage(loader Loader, reg *registry, image Image, protectConst bool) {
	tables, ok := locateTables(loader, image)
	if !ok {
		return
	}
	forEachPointerSection(image.Header, func(segment *types.Segment64, section *types.Section64) {
		tables.rebindSection(reg, segment, section, protectConst)
	})
}

// listSlots describes every named symbol pointer slot of image.
func listSlots(loader Loader, image Image) (slots []Slot) {
	tables, ok := locateTables(loader, image)
	if !ok {
		return
	}
	forEachPointerSection(image.Header, func(segment *types.Segment64, section *types.Section64) {
		segmentName := fixedCString(segment.Name[:])
		sectionName := fixedCString(section.Name[:])
		lazy := section.Flags&sectionTypeMask == lazySymbolPointers
		tables.forEachNamedSlot(section, func(index int, slot uintptr, name uintptr) {
			slots = append(slots, Slot{
				Segment: segmentName,
				Section: sectionName,
				Index:   index,
				Address: slot,
				Value:   readPointer(slot),
				Symbol:  cStringAt(name),
				Lazy:    lazy,
			})
		})
	})
	return
}
