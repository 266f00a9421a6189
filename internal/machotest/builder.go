// Package machotest builds small synthetic 64-bit Mach-O images for tests.
//
// An image has a __TEXT segment holding the header and load commands, one
// segment per distinct Section.Segment, and a __LINKEDIT segment holding the
// symbol table, the indirect symbol table and the string table. Segments are
// 0x1000 bytes apart in the file and 0x4000 bytes apart in memory, so the
// linkedit file offset never equals its VM offset.
package machotest

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/blacktop/go-macho/types"
)

const (
	// TextAddr is the VM address __TEXT is linked at.
	TextAddr = 0x100000000

	VMSegmentSize   = 0x4000
	FileSegmentSize = 0x1000

	// Section type values of the low byte of section flags.
	Regular               types.SectionFlag = 0x0
	NonLazySymbolPointers types.SectionFlag = 0x6
	LazySymbolPointers    types.SectionFlag = 0x7

	IndirectSymbolLocal uint32 = 0x80000000
	IndirectSymbolAbs   uint32 = 0x40000000

	// LinkeditSegment names the segment builders normally emit last.
	LinkeditSegment = "__LINKEDIT"
)

// A Slot is one pointer-sized entry of a section.
type Slot struct {
	// Symbol is the name the slot is bound to, including the leading
	// underscore. When empty, Indirect is written to the indirect symbol
	// table as is.
	Symbol   string
	Indirect uint32
	// Value is the pointer stored in the slot when the image is mapped.
	Value uint64
}

// A Section is a section of a data segment.
type Section struct {
	Segment string
	Name    string
	Type    types.SectionFlag
	Slots   []Slot
}

// Builder describes an image. The zero value builds an image with no data
// segments.
type Builder struct {
	Sections []Section
	CPU      types.CPU

	NoLinkedit bool
	NoSymtab   bool
	NoDysymtab bool
	// EmptyIndirect drops every entry of the indirect symbol table.
	EmptyIndirect bool
	// Magic overrides the header magic.
	Magic types.Magic
}

type placement struct {
	name    string
	vmOff   uint64
	fileOff uint64
	data    []byte
}

// Image is a built image in its on-disk layout, with enough bookkeeping to
// map it and find its slots.
type Image struct {
	File []byte
	// VMSize is the span of memory the image occupies once mapped.
	VMSize uint64

	segments []placement
	sections map[string]uint64
}

// SlotOffset returns the offset from the start of the mapped image of slot
// index of the named section.
func (i *Image) SlotOffset(section string, index int) uint64 {
	offset, ok := i.sections[section]
	if !ok {
		panic(fmt.Sprintf("no section %q", section))
	}
	return offset + uint64(index)*8
}

func name16(name string) (out [16]byte) {
	copy(out[:], name)
	return
}

func write(buf *bytes.Buffer, data interface{}) error {
	return binary.Write(buf, binary.LittleEndian, data)
}

// Build lays out the image.
func (b *Builder) Build() (image *Image, err error) {
	var segmentNames []string
	bySegment := map[string][]Section{}
	for _, section := range b.Sections {
		if _, ok := bySegment[section.Segment]; !ok {
			segmentNames = append(segmentNames, section.Segment)
		}
		bySegment[section.Segment] = append(bySegment[section.Segment], section)
	}

	image = &Image{sections: map[string]uint64{}}
	segmentIndex := func(i int) (vmOff uint64, fileOff uint64) {
		return uint64(i) * VMSegmentSize, uint64(i) * FileSegmentSize
	}

	// Linkedit tables.
	symbols := map[string]uint32{}
	var symbolOrder []string
	var indirect []uint32
	strtab := []byte{' ', 0}
	for _, section := range b.Sections {
		if section.Type != NonLazySymbolPointers && section.Type != LazySymbolPointers {
			continue
		}
		for _, slot := range section.Slots {
			if slot.Symbol == "" {
				indirect = append(indirect, slot.Indirect)
				continue
			}
			index, ok := symbols[slot.Symbol]
			if !ok {
				index = uint32(len(symbolOrder))
				symbols[slot.Symbol] = index
				symbolOrder = append(symbolOrder, slot.Symbol)
			}
			indirect = append(indirect, index)
		}
	}

	var linkedit bytes.Buffer
	var strx []uint32
	for _, symbol := range symbolOrder {
		strx = append(strx, uint32(len(strtab)))
		strtab = append(strtab, symbol...)
		strtab = append(strtab, 0)
	}
	for i := range symbolOrder {
		// Undefined external.
		if err = write(&linkedit, types.Nlist64{Nlist: types.Nlist{Name: strx[i], Type: 0x1}}); err != nil {
			return
		}
	}
	indirectOff := uint32(linkedit.Len())
	if b.EmptyIndirect {
		indirect = nil
	}
	if err = write(&linkedit, indirect); err != nil {
		return
	}
	stringsOff := uint32(linkedit.Len())
	linkedit.Write(strtab)
	if linkedit.Len() > FileSegmentSize {
		return nil, fmt.Errorf("linkedit too large: %d bytes", linkedit.Len())
	}

	linkeditVMOff, linkeditFileOff := segmentIndex(len(segmentNames) + 1)

	// Load commands.
	var commands bytes.Buffer
	ncmds := uint32(0)

	text := types.Segment64{
		LoadCmd: types.LC_SEGMENT_64,
		Len:     72,
		Name:    name16("__TEXT"),
		Addr:    TextAddr,
		Memsz:   VMSegmentSize,
		Offset:  0,
		Filesz:  FileSegmentSize,
		Maxprot: 5,
		Prot:    5,
	}
	if err = write(&commands, text); err != nil {
		return
	}
	ncmds++

	reserved1 := uint32(0)
	for i, segmentName := range segmentNames {
		vmOff, fileOff := segmentIndex(i + 1)
		sections := bySegment[segmentName]
		segment := types.Segment64{
			LoadCmd: types.LC_SEGMENT_64,
			Len:     uint32(72 + 80*len(sections)),
			Name:    name16(segmentName),
			Addr:    TextAddr + vmOff,
			Memsz:   VMSegmentSize,
			Offset:  fileOff,
			Filesz:  FileSegmentSize,
			Maxprot: 3,
			Prot:    3,
			Nsect:   uint32(len(sections)),
		}
		if err = write(&commands, segment); err != nil {
			return
		}
		ncmds++

		var data bytes.Buffer
		for _, section := range sections {
			sectionOff := uint64(data.Len())
			for _, slot := range section.Slots {
				if err = write(&data, slot.Value); err != nil {
					return
				}
			}
			header := types.Section64{
				Name:   name16(section.Name),
				Seg:    name16(segmentName),
				Addr:   TextAddr + vmOff + sectionOff,
				Size:   uint64(8 * len(section.Slots)),
				Offset: uint32(fileOff + sectionOff),
				Align:  3,
				Flags:  section.Type,
			}
			if section.Type == NonLazySymbolPointers || section.Type == LazySymbolPointers {
				header.Reserve1 = reserved1
				reserved1 += uint32(len(section.Slots))
			}
			if err = write(&commands, header); err != nil {
				return
			}
			image.sections[section.Name] = vmOff + sectionOff
		}
		if data.Len() > FileSegmentSize {
			return nil, fmt.Errorf("segment %s too large: %d bytes", segmentName, data.Len())
		}
		image.segments = append(image.segments, placement{
			name:    segmentName,
			vmOff:   vmOff,
			fileOff: fileOff,
			data:    data.Bytes(),
		})
	}

	if !b.NoLinkedit {
		segment := types.Segment64{
			LoadCmd: types.LC_SEGMENT_64,
			Len:     72,
			Name:    name16(LinkeditSegment),
			Addr:    TextAddr + linkeditVMOff,
			Memsz:   VMSegmentSize,
			Offset:  linkeditFileOff,
			Filesz:  uint64(linkedit.Len()),
			Maxprot: 1,
			Prot:    1,
		}
		if err = write(&commands, segment); err != nil {
			return
		}
		ncmds++
	}
	if !b.NoSymtab {
		symtab := types.SymtabCmd{
			LoadCmd: types.LC_SYMTAB,
			Len:     24,
			Symoff:  uint32(linkeditFileOff),
			Nsyms:   uint32(len(symbolOrder)),
			Stroff:  uint32(linkeditFileOff) + stringsOff,
			Strsize: uint32(len(strtab)),
		}
		if err = write(&commands, symtab); err != nil {
			return
		}
		ncmds++
	}
	if !b.NoDysymtab {
		dysymtab := types.DysymtabCmd{
			LoadCmd:        types.LC_DYSYMTAB,
			Len:            80,
			Iundefsym:      0,
			Nundefsym:      uint32(len(symbolOrder)),
			Indirectsymoff: uint32(linkeditFileOff) + indirectOff,
			Nindirectsyms:  uint32(len(indirect)),
		}
		if err = write(&commands, dysymtab); err != nil {
			return
		}
		ncmds++
	}

	magic := b.Magic
	if magic == 0 {
		magic = types.Magic64
	}
	cpu := b.CPU
	if cpu == 0 {
		cpu = types.CPUArm64
	}
	var header bytes.Buffer
	if err = write(&header, types.FileHeader{
		Magic:        magic,
		CPU:          cpu,
		Type:         types.MH_DYLIB,
		NCommands:    ncmds,
		SizeCommands: uint32(commands.Len()),
	}); err != nil {
		return
	}
	// 64-bit headers carry a reserved word.
	for header.Len() < types.FileHeaderSize64 {
		header.WriteByte(0)
	}
	header.Write(commands.Bytes())
	if header.Len() > FileSegmentSize {
		return nil, fmt.Errorf("load commands too large: %d bytes", header.Len())
	}

	image.segments = append([]placement{{
		name: "__TEXT",
		data: header.Bytes(),
	}}, image.segments...)
	image.segments = append(image.segments, placement{
		name:    LinkeditSegment,
		vmOff:   linkeditVMOff,
		fileOff: linkeditFileOff,
		data:    linkedit.Bytes(),
	})

	image.File = make([]byte, linkeditFileOff+uint64(linkedit.Len()))
	for _, segment := range image.segments {
		copy(image.File[segment.fileOff:], segment.data)
	}
	image.VMSize = linkeditVMOff + VMSegmentSize
	return
}
