// Package machofile maps a Mach-O file from disk into memory the way dyld
// would lay it out, so the rebinding machinery can inspect and patch a copy
// of it without loading it into the process.
package machofile

import (
	"bytes"
	"os"
	"unsafe"

	"github.com/apex/log"
	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"
	"github.com/dustin/go-humanize"
	"github.com/kstenerud/go-rebind"
	"github.com/pkg/errors"
)

// ErrNotMacho64 is returned for files that are not thin 64-bit Mach-O images.
var ErrNotMacho64 = errors.New("not a 64-bit Mach-O image")

// Image is a Mach-O file mapped at its VM layout into a private buffer. It is
// a rebind.Loader with exactly one image.
//
// The buffer lives on the Go heap, so rebinders over an Image must run with
// Config.ProtectConst disabled.
type Image struct {
	Path string
	File *macho.File

	memory  []byte
	minAddr uint64
}

// Open reads path and maps its segments.
func Open(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	f, err := macho.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	if f.Magic != types.Magic64 {
		return nil, errors.Wrapf(ErrNotMacho64, "%s has magic %#x", path, uint32(f.Magic))
	}

	var mapped []*macho.Segment
	minAddr, maxAddr := ^uint64(0), uint64(0)
	headerFound := false
	for _, segment := range f.Segments() {
		// __PAGEZERO reserves address space without backing it.
		if segment.Filesz == 0 && segment.Prot == 0 {
			continue
		}
		if segment.Offset == 0 && segment.Filesz > 0 {
			headerFound = true
		}
		if segment.Addr < minAddr {
			minAddr = segment.Addr
		}
		if end := segment.Addr + segment.Memsz; end > maxAddr {
			maxAddr = end
		}
		mapped = append(mapped, segment)
	}
	if !headerFound {
		return nil, errors.Errorf("%s has no segment mapping its header", path)
	}

	memory := make([]byte, maxAddr-minAddr)
	for _, segment := range mapped {
		end := segment.Offset + segment.Filesz
		if end > uint64(len(data)) {
			return nil, errors.Errorf("segment %s of %s runs past the end of the file", segment.Name, path)
		}
		copy(memory[segment.Addr-minAddr:], data[segment.Offset:end])
	}

	log.WithFields(log.Fields{
		"path":     path,
		"cpu":      f.CPU.String(),
		"segments": len(mapped),
		"size":     humanize.Bytes(uint64(len(memory))),
	}).Debug("mapped image")

	return &Image{
		Path:    path,
		File:    f,
		memory:  memory,
		minAddr: minAddr,
	}, nil
}

// ErrClosed is returned by an Image after Close.
var ErrClosed = errors.New("image is closed")

func (i *Image) base() uintptr {
	if len(i.memory) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&i.memory[0]))
}

// Image describes the mapped copy to the rebinder.
func (i *Image) Image() rebind.Image {
	return rebind.Image{
		Header: i.Address(i.headerAddr()),
		Slide:  int64(i.base()) - int64(i.minAddr),
		Name:   i.Path,
	}
}

func (i *Image) headerAddr() uint64 {
	for _, segment := range i.File.Segments() {
		if segment.Offset == 0 && segment.Filesz > 0 {
			return segment.Addr
		}
	}
	return i.minAddr
}

// Address converts a VM address of the file into an address of the copy.
func (i *Image) Address(vmaddr uint64) uintptr {
	return i.base() + uintptr(vmaddr-i.minAddr)
}

// VMAddr converts an address of the copy back into a VM address of the file.
func (i *Image) VMAddr(address uintptr) uint64 {
	return uint64(address-i.base()) + i.minAddr
}

// Bytes views length bytes of the copy starting at vmaddr.
func (i *Image) Bytes(vmaddr uint64, length uint64) ([]byte, error) {
	if i.memory == nil {
		return nil, ErrClosed
	}
	size := uint64(len(i.memory))
	if vmaddr < i.minAddr || vmaddr-i.minAddr > size || length > size-(vmaddr-i.minAddr) {
		return nil, errors.Errorf("%#x bytes at %#x are outside the image (%#x-%#x)",
			length, vmaddr, i.minAddr, i.minAddr+size)
	}
	offset := vmaddr - i.minAddr
	return i.memory[offset : offset+length], nil
}

func (i *Image) Images() []rebind.Image {
	if i.memory == nil {
		return nil
	}
	return []rebind.Image{i.Image()}
}

func (i *Image) Contains(header uintptr) bool {
	return i.memory != nil && header == i.Image().Header
}

// OnImageAdded replays the one image. Nothing is ever loaded later.
func (i *Image) OnImageAdded(handler func(image rebind.Image)) {
	if i.memory == nil {
		return
	}
	handler(i.Image())
}

func (i *Image) Close() error {
	i.memory = nil
	return nil
}
