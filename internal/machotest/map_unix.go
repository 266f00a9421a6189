//go:build unix

package machotest

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// A Mapping is an Image copied into its VM layout in an anonymous mapping.
// The memory is outside the Go heap, so page protections can be changed
// freely.
type Mapping struct {
	Memory []byte
	Image  *Image
}

// Map copies the image into fresh anonymous memory.
func (i *Image) Map() (*Mapping, error) {
	memory, err := unix.Mmap(-1, 0, int(i.VMSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrap(err, "failed to map test image")
	}
	for _, segment := range i.segments {
		copy(memory[segment.vmOff:], segment.data)
	}
	return &Mapping{Memory: memory, Image: i}, nil
}

// Header is the address of the mapped mach_header_64.
func (m *Mapping) Header() uintptr {
	return uintptr(unsafe.Pointer(&m.Memory[0]))
}

// Slide is how far the image was mapped from TextAddr.
func (m *Mapping) Slide() int64 {
	return int64(m.Header()) - TextAddr
}

// SlotAddress is the address of slot index of the named section.
func (m *Mapping) SlotAddress(section string, index int) uintptr {
	return m.Header() + uintptr(m.Image.SlotOffset(section, index))
}

// Slot reads slot index of the named section.
func (m *Mapping) Slot(section string, index int) uintptr {
	return *(*uintptr)(unsafe.Pointer(m.SlotAddress(section, index)))
}

// Snapshot copies the whole mapped image. Read-only pages are still
// readable.
func (m *Mapping) Snapshot() []byte {
	return append([]byte(nil), m.Memory...)
}

// Close unmaps the image.
func (m *Mapping) Close() error {
	return unix.Munmap(m.Memory)
}
