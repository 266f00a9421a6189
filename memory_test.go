//go:build unix

package rebind

import (
	"testing"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func addressOf(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(&buf[0]))
}

func protectionOf(t *testing.T, address uintptr) memProtect {
	t.Helper()
	protection, err := osGetMemoryProtection(address)
	if errors.Cause(err) == ErrUnsupported {
		t.Skip(err)
	}
	if err != nil {
		t.Fatal(err)
	}
	return protection
}

func mapPage(t *testing.T, prot int) []byte {
	t.Helper()
	page, err := unix.Mmap(-1, 0, int(pageSize), prot, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { unix.Munmap(page) })
	return page
}

func TestGetMemoryProtection(t *testing.T) {
	page := mapPage(t, unix.PROT_READ|unix.PROT_WRITE)
	address := addressOf(page)
	if actual := protectionOf(t, address); actual != memProtectRW {
		t.Errorf("Expected %v but got %v", memProtectRW, actual)
	}

	if err := unix.Mprotect(page, unix.PROT_READ); err != nil {
		t.Fatal(err)
	}
	if actual := protectionOf(t, address+8); actual != memProtectR {
		t.Errorf("Expected %v but got %v", memProtectR, actual)
	}
}

func TestApplyToProtectedMemoryRestoresReadOnly(t *testing.T) {
	page := mapPage(t, unix.PROT_READ|unix.PROT_WRITE)
	address := addressOf(page)
	if err := unix.Mprotect(page, unix.PROT_READ); err != nil {
		t.Fatal(err)
	}
	protectionOf(t, address)

	err := applyToProtectedMemory(address+16, 8, func() {
		writePointer(address+16, 0x1234)
	})
	if err != nil {
		t.Fatal(err)
	}
	if actual := readPointer(address + 16); actual != 0x1234 {
		t.Errorf("Expected %#x but got %#x", 0x1234, actual)
	}
	if actual := protectionOf(t, address); actual != memProtectR {
		t.Errorf("Expected protection %v but got %v", memProtectR, actual)
	}
}

func TestApplyToProtectedMemoryLeavesWritableAlone(t *testing.T) {
	page := mapPage(t, unix.PROT_READ|unix.PROT_WRITE)
	address := addressOf(page)
	protectionOf(t, address)

	err := applyToProtectedMemory(address, 8, func() {
		writePointer(address, 0x5678)
	})
	if err != nil {
		t.Fatal(err)
	}
	if actual := protectionOf(t, address); actual != memProtectRW {
		t.Errorf("Expected protection %v but got %v", memProtectRW, actual)
	}
	// Still writable without help.
	writePointer(address+8, 1)
}
