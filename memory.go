package rebind

import (
	"unsafe"
)

// Views length bytes of process memory at address as a byte slice.
func sliceAtAddress(address uintptr, length int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(address)), length)
}

func readUint32(address uintptr) uint32 {
	return *(*uint32)(unsafe.Pointer(address))
}

func readPointer(address uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(address))
}

func writePointer(address uintptr, value uintptr) {
	*(*uintptr)(unsafe.Pointer(address)) = value
}

// Copies the NUL-terminated string at address.
func cStringAt(address uintptr) string {
	length := 0
	for *(*byte)(unsafe.Pointer(address + uintptr(length))) != 0 {
		length++
	}
	return string(sliceAtAddress(address, length))
}

// Compares the NUL-terminated string at address against want without copying.
func cStringEqual(address uintptr, want string) bool {
	for i := 0; i < len(want); i++ {
		if *(*byte)(unsafe.Pointer(address + uintptr(i))) != want[i] {
			return false
		}
	}
	return *(*byte)(unsafe.Pointer(address + uintptr(len(want)))) == 0
}

// Reports whether the string at address is at least minLength bytes long,
// reading no further than that.
func cStringHasLength(address uintptr, minLength int) bool {
	for i := 0; i < minLength; i++ {
		if *(*byte)(unsafe.Pointer(address + uintptr(i))) == 0 {
			return false
		}
	}
	return true
}

func fixedCString(buf []byte) string {
	end := 0
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	return string(buf[:end])
}

// Make a memory region writable, perform an operation, and then restore the
// old protection. The whole region is assumed to share the protection of its
// first page. Regions that are already writable are left alone.
func applyToProtectedMemory(address uintptr, length uintptr, operation func()) (err error) {
	oldProtection, err := osGetMemoryProtection(address)
	if err != nil {
		return
	}
	if oldProtection&memProtectW != 0 {
		operation()
		return
	}

	if err = osSetMemoryProtection(address, length, oldProtection|memProtectRW); err != nil {
		return
	}

	operation()

	err = osSetMemoryProtection(address, length, oldProtection)
	return
}

type memProtect int

const (
	memProtectNone memProtect = 0
	memProtectR    memProtect = 1
	memProtectW    memProtect = 2
	memProtectX    memProtect = 4
	memProtectRW              = memProtectR | memProtectW
)
