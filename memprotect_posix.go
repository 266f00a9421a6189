//go:build unix

package rebind

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var pageSize = uintptr(unix.Getpagesize())
var pageBeginMask = ^(pageSize - 1)

func protToOS(protection memProtect) (prot int) {
	if protection&memProtectR != 0 {
		prot |= unix.PROT_READ
	}
	if protection&memProtectW != 0 {
		prot |= unix.PROT_WRITE
	}
	if protection&memProtectX != 0 {
		prot |= unix.PROT_EXEC
	}
	return
}

func osSetMemoryProtection(address uintptr, length uintptr, protection memProtect) error {
	start := address & pageBeginMask
	end := (address + length + pageSize - 1) & pageBeginMask
	if err := unix.Mprotect(sliceAtAddress(start, int(end-start)), protToOS(protection)); err != nil {
		return errors.Wrapf(err, "mprotect %#x-%#x", start, end)
	}
	return nil
}
