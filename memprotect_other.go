//go:build !unix

package rebind

import (
	"github.com/pkg/errors"
)

func osSetMemoryProtection(address uintptr, length uintptr, protection memProtect) error {
	return errors.Wrapf(ErrUnsupported, "cannot change protection of %#x", address)
}

func osGetMemoryProtection(address uintptr) (memProtect, error) {
	return memProtectNone, errors.Wrapf(ErrUnsupported, "cannot read protection of %#x", address)
}
