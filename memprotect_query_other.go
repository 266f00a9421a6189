//go:build unix && !linux && !(darwin && cgo)

package rebind

import (
	"github.com/pkg/errors"
)

func osGetMemoryProtection(address uintptr) (memProtect, error) {
	return memProtectNone, errors.Wrapf(ErrUnsupported, "cannot read protection of %#x", address)
}
