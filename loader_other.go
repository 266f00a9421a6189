//go:build !darwin || !cgo

package rebind

import (
	"github.com/pkg/errors"
)

// NewDyldLoader returns ErrUnsupported: dyld only exists on darwin, and
// subscribing to it needs cgo.
func NewDyldLoader() (Loader, error) {
	return nil, errors.Wrap(ErrUnsupported, "dyld loader requires darwin and cgo")
}
