// Package rebind redirects calls to dynamically linked functions by rewriting
// the lazy and non-lazy symbol pointers that dyld fills in for every Mach-O
// image loaded into the process. The calling code is never modified: once a
// slot is rebound, every call made through it lands on the replacement.
//
// A Rebinding names a symbol (without its leading underscore), the function
// pointer to install, and optionally where to store the pointer it displaced
// so the replacement can call through to the original.
//
// Rebinding writes directly into live loader state. Replacements must be C
// ABI function pointers (for example a cgo exported function), and nothing
// in this package is safe to call from more than one goroutine at a time.
// Getting either wrong will crash the process in interesting ways.
//
// YOU HAVE BEEN WARNED!
package rebind

import (
	"sync"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// ErrUnsupported is returned when the platform has no dyld to rebind against.
var ErrUnsupported = errors.New("rebinding is not supported on this platform")

// A Rebinding asks for every pointer slot bound to a symbol to be redirected.
type Rebinding struct {
	// Name is the symbol name without the leading underscore, e.g. "open".
	Name string
	// Replacement is the function pointer to install.
	Replacement uintptr
	// Replaced, if not nil, receives the pointer that was in the slot before
	// the first rebinding of it.
	Replaced *uintptr
}

// A Rebinder owns a registry of rebindings and keeps every image of a Loader,
// present and future, rebound against it.
//
// Rebinder does no locking. Callers that register from several goroutines
// must serialize those calls.
type Rebinder struct {
	loader   Loader
	config   Config
	registry *registry
}

// New returns a Rebinder over the images of loader.
func New(loader Loader, config Config) *Rebinder {
	return &Rebinder{
		loader:   loader,
		config:   config,
		registry: newRegistry(config.MaxRebindings),
	}
}

// RebindSymbols adds rebindings to the registry and applies them everywhere.
//
// The first successful call subscribes to image loads, which rebinds every
// image loaded so far and every image loaded later. Subsequent calls rescan
// all loaded images immediately so they pick up the new rebindings.
//
// The only error is ErrRegistryFull, in which case nothing has changed.
func (r *Rebinder) RebindSymbols(rebindings []Rebinding) (err error) {
	first := r.registry.empty()
	if err = r.registry.prepend(rebindings); err != nil {
		return
	}

	if first {
		log.WithField("rebindings", len(rebindings)).Debug("subscribing to image loads")
		r.loader.OnImageAdded(r.rebindLoadedImage)
		return
	}

	images := r.loader.Images()
	log.WithFields(log.Fields{
		"rebindings": len(rebindings),
		"images":     len(images),
	}).Debug("rescanning loaded images")
	for _, image := range images {
		r.rebindLoadedImage(image)
	}
	return
}

func (r *Rebinder) rebindLoadedImage(image Image) {
	rebindImage(r.loader, r.registry, image, r.config.ProtectConst)
}

// RebindImage applies rebindings to image only. It neither reads nor adds to
// the Rebinder's registry and does not subscribe to image loads.
func (r *Rebinder) RebindImage(image Image, rebindings []Rebinding) (err error) {
	private := newRegistry(r.config.MaxRebindings)
	if err = private.prepend(rebindings); err != nil {
		return
	}
	rebindImage(r.loader, private, image, r.config.ProtectConst)
	return
}

// Slots lists the named symbol pointer slots of image without changing them.
func (r *Rebinder) Slots(image Image) []Slot {
	return listSlots(r.loader, image)
}

var (
	defaultOnce     sync.Once
	defaultRebinder *Rebinder
	defaultErr      error
)

// Default returns the process-wide Rebinder, backed by dyld and configured
// from the environment. It is created on first use and lives for the rest of
// the process.
func Default() (*Rebinder, error) {
	defaultOnce.Do(func() {
		loader, err := NewDyldLoader()
		if err != nil {
			defaultErr = err
			return
		}
		config, err := ConfigFromEnv()
		if err != nil {
			log.WithError(err).Warn("falling back to default rebind config")
			config = DefaultConfig()
		}
		if config.Debug {
			log.SetLevel(log.DebugLevel)
		}
		defaultRebinder = New(loader, config)
	})
	return defaultRebinder, defaultErr
}

// RebindSymbols registers rebindings with the Default Rebinder.
func RebindSymbols(rebindings ...Rebinding) error {
	rebinder, err := Default()
	if err != nil {
		return err
	}
	return rebinder.RebindSymbols(rebindings)
}

// RebindSymbolsImage applies rebindings to the single image whose
// mach_header_64 is at header, using the Default Rebinder's loader.
func RebindSymbolsImage(header uintptr, slide int64, rebindings ...Rebinding) error {
	rebinder, err := Default()
	if err != nil {
		return err
	}
	return rebinder.RebindImage(Image{Header: header, Slide: slide}, rebindings)
}

// Status converts a result into the C-style status code: 0 when the
// rebindings were accepted, negative otherwise.
func Status(err error) int {
	if err == nil {
		return 0
	}
	return -1
}
