//go:build darwin && cgo

package rebind

/*
#include <stdint.h>
#include <dlfcn.h>
#include <mach-o/dyld.h>

void rebind_register_add_image(void);
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/apex/log"
)

// dyld accepts add-image callbacks but never removes them, so there is one C
// trampoline for the whole process and it fans out to every Go handler.
var (
	dyldLock       sync.Mutex
	dyldHandlers   []func(image Image)
	dyldRegistered bool
)

type dyldLoader struct{}

// NewDyldLoader returns a Loader backed by the process's dynamic loader.
func NewDyldLoader() (Loader, error) {
	return dyldLoader{}, nil
}

func (dyldLoader) Images() []Image {
	count := uint32(C._dyld_image_count())
	images := make([]Image, 0, count)
	for i := uint32(0); i < count; i++ {
		index := C.uint32_t(i)
		header := C._dyld_get_image_header(index)
		if header == nil {
			// Unloaded since we read the count.
			continue
		}
		images = append(images, Image{
			Header: uintptr(unsafe.Pointer(header)),
			Slide:  int64(C._dyld_get_image_vmaddr_slide(index)),
			Name:   C.GoString(C._dyld_get_image_name(index)),
		})
	}
	return images
}

func (dyldLoader) Contains(header uintptr) bool {
	var info C.Dl_info
	return C.dladdr(unsafe.Pointer(header), &info) != 0
}

// Path of the image containing header, or "" if dyld does not know it.
func imageName(header uintptr) string {
	var info C.Dl_info
	if C.dladdr(unsafe.Pointer(header), &info) == 0 || info.dli_fname == nil {
		return ""
	}
	return C.GoString(info.dli_fname)
}

func (l dyldLoader) OnImageAdded(handler func(image Image)) {
	dyldLock.Lock()
	dyldHandlers = append(dyldHandlers, handler)
	first := !dyldRegistered
	dyldRegistered = true
	dyldLock.Unlock()

	if first {
		log.Debug("registering dyld add-image callback")
		// dyld replays every loaded image synchronously from here.
		C.rebind_register_add_image()
		return
	}

	// The trampoline is already registered, so dyld will not replay the
	// existing images for this handler.
	for _, image := range l.Images() {
		handler(image)
	}
}

//export rebindImageAdded
func rebindImageAdded(header C.uintptr_t, slide C.intptr_t) {
	dyldLock.Lock()
	handlers := dyldHandlers
	dyldLock.Unlock()

	image := Image{
		Header: uintptr(header),
		Slide:  int64(slide),
		Name:   imageName(uintptr(header)),
	}
	for _, handler := range handlers {
		handler(image)
	}
}
