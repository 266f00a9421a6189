package rebind

// Image identifies one loaded Mach-O image: the address of its mach_header_64
// and the difference between where it was linked to load and where it did.
type Image struct {
	Header uintptr
	Slide  int64
	Name   string
}

// A Loader describes the images mapped into a process. It is implemented by
// the platform's dynamic loader (see NewDyldLoader) and by anything else that
// can hand out mapped images.
type Loader interface {
	// Images returns every image loaded right now.
	Images() []Image

	// Contains reports whether header is the start of an image the loader
	// knows about.
	Contains(header uintptr) bool

	// OnImageAdded subscribes handler to image loads. The handler is called
	// once for every image already loaded when OnImageAdded is called, and
	// then once for each image loaded afterwards, after that image has been
	// bound but before its initializers run.
	OnImageAdded(handler func(image Image))
}
