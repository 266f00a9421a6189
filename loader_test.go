//go:build unix

package rebind

import (
	"testing"

	"github.com/kstenerud/go-rebind/internal/machotest"
)

// fakeLoader hands out test images the way dyld would: subscribing replays
// the loaded images, and load notifies every subscriber.
type fakeLoader struct {
	images     []Image
	unknown    map[uintptr]bool
	handlers   []func(image Image)
	subscribed int
}

func (l *fakeLoader) Images() []Image {
	return append([]Image(nil), l.images...)
}

func (l *fakeLoader) Contains(header uintptr) bool {
	return !l.unknown[header]
}

func (l *fakeLoader) OnImageAdded(handler func(image Image)) {
	l.subscribed++
	l.handlers = append(l.handlers, handler)
	for _, image := range l.images {
		handler(image)
	}
}

func (l *fakeLoader) load(image Image) {
	l.images = append(l.images, image)
	for _, handler := range l.handlers {
		handler(image)
	}
}

func mapImage(t *testing.T, builder machotest.Builder) *machotest.Mapping {
	t.Helper()
	built, err := builder.Build()
	if err != nil {
		t.Fatal(err)
	}
	mapping, err := built.Map()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { mapping.Close() })
	return mapping
}

func imageOf(mapping *machotest.Mapping, name string) Image {
	return Image{Header: mapping.Header(), Slide: mapping.Slide(), Name: name}
}

func assertSlot(t *testing.T, mapping *machotest.Mapping, section string, index int, expected uintptr) {
	t.Helper()
	if actual := mapping.Slot(section, index); actual != expected {
		t.Errorf("Expected %v[%v] to be %#x but got %#x", section, index, expected, actual)
	}
}

func assertValue(t *testing.T, name string, actual uintptr, expected uintptr) {
	t.Helper()
	if actual != expected {
		t.Errorf("Expected %v to be %#x but got %#x", name, expected, actual)
	}
}
