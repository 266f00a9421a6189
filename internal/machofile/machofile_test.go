package machofile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kstenerud/go-rebind"
	"github.com/kstenerud/go-rebind/internal/machotest"
	"github.com/pkg/errors"
)

func writeImage(t *testing.T, builder machotest.Builder) string {
	t.Helper()
	built, err := builder.Build()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "image.dylib")
	if err := os.WriteFile(path, built.File, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testBuilder() machotest.Builder {
	return machotest.Builder{Sections: []machotest.Section{
		{Segment: "__DATA_CONST", Name: "__got", Type: machotest.NonLazySymbolPointers, Slots: []machotest.Slot{
			{Symbol: "_malloc", Value: 0x1111},
		}},
		{Segment: "__DATA", Name: "__la_symbol_ptr", Type: machotest.LazySymbolPointers, Slots: []machotest.Slot{
			{Symbol: "_open", Value: 0x3333},
		}},
	}}
}

func TestOpenMapsAtVMLayout(t *testing.T) {
	image, err := Open(writeImage(t, testBuilder()))
	if err != nil {
		t.Fatal(err)
	}
	defer image.Close()

	got := image.File.Section("__DATA_CONST", "__got")
	if got == nil {
		t.Fatal("Expected a __got section")
	}
	if got.Addr != machotest.TextAddr+machotest.VMSegmentSize {
		t.Errorf("Expected __got at %#x but got %#x", machotest.TextAddr+machotest.VMSegmentSize, got.Addr)
	}
	actual, err := image.Bytes(got.Addr, 8)
	if err != nil {
		t.Fatal(err)
	}
	if actual[0] != 0x11 || actual[1] != 0x11 {
		t.Errorf("Expected the slot to hold 0x1111 but got % x", actual)
	}
	if vmaddr := image.VMAddr(image.Address(got.Addr)); vmaddr != got.Addr {
		t.Errorf("Expected %#x to round trip but got %#x", got.Addr, vmaddr)
	}
	if !image.Contains(image.Image().Header) {
		t.Error("Expected the image to contain its own header")
	}
}

func TestBytesOutsideImage(t *testing.T) {
	image, err := Open(writeImage(t, testBuilder()))
	if err != nil {
		t.Fatal(err)
	}

	end := uint64(machotest.TextAddr + 4*machotest.VMSegmentSize)
	if _, err := image.Bytes(end-8, 8); err != nil {
		t.Errorf("Expected the last 8 bytes to be readable: %v", err)
	}
	for _, r := range []struct{ addr, length uint64 }{
		{machotest.TextAddr - 8, 8},
		{end - 8, 16},
		{end + 8, 0},
		{machotest.TextAddr, ^uint64(0)},
	} {
		if _, err := image.Bytes(r.addr, r.length); err == nil {
			t.Errorf("Expected %#x bytes at %#x to be rejected", r.length, r.addr)
		}
	}

	image.Close()
	if _, err := image.Bytes(machotest.TextAddr, 8); errors.Cause(err) != ErrClosed {
		t.Errorf("Expected ErrClosed but got %v", err)
	}
	if image.Contains(image.Image().Header) {
		t.Error("Expected a closed image to contain nothing")
	}
	if images := image.Images(); len(images) != 0 {
		t.Errorf("Expected no images but got %v", images)
	}
}

func TestRebindMappedCopy(t *testing.T) {
	image, err := Open(writeImage(t, testBuilder()))
	if err != nil {
		t.Fatal(err)
	}
	defer image.Close()

	rebinder := rebind.New(image, rebind.Config{})
	var original uintptr
	err = rebinder.RebindImage(image.Image(), []rebind.Rebinding{{Name: "malloc", Replacement: 0xa1, Replaced: &original}})
	if err != nil {
		t.Fatal(err)
	}
	if original != 0x1111 {
		t.Errorf("Expected original to be 0x1111 but got %#x", original)
	}

	slots := rebinder.Slots(image.Image())
	if len(slots) != 2 {
		t.Fatalf("Expected 2 slots but got %v", len(slots))
	}
	if slots[0].Symbol != "_malloc" || slots[0].Value != 0xa1 {
		t.Errorf("Expected _malloc to be rebound but got %v = %#x", slots[0].Symbol, slots[0].Value)
	}
	if vmaddr := image.VMAddr(slots[1].Address); vmaddr != machotest.TextAddr+2*machotest.VMSegmentSize {
		t.Errorf("Unexpected address %#x for %v", vmaddr, slots[1].Symbol)
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage")
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho not an image\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("Expected an error")
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("Expected an error")
	}
	if !os.IsNotExist(errors.Cause(err)) {
		t.Errorf("Expected a not-exist error but got %v", err)
	}
}
