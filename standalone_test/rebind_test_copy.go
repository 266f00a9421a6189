package main

/*
#include <stdint.h>
#include <unistd.h>

static pid_t fake_getpid(void) { return 4242; }
static pid_t fake_getpid_again(void) { return 4343; }

static pid_t call_getpid(void) { return getpid(); }
static pid_t call_pid_fn(uintptr_t fn) { return ((pid_t (*)(void))fn)(); }

static uintptr_t fake_getpid_addr(void) { return (uintptr_t)fake_getpid; }
static uintptr_t fake_getpid_again_addr(void) { return (uintptr_t)fake_getpid_again; }
*/
import "C"

import (
	"fmt"
	"os"

	"github.com/kstenerud/go-rebind"
)

func TestSlotsListGetpid() (err error) {
	loader, err := rebind.NewDyldLoader()
	if err != nil {
		return
	}
	rebinder := rebind.New(loader, rebind.DefaultConfig())
	for _, image := range loader.Images() {
		for _, slot := range rebinder.Slots(image) {
			if slot.Symbol == "_getpid" {
				return
			}
		}
	}
	return fmt.Errorf("Expected some image to have a slot bound to _getpid")
}

func TestImageNamesFromCallback() (err error) {
	loader, err := rebind.NewDyldLoader()
	if err != nil {
		return
	}
	// The first subscription in the process is replayed by dyld itself.
	var unnamed, seen int
	loader.OnImageAdded(func(image rebind.Image) {
		seen++
		if image.Name == "" {
			unnamed++
		}
	})
	if seen == 0 {
		return fmt.Errorf("Expected dyld to replay the loaded images")
	}
	if unnamed != 0 {
		return fmt.Errorf("Expected every image to have a name but %v of %v had none", unnamed, seen)
	}
	return
}

func TestRebindGetpid() (err error) {
	// Go's own getpid goes through libSystem too, so ask before rebinding.
	pid := os.Getpid()

	var original uintptr
	err = rebind.RebindSymbols(rebind.Rebinding{
		Name:        "getpid",
		Replacement: uintptr(C.fake_getpid_addr()),
		Replaced:    &original,
	})
	if err != nil {
		return
	}

	if actual := int(C.call_getpid()); actual != 4242 {
		return fmt.Errorf("Expected getpid to be rebound to 4242 but got %v", actual)
	}
	if original == 0 {
		return fmt.Errorf("Expected the original getpid to be captured")
	}
	if actual := int(C.call_pid_fn(C.uintptr_t(original))); actual != pid {
		return fmt.Errorf("Expected the original getpid to return %v but got %v", pid, actual)
	}
	return
}

func TestRebindChains() (err error) {
	var previous uintptr
	err = rebind.RebindSymbols(rebind.Rebinding{
		Name:        "getpid",
		Replacement: uintptr(C.fake_getpid_again_addr()),
		Replaced:    &previous,
	})
	if err != nil {
		return
	}

	if actual := int(C.call_getpid()); actual != 4343 {
		return fmt.Errorf("Expected getpid to be rebound to 4343 but got %v", actual)
	}
	if previous != uintptr(C.fake_getpid_addr()) {
		return fmt.Errorf("Expected the previous rebinding to be captured but got %#x", previous)
	}
	return
}
