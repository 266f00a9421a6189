package rebind

import (
	"testing"

	"github.com/pkg/errors"
)

func names(r *registry) (result []string) {
	r.each(func(rebinding *Rebinding) bool {
		result = append(result, rebinding.Name)
		return true
	})
	return
}

func TestRegistryOrder(t *testing.T) {
	r := newRegistry(0)
	if !r.empty() {
		t.Fatal("Expected a new registry to be empty")
	}
	if err := r.prepend([]Rebinding{{Name: "a"}, {Name: "b"}}); err != nil {
		t.Fatal(err)
	}
	if err := r.prepend([]Rebinding{{Name: "c"}, {Name: "d"}}); err != nil {
		t.Fatal(err)
	}

	expected := []string{"c", "d", "a", "b"}
	actual := names(r)
	if len(actual) != len(expected) {
		t.Fatalf("Expected %v but got %v", expected, actual)
	}
	for i := range expected {
		if actual[i] != expected[i] {
			t.Fatalf("Expected %v but got %v", expected, actual)
		}
	}
}

func TestRegistryFindNewestFirst(t *testing.T) {
	r := newRegistry(0)
	r.prepend([]Rebinding{{Name: "malloc", Replacement: 1}})
	r.prepend([]Rebinding{{Name: "free", Replacement: 2}, {Name: "malloc", Replacement: 3}, {Name: "malloc", Replacement: 4}})

	found := r.find(func(name string) bool { return name == "malloc" })
	if found == nil || found.Replacement != 3 {
		t.Errorf("Expected the first malloc of the newest set but got %+v", found)
	}
	if found := r.find(func(name string) bool { return name == "open" }); found != nil {
		t.Errorf("Expected no match but got %+v", found)
	}
}

func TestRegistryCopiesSet(t *testing.T) {
	r := newRegistry(0)
	set := []Rebinding{{Name: "malloc", Replacement: 1}}
	r.prepend(set)
	set[0].Name = "free"

	if found := r.find(func(name string) bool { return name == "malloc" }); found == nil {
		t.Error("Expected the registry to keep its own copy of the set")
	}
}

func TestRegistryLimit(t *testing.T) {
	r := newRegistry(3)
	if err := r.prepend([]Rebinding{{Name: "a"}, {Name: "b"}}); err != nil {
		t.Fatal(err)
	}
	err := r.prepend([]Rebinding{{Name: "c"}, {Name: "d"}})
	if errors.Cause(err) != ErrRegistryFull {
		t.Fatalf("Expected ErrRegistryFull but got %v", err)
	}
	if actual := names(r); len(actual) != 2 {
		t.Errorf("Expected the registry to be unchanged but got %v", actual)
	}
	if err := r.prepend([]Rebinding{{Name: "c"}}); err != nil {
		t.Errorf("Expected a set that fits to be accepted: %v", err)
	}
}
