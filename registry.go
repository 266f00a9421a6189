package rebind

import (
	"github.com/pkg/errors"
)

// ErrRegistryFull is returned when a registration would grow the registry
// past Config.MaxRebindings. The registry is left exactly as it was.
var ErrRegistryFull = errors.New("rebinding registry is full")

// registry holds every set of rebindings submitted to a Rebinder, oldest set
// first. Lookups walk it backwards so the newest registration wins.
//
// There is no locking: callers serialize registration themselves.
type registry struct {
	sets  [][]Rebinding
	count int
	limit int
}

func newRegistry(limit int) *registry {
	return &registry{limit: limit}
}

func (r *registry) empty() bool {
	return len(r.sets) == 0
}

// prepend records a private copy of set as the newest registration.
func (r *registry) prepend(set []Rebinding) (err error) {
	if r.limit > 0 && r.count+len(set) > r.limit {
		err = errors.Wrapf(ErrRegistryFull, "cannot add %d rebindings to %d of %d",
			len(set), r.count, r.limit)
		return
	}

	owned := make([]Rebinding, len(set))
	copy(owned, set)
	r.sets = append(r.sets, owned)
	r.count += len(owned)
	return
}

// each visits every rebinding, newest set first and in submission order
// within a set, until visit returns false.
func (r *registry) each(visit func(rebinding *Rebinding) bool) {
	for i := len(r.sets) - 1; i >= 0; i-- {
		set := r.sets[i]
		for j := range set {
			if !visit(&set[j]) {
				return
			}
		}
	}
}

// find returns the highest priority rebinding whose name satisfies match.
func (r *registry) find(match func(name string) bool) (found *Rebinding) {
	r.each(func(rebinding *Rebinding) bool {
		if match(rebinding.Name) {
			found = rebinding
			return false
		}
		return true
	})
	return
}
