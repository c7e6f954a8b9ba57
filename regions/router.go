package regions

import (
	"fmt"
	"slices"
)

// Router resolves region IDs and keeps the configured order.
type Router struct {
	order []Region
	byID  map[string]Region
}

func NewRouter(regions []Region) (*Router, error) {
	r := &Router{
		order: slices.Clone(regions),
		byID:  make(map[string]Region, len(regions)),
	}
	for _, region := range regions {
		if _, ok := r.byID[region.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRegion, region.ID)
		}
		r.byID[region.ID] = region
	}
	return r, nil
}

func (r *Router) Lookup(id string) (Region, error) {
	region, ok := r.byID[id]
	if !ok {
		return Region{}, fmt.Errorf("%w: %q", ErrUnknownRegion, id)
	}
	return region, nil
}

// Regions returns the regions in configuration order.
func (r *Router) Regions() []Region {
	return slices.Clone(r.order)
}
