package archive

import (
	"fmt"

	"tankobon/internal/services"
)

// Registry maps formats to packers.
type Registry struct {
	packers map[Format]Packer
}

// NewRegistry returns a registry holding packers, keyed by their Format.
func NewRegistry(packers ...Packer) *Registry {
	r := &Registry{packers: make(map[Format]Packer, len(packers))}
	for _, p := range packers {
		r.packers[p.Format()] = p
	}
	return r
}

// DefaultRegistry returns a registry with the CBZ and PDF packers.
func DefaultRegistry() *Registry {
	return NewRegistry(CBZPacker{}, PDFPacker{})
}

// Get returns the packer for format.
func (r *Registry) Get(format Format) (Packer, error) {
	if p, ok := r.packers[format]; ok {
		return p, nil
	}
	return nil, services.Wrap(
		services.ErrConfiguration,
		"packing",
		"select packer",
		fmt.Sprintf("No packer available for %s output", format.Label()),
		nil,
	)
}

// Supports reports whether a packer is registered for format.
func (r *Registry) Supports(format Format) bool {
	_, ok := r.packers[format]
	return ok
}

// Formats returns the supported formats in a stable order.
func (r *Registry) Formats() []Format {
	var set FormatSet
	for f := range r.packers {
		set = set.Add(f)
	}
	return set.Formats()
}
