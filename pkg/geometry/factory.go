package geometry

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrUnrecognizedFormat is returned by Create when no registered geometry
// type claims the file.
var ErrUnrecognizedFormat = errors.New("geometry: unrecognized format")

// Detector inspects a file reference, by extension or content sniff, and
// allocates an empty geometry able to read it. It returns false when the
// file is not one of its formats.
type Detector func(fileName string) (Geometry, bool)

var (
	registryMu sync.RWMutex
	registry   []Detector
)

// Register adds a detector to the factory. Concrete geometry packages call
// it from init; importing them for side effects wires up the factory, in
// the manner of image format registration.
func Register(d Detector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, d)
}

// Create allocates a geometry of a type able to read the given file. It
// only dispatches and allocates; no loading happens until LoadFile.
// Returns ErrUnrecognizedFormat when no registered type claims the file.
func Create(fileName string) (Geometry, error) {
	registryMu.RLock()
	detectors := make([]Detector, len(registry))
	copy(detectors, registry)
	registryMu.RUnlock()

	for _, d := range detectors {
		if g, ok := d(fileName); ok {
			return g, nil
		}
	}
	return nil, errors.Wrap(ErrUnrecognizedFormat, fileName)
}
