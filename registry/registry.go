// Package registry loads the external data the tools depend on: the flat
// endpoint registry exported from the device firmware and the per-device-class
// configuration profiles. Both are read once and treated as immutable.
package registry

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JesseDarr/odrive-can-tools/protocol"
)

// SavePath is the reserved endpoint that persists a node's configuration
// across power cycles.
const SavePath = "save_configuration"

// ErrUnknownPath marks a lookup for a path the registry does not contain.
var ErrUnknownPath = errors.New("registry: unknown endpoint path")

// Endpoint is one named, typed parameter a node exposes.
type Endpoint struct {
	Path string
	ID   uint16
	Type protocol.Type
}

// Registry maps dotted parameter paths to endpoints.
type Registry struct {
	endpoints map[string]Endpoint
}

type rawRegistry struct {
	Endpoints map[string]rawEndpoint `yaml:"endpoints"`
}

type rawEndpoint struct {
	ID   uint16 `yaml:"id"`
	Type string `yaml:"type"`
}

// Load reads a registry document from disk. The firmware exports JSON,
// which the YAML parser accepts as a subset.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("registry: parse %s: %w", path, err)
	}
	return reg, nil
}

// Parse decodes a registry document.
func Parse(data []byte) (*Registry, error) {
	var raw rawRegistry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if len(raw.Endpoints) == 0 {
		return nil, errors.New("no endpoints defined")
	}
	endpoints := make(map[string]Endpoint, len(raw.Endpoints))
	for path, ep := range raw.Endpoints {
		typ := protocol.Type(ep.Type)
		if !typ.Valid() {
			return nil, fmt.Errorf("endpoint %s: unknown type %q", path, ep.Type)
		}
		endpoints[path] = Endpoint{Path: path, ID: ep.ID, Type: typ}
	}
	return &Registry{endpoints: endpoints}, nil
}

// Len returns the number of registered endpoints.
func (r *Registry) Len() int {
	return len(r.endpoints)
}

// Lookup resolves a dotted path.
func (r *Registry) Lookup(path string) (Endpoint, error) {
	ep, ok := r.endpoints[path]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %s", ErrUnknownPath, path)
	}
	return ep, nil
}

// Has reports whether a path exists.
func (r *Registry) Has(path string) bool {
	_, ok := r.endpoints[path]
	return ok
}
