// Package preset loads saved query forms from disk and keeps them current
// while the files are edited.
package preset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/NERVsystems/overpassqb/pkg/osm/queries"
)

// Preset is a saved query form.
type Preset struct {
	Name        string              `json:"name" yaml:"name"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Conditions  []queries.Condition `json:"conditions" yaml:"conditions"`
	Area        string              `json:"area,omitempty" yaml:"area,omitempty"`
	BBox        queries.BBoxFields  `json:"bbox,omitempty" yaml:"bbox,omitempty"`
	Options     queries.Options     `json:"options,omitempty" yaml:"options,omitempty"`

	// Path is the file the preset was read from.
	Path string `json:"-" yaml:"-"`
}

// Request returns the builder input of the preset.
func (p *Preset) Request() queries.Request {
	return queries.Request{
		Conditions: p.Conditions,
		AreaText:   p.Area,
		BBox:       p.BBox,
		Options:    p.Options,
	}
}

// Build generates the preset's query.
func (p *Preset) Build() (string, error) {
	return p.Request().Build()
}

// IsPresetFile reports whether path has a preset extension.
func IsPresetFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json", ".jsonc":
		return true
	}
	return false
}

// Load reads a preset file. YAML is used for .yaml/.yml, JSON with
// comments and trailing commas for .json/.jsonc. Unknown fields are
// rejected. A missing name defaults to the file name.
func Load(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("preset %s: %w", path, err)
	}
	if p.Name == "" {
		base := filepath.Base(path)
		p.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	p.Path = path
	return p, nil
}

// Parse decodes preset data; ext selects the syntax.
func Parse(data []byte, ext string) (*Preset, error) {
	var p Preset
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	case ".json", ".jsonc":
		standardized, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("invalid JSONC: %w", err)
		}
		dec := json.NewDecoder(bytes.NewReader(standardized))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported preset extension %q", ext)
	}

	for i, c := range p.Conditions {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("condition %d: %w", i+1, err)
		}
	}
	return &p, nil
}

// Store holds the presets of one directory, keyed by file path.
type Store struct {
	mu      sync.RWMutex
	dir     string
	presets map[string]*Preset
}

// NewStore creates an empty store for dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir, presets: make(map[string]*Preset)}
}

// Dir returns the preset directory.
func (s *Store) Dir() string {
	return s.dir
}

// Reload replaces the store content with the presets in the directory.
// Files that fail to load are skipped and reported in the joined error.
func (s *Store) Reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}

	presets := make(map[string]*Preset)
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !IsPresetFile(e.Name()) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		p, err := Load(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		presets[path] = p
	}

	s.mu.Lock()
	s.presets = presets
	s.mu.Unlock()
	return errors.Join(errs...)
}

// Put adds or replaces a preset.
func (s *Store) Put(p *Preset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presets[p.Path] = p
}

// Remove drops the preset loaded from path.
func (s *Store) Remove(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.presets, path)
}

// Get returns the preset with the given name.
func (s *Store) Get(name string) (*Preset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.presets {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// List returns all presets sorted by name.
func (s *Store) List() []*Preset {
	s.mu.RLock()
	out := make([]*Preset, 0, len(s.presets))
	for _, p := range s.presets {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Path < out[j].Path
	})
	return out
}
