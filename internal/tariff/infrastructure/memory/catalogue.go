package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	tariff "tariff-billing/internal/tariff/domain"
)

var (
	// ErrDuplicateTariff is returned when a code is added twice.
	ErrDuplicateTariff = errors.New("memory: duplicate tariff code")
	// ErrNilDefinition is returned when a nil definition is added.
	ErrNilDefinition = errors.New("memory: nil tariff definition")
)

// Catalogue is an in-memory tariff catalogue keyed by code.
// Definitions are validated on Add and then only read.
type Catalogue struct {
	mu   sync.RWMutex
	data map[string]*tariff.Definition
}

// NewCatalogue constructs a catalogue holding defs.
func NewCatalogue(defs ...*tariff.Definition) (*Catalogue, error) {
	c := &Catalogue{data: make(map[string]*tariff.Definition, len(defs))}
	for _, def := range defs {
		if err := c.Add(def); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add validates and stores a definition.
func (c *Catalogue) Add(def *tariff.Definition) error {
	if def == nil {
		return ErrNilDefinition
	}
	if err := def.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.data[def.Code]; exists {
		return ErrDuplicateTariff
	}
	c.data[def.Code] = def
	return nil
}

// Get returns the definition for code.
func (c *Catalogue) Get(ctx context.Context, code string) (*tariff.Definition, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	def := c.data[code]
	if def == nil {
		return nil, tariff.ErrTariffNotFound
	}
	return def, nil
}

// List returns every definition ordered by code.
func (c *Catalogue) List(ctx context.Context) ([]*tariff.Definition, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]*tariff.Definition, 0, len(c.data))
	for _, def := range c.data {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Code < result[j].Code
	})
	return result, nil
}

// Len returns the number of definitions.
func (c *Catalogue) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
