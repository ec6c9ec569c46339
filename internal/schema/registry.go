package schema

import (
	"sort"

	"github.com/yanun0323/errors"
)

var ErrSymbolExists = errors.New("symbol already registered")

// Registry stores the tradable symbol universe. Symbols are registered
// once at startup; lookups are read-only afterwards.
type Registry struct {
	symbols map[string]struct{}
	ordered []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{symbols: make(map[string]struct{})}
}

// Add registers a new symbol.
func (r *Registry) Add(symbol string) error {
	if symbol == "" {
		return errors.New("symbol name is empty")
	}
	if _, ok := r.symbols[symbol]; ok {
		return errors.Wrap(ErrSymbolExists, symbol)
	}
	r.symbols[symbol] = struct{}{}
	r.ordered = append(r.ordered, symbol)
	sort.Strings(r.ordered)
	return nil
}

// Has reports whether a symbol is registered.
func (r *Registry) Has(symbol string) bool {
	_, ok := r.symbols[symbol]
	return ok
}

// Symbols returns the registered symbols in sorted order.
func (r *Registry) Symbols() []string {
	out := make([]string, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Count returns the number of registered symbols.
func (r *Registry) Count() int {
	return len(r.ordered)
}
