package audit

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	pstrings "lendaudit/pkg/platform/strings"
)

var (
	// ErrInvalidMetadata is returned when a declaration is missing required fields.
	ErrInvalidMetadata = errors.New("invalid audit metadata")
	// ErrDuplicateDeclaration is returned when a key is declared twice.
	ErrDuplicateDeclaration = errors.New("audit metadata already declared")
)

// RouteKey builds the registry key for an HTTP route.
func RouteKey(method, pattern string) string {
	return strings.ToUpper(method) + " " + pattern
}

// Registry maps operation keys to their audit declaration. Operations that
// were never declared are not audited.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Metadata
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Metadata)}
}

// Declare attaches metadata to an operation key. It is meant to be called
// while routes are registered.
func (r *Registry) Declare(key string, meta Metadata) error {
	if key == "" {
		return fmt.Errorf("%w: empty operation key", ErrInvalidMetadata)
	}
	if meta.Action == "" {
		return fmt.Errorf("%w: %s: action is required", ErrInvalidMetadata, key)
	}
	if meta.Resource == "" {
		return fmt.Errorf("%w: %s: resource is required", ErrInvalidMetadata, key)
	}
	if meta.Level == "" {
		meta.Level = LevelNormal
	}
	if meta.Level != LevelNormal && meta.Level != LevelCritical {
		return fmt.Errorf("%w: %s: unknown level %q", ErrInvalidMetadata, key, meta.Level)
	}
	meta.Compliance = pstrings.Dedupe(meta.Compliance)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateDeclaration, key)
	}
	r.entries[key] = meta.clone()
	return nil
}

// Lookup returns the metadata declared for key.
func (r *Registry) Lookup(key string) (Metadata, bool) {
	if r == nil {
		return Metadata{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.entries[key]
	if !ok {
		return Metadata{}, false
	}
	return meta.clone(), true
}

// Len returns the number of declared operations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
