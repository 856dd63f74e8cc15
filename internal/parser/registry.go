package parser

import (
	"sort"
	"strings"
	"sync"
)

// Registry manages a collection of language extractors.
type Registry struct {
	mu         sync.RWMutex
	extractors map[Language]Extractor
	extIndex   map[string]Extractor
	order      []Language
}

// NewRegistry creates a new extractor registry.
func NewRegistry() *Registry {
	return &Registry{
		extractors: make(map[Language]Extractor),
		extIndex:   make(map[string]Extractor),
		order:      make([]Language, 0),
	}
}

// Register adds an extractor to the registry, indexing it by language and file extensions.
func (r *Registry) Register(e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lang := e.Language()
	if _, exists := r.extractors[lang]; !exists {
		r.order = append(r.order, lang)
	}
	r.extractors[lang] = e
	for _, ext := range e.Extensions() {
		r.extIndex[strings.ToLower(ext)] = e
	}
}

// Get retrieves an extractor by language.
func (r *Registry) Get(lang Language) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.extractors[lang]
	return e, ok
}

// All returns all registered extractors in registration order.
func (r *Registry) All() []Extractor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Extractor, len(r.order))
	for i, lang := range r.order {
		result[i] = r.extractors[lang]
	}
	return result
}

// SupportedExtensions returns all file extensions that have a registered extractor, sorted.
func (r *Registry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.extIndex))
	for ext := range r.extIndex {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
