package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/raspverry/ai-ocr/internal/config"
	"github.com/raspverry/ai-ocr/internal/errors"
)

// Engine names
const (
	NameTesseract  = "tesseract"
	NameDocumentAI = "documentai"
	NameAzureRead  = "azure_read"
	NameVisionLLM  = "vision_llm"
	NameStatic     = "static"
)

// Constructor builds an engine from the worker configuration
type Constructor func(cfg *config.Config) (Engine, error)

// Registry maps engine names to constructors
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// DefaultRegistry returns a registry with every built-in engine
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NameTesseract, NewTesseractFromConfig)
	r.Register(NameDocumentAI, NewDocumentAIFromConfig)
	r.Register(NameAzureRead, NewAzureReadFromConfig)
	r.Register(NameVisionLLM, NewVisionLLMFromConfig)
	r.Register(NameStatic, NewStaticFromConfig)
	return r
}

// Register adds or replaces a constructor
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[name] = ctor
}

// Names lists registered engines in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New constructs one engine by name
func (r *Registry) New(name string, cfg *config.Config) (Engine, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NewInvalidConfigError("ENGINES", fmt.Sprintf("unknown engine %q", name))
	}
	eng, err := ctor(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine %s: %w", name, err)
	}
	return eng, nil
}

// Build constructs the engines named in cfg.Engines, in that order
func (r *Registry) Build(cfg *config.Config) ([]Engine, error) {
	engines := make([]Engine, 0, len(cfg.Engines))
	seen := make(map[string]bool, len(cfg.Engines))
	for _, name := range cfg.Engines {
		if seen[name] {
			continue
		}
		seen[name] = true
		eng, err := r.New(name, cfg)
		if err != nil {
			return nil, err
		}
		engines = append(engines, eng)
	}
	return engines, nil
}
