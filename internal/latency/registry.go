package latency

import (
	"fmt"
	"sort"
	"sync"

	"github.com/MeKo-Tech/tslatency/internal/frame"
)

// Element names under which the transforms are registered.
const (
	StamperElement  = "tslatencystamper"
	MeasurerElement = "tslatencymeasure"
)

// FrameTransform is an in-place per-frame stage of a media pipeline.
// ValidateConfiguration is called whenever the stream format is negotiated
// and before the first Apply.
type FrameTransform interface {
	Name() string
	ValidateConfiguration(info frame.Info) error
	Apply(f *frame.Frame) error
}

// Factory creates a transform from a configuration.
type Factory func(cfg Config, opts ...Option) (FrameTransform, error)

// Registry maps element names to factories. Hosts build one explicitly and
// register the elements they want to expose.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name. Names are unique.
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateElement, name)
	}
	r.factories[name] = f
	return nil
}

// New instantiates the element registered under name.
func (r *Registry) New(name string, cfg Config, opts ...Option) (FrameTransform, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownElement, name)
	}
	return f(cfg, opts...)
}

// Names lists registered elements in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RegisterDefaults registers the stamper and the measurer.
func RegisterDefaults(r *Registry) error {
	if err := r.Register(StamperElement, newStamperElement); err != nil {
		return err
	}
	return r.Register(MeasurerElement, newMeasurerElement)
}

func newStamperElement(cfg Config, opts ...Option) (FrameTransform, error) {
	s, err := NewStamper(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newMeasurerElement(cfg Config, opts ...Option) (FrameTransform, error) {
	m, err := NewMeasurer(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return m, nil
}
