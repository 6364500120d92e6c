package soitin

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type (
	// Registry is the catalog of available module types and their processor
	// factories. Types are kept in registration order so that listings stay
	// stable. A Registry is populated at startup and read-only afterwards;
	// it is not safe for concurrent mutation.
	Registry struct {
		types     map[string]ModuleType
		factories map[string]Factory
		order     []string
	}

	// Manifest is the loadable description of module types, typically
	// produced by the visual editor. It only carries schemas; factories are
	// bound separately by name.
	Manifest struct {
		Modules []ModuleType
	}
)

func NewRegistry() *Registry {
	return &Registry{
		types:     make(map[string]ModuleType),
		factories: make(map[string]Factory),
	}
}

// RegisterType adds a module type to the catalog. Registering the same name
// twice fails with ErrNameConflict.
func (r *Registry) RegisterType(t ModuleType) error {
	if t.Name == "" {
		return fmt.Errorf("module type with empty name")
	}
	if _, ok := r.types[t.Name]; ok {
		return fmt.Errorf("module type %q: %w", t.Name, ErrNameConflict)
	}
	r.types[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// RegisterFactory binds a processor factory to a registered type name.
func (r *Registry) RegisterFactory(name string, f Factory) error {
	if _, ok := r.types[name]; !ok {
		return fmt.Errorf("no module type %q registered", name)
	}
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("factory for %q: %w", name, ErrNameConflict)
	}
	r.factories[name] = f
	return nil
}

// Type returns the module type schema for the given name.
func (r *Registry) Type(name string) (ModuleType, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Types returns all registered type names in registration order.
func (r *Registry) Types() []string {
	ret := make([]string, len(r.order))
	copy(ret, r.order)
	return ret
}

// Instantiate builds a fresh processor for the named type. Types loaded
// from a manifest without a bound factory cannot be instantiated.
func (r *Registry) Instantiate(name string, cfg Config) (Processor, error) {
	if _, ok := r.types[name]; !ok {
		return nil, fmt.Errorf("unknown module type %q", name)
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("module type %q has no processor factory", name)
	}
	return f(cfg)
}

// ReadManifest loads module type schemas from a YAML manifest and registers
// them. Already-registered names make the whole read fail; the registry may
// be partially extended at that point, so treat a manifest error as fatal at
// startup.
func (r *Registry) ReadManifest(reader io.Reader) error {
	b, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("parsing manifest: %w", err)
	}
	for _, t := range m.Modules {
		if err := r.RegisterType(t); err != nil {
			return err
		}
	}
	return nil
}

// WriteManifest serializes the whole catalog as a YAML manifest, in
// registration order.
func (r *Registry) WriteManifest(writer io.Writer) error {
	m := Manifest{Modules: make([]ModuleType, 0, len(r.order))}
	for _, name := range r.order {
		m.Modules = append(m.Modules, r.types[name])
	}
	b, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("serializing manifest: %w", err)
	}
	_, err = writer.Write(b)
	return err
}
