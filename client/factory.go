package client

import (
	"fmt"
	"reflect"
	"sync"
)

// Factory manages one Facade per name, lazily constructed, so adapters
// that ask for "default" or "atomic" or any other session name all share
// the same underlying connection pool and cookie jar across the process.
type Factory struct {
	mu      sync.Mutex
	proxy   string
	facades map[string]*Facade
	configs map[string]Config
}

// NewFactory returns an empty factory. Call RegisterConfig for any name
// that needs settings other than DefaultConfig before the first Session
// call for that name.
func NewFactory() *Factory {
	return &Factory{
		facades: make(map[string]*Facade),
		configs: make(map[string]Config),
	}
}

// SetDefaultProxy sets the proxy URI applied to every config built after
// this call that doesn't already specify its own.
func (f *Factory) SetDefaultProxy(proxy string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proxy = proxy
}

// RegisterConfig stores the configuration to use for a named session,
// read the next time Session(name) builds it.
func (f *Factory) RegisterConfig(name string, cfg Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs[name] = cfg
}

// Session returns the named Facade, constructing it on first use.
func (f *Factory) Session(name string) (*Facade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.facades[name]; ok {
		return existing, nil
	}

	cfg, ok := f.configs[name]
	if !ok {
		cfg = DefaultConfig()
	}
	if cfg.Proxy == "" {
		cfg.Proxy = f.proxy
	}

	session, err := NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("client: building session %q: %w", name, err)
	}

	facade := NewFacade(session, cfg.Retry)
	f.facades[name] = facade
	f.configs[name] = cfg // records the resolved config, not just a caller-registered override
	return facade, nil
}

// Get returns a previously constructed Facade, or false if none exists
// under that name yet.
func (f *Factory) Get(name string) (*Facade, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	facade, ok := f.facades[name]
	return facade, ok
}

// UpdateConfig mutates a live named session's headers in place. Any
// attempt to also change the proxy URI, or a backend-specific
// construction option (timeouts, idle-conn limits), is rejected — those
// only take effect through a fresh Session, never on one already built.
// If the session hasn't been constructed yet, cfg is simply recorded as
// its config-to-build-with, the same as RegisterConfig.
func (f *Factory) UpdateConfig(name string, cfg Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	facade, ok := f.facades[name]
	if !ok {
		f.configs[name] = cfg
		return nil
	}

	current := f.configs[name]
	proposed := cfg
	current.Headers, proposed.Headers = nil, nil
	if !reflect.DeepEqual(current, proposed) {
		return fmt.Errorf("client: update_config for %q: only headers may change on a live session", name)
	}

	headers := facade.Session().Header()
	for k := range headers {
		headers.Del(k)
	}
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}
	f.configs[name] = cfg
	return nil
}

// Close releases every constructed Facade's pooled connections.
func (f *Factory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, facade := range f.facades {
		facade.Close()
	}
	f.facades = make(map[string]*Facade)
}
