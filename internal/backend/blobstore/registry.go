package blobstore

import (
	"fmt"
	"sort"
	"sync"
)

// StorageRegistry manages the registration and creation of storage drivers
type StorageRegistry struct {
	mu        sync.RWMutex
	factories map[string]StorageFactory
}

// NewStorageRegistry creates a new storage registry
func NewStorageRegistry() *StorageRegistry {
	return &StorageRegistry{
		factories: make(map[string]StorageFactory),
	}
}

// Register adds a storage factory to the registry
func (r *StorageRegistry) Register(name string, factory StorageFactory) error {
	if name == "" {
		return fmt.Errorf("storage driver name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("storage factory cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("storage driver %s is already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Create instantiates a storage driver by name with the given parameters
func (r *StorageRegistry) Create(name string, params map[string]any) (Storage, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("unknown storage driver: %s", name)
	}

	storage, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage driver %s: %w", name, err)
	}

	return storage, nil
}

// IsRegistered checks if a storage driver with the given name is registered
func (r *StorageRegistry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[name]
	return exists
}

// GetRegisteredNames returns the sorted names of all registered drivers
func (r *StorageRegistry) GetRegisteredNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is a global registry instance with the built-in drivers pre-registered
var DefaultRegistry = NewStorageRegistry()

// New creates a storage driver from config using the default registry.
func New(config StorageConfig) (Storage, error) {
	return DefaultRegistry.Create(config.Driver, config.Params)
}
