// Package directory stores the most recently deployed instance of every
// component, per network.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Bidon15/ubexdeploy/internal/deploy"
)

// Sentinel errors
var (
	ErrNotFound      = errors.New("directory: deployment not found")
	ErrInvalidRecord = errors.New("directory: invalid record")
)

// Directory defines the shared deployment directory operations.
type Directory interface {
	// Record stores d as the current instance of d.Name on network,
	// replacing any earlier instance.
	Record(ctx context.Context, network string, d deploy.Deployment) error
	// Get returns the current instance of name, or ErrNotFound.
	Get(ctx context.Context, network, name string) (deploy.Deployment, error)
	// List returns all current instances on network sorted by name.
	List(ctx context.Context, network string) ([]deploy.Deployment, error)
}

// Publish records every deployment of reg on network, in registry order.
func Publish(ctx context.Context, dir Directory, network string, reg *deploy.Registry) error {
	for _, d := range reg.Deployments() {
		if err := dir.Record(ctx, network, d); err != nil {
			return fmt.Errorf("record %s: %w", d.Name, err)
		}
	}
	return nil
}

func validate(network string, d deploy.Deployment) error {
	if network == "" {
		return fmt.Errorf("%w: network is required", ErrInvalidRecord)
	}
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRecord)
	}
	return nil
}

func sortByName(ds []deploy.Deployment) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].Name < ds[j].Name })
}

// Memory is a process-wide in-memory directory.
type Memory struct {
	mu       sync.RWMutex
	networks map[string]map[string]deploy.Deployment
}

// NewMemory creates an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{networks: make(map[string]map[string]deploy.Deployment)}
}

func (m *Memory) Record(_ context.Context, network string, d deploy.Deployment) error {
	if err := validate(network, d); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	byName, ok := m.networks[network]
	if !ok {
		byName = make(map[string]deploy.Deployment)
		m.networks[network] = byName
	}
	byName[d.Name] = d
	return nil
}

func (m *Memory) Get(_ context.Context, network, name string) (deploy.Deployment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.networks[network][name]
	if !ok {
		return deploy.Deployment{}, fmt.Errorf("%w: %s on %s", ErrNotFound, name, network)
	}
	return d, nil
}

func (m *Memory) List(_ context.Context, network string) ([]deploy.Deployment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]deploy.Deployment, 0, len(m.networks[network]))
	for _, d := range m.networks[network] {
		out = append(out, d)
	}
	sortByName(out)
	return out, nil
}
