package deploy

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Deployment is the record of one deployed component.
type Deployment struct {
	Name        string         `json:"name"`
	Address     common.Address `json:"address"`
	TxHash      common.Hash    `json:"tx_hash"`
	BlockNumber uint64         `json:"block_number"`
	DeployedAt  time.Time      `json:"deployed_at"`
}

// Registry maps component names to their deployments for a single run.
// Entries are append-only and kept in recording order.
type Registry struct {
	order   []string
	entries map[string]Deployment
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Deployment)}
}

// Record adds d under its name. A name can only be recorded once.
func (r *Registry) Record(d Deployment) error {
	if _, ok := r.entries[d.Name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRecorded, d.Name)
	}
	r.order = append(r.order, d.Name)
	r.entries[d.Name] = d
	return nil
}

// Get returns the deployment recorded for name.
func (r *Registry) Get(name string) (Deployment, bool) {
	d, ok := r.entries[name]
	return d, ok
}

// Address returns the deployed address of name.
func (r *Registry) Address(name string) (common.Address, bool) {
	d, ok := r.entries[name]
	return d.Address, ok
}

// Len returns the number of recorded deployments.
func (r *Registry) Len() int {
	return len(r.order)
}

// Deployments returns all deployments in recording order.
func (r *Registry) Deployments() []Deployment {
	out := make([]Deployment, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name])
	}
	return out
}

// Addresses returns a copy of the name to address mapping.
func (r *Registry) Addresses() map[string]common.Address {
	out := make(map[string]common.Address, len(r.entries))
	for name, d := range r.entries {
		out[name] = d.Address
	}
	return out
}
