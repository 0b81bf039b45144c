// Package memory provides an in-memory stand-in for the external execution
// platform.
package memory

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Bidon15/ubexdeploy/internal/deploy"
	"github.com/Bidon15/ubexdeploy/internal/verify"
)

// Sentinel errors
var (
	ErrNoCode          = errors.New("memory: no contract at address")
	ErrUnknownAccessor = errors.New("memory: unknown accessor")
)

// DefaultDeployer is the sender used to derive contract addresses.
var DefaultDeployer = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

// AccessorFunc computes an accessor value from the constructor arguments.
type AccessorFunc func(args []any) (any, error)

// Blueprint maps accessor names of a component to their implementation.
type Blueprint map[string]AccessorFunc

// Arg returns an accessor yielding the i-th constructor argument.
func Arg(i int) AccessorFunc {
	return func(args []any) (any, error) {
		if i < 0 || i >= len(args) {
			return nil, fmt.Errorf("constructor argument %d out of range (have %d)", i, len(args))
		}
		return args[i], nil
	}
}

// Const returns an accessor yielding v.
func Const(v any) AccessorFunc {
	return func([]any) (any, error) { return v, nil }
}

type instance struct {
	component string
	args      []any
}

// Platform deploys components into process memory. It is safe for
// concurrent use.
type Platform struct {
	mu         sync.Mutex
	deployer   common.Address
	nonce      uint64
	block      uint64
	blueprints map[string]Blueprint
	failures   map[string]error
	instances  map[common.Address]instance
	actions    int
	statePath  string
}

// Option configures a Platform.
type Option func(*Platform)

// WithDeployer sets the sender address used for address derivation.
func WithDeployer(addr common.Address) Option {
	return func(p *Platform) { p.deployer = addr }
}

// WithBlueprint registers the accessors of component.
func WithBlueprint(component string, b Blueprint) Option {
	return func(p *Platform) { p.blueprints[component] = b }
}

// WithBlueprints registers several blueprints at once.
func WithBlueprints(bs map[string]Blueprint) Option {
	return func(p *Platform) {
		for name, b := range bs {
			p.blueprints[name] = b
		}
	}
}

// FailOn makes every deployment of component fail with err.
func FailOn(component string, err error) Option {
	return func(p *Platform) { p.failures[component] = err }
}

// New creates an empty platform.
func New(opts ...Option) *Platform {
	p := &Platform{
		deployer:   DefaultDeployer,
		blueprints: make(map[string]Blueprint),
		failures:   make(map[string]error),
		instances:  make(map[common.Address]instance),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DeployInstance implements deploy.Deployer. Addresses follow the EVM
// CREATE rule for the configured deployer and its nonce.
func (p *Platform) DeployInstance(_ context.Context, component string, args []any) (deploy.Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.actions++
	if err := p.failures[component]; err != nil {
		return deploy.Receipt{}, err
	}

	addr := crypto.CreateAddress(p.deployer, p.nonce)
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], p.nonce)
	txHash := crypto.Keccak256Hash(p.deployer.Bytes(), nonce[:])
	p.nonce++
	p.block++

	stored := make([]any, len(args))
	copy(stored, args)
	p.instances[addr] = instance{component: component, args: stored}
	if p.statePath != "" {
		if err := p.save(); err != nil {
			return deploy.Receipt{}, err
		}
	}

	return deploy.Receipt{Address: addr, TxHash: txHash, BlockNumber: p.block}, nil
}

// ReadAccessor implements verify.Reader.
func (p *Platform) ReadAccessor(_ context.Context, handle verify.Handle, accessor string) (any, error) {
	p.mu.Lock()
	inst, ok := p.instances[handle.Address]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoCode, handle.Address.Hex())
	}

	fn, ok := p.blueprints[inst.component][accessor]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownAccessor, inst.component, accessor)
	}
	return fn(inst.args)
}

// Actions returns the number of deployment actions attempted.
func (p *Platform) Actions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.actions
}

// Deployer returns the sender address used for address derivation.
func (p *Platform) Deployer() common.Address {
	return p.deployer
}
