package memory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
)

// ErrForeignState is returned when a state file was written for another
// deployer, whose nonces would not match.
var ErrForeignState = errors.New("memory: state file belongs to another deployer")

// state is the on-disk layout of a persisted platform.
type state struct {
	Deployer  common.Address                   `json:"deployer"`
	Nonce     uint64                           `json:"nonce"`
	Block     uint64                           `json:"block"`
	Instances map[common.Address]savedInstance `json:"instances"`
}

type savedInstance struct {
	Component string `json:"component"`
	Args      []any  `json:"args"`
}

// Open creates a platform persisted at path, so that contracts deployed by
// one process can be read by the next. A missing file starts empty.
func Open(path string, opts ...Option) (*Platform, error) {
	p := New(opts...)
	p.statePath = path
	if err := p.load(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Platform) load() error {
	data, err := os.ReadFile(p.statePath)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(data) == 0) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read memory state: %w", err)
	}

	var s state
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&s); err != nil {
		return fmt.Errorf("parse memory state %s: %w", p.statePath, err)
	}
	if s.Deployer != p.deployer {
		return fmt.Errorf("%w: %s has %s, configured %s", ErrForeignState, p.statePath, s.Deployer.Hex(), p.deployer.Hex())
	}

	p.nonce = s.Nonce
	p.block = s.Block
	for addr, inst := range s.Instances {
		args := make([]any, len(inst.Args))
		for i, a := range inst.Args {
			args[i] = decodeArg(a)
		}
		p.instances[addr] = instance{component: inst.Component, args: args}
	}
	return nil
}

// decodeArg restores addresses, which JSON carries as hex strings. Other
// values keep their decoded form.
func decodeArg(v any) any {
	if s, ok := v.(string); ok && common.IsHexAddress(s) {
		return common.HexToAddress(s)
	}
	return v
}

// save must be called with p.mu held.
func (p *Platform) save() error {
	s := state{
		Deployer:  p.deployer,
		Nonce:     p.nonce,
		Block:     p.block,
		Instances: make(map[common.Address]savedInstance, len(p.instances)),
	}
	for addr, inst := range p.instances {
		s.Instances[addr] = savedInstance{Component: inst.component, Args: inst.args}
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal memory state: %w", err)
	}
	if dir := filepath.Dir(p.statePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	tmpPath := p.statePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, p.statePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
