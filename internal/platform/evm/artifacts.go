// Package evm deploys and queries components on an EVM chain through
// go-ethereum.
package evm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ContractArtifact represents a compiled Solidity contract with ABI and bytecode.
type ContractArtifact struct {
	ContractName string          `json:"contractName,omitempty"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     Bytecode        `json:"bytecode"`
}

// Bytecode contains the creation bytecode. Truffle stores it as a plain hex
// string, Forge as {"object": "0x..."}; both are accepted.
type Bytecode struct {
	Object string `json:"object"`
}

// UnmarshalJSON accepts both artifact layouts.
func (b *Bytecode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &b.Object)
	}
	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	b.Object = obj.Object
	return nil
}

// Code returns the decoded creation bytecode.
func (a *ContractArtifact) Code() []byte {
	return common.FromHex(a.Bytecode.Object)
}

// ParseContractABI parses a raw ABI JSON array.
func ParseContractABI(raw json.RawMessage) (abi.ABI, error) {
	return abi.JSON(bytes.NewReader(raw))
}

// Contract is an artifact with its parsed ABI.
type Contract struct {
	Name     string
	ABI      abi.ABI
	Artifact *ContractArtifact
}

// Artifacts holds the compiled contracts available for deployment, by name.
type Artifacts struct {
	contracts map[string]*Contract
}

// NewArtifacts builds an artifact set from already loaded artifacts.
func NewArtifacts(byName map[string]*ContractArtifact) (*Artifacts, error) {
	a := &Artifacts{contracts: make(map[string]*Contract, len(byName))}
	for name, artifact := range byName {
		if err := a.add(name, artifact); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Artifacts) add(name string, artifact *ContractArtifact) error {
	if len(artifact.ABI) == 0 {
		return fmt.Errorf("artifact %s has no ABI", name)
	}
	if len(artifact.Code()) == 0 {
		return fmt.Errorf("artifact %s has no bytecode", name)
	}
	parsed, err := ParseContractABI(artifact.ABI)
	if err != nil {
		return fmt.Errorf("parse %s ABI: %w", name, err)
	}
	a.contracts[name] = &Contract{Name: name, ABI: parsed, Artifact: artifact}
	return nil
}

// Get returns the contract named name.
func (a *Artifacts) Get(name string) (*Contract, error) {
	c, ok := a.contracts[name]
	if !ok {
		return nil, fmt.Errorf("no artifact for %s", name)
	}
	return c, nil
}

// LoadFromDirectory loads <dir>/<name>.json for each required contract,
// e.g. a Truffle build/contracts directory.
func LoadFromDirectory(dir string, required ...string) (*Artifacts, error) {
	a := &Artifacts{contracts: make(map[string]*Contract, len(required))}

	var missing []string
	for _, name := range required {
		path := filepath.Join(dir, name+".json")
		data, err := os.ReadFile(path)
		if err != nil {
			missing = append(missing, name)
			continue
		}

		var artifact ContractArtifact
		if err := json.Unmarshal(data, &artifact); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		if err := a.add(name, &artifact); err != nil {
			return nil, err
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing artifacts in %s: %s", dir, strings.Join(missing, ", "))
	}
	return a, nil
}
