// Package plans defines the Ubex contract set and its per-network plans.
package plans

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/ubexdeploy/internal/deploy"
	"github.com/Bidon15/ubexdeploy/internal/platform/memory"
	"github.com/Bidon15/ubexdeploy/internal/verify"
)

// Component names, matching the compiled artifact names.
const (
	SystemOwner      = "SystemOwner"
	AdamCoefficients = "AdamCoefficients"
	UbexStorage      = "UbexStorage"
	UbexExchange     = "UbexExchange"
)

// Networks with a dedicated plan. Every other network resolves to the
// no-op plan, production included: its plan has not been defined yet.
const (
	Development deploy.Selector = "development"
	Production  deploy.Selector = "production"
)

// AccessorSystemOwner is the owner-reference accessor shared by the
// components constructed with the SystemOwner address.
const AccessorSystemOwner = "systemOwner"

// Descriptors returns the Ubex contract set in deployment order.
func Descriptors() []deploy.Descriptor {
	return []deploy.Descriptor{
		{Name: SystemOwner},
		{Name: AdamCoefficients, Args: []deploy.Slot{deploy.Ref(SystemOwner)}},
		{Name: UbexStorage, Args: []deploy.Slot{deploy.Ref(SystemOwner)}},
		{Name: UbexExchange, Args: []deploy.Slot{
			deploy.Ref(UbexStorage),
			deploy.Ref(AdamCoefficients),
			deploy.Ref(SystemOwner),
		}},
	}
}

// NewBook returns the network to plan mapping using strategy for the
// development plan.
func NewBook(strategy deploy.Strategy) (*deploy.PlanBook, error) {
	var r deploy.Resolver
	switch strategy {
	case deploy.StrategyStatic, "":
		r = deploy.StaticPlan(Descriptors())
	case deploy.StrategyTopological:
		r = deploy.TopologicalPlan(Descriptors())
	default:
		return nil, fmt.Errorf("unknown plan strategy %q", strategy)
	}
	return deploy.NewPlanBook().Register(Development, r), nil
}

// MemoryBlueprints models the accessors of the Ubex contracts for the
// in-memory platform. owner is reported as the SystemOwner's owner.
func MemoryBlueprints(owner common.Address) map[string]memory.Blueprint {
	return map[string]memory.Blueprint{
		SystemOwner: {
			"owner": memory.Const(owner),
		},
		AdamCoefficients: {
			AccessorSystemOwner: memory.Arg(0),
		},
		UbexStorage: {
			AccessorSystemOwner: memory.Arg(0),
		},
		UbexExchange: {
			"storageAddress":      memory.Arg(0),
			"coefficientsAddress": memory.Arg(1),
			AccessorSystemOwner:   memory.Arg(2),
		},
	}
}

// OwnerCheck asserts that AdamCoefficients stores expected as its system
// owner.
func OwnerCheck(expected any) verify.Assertion {
	return verify.Assertion{
		Component: AdamCoefficients,
		Accessor:  AccessorSystemOwner,
		Expected:  expected,
		Message:   "Incorrect system owner",
	}
}
