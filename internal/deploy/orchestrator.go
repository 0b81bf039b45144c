package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Receipt is what the external platform reports for one deployment action.
type Receipt struct {
	Address     common.Address
	TxHash      common.Hash
	BlockNumber uint64
}

// Deployer performs the deployment action on the external platform.
// It blocks until the platform acknowledges the deployment.
type Deployer interface {
	DeployInstance(ctx context.Context, component string, args []any) (Receipt, error)
}

// Observer is notified after every deployment action.
type Observer interface {
	ObserveDeployment(component string, elapsed time.Duration, err error)
}

// OrchestratorConfig contains optional collaborators of the orchestrator.
type OrchestratorConfig struct {
	// Logger for structured logging
	Logger *slog.Logger

	// Observer receives per-component outcomes, may be nil
	Observer Observer

	// Now overrides the clock used for DeployedAt
	Now func() time.Time
}

// Orchestrator deploys the plan of an environment in order.
type Orchestrator struct {
	book     *PlanBook
	deployer Deployer
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator over book and deployer.
func NewOrchestrator(book *PlanBook, deployer Deployer, config OrchestratorConfig) *Orchestrator {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		book:     book,
		deployer: deployer,
		observer: config.Observer,
		logger:   logger,
		now:      now,
	}
}

// ResolvePlan selects the plan for sel. Unrecognized selectors yield the
// no-op plan.
func (o *Orchestrator) ResolvePlan(sel Selector) (Plan, error) {
	return o.book.Resolve(sel)
}

// Deploy resolves the constructor arguments of d against reg, performs the
// deployment action and records the result in reg.
func (o *Orchestrator) Deploy(ctx context.Context, d Descriptor, reg *Registry) (Deployment, error) {
	if _, ok := reg.Get(d.Name); ok {
		return Deployment{}, fmt.Errorf("%w: %s", ErrAlreadyRecorded, d.Name)
	}
	args := make([]any, len(d.Args))
	for i, slot := range d.Args {
		switch slot.Kind {
		case SlotRef:
			addr, ok := reg.Address(slot.Ref)
			if !ok {
				return Deployment{}, fmt.Errorf("%w: %s argument %d references %s", ErrUnresolvedDependency, d.Name, i, slot.Ref)
			}
			args[i] = addr
		default:
			args[i] = slot.Value
		}
	}
	for _, dep := range d.DependsOn {
		if _, ok := reg.Get(dep); !ok {
			return Deployment{}, fmt.Errorf("%w: %s depends on %s", ErrUnresolvedDependency, d.Name, dep)
		}
	}

	start := o.now()
	receipt, err := o.deployer.DeployInstance(ctx, d.Name, args)
	if o.observer != nil {
		o.observer.ObserveDeployment(d.Name, o.now().Sub(start), err)
	}
	if err != nil {
		return Deployment{}, fmt.Errorf("%w: %s: %w", ErrDeploymentActionFailed, d.Name, err)
	}

	deployment := Deployment{
		Name:        d.Name,
		Address:     receipt.Address,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		DeployedAt:  o.now(),
	}
	if err := reg.Record(deployment); err != nil {
		return Deployment{}, err
	}
	return deployment, nil
}

// Run resolves the plan for sel and deploys each descriptor strictly in
// plan order. Any failure aborts the run and no registry is returned.
func (o *Orchestrator) Run(ctx context.Context, sel Selector) (*Registry, error) {
	runID := uuid.New()
	logger := o.logger.With(
		slog.String("run_id", runID.String()),
		slog.String("network", string(sel)),
	)

	plan, err := o.ResolvePlan(sel)
	if err != nil {
		logger.Error("plan resolution failed", slog.String("error", err.Error()))
		return nil, err
	}

	reg := NewRegistry()
	if plan.IsNoOp() {
		logger.Info("no deployment plan for network, skipping")
		return reg, nil
	}

	logger.Info("starting deployment run",
		slog.String("strategy", string(plan.Strategy)),
		slog.Int("components", len(plan.Descriptors)),
	)

	for i, d := range plan.Descriptors {
		logger.Info("deploying component",
			slog.String("component", d.Name),
			slog.Int("step", i+1),
			slog.Int("of", len(plan.Descriptors)),
		)

		deployment, err := o.Deploy(ctx, d, reg)
		if err != nil {
			logger.Error("deployment run aborted",
				slog.String("component", d.Name),
				slog.String("error", err.Error()),
			)
			return nil, err
		}

		logger.Info("component deployed",
			slog.String("component", d.Name),
			slog.String("address", deployment.Address.Hex()),
			slog.String("tx_hash", deployment.TxHash.Hex()),
		)
	}

	logger.Info("deployment run completed", slog.Int("deployed", reg.Len()))
	return reg, nil
}
