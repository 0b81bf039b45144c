package deploy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockDeployer is a mock implementation of Deployer.
type MockDeployer struct {
	mock.Mock
}

func (m *MockDeployer) DeployInstance(ctx context.Context, component string, args []any) (Receipt, error) {
	a := m.Called(ctx, component, args)
	return a.Get(0).(Receipt), a.Error(1)
}

// MockObserver is a mock implementation of Observer.
type MockObserver struct {
	mock.Mock
}

func (m *MockObserver) ObserveDeployment(component string, elapsed time.Duration, err error) {
	m.Called(component, elapsed, err)
}

func addr(n byte) common.Address {
	return common.BytesToAddress([]byte{n})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(book *PlanBook, d Deployer) *Orchestrator {
	return NewOrchestrator(book, d, OrchestratorConfig{Logger: testLogger()})
}

func TestOrchestrator_Deploy(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves literals and references", func(t *testing.T) {
		deployer := new(MockDeployer)
		o := newTestOrchestrator(NewPlanBook(), deployer)

		reg := NewRegistry()
		require.NoError(t, reg.Record(Deployment{Name: "Owner", Address: addr(1)}))

		deployer.On("DeployInstance", ctx, "Config", []any{addr(1), "v1"}).
			Return(Receipt{Address: addr(2), TxHash: common.HexToHash("0xabc"), BlockNumber: 9}, nil).Once()

		d, err := o.Deploy(ctx, Descriptor{Name: "Config", Args: []Slot{Ref("Owner"), Literal("v1")}}, reg)
		require.NoError(t, err)
		assert.Equal(t, addr(2), d.Address)
		assert.Equal(t, uint64(9), d.BlockNumber)

		got, ok := reg.Address("Config")
		assert.True(t, ok)
		assert.Equal(t, addr(2), got)
		deployer.AssertExpectations(t)
	})

	t.Run("missing reference never reaches the platform", func(t *testing.T) {
		deployer := new(MockDeployer)
		o := newTestOrchestrator(NewPlanBook(), deployer)

		reg := NewRegistry()
		_, err := o.Deploy(ctx, Descriptor{Name: "Config", Args: []Slot{Ref("Owner")}}, reg)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnresolvedDependency))
		assert.Contains(t, err.Error(), "Config")
		assert.Contains(t, err.Error(), "Owner")
		assert.Equal(t, 0, reg.Len())
		deployer.AssertNotCalled(t, "DeployInstance", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing depends on", func(t *testing.T) {
		deployer := new(MockDeployer)
		o := newTestOrchestrator(NewPlanBook(), deployer)

		_, err := o.Deploy(ctx, Descriptor{Name: "B", DependsOn: []string{"A"}}, NewRegistry())
		assert.ErrorIs(t, err, ErrUnresolvedDependency)
		deployer.AssertNotCalled(t, "DeployInstance", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("recorded component is not deployed twice", func(t *testing.T) {
		deployer := new(MockDeployer)
		o := newTestOrchestrator(NewPlanBook(), deployer)

		reg := NewRegistry()
		require.NoError(t, reg.Record(Deployment{Name: "Owner", Address: addr(1)}))

		_, err := o.Deploy(ctx, Descriptor{Name: "Owner"}, reg)
		assert.ErrorIs(t, err, ErrAlreadyRecorded)
		deployer.AssertNotCalled(t, "DeployInstance", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("platform failure is surfaced", func(t *testing.T) {
		deployer := new(MockDeployer)
		o := newTestOrchestrator(NewPlanBook(), deployer)

		platformErr := errors.New("insufficient funds for gas")
		deployer.On("DeployInstance", ctx, "Owner", []any{}).Return(Receipt{}, platformErr).Once()

		reg := NewRegistry()
		_, err := o.Deploy(ctx, Descriptor{Name: "Owner"}, reg)
		assert.ErrorIs(t, err, ErrDeploymentActionFailed)
		assert.ErrorIs(t, err, platformErr)
		assert.Equal(t, 0, reg.Len())
	})
}

func TestOrchestrator_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("deploys in plan order", func(t *testing.T) {
		deployer := new(MockDeployer)
		book := NewPlanBook().Register("development", StaticPlan(ubexDescriptors()))
		o := newTestOrchestrator(book, deployer)

		var order []string
		record := func(args mock.Arguments) { order = append(order, args.String(1)) }

		deployer.On("DeployInstance", ctx, "Owner", []any{}).Run(record).Return(Receipt{Address: addr(1)}, nil).Once()
		deployer.On("DeployInstance", ctx, "Config", []any{addr(1)}).Run(record).Return(Receipt{Address: addr(2)}, nil).Once()
		deployer.On("DeployInstance", ctx, "Storage", []any{addr(1)}).Run(record).Return(Receipt{Address: addr(3)}, nil).Once()
		deployer.On("DeployInstance", ctx, "Exchange", []any{addr(3), addr(2), addr(1)}).Run(record).Return(Receipt{Address: addr(4)}, nil).Once()

		reg, err := o.Run(ctx, "development")
		require.NoError(t, err)
		require.NotNil(t, reg)

		assert.Equal(t, []string{"Owner", "Config", "Storage", "Exchange"}, order)
		assert.Equal(t, 4, reg.Len())
		assert.Equal(t, map[string]common.Address{
			"Owner":    addr(1),
			"Config":   addr(2),
			"Storage":  addr(3),
			"Exchange": addr(4),
		}, reg.Addresses())
		deployer.AssertExpectations(t)
	})

	t.Run("unrecognized network deploys nothing", func(t *testing.T) {
		deployer := new(MockDeployer)
		book := NewPlanBook().Register("development", StaticPlan(ubexDescriptors()))
		o := newTestOrchestrator(book, deployer)

		reg, err := o.Run(ctx, "production")
		require.NoError(t, err)
		assert.Equal(t, 0, reg.Len())
		deployer.AssertNotCalled(t, "DeployInstance", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("first failure aborts the run", func(t *testing.T) {
		deployer := new(MockDeployer)
		book := NewPlanBook().Register("development", StaticPlan(ubexDescriptors()))
		o := newTestOrchestrator(book, deployer)

		deployer.On("DeployInstance", ctx, "Owner", []any{}).Return(Receipt{Address: addr(1)}, nil).Once()
		deployer.On("DeployInstance", ctx, "Config", []any{addr(1)}).Return(Receipt{}, errors.New("reverted")).Once()

		reg, err := o.Run(ctx, "development")
		assert.Nil(t, reg)
		assert.ErrorIs(t, err, ErrDeploymentActionFailed)
		assert.Contains(t, err.Error(), "Config")
		deployer.AssertNotCalled(t, "DeployInstance", ctx, "Storage", mock.Anything)
		deployer.AssertNotCalled(t, "DeployInstance", ctx, "Exchange", mock.Anything)
	})

	t.Run("misordered static plan fails with unresolved dependency", func(t *testing.T) {
		deployer := new(MockDeployer)
		d := ubexDescriptors()
		book := NewPlanBook().Register("development", StaticPlan{d[1], d[0]})
		o := newTestOrchestrator(book, deployer)

		reg, err := o.Run(ctx, "development")
		assert.Nil(t, reg)
		assert.ErrorIs(t, err, ErrUnresolvedDependency)
		deployer.AssertNotCalled(t, "DeployInstance", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("duplicate static entry fails before deploying", func(t *testing.T) {
		deployer := new(MockDeployer)
		book := NewPlanBook().Register("development", StaticPlan{{Name: "Owner"}, {Name: "Owner"}})

		_, err := newTestOrchestrator(book, deployer).Run(ctx, "development")
		assert.ErrorIs(t, err, ErrDuplicateDescriptor)
		deployer.AssertNotCalled(t, "DeployInstance", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("cyclic plan fails before deploying", func(t *testing.T) {
		deployer := new(MockDeployer)
		book := NewPlanBook().Register("development", TopologicalPlan{
			{Name: "A", Args: []Slot{Ref("B")}},
			{Name: "B", Args: []Slot{Ref("A")}},
		})
		o := newTestOrchestrator(book, deployer)

		reg, err := o.Run(ctx, "development")
		assert.Nil(t, reg)
		assert.ErrorIs(t, err, ErrCyclicDependency)
	})

	t.Run("observer sees every action", func(t *testing.T) {
		deployer := new(MockDeployer)
		observer := new(MockObserver)
		book := NewPlanBook().Register("development", StaticPlan{{Name: "Owner"}, {Name: "Config", Args: []Slot{Ref("Owner")}}})

		o := NewOrchestrator(book, deployer, OrchestratorConfig{Logger: testLogger(), Observer: observer})

		failure := errors.New("boom")
		deployer.On("DeployInstance", ctx, "Owner", []any{}).Return(Receipt{Address: addr(1)}, nil).Once()
		deployer.On("DeployInstance", ctx, "Config", []any{addr(1)}).Return(Receipt{}, failure).Once()
		observer.On("ObserveDeployment", "Owner", mock.AnythingOfType("time.Duration"), nil).Once()
		observer.On("ObserveDeployment", "Config", mock.AnythingOfType("time.Duration"), failure).Once()

		_, err := o.Run(ctx, "development")
		assert.Error(t, err)
		observer.AssertExpectations(t)
	})
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Record(Deployment{Name: "Owner", Address: addr(1)}))
	require.NoError(t, reg.Record(Deployment{Name: "Config", Address: addr(2)}))

	err := reg.Record(Deployment{Name: "Owner", Address: addr(9)})
	assert.ErrorIs(t, err, ErrAlreadyRecorded)

	got, _ := reg.Address("Owner")
	assert.Equal(t, addr(1), got, "first record wins")

	names := make([]string, 0)
	for _, d := range reg.Deployments() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"Owner", "Config"}, names)

	_, ok := reg.Get("Storage")
	assert.False(t, ok)
}
