package plans

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/ubexdeploy/internal/deploy"
	"github.com/Bidon15/ubexdeploy/internal/directory"
	"github.com/Bidon15/ubexdeploy/internal/platform/memory"
	"github.com/Bidon15/ubexdeploy/internal/verify"
)

var owner = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDescriptors_Order(t *testing.T) {
	descriptors := Descriptors()
	require.NoError(t, deploy.ValidateOrder(descriptors))

	names := deploy.Plan{Descriptors: descriptors}.Names()
	assert.Equal(t, []string{SystemOwner, AdamCoefficients, UbexStorage, UbexExchange}, names)
}

func TestNewBook(t *testing.T) {
	for _, strategy := range []deploy.Strategy{"", deploy.StrategyStatic, deploy.StrategyTopological} {
		t.Run(string(strategy), func(t *testing.T) {
			book, err := NewBook(strategy)
			require.NoError(t, err)

			assert.True(t, book.Recognizes(Development))
			assert.False(t, book.Recognizes(Production))

			plan, err := book.Resolve(Development)
			require.NoError(t, err)
			names := plan.Names()
			require.Len(t, names, 4)
			assert.Equal(t, SystemOwner, names[0])
			assert.Equal(t, UbexExchange, names[3])
			assert.NoError(t, deploy.ValidateOrder(plan.Descriptors))
		})
	}

	_, err := NewBook("random")
	assert.Error(t, err)
}

// runDevelopment deploys the development plan on an in-memory platform and
// publishes it to a fresh directory.
func runDevelopment(t *testing.T, opts ...memory.Option) (*memory.Platform, *directory.Memory, *deploy.Registry, error) {
	t.Helper()
	opts = append([]memory.Option{memory.WithBlueprints(MemoryBlueprints(owner))}, opts...)
	platform := memory.New(opts...)
	dir := directory.NewMemory()

	book, err := NewBook(deploy.StrategyStatic)
	require.NoError(t, err)

	o := deploy.NewOrchestrator(book, platform, deploy.OrchestratorConfig{Logger: discard()})
	reg, err := o.Run(context.Background(), Development)
	if err == nil {
		require.NoError(t, directory.Publish(context.Background(), dir, string(Development), reg))
	}
	return platform, dir, reg, err
}

func TestEndToEnd_Development(t *testing.T) {
	ctx := context.Background()
	platform, dir, reg, err := runDevelopment(t)
	require.NoError(t, err)

	assert.Equal(t, 4, reg.Len())
	assert.Equal(t, 4, platform.Actions())

	ownerAddr, ok := reg.Address(SystemOwner)
	require.True(t, ok)

	h := verify.NewHarness(dir, platform, string(Development), verify.WithLogger(discard()))

	t.Run("config stores the SystemOwner address", func(t *testing.T) {
		assert.NoError(t, h.Check(ctx, OwnerCheck(ownerAddr)))
		assert.NoError(t, h.Check(ctx, OwnerCheck(ownerAddr.Hex())))
	})

	t.Run("wrong owner fails", func(t *testing.T) {
		err := h.Check(ctx, OwnerCheck(owner))
		assert.ErrorIs(t, err, verify.ErrAssertionFailed)
		assert.Contains(t, err.Error(), "Incorrect system owner")
	})

	t.Run("exchange wiring", func(t *testing.T) {
		storage, _ := reg.Address(UbexStorage)
		coefficients, _ := reg.Address(AdamCoefficients)

		exchange, err := h.GetDeployedInstance(ctx, UbexExchange)
		require.NoError(t, err)

		for accessor, want := range map[string]common.Address{
			"storageAddress":      storage,
			"coefficientsAddress": coefficients,
			AccessorSystemOwner:   ownerAddr,
		} {
			got, err := h.ReadState(ctx, exchange, accessor)
			require.NoError(t, err)
			assert.Equal(t, want, got, accessor)
		}
	})

	t.Run("system owner reports its owner", func(t *testing.T) {
		handle, err := h.GetDeployedInstance(ctx, SystemOwner)
		require.NoError(t, err)
		got, err := h.ReadState(ctx, handle, "owner")
		require.NoError(t, err)
		assert.Equal(t, owner, got)
	})
}

func TestEndToEnd_Production(t *testing.T) {
	platform := memory.New(memory.WithBlueprints(MemoryBlueprints(owner)))
	book, err := NewBook(deploy.StrategyStatic)
	require.NoError(t, err)

	o := deploy.NewOrchestrator(book, platform, deploy.OrchestratorConfig{Logger: discard()})
	reg, err := o.Run(context.Background(), Production)
	require.NoError(t, err)
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, 0, platform.Actions())

	h := verify.NewHarness(directory.NewMemory(), platform, string(Production), verify.WithLogger(discard()))
	err = h.Check(context.Background(), OwnerCheck(owner))
	assert.ErrorIs(t, err, verify.ErrNotDeployed)
}

func TestEndToEnd_FailedComponentAbortsRun(t *testing.T) {
	platform, _, reg, err := runDevelopment(t, memory.FailOn(UbexStorage, errors.New("reverted")))
	assert.Nil(t, reg)
	assert.ErrorIs(t, err, deploy.ErrDeploymentActionFailed)
	assert.Contains(t, err.Error(), UbexStorage)
	assert.Equal(t, 3, platform.Actions(), "UbexExchange must not be attempted")
}
