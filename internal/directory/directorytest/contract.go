// Package directorytest provides contract tests for directory.Directory
// implementations.
package directorytest

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/ubexdeploy/internal/deploy"
	"github.com/Bidon15/ubexdeploy/internal/directory"
)

// Factory creates a fresh, empty directory for each test.
type Factory func(t *testing.T) directory.Directory

func sample(name string, n byte) deploy.Deployment {
	return deploy.Deployment{
		Name:        name,
		Address:     common.BytesToAddress([]byte{n}),
		TxHash:      common.BytesToHash([]byte{n, n}),
		BlockNumber: uint64(n),
		DeployedAt:  time.Date(2024, 3, 1, 12, 0, int(n), 0, time.UTC),
	}
}

// Run exercises the directory.Directory contract.
func Run(t *testing.T, factory Factory) {
	t.Run("RecordAndGet", func(t *testing.T) {
		dir := factory(t)
		ctx := context.Background()
		want := sample("SystemOwner", 1)

		require.NoError(t, dir.Record(ctx, "development", want))

		got, err := dir.Get(ctx, "development", "SystemOwner")
		require.NoError(t, err)
		assert.Equal(t, want.Name, got.Name)
		assert.Equal(t, want.Address, got.Address)
		assert.Equal(t, want.TxHash, got.TxHash)
		assert.Equal(t, want.BlockNumber, got.BlockNumber)
		assert.True(t, want.DeployedAt.Equal(got.DeployedAt))
	})

	t.Run("GetNotFound", func(t *testing.T) {
		dir := factory(t)
		_, err := dir.Get(context.Background(), "development", "Ghost")
		assert.ErrorIs(t, err, directory.ErrNotFound)
	})

	t.Run("RecordReplacesPreviousInstance", func(t *testing.T) {
		dir := factory(t)
		ctx := context.Background()

		require.NoError(t, dir.Record(ctx, "development", sample("UbexStorage", 1)))
		require.NoError(t, dir.Record(ctx, "development", sample("UbexStorage", 2)))

		got, err := dir.Get(ctx, "development", "UbexStorage")
		require.NoError(t, err)
		assert.Equal(t, common.BytesToAddress([]byte{2}), got.Address)
	})

	t.Run("NetworksAreIsolated", func(t *testing.T) {
		dir := factory(t)
		ctx := context.Background()

		require.NoError(t, dir.Record(ctx, "development", sample("SystemOwner", 1)))

		_, err := dir.Get(ctx, "staging", "SystemOwner")
		assert.ErrorIs(t, err, directory.ErrNotFound)

		list, err := dir.List(ctx, "staging")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("ListSortedByName", func(t *testing.T) {
		dir := factory(t)
		ctx := context.Background()

		for i, name := range []string{"UbexExchange", "AdamCoefficients", "SystemOwner"} {
			require.NoError(t, dir.Record(ctx, "development", sample(name, byte(i+1))))
		}

		list, err := dir.List(ctx, "development")
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "AdamCoefficients", list[0].Name)
		assert.Equal(t, "SystemOwner", list[1].Name)
		assert.Equal(t, "UbexExchange", list[2].Name)
	})

	t.Run("RejectsInvalidRecord", func(t *testing.T) {
		dir := factory(t)
		ctx := context.Background()

		assert.ErrorIs(t, dir.Record(ctx, "", sample("SystemOwner", 1)), directory.ErrInvalidRecord)
		assert.ErrorIs(t, dir.Record(ctx, "development", sample("", 1)), directory.ErrInvalidRecord)
	})

	t.Run("PublishRegistry", func(t *testing.T) {
		dir := factory(t)
		ctx := context.Background()

		reg := deploy.NewRegistry()
		require.NoError(t, reg.Record(sample("SystemOwner", 1)))
		require.NoError(t, reg.Record(sample("AdamCoefficients", 2)))
		require.NoError(t, directory.Publish(ctx, dir, "development", reg))

		list, err := dir.List(ctx, "development")
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})
}
