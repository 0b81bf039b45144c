package deploy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ubexDescriptors() []Descriptor {
	return []Descriptor{
		{Name: "Owner"},
		{Name: "Config", Args: []Slot{Ref("Owner")}},
		{Name: "Storage", Args: []Slot{Ref("Owner")}},
		{Name: "Exchange", Args: []Slot{Ref("Storage"), Ref("Config"), Ref("Owner")}},
	}
}

func TestDescriptor_Dependencies(t *testing.T) {
	d := Descriptor{
		Name:      "Exchange",
		Args:      []Slot{Ref("Storage"), Literal(uint64(7)), Ref("Owner"), Ref("Storage")},
		DependsOn: []string{"Config", "Owner"},
	}
	assert.Equal(t, []string{"Storage", "Owner", "Config"}, d.Dependencies())
	assert.Equal(t, "Exchange(&Storage, 7, &Owner, &Storage)", d.String())
}

func TestStaticPlan_KeepsOrder(t *testing.T) {
	descriptors := ubexDescriptors()
	got, err := StaticPlan(descriptors).Resolve()
	require.NoError(t, err)
	assert.Equal(t, descriptors, got)

	// The returned slice is a copy.
	got[0].Name = "changed"
	assert.Equal(t, "Owner", descriptors[0].Name)
}

func TestStaticPlan_RejectsDuplicates(t *testing.T) {
	_, err := StaticPlan{{Name: "Owner"}, {Name: "Config"}, {Name: "Owner"}}.Resolve()
	assert.ErrorIs(t, err, ErrDuplicateDescriptor)
}

func TestTopologicalPlan_Resolve(t *testing.T) {
	t.Run("valid order is unchanged", func(t *testing.T) {
		got, err := TopologicalPlan(ubexDescriptors()).Resolve()
		require.NoError(t, err)
		assert.Equal(t, []string{"Owner", "Config", "Storage", "Exchange"}, Plan{Descriptors: got}.Names())
	})

	t.Run("reversed declaration is reordered", func(t *testing.T) {
		d := ubexDescriptors()
		reversed := []Descriptor{d[3], d[2], d[1], d[0]}
		got, err := TopologicalPlan(reversed).Resolve()
		require.NoError(t, err)

		names := Plan{Descriptors: got}.Names()
		assert.Equal(t, "Owner", names[0])
		assert.Equal(t, "Exchange", names[3])
		assert.NoError(t, ValidateOrder(got))
	})

	t.Run("depends on without argument", func(t *testing.T) {
		got, err := TopologicalPlan{
			{Name: "B", DependsOn: []string{"A"}},
			{Name: "A"},
		}.Resolve()
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, Plan{Descriptors: got}.Names())
	})

	t.Run("cycle", func(t *testing.T) {
		_, err := TopologicalPlan{
			{Name: "A", Args: []Slot{Ref("B")}},
			{Name: "B", Args: []Slot{Ref("A")}},
			{Name: "C"},
		}.Resolve()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrCyclicDependency))
		assert.Contains(t, err.Error(), "A, B")
	})

	t.Run("missing dependency", func(t *testing.T) {
		_, err := TopologicalPlan{{Name: "A", Args: []Slot{Ref("Ghost")}}}.Resolve()
		assert.ErrorIs(t, err, ErrUnresolvedDependency)
	})

	t.Run("duplicate name", func(t *testing.T) {
		_, err := TopologicalPlan{{Name: "A"}, {Name: "A"}}.Resolve()
		assert.ErrorIs(t, err, ErrDuplicateDescriptor)
	})
}

func TestValidateOrder(t *testing.T) {
	tests := []struct {
		name        string
		descriptors []Descriptor
		wantErr     error
	}{
		{name: "empty", descriptors: nil},
		{name: "ubex order", descriptors: ubexDescriptors()},
		{
			name: "forward reference",
			descriptors: []Descriptor{
				{Name: "Config", Args: []Slot{Ref("Owner")}},
				{Name: "Owner"},
			},
			wantErr: ErrUnresolvedDependency,
		},
		{
			name:        "self reference",
			descriptors: []Descriptor{{Name: "Owner", Args: []Slot{Ref("Owner")}}},
			wantErr:     ErrUnresolvedDependency,
		},
		{
			name:        "duplicate",
			descriptors: []Descriptor{{Name: "Owner"}, {Name: "Owner"}},
			wantErr:     ErrDuplicateDescriptor,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateOrder(tc.descriptors)
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestPlanBook_Resolve(t *testing.T) {
	book := NewPlanBook().
		Register("development", StaticPlan(ubexDescriptors())).
		Register("staging", TopologicalPlan(ubexDescriptors()))

	t.Run("recognized selector", func(t *testing.T) {
		plan, err := book.Resolve("development")
		require.NoError(t, err)
		assert.Equal(t, Selector("development"), plan.Selector)
		assert.Equal(t, StrategyStatic, plan.Strategy)
		assert.False(t, plan.IsNoOp())
		assert.NoError(t, ValidateOrder(plan.Descriptors))
	})

	t.Run("every recognized plan is topologically ordered", func(t *testing.T) {
		for _, sel := range book.Selectors() {
			plan, err := book.Resolve(sel)
			require.NoError(t, err)
			assert.NoError(t, ValidateOrder(plan.Descriptors), "selector %s", sel)
		}
	})

	t.Run("unrecognized selector is a no-op", func(t *testing.T) {
		for _, sel := range []Selector{"production", "", "Development"} {
			plan, err := book.Resolve(sel)
			require.NoError(t, err)
			assert.True(t, plan.IsNoOp())
			assert.Equal(t, StrategyNoOp, plan.Strategy)
			assert.False(t, book.Recognizes(sel))
		}
	})

	t.Run("resolver error is wrapped", func(t *testing.T) {
		bad := NewPlanBook().Register("development", TopologicalPlan{
			{Name: "A", Args: []Slot{Ref("A")}},
		})
		_, err := bad.Resolve("development")
		assert.ErrorIs(t, err, ErrCyclicDependency)
		assert.Contains(t, err.Error(), "resolve development plan")
	})

	assert.Equal(t, []Selector{"development", "staging"}, book.Selectors())
}
