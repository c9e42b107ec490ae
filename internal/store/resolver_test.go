package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Active plan resolution waterfall
// =============================================================================

func TestResolveEmptyStore(t *testing.T) {
	s := openTestStore(t)

	plan, err := ResolveActivePlan(s, nil)
	require.NoError(t, err)
	assert.Nil(t, plan, "first run resolves to no plan, not an error")
}

func TestResolveViaSetting(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SavePlan(samplePlan("plan-1")))
	require.NoError(t, s.SaveSetting(SettingActivePlanID, "plan-1", CategoryGeneral, ""))

	plan, err := ResolveActivePlan(s, nil)
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "plan-1", plan.ID)
}

func TestResolveDanglingSettingFallsBackToPointer(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SavePlan(samplePlan("plan-1")))
	require.NoError(t, s.ActivateSavedPlanPointer("plan-1", "Current Plan"))
	// Setting points at a plan that no longer exists.
	require.NoError(t, s.SaveSetting(SettingActivePlanID, "gone", CategoryGeneral, ""))

	plan, err := ResolveActivePlan(s, nil)
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "plan-1", plan.ID)

	// The dangling setting was repaired in passing.
	value, ok, err := s.LoadSetting(SettingActivePlanID, CategoryGeneral)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "plan-1", value)
}

func TestResolveFallsBackToMostRecent(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SavePlan(samplePlan("plan-old")))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.SavePlan(samplePlan("plan-new")))
	// No setting, no pointer row.

	plan, err := ResolveActivePlan(s, nil)
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "plan-new", plan.ID)

	// Auto-repair wrote the setting so the next lookup is strategy 1.
	value, ok, err := s.LoadSetting(SettingActivePlanID, CategoryGeneral)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "plan-new", value)
}

func TestResolveDanglingPointerFallsBackToMostRecent(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SavePlan(samplePlan("plan-1")))
	require.NoError(t, s.ActivateSavedPlanPointer("gone", "Stale"))

	plan, err := ResolveActivePlan(s, nil)
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "plan-1", plan.ID)
}
