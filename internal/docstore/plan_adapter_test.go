package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyquest/studyquest/internal/store"
)

func newAdapter(t *testing.T) *PlanAdapter {
	t.Helper()
	settings, err := store.Open(":memory:", nil)
	require.NoError(t, err, "Failed to open settings store")
	t.Cleanup(func() { settings.Close() })

	db := NewDB(nil)
	t.Cleanup(func() { db.Close() })
	return NewPlanAdapter(db, settings, nil)
}

func adapterPlan(id string) *store.StudyPlan {
	return &store.StudyPlan{
		ID:         id,
		Name:       "OAB Prep",
		TotalHours: 120,
		FocusAreas: []string{"constitutional"},
		Cycle:      []string{"constitutional", "civil"},
		Weekly:     []store.WeeklyGoal{{Weekday: 1, Hours: 2}},
		Subjects: []store.Subject{
			{
				Name:           "Constitutional Law",
				Priority:       3,
				EstimatedHours: 40,
				Topics: []store.Topic{
					{
						Name:           "Fundamental Rights",
						EstimatedHours: 2,
						Subtopics:      []store.Subtopic{{Name: "Due Process", EstimatedHours: 1}},
					},
				},
			},
		},
	}
}

// =============================================================================
// Plan <-> journey mapping
// =============================================================================

func TestAdapterSaveAndGet(t *testing.T) {
	a := newAdapter(t)

	require.NoError(t, a.SavePlan(adapterPlan("plan-1")))

	loaded, err := a.GetPlan("plan-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "OAB Prep", loaded.Name)
	assert.Equal(t, []string{"constitutional", "civil"}, loaded.Cycle)
	require.Len(t, loaded.Weekly, 1)
	assert.Equal(t, 2.0, loaded.Weekly[0].Hours)

	// Subjects come back as stages; topic and subtopic flatten into tasks.
	require.Len(t, loaded.Subjects, 1)
	subject := loaded.Subjects[0]
	assert.Equal(t, "Constitutional Law", subject.Name)
	require.Len(t, subject.Topics, 2)
	assert.Equal(t, "Fundamental Rights", subject.Topics[0].Name)
	assert.Equal(t, "Due Process", subject.Topics[1].Name)
	assert.Equal(t, 2.0, subject.Topics[0].EstimatedHours, "minutes round-trip to hours")
}

func TestAdapterStageAndTaskIDs(t *testing.T) {
	a := newAdapter(t)

	require.NoError(t, a.SavePlan(adapterPlan("plan-1")))

	j, err := a.db.GetJourneyByLegacyID("plan-1")
	require.NoError(t, err)
	require.NotNil(t, j)
	require.Len(t, j.Stages, 1)
	assert.Equal(t, CanonicalStageID(j.ID, 0), j.Stages[0].ID)
	require.Len(t, j.Stages[0].Tasks, 2)
	assert.Equal(t, TaskID(j.Stages[0].ID, 0), j.Stages[0].Tasks[0].ID)

	// Embedded tasks are mirrored into the flat table.
	flat, err := a.db.ListTasks(JourneyRef(j.ID))
	require.NoError(t, err)
	assert.Len(t, flat, 2)
}

func TestAdapterDeletePlanRemovesTasks(t *testing.T) {
	a := newAdapter(t)

	require.NoError(t, a.SavePlan(adapterPlan("plan-1")))
	j, err := a.db.GetJourneyByLegacyID("plan-1")
	require.NoError(t, err)

	deleted, err := a.DeletePlan("plan-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	flat, err := a.db.ListTasks(JourneyRef(j.ID))
	require.NoError(t, err)
	assert.Empty(t, flat)

	deleted, err = a.DeletePlan("plan-1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

// =============================================================================
// Active plan semantics
// =============================================================================

func TestAdapterSaveActivePlanDemotesOthers(t *testing.T) {
	a := newAdapter(t)

	require.NoError(t, a.SaveActivePlan(adapterPlan("plan-1")))
	require.NoError(t, a.SaveActivePlan(adapterPlan("plan-2")))

	sp, err := a.ActiveSavedPlan()
	require.NoError(t, err)
	require.NotNil(t, sp)
	assert.Equal(t, "plan-2", sp.PlanID)
	assert.True(t, sp.IsActive)

	j1, err := a.db.GetJourneyByLegacyID("plan-1")
	require.NoError(t, err)
	assert.Equal(t, JourneyPaused, j1.Status)

	value, ok, err := a.LoadSetting(store.SettingActivePlanID, store.CategoryGeneral)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "plan-2", value)
}

func TestAdapterResolutionWaterfall(t *testing.T) {
	a := newAdapter(t)

	require.NoError(t, a.SaveActivePlan(adapterPlan("plan-1")))
	// Break the setting; resolution must recover through the active journey.
	require.NoError(t, a.SaveSetting(store.SettingActivePlanID, "gone", store.CategoryGeneral, ""))

	plan, err := store.ResolveActivePlan(a, nil)
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "plan-1", plan.ID)
}

func TestAdapterDeleteSavedPlanArchives(t *testing.T) {
	a := newAdapter(t)

	require.NoError(t, a.SavePlan(adapterPlan("plan-1")))
	require.NoError(t, a.DeleteSavedPlan("plan-1"))

	// Archived journeys disappear from plan and pointer listings but the
	// data itself survives.
	plans, err := a.ListPlans()
	require.NoError(t, err)
	assert.Empty(t, plans)

	saved, err := a.ListSavedPlans()
	require.NoError(t, err)
	assert.Empty(t, saved)

	j, err := a.db.GetJourneyByLegacyID("plan-1")
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, JourneyArchived, j.Status)
}

func TestAdapterSaveNamedPlan(t *testing.T) {
	a := newAdapter(t)

	id, err := a.SaveNamedPlan(adapterPlan(""), "Semester Push")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	loaded, err := a.GetPlan(id)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "Semester Push", loaded.Name)

	value, ok, err := a.LoadSetting(store.SettingActivePlanID, store.CategoryGeneral)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, value)
}
