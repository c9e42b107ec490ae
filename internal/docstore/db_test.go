package docstore

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleJourney(legacyID string) *Journey {
	return &Journey{
		LegacyID:    legacyID,
		Title:       "OAB Prep",
		Description: "Bar exam study journey",
		TotalHours:  120,
		FocusAreas:  []string{"constitutional", "civil"},
		Stages: []Stage{
			{
				ID:    "stage-a",
				Title: "Constitutional Law",
				Order: 0,
				Tasks: []Task{
					{ID: "task-a1", StageID: "stage-a", Title: "Fundamental Rights", EstimatedMinutes: 600},
				},
			},
		},
	}
}

// =============================================================================
// Journey CRUD
// =============================================================================

func TestJourneyPutAssignsID(t *testing.T) {
	db := NewDB(nil)
	defer db.Close()

	j1 := sampleJourney("plan-1")
	require.NoError(t, db.PutJourney(j1))
	j2 := sampleJourney("plan-2")
	require.NoError(t, db.PutJourney(j2))

	assert.Equal(t, int64(1), j1.ID)
	assert.Equal(t, int64(2), j2.ID)
	assert.Equal(t, JourneyActive, j1.Status, "status defaults to active")

	loaded, err := db.GetJourney(1)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "OAB Prep", loaded.Title)
}

func TestJourneyGetByLegacyID(t *testing.T) {
	db := NewDB(nil)
	defer db.Close()

	require.NoError(t, db.PutJourney(sampleJourney("plan-1")))

	j, err := db.GetJourneyByLegacyID("plan-1")
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, "plan-1", j.LegacyID)

	j, err = db.GetJourneyByLegacyID("nope")
	require.NoError(t, err)
	assert.Nil(t, j)
}

func TestJourneyReadsAreIsolated(t *testing.T) {
	db := NewDB(nil)
	defer db.Close()

	j := sampleJourney("plan-1")
	require.NoError(t, db.PutJourney(j))

	loaded, err := db.GetJourney(j.ID)
	require.NoError(t, err)
	loaded.Stages[0].Title = "mutated"
	loaded.FocusAreas[0] = "mutated"

	again, err := db.GetJourney(j.ID)
	require.NoError(t, err)
	assert.Equal(t, "Constitutional Law", again.Stages[0].Title)
	assert.Equal(t, "constitutional", again.FocusAreas[0])
}

func TestJourneyDelete(t *testing.T) {
	db := NewDB(nil)
	defer db.Close()

	j := sampleJourney("plan-1")
	require.NoError(t, db.PutJourney(j))
	require.NoError(t, db.DeleteJourney(j.ID))

	loaded, err := db.GetJourney(j.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	n, err := db.CountJourneys()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// =============================================================================
// Tasks and habits
// =============================================================================

func TestTaskUpsertRequiresID(t *testing.T) {
	db := NewDB(nil)
	defer db.Close()

	err := db.UpsertTask(&Task{Title: "no id"})
	assert.Error(t, err)
}

func TestTaskUpsertPreservesCreatedAt(t *testing.T) {
	db := NewDB(nil)
	defer db.Close()

	task := &Task{ID: "task-1", StageID: "stage-a", JourneyID: "1", Title: "Read chapter"}
	require.NoError(t, db.UpsertTask(task))

	first, err := db.GetTask("task-1")
	require.NoError(t, err)
	created := first.CreatedAt

	time.Sleep(2 * time.Millisecond)
	first.Completed = true
	require.NoError(t, db.UpsertTask(first))

	second, err := db.GetTask("task-1")
	require.NoError(t, err)
	assert.Equal(t, created, second.CreatedAt)
	assert.True(t, second.Completed)
	assert.GreaterOrEqual(t, second.UpdatedAt, created)
}

func TestTaskListFilters(t *testing.T) {
	db := NewDB(nil)
	defer db.Close()

	require.NoError(t, db.UpsertTask(&Task{ID: "t1", StageID: "s1", JourneyID: "1", Title: "a"}))
	require.NoError(t, db.UpsertTask(&Task{ID: "t2", StageID: "s1", JourneyID: "1", Title: "b"}))
	require.NoError(t, db.UpsertTask(&Task{ID: "t3", StageID: "s2", JourneyID: "2", Title: "c"}))

	byJourney, err := db.ListTasks("1")
	require.NoError(t, err)
	assert.Len(t, byJourney, 2)

	byStage, err := db.ListTasksByStage("s2")
	require.NoError(t, err)
	require.Len(t, byStage, 1)
	assert.Equal(t, "t3", byStage[0].ID)

	all, err := db.ListTasks("")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestHabitCompletionBumpsStreak(t *testing.T) {
	db := NewDB(nil)
	defer db.Close()

	require.NoError(t, db.UpsertHabit(&Habit{
		ID: "h1", StageID: "s1", Type: HabitDailyReview, Title: "Review notes", IsActive: true,
	}))

	require.NoError(t, db.AddHabitCompletion(&HabitCompletion{HabitID: "h1"}))
	require.NoError(t, db.AddHabitCompletion(&HabitCompletion{HabitID: "h1"}))

	h, err := db.GetHabit("h1")
	require.NoError(t, err)
	assert.Equal(t, 2, h.CurrentStreak)
	assert.Equal(t, 2, h.LongestStreak)
	require.NotNil(t, h.LastCompletedAt)

	completions, err := db.ListHabitCompletions("h1")
	require.NoError(t, err)
	assert.Len(t, completions, 2)
}

// =============================================================================
// Hero profile and attributes
// =============================================================================

func TestHeroProfileSingleton(t *testing.T) {
	db := NewDB(nil)
	defer db.Close()

	p, err := db.HeroProfile()
	require.NoError(t, err)
	assert.Nil(t, p)

	require.NoError(t, db.SaveHeroProfile(&HeroProfile{ID: 42, HeroName: "Scholar", Level: 3}))

	p, err = db.HeroProfile()
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(HeroProfileID), p.ID, "profile id is forced to the singleton")
	assert.Equal(t, "Scholar", p.HeroName)
}

func TestAttributeHistoryAndGoals(t *testing.T) {
	db := NewDB(nil)
	defer db.Close()

	require.NoError(t, db.UpsertAttribute(&HeroAttribute{ID: AttributeKnowledge, Name: "Knowledge", Level: 1}))
	require.NoError(t, db.AddAttributeHistory(&AttributeHistory{AttributeID: AttributeKnowledge, DeltaXP: 10, Reason: "quiz"}))
	require.NoError(t, db.AddAttributeHistory(&AttributeHistory{AttributeID: AttributeKnowledge, DeltaXP: 5, Reason: "session"}))

	history, err := db.ListAttributeHistory(AttributeKnowledge)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.NotZero(t, history[0].ID)

	require.NoError(t, db.UpsertAttributeGoal(&AttributeGoal{AttributeID: AttributeKnowledge, TargetLevel: 5, IsActive: true}))
	goals, err := db.ListAttributeGoals(AttributeKnowledge)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	require.NoError(t, db.DeleteAttributeGoal(goals[0].ID))

	goals, err = db.ListAttributeGoals(AttributeKnowledge)
	require.NoError(t, err)
	assert.Empty(t, goals)
}

// =============================================================================
// Transactions and watches
// =============================================================================

func TestUpdateRollsBackOnError(t *testing.T) {
	db := NewDB(nil)
	defer db.Close()

	require.NoError(t, db.PutJourney(sampleJourney("plan-1")))

	boom := errors.New("boom")
	err := db.Update(func(tx *Tx) error {
		if err := tx.PutJourney(sampleJourney("plan-2")); err != nil {
			return err
		}
		if err := tx.UpsertTask(&Task{ID: "t1", StageID: "s1", Title: "doomed"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Everything from the failed transaction is gone, including the counter.
	n, err := db.CountJourneys()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	task, err := db.GetTask("t1")
	require.NoError(t, err)
	assert.Nil(t, task)

	j := sampleJourney("plan-3")
	require.NoError(t, db.PutJourney(j))
	assert.Equal(t, int64(2), j.ID, "id counter restored by rollback")
}

func TestWatchDeliversTouchedTables(t *testing.T) {
	db := NewDB(nil)
	defer db.Close()

	ch, cancel := db.Watch()
	defer cancel()

	require.NoError(t, db.Update(func(tx *Tx) error {
		if err := tx.PutJourney(sampleJourney("plan-1")); err != nil {
			return err
		}
		return tx.UpsertTask(&Task{ID: "t1", StageID: "s1", Title: "a"})
	}))

	got := map[string]bool{}
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case table := <-ch:
			got[table] = true
		case <-timeout:
			t.Fatalf("timed out waiting for watch events, got %v", got)
		}
	}
	assert.True(t, got[TableJourneys])
	assert.True(t, got[TableTasks])
}

func TestOnChangeFiresAfterCommit(t *testing.T) {
	db := NewDB(nil)
	defer db.Close()

	fired := make(chan struct{}, 4)
	db.SetOnChange(func() { fired <- struct{}{} })

	require.NoError(t, db.PutJourney(sampleJourney("plan-1")))
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("onChange was not called")
	}

	// Failed updates do not notify.
	_ = db.Update(func(tx *Tx) error {
		_ = tx.PutJourney(sampleJourney("plan-2"))
		return errors.New("boom")
	})
	select {
	case <-fired:
		t.Fatal("onChange fired for a rolled-back update")
	case <-time.After(50 * time.Millisecond):
	}
}
