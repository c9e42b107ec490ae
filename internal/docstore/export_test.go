package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func populatedDB(t *testing.T) *DB {
	t.Helper()
	db := NewDB(nil)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.PutJourney(sampleJourney("plan-1")))
	require.NoError(t, db.PutJourney(sampleJourney("plan-2")))
	require.NoError(t, db.UpsertTask(&Task{ID: "t1", StageID: "s1", JourneyID: "1", Title: "a"}))
	require.NoError(t, db.UpsertHabit(&Habit{ID: "h1", StageID: "s1", Type: HabitPomodoro, Title: "Pomodoro"}))
	require.NoError(t, db.AddHabitCompletion(&HabitCompletion{HabitID: "h1"}))
	require.NoError(t, db.SaveHeroProfile(&HeroProfile{HeroName: "Scholar", TotalXP: 120, Level: 2}))
	require.NoError(t, db.UpsertAttribute(&HeroAttribute{ID: AttributeFocus, Name: "Focus"}))
	require.NoError(t, db.AddAttributeHistory(&AttributeHistory{AttributeID: AttributeFocus, DeltaXP: 10}))
	require.NoError(t, db.UpsertAttributeGoal(&AttributeGoal{AttributeID: AttributeFocus, TargetLevel: 3}))
	return db
}

func TestExportDocumentShape(t *testing.T) {
	db := populatedDB(t)

	doc, err := db.Export()
	require.NoError(t, err)
	assert.Equal(t, ExportVersion, doc.Version)
	assert.NotZero(t, doc.ExportedAt)
	assert.Len(t, doc.Journeys, 2)
	assert.Len(t, doc.Tasks, 1)
	assert.Len(t, doc.Habits, 1)
	assert.Len(t, doc.HabitCompletions, 1)
	require.Len(t, doc.HeroProfile, 1)
	assert.Equal(t, "Scholar", doc.HeroProfile[0].HeroName)
	assert.Len(t, doc.HeroAttributes, 1)
	assert.Len(t, doc.AttributeHistory, 1)
	assert.Len(t, doc.AttributeGoals, 1)
}

func TestExportImportReplaceRoundTrip(t *testing.T) {
	db := populatedDB(t)

	data, err := db.ExportJSON()
	require.NoError(t, err)

	restored := NewDB(nil)
	defer restored.Close()
	// Pre-existing data must be wiped by replace mode.
	require.NoError(t, restored.PutJourney(sampleJourney("stale")))

	require.NoError(t, restored.ImportJSON(data, ImportReplace))
	assert.Equal(t, db.Counts(), restored.Counts())

	stale, err := restored.GetJourneyByLegacyID("stale")
	require.NoError(t, err)
	assert.Nil(t, stale)

	// Ids survive the round trip, including auto-increment continuity.
	j, err := restored.GetJourneyByLegacyID("plan-2")
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, int64(2), j.ID)

	next := sampleJourney("plan-3")
	require.NoError(t, restored.PutJourney(next))
	assert.Equal(t, int64(3), next.ID)
}

func TestImportMergeKeepsExisting(t *testing.T) {
	db := populatedDB(t)
	doc, err := db.Export()
	require.NoError(t, err)

	target := NewDB(nil)
	defer target.Close()
	require.NoError(t, target.UpsertTask(&Task{ID: "local-task", StageID: "s9", Title: "keep me"}))

	require.NoError(t, target.Import(doc, ImportMerge))

	kept, err := target.GetTask("local-task")
	require.NoError(t, err)
	require.NotNil(t, kept)

	imported, err := target.GetTask("t1")
	require.NoError(t, err)
	require.NotNil(t, imported)
}

func TestImportRejectsBadDocuments(t *testing.T) {
	db := NewDB(nil)
	defer db.Close()

	require.NoError(t, db.PutJourney(sampleJourney("plan-1")))

	twoProfiles := []*HeroProfile{{HeroName: "a"}, {HeroName: "b"}}
	cases := []*ExportDocument{
		{Version: 0, ExportedAt: 1},                 // missing version
		{Version: ExportVersion + 1, ExportedAt: 1}, // from a newer app
		{Version: ExportVersion, ExportedAt: 0},     // missing stamp
		{Version: ExportVersion, ExportedAt: 1, HeroProfile: twoProfiles}, // profile is a singleton
	}
	for _, doc := range cases {
		err := db.Import(doc, ImportReplace)
		require.Error(t, err)
	}

	// Nothing was mutated by the rejected imports.
	n, err := db.CountJourneys()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestImportBadJSON(t *testing.T) {
	db := NewDB(nil)
	defer db.Close()

	assert.Error(t, db.ImportJSON([]byte("{nope"), ImportReplace))
}
