package study

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyquest/studyquest/internal/backup"
	"github.com/studyquest/studyquest/internal/engine"
	"github.com/studyquest/studyquest/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	rel, err := store.Open(":memory:", nil)
	require.NoError(t, err, "Failed to open store")

	fs, err := mem.NewFS()
	require.NoError(t, err)
	shadow, err := backup.NewShadowStore(fs, "backup")
	require.NoError(t, err)

	mgr := engine.NewManager(rel, shadow, fs, "documents.json", 0, nil)
	svc := NewService(rel, mgr, backup.NewManager(shadow, nil), nil)
	require.NoError(t, svc.Initialize())
	t.Cleanup(func() { svc.Close() })
	return svc
}

func servicePlan(id string) *store.StudyPlan {
	return &store.StudyPlan{
		ID:   id,
		Name: "OAB Prep",
		Subjects: []store.Subject{
			{
				ID:   "subj-1",
				Name: "Constitutional Law",
				Topics: []store.Topic{
					{ID: "topic-1", Name: "Fundamental Rights", EstimatedHours: 2},
				},
			},
		},
	}
}

// =============================================================================
// Active plan lifecycle
// =============================================================================

func TestServiceActivePlanLifecycle(t *testing.T) {
	svc := newTestService(t)

	plan, err := svc.ActivePlan()
	require.NoError(t, err)
	assert.Nil(t, plan, "fresh install has no plan")

	require.NoError(t, svc.SaveActivePlan(servicePlan("plan-1")))

	plan, err = svc.ActivePlan()
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "plan-1", plan.ID)

	saved, err := svc.SavedPlans()
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.True(t, saved[0].IsActive)
}

func TestServiceActivePlanRecoveredFromShadow(t *testing.T) {
	svc := newTestService(t)

	// Only the shadow copy has a plan (primary wiped).
	require.NoError(t, svc.bak.BackupPlan(servicePlan("plan-1")))

	plan, err := svc.ActivePlan()
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "plan-1", plan.ID)

	// Recovery is read-only: the primary store stays empty.
	plans, err := svc.Plans()
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestServiceActivePlanPatchedFromSubjectShadow(t *testing.T) {
	svc := newTestService(t)

	// Shadow a full plan first, then save a stripped copy as current.
	require.NoError(t, svc.bak.BackupPlan(servicePlan("plan-1")))
	stripped := servicePlan("plan-1")
	stripped.Subjects = nil
	require.NoError(t, svc.mgr.Plans().SaveActivePlan(stripped))

	plan, err := svc.ActivePlan()
	require.NoError(t, err)
	require.NotNil(t, plan)
	require.Len(t, plan.Subjects, 1, "empty subject tree patched from shadow")
	assert.Equal(t, "Constitutional Law", plan.Subjects[0].Name)
}

func TestServiceSavePlanAs(t *testing.T) {
	svc := newTestService(t)

	id, err := svc.SavePlanAs(servicePlan(""), "Semester Push")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	plan, err := svc.Plan(id)
	require.NoError(t, err)
	require.NotNil(t, plan)
}

// =============================================================================
// Sessions with shadow fallback
// =============================================================================

func TestServiceRecordSessionShadowsFullSet(t *testing.T) {
	svc := newTestService(t)

	require.NoError(t, svc.RecordSession(&store.StudySession{Subject: "a", StartTime: 1000}))
	require.NoError(t, svc.RecordSession(&store.StudySession{Subject: "b", StartTime: 2000}))

	backed, err := svc.bak.LoadSessions()
	require.NoError(t, err)
	assert.Len(t, backed, 2, "shadow mirrors the full session set")
}

func TestServiceSessionsFallBackToShadow(t *testing.T) {
	svc := newTestService(t)

	require.NoError(t, svc.bak.BackupSessions([]*store.StudySession{
		{ID: "s1", Subject: "a", StartTime: 1000},
	}))

	sessions, err := svc.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1, "empty primary falls back to the shadow")

	// The fallback is read-only until a force sync.
	primary, err := svc.rel.ListSessions()
	require.NoError(t, err)
	assert.Empty(t, primary)

	synced, err := svc.ForceSyncBackupSessions()
	require.NoError(t, err)
	assert.Equal(t, 1, synced)

	primary, err = svc.rel.ListSessions()
	require.NoError(t, err)
	assert.Len(t, primary, 1)
}

func TestServiceValidatePersistence(t *testing.T) {
	svc := newTestService(t)

	require.NoError(t, svc.RecordSession(&store.StudySession{Subject: "a", StartTime: 1000}))

	report := svc.ValidatePersistence()
	assert.Equal(t, 1, report.TotalSessions)
	assert.Equal(t, 1, report.BackupSessions)
	assert.Equal(t, 0, report.CorruptedSessions)
}

// =============================================================================
// Flashcards
// =============================================================================

func TestServiceFlashcards(t *testing.T) {
	svc := newTestService(t)

	require.NoError(t, svc.SaveActivePlan(servicePlan("plan-1")))

	card, err := svc.SaveFlashcard("topic-1", "What is habeas corpus?", "A remedy against unlawful detention.")
	require.NoError(t, err)
	assert.NotEmpty(t, card.ID)
	assert.Equal(t, store.QuestionFlashcard, card.Type)
	assert.Empty(t, card.Content)

	// A regular question on the same topic is not a flashcard.
	require.NoError(t, svc.SaveQuestion(&store.Question{
		TopicID: "topic-1", Title: "Pick one", Content: "body",
	}))

	cards, err := svc.Flashcards("topic-1")
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "What is habeas corpus?", cards[0].Title)
	assert.Equal(t, "A remedy against unlawful detention.", cards[0].CorrectAnswer)
}

// =============================================================================
// Engine switching and export
// =============================================================================

func TestServiceExportRequiresDocumentEngine(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ExportDocumentStore()
	assert.Error(t, err, "relational engine has no document export")

	require.NoError(t, svc.SwitchEngine(engine.EngineDocument))
	assert.Equal(t, engine.EngineDocument, svc.Engine())

	data, err := svc.ExportDocumentStore()
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

// =============================================================================
// Single-plan export/import
// =============================================================================

func TestServicePlanExportImportRoundTrip(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.SaveActivePlan(servicePlan("plan-1")))

	data, err := svc.ExportPlan("plan-1")
	require.NoError(t, err)
	require.NotNil(t, data)

	var envelope struct {
		Plan       *store.StudyPlan `json:"plan"`
		ExportedAt int64            `json:"exportedAt"`
	}
	require.NoError(t, json.Unmarshal(data, &envelope))
	require.NotNil(t, envelope.Plan)
	assert.Equal(t, "plan-1", envelope.Plan.ID)
	assert.NotZero(t, envelope.ExportedAt)

	id, err := svc.ImportPlan(data)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "imported_"), "imports get a fresh id, got %s", id)

	// Both the source and the imported copy exist; the import is current.
	imported, err := svc.Plan(id)
	require.NoError(t, err)
	require.NotNil(t, imported)
	require.Len(t, imported.Subjects, 1)
	assert.Equal(t, "Constitutional Law", imported.Subjects[0].Name)

	original, err := svc.Plan("plan-1")
	require.NoError(t, err)
	require.NotNil(t, original)

	active, err := svc.ActivePlan()
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, id, active.ID)
}

func TestServiceExportMissingPlan(t *testing.T) {
	svc := newTestService(t)

	data, err := svc.ExportPlan("nope")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestServiceImportRejectsBadPayloads(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ImportPlan([]byte("{not json"))
	assert.Error(t, err)

	_, err = svc.ImportPlan([]byte(`{"exportedAt": 123}`))
	assert.Error(t, err, "envelope without a plan")
}

func TestServiceEngineSwitchKeepsPlansReadable(t *testing.T) {
	svc := newTestService(t)

	require.NoError(t, svc.SaveActivePlan(servicePlan("plan-1")))
	require.NoError(t, svc.SwitchEngine(engine.EngineDocument))

	// The migration carried the plan into the document engine.
	plan, err := svc.ActivePlan()
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "plan-1", plan.ID)
	require.Len(t, plan.Subjects, 1)
	assert.Equal(t, "Constitutional Law", plan.Subjects[0].Name)
}
