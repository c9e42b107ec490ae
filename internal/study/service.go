// Package study is the application facade: it ties the engine manager,
// active-plan resolution, shadow backups and question storage into the
// operations the UI layer calls. Read paths degrade to empty or recovered
// values instead of failing; write paths return errors to the caller.
package study

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyquest/studyquest/internal/backup"
	"github.com/studyquest/studyquest/internal/docstore"
	"github.com/studyquest/studyquest/internal/engine"
	"github.com/studyquest/studyquest/internal/store"
)

type Service struct {
	rel *store.SQLiteStore
	mgr *engine.Manager
	bak *backup.Manager
	log *zap.SugaredLogger
}

func NewService(rel *store.SQLiteStore, mgr *engine.Manager, bak *backup.Manager, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{rel: rel, mgr: mgr, bak: bak, log: log}
}

// Initialize brings up the configured storage engine.
func (s *Service) Initialize() error {
	return s.mgr.Initialize()
}

// Close shuts the engines down. The relational store is closed last since
// the engine manager may still flush settings through it.
func (s *Service) Close() error {
	if err := s.mgr.Shutdown(); err != nil {
		return err
	}
	return s.rel.Close()
}

// Engine reports the active storage engine.
func (s *Service) Engine() engine.Engine {
	return s.mgr.Engine()
}

// SwitchEngine changes the engine preference and re-initializes.
func (s *Service) SwitchEngine(e engine.Engine) error {
	return s.mgr.SwitchEngine(e)
}

// =============================================================================
// Plans
// =============================================================================

// ActivePlan resolves the current plan through the settings pointer, the
// saved-plan pointer and the most recent plan, in that order. When all three
// miss, the shadow backup is consulted as a last resort; a plan recovered
// that way is returned but not written back to the primary store. A resolved
// plan that lost its subject tree is patched from the subject shadow.
func (s *Service) ActivePlan() (*store.StudyPlan, error) {
	plan, err := store.ResolveActivePlan(s.mgr.Plans(), s.log)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		recovered, err := s.bak.LoadPlan()
		if err != nil {
			s.log.Warnw("plan backup recovery failed", "error", err)
			return nil, nil
		}
		if recovered != nil {
			s.log.Infow("active plan recovered from shadow backup", "plan_id", recovered.ID)
		}
		return recovered, nil
	}

	if len(plan.Subjects) == 0 {
		subjects, err := s.bak.LoadSubjects()
		if err != nil {
			s.log.Warnw("subject backup recovery failed", "error", err)
		} else if len(subjects) > 0 {
			s.log.Infow("patched empty subject tree from shadow backup",
				"plan_id", plan.ID, "subjects", len(subjects))
			plan.Subjects = subjects
		}
	}
	return plan, nil
}

// SaveActivePlan persists the plan as current and refreshes its shadow copy.
func (s *Service) SaveActivePlan(plan *store.StudyPlan) error {
	if err := s.mgr.Plans().SaveActivePlan(plan); err != nil {
		return err
	}
	if err := s.bak.BackupPlan(plan); err != nil {
		s.log.Warnw("plan shadow backup failed", "plan_id", plan.ID, "error", err)
	}
	return nil
}

// SavePlanAs stores the plan under a display name and makes it current.
func (s *Service) SavePlanAs(plan *store.StudyPlan, name string) (string, error) {
	id, err := s.mgr.Plans().SaveNamedPlan(plan, name)
	if err != nil {
		return "", err
	}
	if err := s.bak.BackupPlan(plan); err != nil {
		s.log.Warnw("plan shadow backup failed", "plan_id", id, "error", err)
	}
	return id, nil
}

func (s *Service) Plans() ([]*store.StudyPlan, error) {
	return s.mgr.Plans().ListPlans()
}

func (s *Service) Plan(id string) (*store.StudyPlan, error) {
	return s.mgr.Plans().GetPlan(id)
}

func (s *Service) DeletePlan(id string) (bool, error) {
	return s.mgr.Plans().DeletePlan(id)
}

func (s *Service) SavedPlans() ([]*store.SavedPlan, error) {
	return s.mgr.Plans().ListSavedPlans()
}

func (s *Service) DeleteSavedPlan(id string) error {
	return s.mgr.Plans().DeleteSavedPlan(id)
}

// =============================================================================
// Sessions
// =============================================================================

// RecordSession saves a session and refreshes the session shadow with the
// full current set.
func (s *Service) RecordSession(session *store.StudySession) error {
	if err := s.rel.SaveSession(session); err != nil {
		return err
	}
	all, err := s.rel.ListSessions()
	if err != nil {
		s.log.Warnw("session shadow refresh failed", "error", err)
		return nil
	}
	if err := s.bak.BackupSessions(all); err != nil {
		s.log.Warnw("session shadow backup failed", "error", err)
	}
	return nil
}

// Sessions lists primary sessions; an empty primary store falls back to the
// shadow copy so the caller is never left with nothing after a corruption.
// Shadow sessions are not written back except via ForceSyncBackupSessions.
func (s *Service) Sessions() ([]*store.StudySession, error) {
	sessions, err := s.rel.ListSessions()
	if err != nil {
		return nil, err
	}
	if len(sessions) > 0 {
		return sessions, nil
	}
	backed, err := s.bak.LoadSessions()
	if err != nil {
		s.log.Warnw("session backup recovery failed", "error", err)
		return sessions, nil
	}
	if len(backed) > 0 {
		s.log.Infow("sessions recovered from shadow backup", "count", len(backed))
	}
	return backed, nil
}

// ForceSyncBackupSessions replays shadowed sessions into the primary store.
func (s *Service) ForceSyncBackupSessions() (int, error) {
	return s.bak.ForceSyncSessions(s.rel)
}

// ValidatePersistence reports primary/shadow session counts for diagnostics.
func (s *Service) ValidatePersistence() *backup.Report {
	return s.bak.ValidatePersistence(s.rel)
}

// CleanupSessions removes corrupted and duplicate session rows.
func (s *Service) CleanupSessions() (int, error) {
	return s.bak.CleanupSessions(s.rel)
}

func (s *Service) DailyLogs() ([]store.DailyLog, error) {
	return s.rel.ListDailyLogs()
}

func (s *Service) SaveDailyLogs(logs []store.DailyLog) error {
	return s.rel.SaveDailyLogs(logs)
}

// =============================================================================
// Questions and flashcards
// =============================================================================

func (s *Service) SaveQuestion(q *store.Question) error {
	return s.rel.SaveQuestion(q)
}

func (s *Service) Question(id string) (*store.Question, error) {
	return s.rel.GetQuestion(id)
}

func (s *Service) QuestionsByTopic(topicID string) ([]*store.Question, error) {
	return s.rel.ListQuestionsByTopic(topicID)
}

func (s *Service) QuestionsByRoom(room store.Room) ([]*store.Question, error) {
	return s.rel.ListQuestionsByRoom(room)
}

func (s *Service) DeleteQuestion(id string) error {
	return s.rel.DeleteQuestion(id)
}

func (s *Service) MoveQuestionToRoom(id string, room store.Room) error {
	return s.rel.MoveQuestionToRoom(id, room)
}

func (s *Service) RecordAttempt(a *store.QuestionAttempt) error {
	return s.rel.RecordAttempt(a)
}

func (s *Service) ImportQuestions(questions []*store.Question) (*store.ImportResult, error) {
	return s.rel.ImportQuestions(questions)
}

// SaveFlashcard stores a flashcard as a question row with empty content and
// the flashcard type discriminator. Front goes to Title, back to
// CorrectAnswer.
func (s *Service) SaveFlashcard(topicID, front, back string) (*store.Question, error) {
	card := &store.Question{
		TopicID:       topicID,
		Title:         front,
		CorrectAnswer: back,
		Type:          store.QuestionFlashcard,
		Room:          store.RoomTriage,
	}
	if err := s.rel.SaveQuestion(card); err != nil {
		return nil, err
	}
	return card, nil
}

// Flashcards lists a topic's flashcard rows.
func (s *Service) Flashcards(topicID string) ([]*store.Question, error) {
	questions, err := s.rel.ListQuestionsByTopic(topicID)
	if err != nil {
		return nil, err
	}
	cards := questions[:0:0]
	for _, q := range questions {
		if q.Type == store.QuestionFlashcard {
			cards = append(cards, q)
		}
	}
	return cards, nil
}

// =============================================================================
// Settings and export
// =============================================================================

func (s *Service) Setting(key, category string) (string, bool, error) {
	return s.rel.LoadSetting(key, category)
}

func (s *Service) SaveSetting(key, value, category, description string) error {
	return s.rel.SaveSetting(key, value, category, description)
}

// ExportDocumentStore serializes the document engine to its versioned JSON
// format. Only valid while the document engine is active.
func (s *Service) ExportDocumentStore() ([]byte, error) {
	doc := s.mgr.Doc()
	if doc == nil {
		return nil, fmt.Errorf("document engine is not active")
	}
	return doc.ExportJSON()
}

// ImportDocumentStore loads a versioned JSON export into the document
// engine.
func (s *Service) ImportDocumentStore(data []byte, mode docstore.ImportMode) error {
	doc := s.mgr.Doc()
	if doc == nil {
		return fmt.Errorf("document engine is not active")
	}
	return doc.ImportJSON(data, mode)
}

// planExport is the single-plan interchange envelope: the plan with its full
// subject tree plus the export timestamp.
type planExport struct {
	Plan       *store.StudyPlan `json:"plan"`
	ExportedAt int64            `json:"exportedAt"`
}

// ExportPlan serializes one plan for sharing. Returns (nil, nil) when the
// plan does not exist.
func (s *Service) ExportPlan(id string) ([]byte, error) {
	plan, err := s.mgr.Plans().GetPlan(id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, nil
	}
	return json.MarshalIndent(planExport{
		Plan:       plan,
		ExportedAt: time.Now().UnixMilli(),
	}, "", "  ")
}

// ImportPlan loads a single-plan export under a fresh id and a dated saved
// name, so an import never overwrites an existing plan's data. The imported
// plan becomes the current one. Returns the id it was stored under.
func (s *Service) ImportPlan(data []byte) (string, error) {
	var env planExport
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("failed to parse plan export: %w", err)
	}
	if env.Plan == nil {
		return "", fmt.Errorf("export contains no plan")
	}

	plan := env.Plan
	plan.ID = "imported_" + uuid.NewString()
	name := fmt.Sprintf("Imported Plan (%s)", time.Now().Format("2006-01-02"))
	return s.SavePlanAs(plan, name)
}
