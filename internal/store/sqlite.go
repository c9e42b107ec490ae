package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"
)

// SQLiteStore is the relational engine.
// Thread-safe; the connection pool is pinned to a single connection so an
// in-memory database behaves like one database.
type SQLiteStore struct {
	mu  sync.RWMutex
	db  *sql.DB
	log *zap.SugaredLogger

	// onChange is invoked after every committed mutation. The snapshot
	// persister uses it to schedule a debounced flush.
	onChange func()
}

// schemaVersion is the current PRAGMA user_version. Schema changes are
// applied once at Open through the upgrades table, never ad hoc at write
// time.
const schemaVersion = 3

// schema creates the full current layout for a fresh database.
const schema = `
CREATE TABLE IF NOT EXISTS study_plans (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    total_hours REAL NOT NULL DEFAULT 0,
    focus_areas TEXT NOT NULL DEFAULT '[]',
    cycle TEXT NOT NULL DEFAULT '[]',
    weekly TEXT NOT NULL DEFAULT '[]',
    exam_date INTEGER,
    cycle_start INTEGER,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plans_updated ON study_plans(updated_at);

-- Subjects/topics/subtopics are replaced wholesale with their plan.
-- No foreign keys: referential integrity is managed at application level.
CREATE TABLE IF NOT EXISTS study_subjects (
    id TEXT PRIMARY KEY,
    plan_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    color TEXT NOT NULL DEFAULT '',
    priority INTEGER NOT NULL DEFAULT 1,
    estimated_hours REAL NOT NULL DEFAULT 0,
    position INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_subjects_plan ON study_subjects(plan_id);

CREATE TABLE IF NOT EXISTS study_topics (
    id TEXT PRIMARY KEY,
    subject_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    priority INTEGER NOT NULL DEFAULT 1,
    estimated_hours REAL NOT NULL DEFAULT 0,
    position INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_topics_subject ON study_topics(subject_id);

CREATE TABLE IF NOT EXISTS study_subtopics (
    id TEXT PRIMARY KEY,
    topic_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    priority INTEGER NOT NULL DEFAULT 1,
    estimated_hours REAL NOT NULL DEFAULT 0,
    position INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_subtopics_topic ON study_subtopics(topic_id);

CREATE TABLE IF NOT EXISTS saved_plans (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    plan_id TEXT NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS study_sessions (
    id TEXT PRIMARY KEY,
    subject TEXT NOT NULL,
    topic TEXT NOT NULL DEFAULT '',
    duration INTEGER NOT NULL DEFAULT 0,
    start_time INTEGER NOT NULL,
    end_time INTEGER NOT NULL DEFAULT 0,
    completed INTEGER NOT NULL DEFAULT 0,
    notes TEXT NOT NULL DEFAULT '',
    task_id TEXT NOT NULL DEFAULT '',
    stage_id TEXT NOT NULL DEFAULT '',
    journey_id TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_start ON study_sessions(start_time);

CREATE TABLE IF NOT EXISTS daily_logs (
    id TEXT PRIMARY KEY,
    date TEXT NOT NULL,
    subject TEXT NOT NULL DEFAULT '',
    minutes INTEGER NOT NULL DEFAULT 0,
    notes TEXT NOT NULL DEFAULT ''
);

-- Flashcards share this table: question_type = 'flashcard', empty content.
CREATE TABLE IF NOT EXISTS questions (
    id TEXT PRIMARY KEY,
    topic_id TEXT NOT NULL,
    title TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    options TEXT,
    correct_answer TEXT NOT NULL DEFAULT '',
    explanation TEXT NOT NULL DEFAULT '',
    difficulty TEXT NOT NULL DEFAULT 'medium',
    tags TEXT NOT NULL DEFAULT '[]',
    images TEXT NOT NULL DEFAULT '[]',
    examining_board TEXT NOT NULL DEFAULT '',
    position TEXT NOT NULL DEFAULT '',
    exam_year TEXT NOT NULL DEFAULT '',
    institution TEXT NOT NULL DEFAULT '',
    question_type TEXT NOT NULL DEFAULT 'multiple_choice',
    room TEXT NOT NULL DEFAULT 'triage',
    times_answered INTEGER NOT NULL DEFAULT 0,
    times_correct INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_questions_topic ON questions(topic_id);
CREATE INDEX IF NOT EXISTS idx_questions_room ON questions(room);

CREATE TABLE IF NOT EXISTS question_attempts (
    id TEXT PRIMARY KEY,
    question_id TEXT NOT NULL,
    battle_session_id TEXT NOT NULL DEFAULT '',
    answer TEXT NOT NULL DEFAULT '',
    is_correct INTEGER NOT NULL DEFAULT 0,
    confidence_level TEXT NOT NULL DEFAULT 'guess',
    time_taken INTEGER NOT NULL DEFAULT 0,
    xp_earned INTEGER NOT NULL DEFAULT 0,
    error_type TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attempts_question ON question_attempts(question_id);

CREATE TABLE IF NOT EXISTS app_settings (
    key TEXT NOT NULL,
    category TEXT NOT NULL,
    value TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (key, category)
);
`

// upgrades maps a from-version to the statements that bring the database to
// from-version+1. Databases created before the versioning scheme report
// user_version 0 and are treated as version 1.
var upgrades = map[int][]string{
	1: {
		`ALTER TABLE questions ADD COLUMN images TEXT NOT NULL DEFAULT '[]'`,
		`ALTER TABLE questions ADD COLUMN examining_board TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE questions ADD COLUMN position TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE questions ADD COLUMN exam_year TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE questions ADD COLUMN institution TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE questions ADD COLUMN question_type TEXT NOT NULL DEFAULT 'multiple_choice'`,
	},
	2: {
		`ALTER TABLE study_sessions ADD COLUMN task_id TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE study_sessions ADD COLUMN stage_id TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE study_sessions ADD COLUMN journey_id TEXT NOT NULL DEFAULT ''`,
	},
}

// Open creates a store on the given data source name. Use ":memory:" for an
// ephemeral database or a file path for a durable one.
func Open(dsn string, log *zap.SugaredLogger) (*SQLiteStore, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: in-memory databases are per-connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, log: log}
	if err := s.migrateSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrateSchema() error {
	var version int
	if err := s.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if version == 0 {
		var name sql.NullString
		err := s.db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'study_plans'`,
		).Scan(&name)
		switch {
		case err == sql.ErrNoRows:
			// Fresh database: create the full current layout.
			if _, err := s.db.Exec(schema); err != nil {
				return fmt.Errorf("failed to create schema: %w", err)
			}
			return s.setSchemaVersion(schemaVersion)
		case err != nil:
			return fmt.Errorf("failed to inspect schema: %w", err)
		default:
			// Pre-versioning database.
			version = 1
		}
	}

	for version < schemaVersion {
		stmts, ok := upgrades[version]
		if !ok {
			return fmt.Errorf("no upgrade path from schema version %d", version)
		}
		s.log.Infow("upgrading schema", "from", version, "to", version+1)
		for _, stmt := range stmts {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("schema upgrade %d failed: %w", version+1, err)
			}
		}
		version++
		if err := s.setSchemaVersion(version); err != nil {
			return err
		}
	}
	// Late-added tables are created unconditionally; the schema uses
	// IF NOT EXISTS throughout.
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) setSchemaVersion(v int) error {
	if _, err := s.db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, v)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// SetOnChange installs the committed-mutation hook. Must be called before
// the store is shared.
func (s *SQLiteStore) SetOnChange(fn func()) {
	s.onChange = fn
}

func (s *SQLiteStore) notifyChange() {
	if s.onChange != nil {
		s.onChange()
	}
}

// commitNotify commits the transaction and fires the mutation hook.
func (s *SQLiteStore) commitNotify(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return err
	}
	s.notifyChange()
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// =============================================================================
// Study plan CRUD
// =============================================================================

// SavePlan replaces the plan and all of its subject/topic/subtopic rows in
// one transaction. Missing ids are generated; UpdatedAt is bumped.
func (s *SQLiteStore) SavePlan(plan *StudyPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := savePlanTx(tx, plan); err != nil {
		return err
	}
	return s.commitNotify(tx)
}

func savePlanTx(tx *sql.Tx, plan *StudyPlan) error {
	now := time.Now().UnixMilli()
	if plan.ID == "" {
		plan.ID = "plan_" + uuid.NewString()
	}
	if plan.CreatedAt == 0 {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now

	focusAreas, err := marshalJSON(plan.FocusAreas, "[]")
	if err != nil {
		return err
	}
	cycle, err := marshalJSON(plan.Cycle, "[]")
	if err != nil {
		return err
	}
	weekly, err := marshalJSON(plan.Weekly, "[]")
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO study_plans (id, name, total_hours, focus_areas, cycle, weekly,
			exam_date, cycle_start, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			total_hours = excluded.total_hours,
			focus_areas = excluded.focus_areas,
			cycle = excluded.cycle,
			weekly = excluded.weekly,
			exam_date = excluded.exam_date,
			cycle_start = excluded.cycle_start,
			updated_at = excluded.updated_at
	`, plan.ID, plan.Name, plan.TotalHours, focusAreas, cycle, weekly,
		nullableInt64(plan.ExamDate), nullableInt64(plan.CycleStart), plan.CreatedAt, plan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save plan %s: %w", plan.ID, err)
	}

	// Wholesale replace of the subject tree.
	if _, err := tx.Exec(`
		DELETE FROM study_subtopics WHERE topic_id IN (
			SELECT t.id FROM study_topics t
			JOIN study_subjects s ON t.subject_id = s.id
			WHERE s.plan_id = ?)
	`, plan.ID); err != nil {
		return fmt.Errorf("failed to clear subtopics for plan %s: %w", plan.ID, err)
	}
	if _, err := tx.Exec(`
		DELETE FROM study_topics WHERE subject_id IN (
			SELECT id FROM study_subjects WHERE plan_id = ?)
	`, plan.ID); err != nil {
		return fmt.Errorf("failed to clear topics for plan %s: %w", plan.ID, err)
	}
	if _, err := tx.Exec(`DELETE FROM study_subjects WHERE plan_id = ?`, plan.ID); err != nil {
		return fmt.Errorf("failed to clear subjects for plan %s: %w", plan.ID, err)
	}

	for si := range plan.Subjects {
		subject := &plan.Subjects[si]
		if subject.ID == "" {
			subject.ID = "subject_" + uuid.NewString()
		}
		subject.PlanID = plan.ID
		if _, err := tx.Exec(`
			INSERT INTO study_subjects (id, plan_id, name, description, color, priority, estimated_hours, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, subject.ID, plan.ID, subject.Name, subject.Description, subject.Color,
			subject.Priority, subject.EstimatedHours, si); err != nil {
			return fmt.Errorf("failed to save subject %s: %w", subject.ID, err)
		}

		for ti := range subject.Topics {
			topic := &subject.Topics[ti]
			if topic.ID == "" {
				topic.ID = "topic_" + uuid.NewString()
			}
			topic.SubjectID = subject.ID
			if _, err := tx.Exec(`
				INSERT INTO study_topics (id, subject_id, name, description, priority, estimated_hours, position)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, topic.ID, subject.ID, topic.Name, topic.Description,
				topic.Priority, topic.EstimatedHours, ti); err != nil {
				return fmt.Errorf("failed to save topic %s: %w", topic.ID, err)
			}

			for sti := range topic.Subtopics {
				sub := &topic.Subtopics[sti]
				if sub.ID == "" {
					sub.ID = "subtopic_" + uuid.NewString()
				}
				sub.TopicID = topic.ID
				if _, err := tx.Exec(`
					INSERT INTO study_subtopics (id, topic_id, name, description, priority, estimated_hours, position)
					VALUES (?, ?, ?, ?, ?, ?, ?)
				`, sub.ID, topic.ID, sub.Name, sub.Description,
					sub.Priority, sub.EstimatedHours, sti); err != nil {
					return fmt.Errorf("failed to save subtopic %s: %w", sub.ID, err)
				}
			}
		}
	}
	return nil
}

// GetPlan loads a plan with its full subject tree. Returns (nil, nil) when
// the plan does not exist.
func (s *SQLiteStore) GetPlan(id string) (*StudyPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getPlanLocked(id)
}

func (s *SQLiteStore) getPlanLocked(id string) (*StudyPlan, error) {
	var plan StudyPlan
	var focusAreas, cycle, weekly string
	var examDate, cycleStart sql.NullInt64

	err := s.db.QueryRow(`
		SELECT id, name, total_hours, focus_areas, cycle, weekly,
			exam_date, cycle_start, created_at, updated_at
		FROM study_plans WHERE id = ?
	`, id).Scan(&plan.ID, &plan.Name, &plan.TotalHours, &focusAreas, &cycle, &weekly,
		&examDate, &cycleStart, &plan.CreatedAt, &plan.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan %s: %w", id, err)
	}

	if err := unmarshalJSON(focusAreas, &plan.FocusAreas); err != nil {
		plan.FocusAreas = nil
	}
	if err := unmarshalJSON(cycle, &plan.Cycle); err != nil {
		plan.Cycle = nil
	}
	if err := unmarshalJSON(weekly, &plan.Weekly); err != nil {
		plan.Weekly = nil
	}
	if examDate.Valid {
		plan.ExamDate = &examDate.Int64
	}
	if cycleStart.Valid {
		plan.CycleStart = &cycleStart.Int64
	}

	subjects, err := s.loadSubjects(plan.ID)
	if err != nil {
		return nil, err
	}
	plan.Subjects = subjects
	return &plan, nil
}

func (s *SQLiteStore) loadSubjects(planID string) ([]Subject, error) {
	rows, err := s.db.Query(`
		SELECT id, plan_id, name, description, color, priority, estimated_hours
		FROM study_subjects WHERE plan_id = ? ORDER BY position
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subjects for plan %s: %w", planID, err)
	}
	defer rows.Close()

	var subjects []Subject
	for rows.Next() {
		var subject Subject
		if err := rows.Scan(&subject.ID, &subject.PlanID, &subject.Name, &subject.Description,
			&subject.Color, &subject.Priority, &subject.EstimatedHours); err != nil {
			return nil, err
		}
		subjects = append(subjects, subject)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range subjects {
		topics, err := s.loadTopics(subjects[i].ID)
		if err != nil {
			return nil, err
		}
		subjects[i].Topics = topics
	}
	return subjects, nil
}

func (s *SQLiteStore) loadTopics(subjectID string) ([]Topic, error) {
	rows, err := s.db.Query(`
		SELECT id, subject_id, name, description, priority, estimated_hours
		FROM study_topics WHERE subject_id = ? ORDER BY position
	`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load topics for subject %s: %w", subjectID, err)
	}
	defer rows.Close()

	var topics []Topic
	for rows.Next() {
		var topic Topic
		if err := rows.Scan(&topic.ID, &topic.SubjectID, &topic.Name, &topic.Description,
			&topic.Priority, &topic.EstimatedHours); err != nil {
			return nil, err
		}
		topics = append(topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range topics {
		subs, err := s.loadSubtopics(topics[i].ID)
		if err != nil {
			return nil, err
		}
		topics[i].Subtopics = subs
	}
	return topics, nil
}

func (s *SQLiteStore) loadSubtopics(topicID string) ([]Subtopic, error) {
	rows, err := s.db.Query(`
		SELECT id, topic_id, name, description, priority, estimated_hours
		FROM study_subtopics WHERE topic_id = ? ORDER BY position
	`, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subtopics for topic %s: %w", topicID, err)
	}
	defer rows.Close()

	var subs []Subtopic
	for rows.Next() {
		var sub Subtopic
		if err := rows.Scan(&sub.ID, &sub.TopicID, &sub.Name, &sub.Description,
			&sub.Priority, &sub.EstimatedHours); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// ListPlans returns all plans, most recently updated first.
func (s *SQLiteStore) ListPlans() ([]*StudyPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id FROM study_plans ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	plans := make([]*StudyPlan, 0, len(ids))
	for _, id := range ids {
		plan, err := s.getPlanLocked(id)
		if err != nil {
			return nil, err
		}
		if plan != nil {
			plans = append(plans, plan)
		}
	}
	return plans, nil
}

// MostRecentPlan returns the most recently updated plan, or (nil, nil) when
// the table is empty.
func (s *SQLiteStore) MostRecentPlan() (*StudyPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id string
	err := s.db.QueryRow(`SELECT id FROM study_plans ORDER BY updated_at DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find most recent plan: %w", err)
	}
	return s.getPlanLocked(id)
}

// DeletePlan removes a plan, its subject tree and any saved-plan pointers to
// it. Reports whether a plan row was deleted.
func (s *SQLiteStore) DeletePlan(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM study_subtopics WHERE topic_id IN (
			SELECT t.id FROM study_topics t
			JOIN study_subjects s ON t.subject_id = s.id
			WHERE s.plan_id = ?)
	`, id); err != nil {
		return false, fmt.Errorf("failed to delete subtopics for plan %s: %w", id, err)
	}
	if _, err := tx.Exec(`
		DELETE FROM study_topics WHERE subject_id IN (
			SELECT id FROM study_subjects WHERE plan_id = ?)
	`, id); err != nil {
		return false, fmt.Errorf("failed to delete topics for plan %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM study_subjects WHERE plan_id = ?`, id); err != nil {
		return false, fmt.Errorf("failed to delete subjects for plan %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM saved_plans WHERE plan_id = ?`, id); err != nil {
		return false, fmt.Errorf("failed to delete saved plans for plan %s: %w", id, err)
	}
	res, err := tx.Exec(`DELETE FROM study_plans WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete plan %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return false, err
	}
	if n > 0 {
		s.notifyChange()
	}
	return n > 0, nil
}

// =============================================================================
// Active / saved plan pointers
// =============================================================================

// DefaultActivePlanID is the stable id used when an unnamed plan is saved as
// the active plan. A stable id keeps repeated saves from creating duplicates.
const DefaultActivePlanID = "active_plan"

// SaveActivePlan persists the plan and makes it the current one. In a single
// transaction it (a) upserts the plan, (b) writes the active_plan_id
// setting, and (c) flips every saved-plan pointer inactive before upserting
// this plan's pointer active. After a successful call, all three resolution
// strategies agree.
func (s *SQLiteStore) SaveActivePlan(plan *StudyPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if plan.ID == "" {
		plan.ID = DefaultActivePlanID
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := savePlanTx(tx, plan); err != nil {
		return err
	}
	if err := saveSettingTx(tx, SettingActivePlanID, plan.ID, CategoryGeneral, "id of the current active plan"); err != nil {
		return err
	}
	if err := activateSavedPlanTx(tx, plan.ID, "Current Plan"); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.notifyChange()
	s.log.Debugw("active plan saved", "plan_id", plan.ID, "subjects", len(plan.Subjects))
	return nil
}

func activateSavedPlanTx(tx *sql.Tx, planID, name string) error {
	now := time.Now().UnixMilli()
	if _, err := tx.Exec(`UPDATE saved_plans SET is_active = 0, updated_at = ?`, now); err != nil {
		return fmt.Errorf("failed to deactivate saved plans: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO saved_plans (id, name, plan_id, is_active, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			plan_id = excluded.plan_id,
			is_active = 1,
			updated_at = excluded.updated_at
	`, planID, name, planID, now, now); err != nil {
		return fmt.Errorf("failed to activate saved plan %s: %w", planID, err)
	}
	return nil
}

// SaveNamedPlan stores the plan under a user-visible name and points the
// active_plan_id setting at it. The pointer row is keyed by the plan id, so
// renaming an existing plan updates in place.
func (s *SQLiteStore) SaveNamedPlan(plan *StudyPlan, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if plan.ID == "" {
		plan.ID = "plan_" + uuid.NewString()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := savePlanTx(tx, plan); err != nil {
		return "", err
	}
	now := time.Now().UnixMilli()
	if _, err := tx.Exec(`
		INSERT INTO saved_plans (id, name, plan_id, is_active, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			plan_id = excluded.plan_id,
			updated_at = excluded.updated_at
	`, plan.ID, name, plan.ID, now, now); err != nil {
		return "", fmt.Errorf("failed to save named plan %s: %w", plan.ID, err)
	}
	if err := saveSettingTx(tx, SettingActivePlanID, plan.ID, CategoryGeneral, "id of the current active plan"); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	s.notifyChange()
	return plan.ID, nil
}

// ActiveSavedPlan returns the pointer row with is_active set, or (nil, nil).
func (s *SQLiteStore) ActiveSavedPlan() (*SavedPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sp SavedPlan
	var active int
	err := s.db.QueryRow(`
		SELECT id, name, plan_id, is_active, created_at, updated_at
		FROM saved_plans WHERE is_active = 1 LIMIT 1
	`).Scan(&sp.ID, &sp.Name, &sp.PlanID, &active, &sp.CreatedAt, &sp.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active saved plan: %w", err)
	}
	sp.IsActive = active != 0
	return &sp, nil
}

// ListSavedPlans returns all pointer rows, most recently updated first.
func (s *SQLiteStore) ListSavedPlans() ([]*SavedPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, name, plan_id, is_active, created_at, updated_at
		FROM saved_plans ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved plans: %w", err)
	}
	defer rows.Close()

	var saved []*SavedPlan
	for rows.Next() {
		var sp SavedPlan
		var active int
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.PlanID, &active, &sp.CreatedAt, &sp.UpdatedAt); err != nil {
			return nil, err
		}
		sp.IsActive = active != 0
		saved = append(saved, &sp)
	}
	return saved, rows.Err()
}

// ActivateSavedPlanPointer flips all pointer rows inactive and upserts an
// active pointer for the given plan, without re-saving the plan body.
func (s *SQLiteStore) ActivateSavedPlanPointer(planID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := activateSavedPlanTx(tx, planID, name); err != nil {
		return err
	}
	return s.commitNotify(tx)
}

// PruneOldPlans deletes all but the keep most recently updated plans. The
// protected plan always survives. Returns the number of plans removed.
func (s *SQLiteStore) PruneOldPlans(keep int, protectID string) (int, error) {
	s.mu.RLock()
	rows, err := s.db.Query(`SELECT id FROM study_plans ORDER BY updated_at DESC`)
	if err != nil {
		s.mu.RUnlock()
		return 0, fmt.Errorf("failed to list plans for pruning: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			s.mu.RUnlock()
			return 0, err
		}
		ids = append(ids, id)
	}
	err = rows.Err()
	rows.Close()
	s.mu.RUnlock()
	if err != nil {
		return 0, err
	}

	pruned := 0
	for i, id := range ids {
		if i < keep || id == protectID {
			continue
		}
		deleted, err := s.DeletePlan(id)
		if err != nil {
			return pruned, err
		}
		if deleted {
			pruned++
		}
	}
	return pruned, nil
}

// DeleteSavedPlan removes a pointer row without touching the plan itself.
func (s *SQLiteStore) DeleteSavedPlan(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM saved_plans WHERE id = ?`, id); err != nil {
		return err
	}
	s.notifyChange()
	return nil
}

// =============================================================================
// Study sessions
// =============================================================================

// SaveSession upserts one session by id. Sessions are append-only from the
// caller's perspective; the upsert keeps backup replay idempotent.
func (s *SQLiteStore) SaveSession(session *StudySession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if session.ID == "" {
		session.ID = "session_" + uuid.NewString()
	}
	if session.CreatedAt == 0 {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO study_sessions (id, subject, topic, duration, start_time, end_time,
			completed, notes, task_id, stage_id, journey_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject = excluded.subject,
			topic = excluded.topic,
			duration = excluded.duration,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			completed = excluded.completed,
			notes = excluded.notes,
			task_id = excluded.task_id,
			stage_id = excluded.stage_id,
			journey_id = excluded.journey_id,
			updated_at = excluded.updated_at
	`, session.ID, session.Subject, session.Topic, session.Duration, session.StartTime,
		session.EndTime, boolToInt(session.Completed), session.Notes,
		session.TaskID, session.StageID, session.JourneyID, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	s.notifyChange()
	return nil
}

// ListSessions returns all sessions ordered by start time.
func (s *SQLiteStore) ListSessions() ([]*StudySession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, subject, topic, duration, start_time, end_time, completed,
			notes, task_id, stage_id, journey_id, created_at, updated_at
		FROM study_sessions ORDER BY start_time
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*StudySession
	for rows.Next() {
		var sess StudySession
		var completed int
		if err := rows.Scan(&sess.ID, &sess.Subject, &sess.Topic, &sess.Duration,
			&sess.StartTime, &sess.EndTime, &completed, &sess.Notes,
			&sess.TaskID, &sess.StageID, &sess.JourneyID, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		sess.Completed = completed != 0
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// DeleteSession removes one session by id.
func (s *SQLiteStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM study_sessions WHERE id = ?`, id); err != nil {
		return err
	}
	s.notifyChange()
	return nil
}

// =============================================================================
// Daily logs
// =============================================================================

// SaveDailyLogs replaces the whole table, mirroring the wholesale plan save.
func (s *SQLiteStore) SaveDailyLogs(logs []DailyLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM daily_logs`); err != nil {
		return fmt.Errorf("failed to clear daily logs: %w", err)
	}
	for i := range logs {
		log := &logs[i]
		if log.ID == "" {
			log.ID = "log_" + uuid.NewString()
		}
		if _, err := tx.Exec(`
			INSERT INTO daily_logs (id, date, subject, minutes, notes)
			VALUES (?, ?, ?, ?, ?)
		`, log.ID, log.Date, log.Subject, log.Minutes, log.Notes); err != nil {
			return fmt.Errorf("failed to save daily log %s: %w", log.ID, err)
		}
	}
	return s.commitNotify(tx)
}

// ListDailyLogs returns all logs ordered by date.
func (s *SQLiteStore) ListDailyLogs() ([]DailyLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, date, subject, minutes, notes FROM daily_logs ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily logs: %w", err)
	}
	defer rows.Close()

	var logs []DailyLog
	for rows.Next() {
		var log DailyLog
		if err := rows.Scan(&log.ID, &log.Date, &log.Subject, &log.Minutes, &log.Notes); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// =============================================================================
// Helpers
// =============================================================================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func marshalJSON(v any, empty string) (string, error) {
	if v == nil {
		return empty, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal: %w", err)
	}
	return string(data), nil
}

func unmarshalJSON(data string, v any) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}

// Compile-time interface check
var _ PlanStore = (*SQLiteStore)(nil)
