package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotVersion is bumped when the snapshot layout changes shape.
const SnapshotVersion = 1

// Snapshot is the whole-database interchange form of the relational engine.
// The browser build has no durable file to hand to SQLite, so it persists
// this snapshot to IndexedDB and restores it on the next start. Native
// builds open a real database file and never need it.
type Snapshot struct {
	Version    int                `json:"version"`
	ExportedAt int64              `json:"exportedAt"`
	Plans      []*StudyPlan       `json:"plans"`
	SavedPlans []*SavedPlan       `json:"savedPlans"`
	Sessions   []*StudySession    `json:"sessions"`
	DailyLogs  []DailyLog         `json:"dailyLogs"`
	Questions  []*Question        `json:"questions"`
	Attempts   []*QuestionAttempt `json:"attempts"`
	Settings   []*AppSetting      `json:"settings"`
}

// ExportSnapshot dumps every table. Tables are read one at a time; a caller
// that needs a point-in-time image must quiesce writers first.
func (s *SQLiteStore) ExportSnapshot() (*Snapshot, error) {
	snap := &Snapshot{Version: SnapshotVersion, ExportedAt: time.Now().UnixMilli()}

	var err error
	if snap.Plans, err = s.ListPlans(); err != nil {
		return nil, err
	}
	if snap.SavedPlans, err = s.ListSavedPlans(); err != nil {
		return nil, err
	}
	if snap.Sessions, err = s.ListSessions(); err != nil {
		return nil, err
	}
	if snap.DailyLogs, err = s.ListDailyLogs(); err != nil {
		return nil, err
	}
	if snap.Questions, err = s.ListQuestions(); err != nil {
		return nil, err
	}
	if snap.Attempts, err = s.allAttempts(); err != nil {
		return nil, err
	}
	if snap.Settings, err = s.allSettings(); err != nil {
		return nil, err
	}
	return snap, nil
}

// ExportSnapshotJSON serializes the snapshot form.
func (s *SQLiteStore) ExportSnapshotJSON() ([]byte, error) {
	snap, err := s.ExportSnapshot()
	if err != nil {
		return nil, err
	}
	return json.Marshal(snap)
}

// ImportSnapshot replaces the database contents with the snapshot in one
// transaction. Rows are written verbatim: ids, timestamps and answer
// counters survive the round trip, so plan recency ordering and question
// statistics are identical after a restore.
func (s *SQLiteStore) ImportSnapshot(snap *Snapshot) error {
	if snap.Version == 0 {
		return fmt.Errorf("snapshot has no version")
	}
	if snap.Version > SnapshotVersion {
		return fmt.Errorf("snapshot version %d is newer than supported %d", snap.Version, SnapshotVersion)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{
		"study_subtopics", "study_topics", "study_subjects", "study_plans",
		"saved_plans", "study_sessions", "daily_logs",
		"question_attempts", "questions", "app_settings",
	} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, plan := range snap.Plans {
		if err := insertPlanRaw(tx, plan); err != nil {
			return err
		}
	}
	for _, sp := range snap.SavedPlans {
		if _, err := tx.Exec(`
			INSERT INTO saved_plans (id, name, plan_id, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, sp.ID, sp.Name, sp.PlanID, boolToInt(sp.IsActive), sp.CreatedAt, sp.UpdatedAt); err != nil {
			return fmt.Errorf("failed to restore saved plan %s: %w", sp.ID, err)
		}
	}
	for _, sess := range snap.Sessions {
		if _, err := tx.Exec(`
			INSERT INTO study_sessions (id, subject, topic, duration, start_time, end_time,
				completed, notes, task_id, stage_id, journey_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, sess.ID, sess.Subject, sess.Topic, sess.Duration, sess.StartTime, sess.EndTime,
			boolToInt(sess.Completed), sess.Notes, sess.TaskID, sess.StageID, sess.JourneyID,
			sess.CreatedAt, sess.UpdatedAt); err != nil {
			return fmt.Errorf("failed to restore session %s: %w", sess.ID, err)
		}
	}
	for i := range snap.DailyLogs {
		log := &snap.DailyLogs[i]
		if _, err := tx.Exec(`
			INSERT INTO daily_logs (id, date, subject, minutes, notes)
			VALUES (?, ?, ?, ?, ?)
		`, log.ID, log.Date, log.Subject, log.Minutes, log.Notes); err != nil {
			return fmt.Errorf("failed to restore daily log %s: %w", log.ID, err)
		}
	}
	for _, q := range snap.Questions {
		if err := insertQuestionRaw(tx, q); err != nil {
			return err
		}
	}
	for _, a := range snap.Attempts {
		if _, err := tx.Exec(`
			INSERT INTO question_attempts (id, question_id, battle_session_id, answer,
				is_correct, confidence_level, time_taken, xp_earned, error_type, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, a.QuestionID, a.BattleSessionID, a.Answer, boolToInt(a.IsCorrect),
			a.Confidence, a.TimeTaken, a.XPEarned, a.ErrorType, a.CreatedAt); err != nil {
			return fmt.Errorf("failed to restore attempt %s: %w", a.ID, err)
		}
	}
	for _, st := range snap.Settings {
		if _, err := tx.Exec(`
			INSERT INTO app_settings (key, category, value, description, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, st.Key, st.Category, st.Value, st.Description, st.UpdatedAt); err != nil {
			return fmt.Errorf("failed to restore setting %s/%s: %w", st.Category, st.Key, err)
		}
	}
	return s.commitNotify(tx)
}

// ImportSnapshotJSON parses and restores a serialized snapshot.
func (s *SQLiteStore) ImportSnapshotJSON(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return s.ImportSnapshot(&snap)
}

func insertPlanRaw(tx *sql.Tx, plan *StudyPlan) error {
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
	if _, err := tx.Exec(`
		INSERT INTO study_plans (id, name, total_hours, focus_areas, cycle, weekly,
			exam_date, cycle_start, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, plan.ID, plan.Name, plan.TotalHours, focusAreas, cycle, weekly,
		nullableInt64(plan.ExamDate), nullableInt64(plan.CycleStart),
		plan.CreatedAt, plan.UpdatedAt); err != nil {
		return fmt.Errorf("failed to restore plan %s: %w", plan.ID, err)
	}

	for si := range plan.Subjects {
		subject := &plan.Subjects[si]
		if _, err := tx.Exec(`
			INSERT INTO study_subjects (id, plan_id, name, description, color, priority, estimated_hours, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, subject.ID, plan.ID, subject.Name, subject.Description, subject.Color,
			subject.Priority, subject.EstimatedHours, si); err != nil {
			return fmt.Errorf("failed to restore subject %s: %w", subject.ID, err)
		}
		for ti := range subject.Topics {
			topic := &subject.Topics[ti]
			if _, err := tx.Exec(`
				INSERT INTO study_topics (id, subject_id, name, description, priority, estimated_hours, position)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, topic.ID, subject.ID, topic.Name, topic.Description,
				topic.Priority, topic.EstimatedHours, ti); err != nil {
				return fmt.Errorf("failed to restore topic %s: %w", topic.ID, err)
			}
			for sti := range topic.Subtopics {
				sub := &topic.Subtopics[sti]
				if _, err := tx.Exec(`
					INSERT INTO study_subtopics (id, topic_id, name, description, priority, estimated_hours, position)
					VALUES (?, ?, ?, ?, ?, ?, ?)
				`, sub.ID, topic.ID, sub.Name, sub.Description,
					sub.Priority, sub.EstimatedHours, sti); err != nil {
					return fmt.Errorf("failed to restore subtopic %s: %w", sub.ID, err)
				}
			}
		}
	}
	return nil
}

func insertQuestionRaw(tx *sql.Tx, q *Question) error {
	options, err := marshalJSON(q.Options, "[]")
	if err != nil {
		return err
	}
	tags, err := marshalJSON(q.Tags, "[]")
	if err != nil {
		return err
	}
	images, err := marshalJSON(q.Images, "[]")
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`
		INSERT INTO questions (id, topic_id, title, content, options, correct_answer,
			explanation, difficulty, tags, images, examining_board, position, exam_year,
			institution, question_type, room, times_answered, times_correct, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, q.ID, q.TopicID, q.Title, q.Content, options, q.CorrectAnswer,
		q.Explanation, q.Difficulty, tags, images, q.ExaminingBoard, q.Position,
		q.ExamYear, q.Institution, q.Type, q.Room, q.TimesAnswered, q.TimesCorrect,
		q.CreatedAt, q.UpdatedAt); err != nil {
		return fmt.Errorf("failed to restore question %s: %w", q.ID, err)
	}
	return nil
}

// allSettings returns every setting row across categories.
func (s *SQLiteStore) allSettings() ([]*AppSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT key, category, value, description, updated_at
		FROM app_settings ORDER BY category, key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	var settings []*AppSetting
	for rows.Next() {
		var st AppSetting
		if err := rows.Scan(&st.Key, &st.Category, &st.Value, &st.Description, &st.UpdatedAt); err != nil {
			return nil, err
		}
		settings = append(settings, &st)
	}
	return settings, rows.Err()
}

// allAttempts returns every attempt row, oldest first.
func (s *SQLiteStore) allAttempts() ([]*QuestionAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, question_id, battle_session_id, answer, is_correct,
			confidence_level, time_taken, xp_earned, error_type, created_at
		FROM question_attempts ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*QuestionAttempt
	for rows.Next() {
		var a QuestionAttempt
		var correct int
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.BattleSessionID, &a.Answer,
			&correct, &a.Confidence, &a.TimeTaken, &a.XPEarned, &a.ErrorType, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.IsCorrect = correct != 0
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}
