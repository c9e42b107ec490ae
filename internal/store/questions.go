package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ImportResult reports the outcome of a batch question import. Records are
// isolated: one bad record never aborts the rest of the batch.
type ImportResult struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
	Results []string `json:"results"`
}

// SaveQuestion upserts a question (or flashcard) by id. Missing ids are
// generated and zero-value type/room/difficulty fields get their defaults.
func (s *SQLiteStore) SaveQuestion(q *Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := saveQuestionTx(tx, q); err != nil {
		return err
	}
	return s.commitNotify(tx)
}

func saveQuestionTx(tx *sql.Tx, q *Question) error {
	now := time.Now().UnixMilli()
	if q.ID == "" {
		q.ID = "question_" + uuid.NewString()
	}
	if q.CreatedAt == 0 {
		q.CreatedAt = now
	}
	q.UpdatedAt = now
	if q.Type == "" {
		q.Type = QuestionMultipleChoice
	}
	if q.Room == "" {
		q.Room = RoomTriage
	}
	if q.Difficulty == "" {
		q.Difficulty = DifficultyMedium
	}

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

	_, err = tx.Exec(`
		INSERT INTO questions (id, topic_id, title, content, options, correct_answer,
			explanation, difficulty, tags, images, examining_board, position, exam_year,
			institution, question_type, room, times_answered, times_correct, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			topic_id = excluded.topic_id,
			title = excluded.title,
			content = excluded.content,
			options = excluded.options,
			correct_answer = excluded.correct_answer,
			explanation = excluded.explanation,
			difficulty = excluded.difficulty,
			tags = excluded.tags,
			images = excluded.images,
			examining_board = excluded.examining_board,
			position = excluded.position,
			exam_year = excluded.exam_year,
			institution = excluded.institution,
			question_type = excluded.question_type,
			room = excluded.room,
			updated_at = excluded.updated_at
	`, q.ID, q.TopicID, q.Title, q.Content, options, q.CorrectAnswer,
		q.Explanation, q.Difficulty, tags, images, q.ExaminingBoard, q.Position,
		q.ExamYear, q.Institution, q.Type, q.Room, q.TimesAnswered, q.TimesCorrect,
		q.CreatedAt, q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save question %s: %w", q.ID, err)
	}
	return nil
}

// GetQuestion loads one question by id, (nil, nil) when absent.
func (s *SQLiteStore) GetQuestion(id string) (*Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(questionSelect+` WHERE id = ?`, id)
	q, err := scanQuestion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return q, err
}

// ListQuestionsByTopic returns a topic's questions, newest first.
func (s *SQLiteStore) ListQuestionsByTopic(topicID string) ([]*Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryQuestions(questionSelect+` WHERE topic_id = ? ORDER BY created_at DESC`, topicID)
}

// ListQuestionsByRoom returns every question currently in a repetition room.
func (s *SQLiteStore) ListQuestionsByRoom(room Room) ([]*Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryQuestions(questionSelect+` WHERE room = ? ORDER BY created_at DESC`, string(room))
}

// ListQuestions returns every question, newest first.
func (s *SQLiteStore) ListQuestions() ([]*Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryQuestions(questionSelect + ` ORDER BY created_at DESC`)
}

// DeleteQuestion removes a question and its attempts.
func (s *SQLiteStore) DeleteQuestion(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM question_attempts WHERE question_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete attempts for question %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM questions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete question %s: %w", id, err)
	}
	return s.commitNotify(tx)
}

// MoveQuestionToRoom repositions a question in the repetition rooms.
func (s *SQLiteStore) MoveQuestionToRoom(id string, room Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE questions SET room = ?, updated_at = ? WHERE id = ?`,
		string(room), time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to move question %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("question %s not found", id)
	}
	s.notifyChange()
	return nil
}

// RecordAttempt inserts the attempt and bumps the question's answer counters
// in one transaction.
func (s *SQLiteStore) RecordAttempt(a *QuestionAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = "attempt_" + uuid.NewString()
	}
	if a.CreatedAt == 0 {
		a.CreatedAt = time.Now().UnixMilli()
	}
	if a.Confidence == "" {
		a.Confidence = ConfidenceGuess
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM questions WHERE id = ?`, a.QuestionID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check question %s: %w", a.QuestionID, err)
	}
	if exists == 0 {
		return fmt.Errorf("question %s not found", a.QuestionID)
	}

	if _, err := tx.Exec(`
		INSERT INTO question_attempts (id, question_id, battle_session_id, answer,
			is_correct, confidence_level, time_taken, xp_earned, error_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.QuestionID, a.BattleSessionID, a.Answer, boolToInt(a.IsCorrect),
		a.Confidence, a.TimeTaken, a.XPEarned, a.ErrorType, a.CreatedAt); err != nil {
		return fmt.Errorf("failed to record attempt %s: %w", a.ID, err)
	}

	if _, err := tx.Exec(`
		UPDATE questions SET
			times_answered = times_answered + 1,
			times_correct = times_correct + ?,
			updated_at = ?
		WHERE id = ?
	`, boolToInt(a.IsCorrect), time.Now().UnixMilli(), a.QuestionID); err != nil {
		return fmt.Errorf("failed to update counters for question %s: %w", a.QuestionID, err)
	}
	return s.commitNotify(tx)
}

// TotalXPEarned sums xp over every recorded attempt.
func (s *SQLiteStore) TotalXPEarned() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total sql.NullInt64
	if err := s.db.QueryRow(`SELECT SUM(xp_earned) FROM question_attempts`).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum earned xp: %w", err)
	}
	return int(total.Int64), nil
}

// ListAttempts returns a question's attempts, oldest first.
func (s *SQLiteStore) ListAttempts(questionID string) ([]*QuestionAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, question_id, battle_session_id, answer, is_correct,
			confidence_level, time_taken, xp_earned, error_type, created_at
		FROM question_attempts WHERE question_id = ? ORDER BY created_at
	`, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts for question %s: %w", questionID, err)
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

// ImportQuestions validates and saves a batch. Each record is saved in its
// own transaction so a bad record (missing title, unknown topic) is reported
// and skipped without aborting the batch.
func (s *SQLiteStore) ImportQuestions(questions []*Question) (*ImportResult, error) {
	result := &ImportResult{}

	for _, q := range questions {
		label := q.Title
		if label == "" {
			label = q.ID
		}
		if err := s.validateImport(q); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", label, err))
			continue
		}
		if err := s.SaveQuestion(q); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", label, err))
			continue
		}
		result.Success++
		result.Results = append(result.Results, q.ID)
	}

	s.log.Infow("question import finished",
		"success", result.Success, "failed", result.Failed)
	return result, nil
}

func (s *SQLiteStore) validateImport(q *Question) error {
	if q.Title == "" {
		return fmt.Errorf("missing title")
	}
	if q.TopicID == "" {
		return fmt.Errorf("missing topic id")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM study_topics WHERE id = ?`, q.TopicID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check topic %s: %w", q.TopicID, err)
	}
	if exists == 0 {
		return fmt.Errorf("unknown topic %s", q.TopicID)
	}
	return nil
}

const questionSelect = `
	SELECT id, topic_id, title, content, options, correct_answer, explanation,
		difficulty, tags, images, examining_board, position, exam_year,
		institution, question_type, room, times_answered, times_correct,
		created_at, updated_at
	FROM questions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (*Question, error) {
	var q Question
	var options sql.NullString
	var tags, images string
	if err := row.Scan(&q.ID, &q.TopicID, &q.Title, &q.Content, &options,
		&q.CorrectAnswer, &q.Explanation, &q.Difficulty, &tags, &images,
		&q.ExaminingBoard, &q.Position, &q.ExamYear, &q.Institution,
		&q.Type, &q.Room, &q.TimesAnswered, &q.TimesCorrect,
		&q.CreatedAt, &q.UpdatedAt); err != nil {
		return nil, err
	}
	if options.Valid {
		if err := unmarshalJSON(options.String, &q.Options); err != nil {
			q.Options = nil
		}
	}
	if err := unmarshalJSON(tags, &q.Tags); err != nil {
		q.Tags = nil
	}
	if err := unmarshalJSON(images, &q.Images); err != nil {
		q.Images = nil
	}
	return &q, nil
}

func (s *SQLiteStore) queryQuestions(query string, args ...any) ([]*Question, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer rows.Close()

	var questions []*Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
