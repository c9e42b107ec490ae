// Package store provides the relational persistence engine for StudyQuest.
// SQLiteStore is the primary implementation, using the ncruces/go-sqlite3
// database/sql driver. The document engine implements the same PlanStore
// interface through an adapter so data can move between engines.
package store

// Timestamps are unix milliseconds throughout, in both engines and in the
// JSON export contract.

// StudyPlan is the root study-planning entity. Plans are mutated wholesale:
// every save replaces the plan row and all of its subject/topic/subtopic
// rows. There is no partial patch at the storage layer.
type StudyPlan struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Subjects   []Subject    `json:"subjects"`
	TotalHours float64      `json:"totalHours"`
	FocusAreas []string     `json:"focusAreas"`
	Cycle      []string     `json:"cycle"`
	Weekly     []WeeklyGoal `json:"weekly"`
	ExamDate   *int64       `json:"examDate,omitempty"`
	CycleStart *int64       `json:"cycleStart,omitempty"`
	CreatedAt  int64        `json:"createdAt"`
	UpdatedAt  int64        `json:"updatedAt"`
}

// WeeklyGoal is the planned study load for one weekday (0 = Sunday).
type WeeklyGoal struct {
	Weekday int     `json:"weekday"`
	Hours   float64 `json:"hours"`
}

// Subject belongs to exactly one plan and owns its topics.
type Subject struct {
	ID             string  `json:"id"`
	PlanID         string  `json:"planId"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	Color          string  `json:"color,omitempty"`
	Priority       int     `json:"priority"`
	EstimatedHours float64 `json:"estimatedHours"`
	Topics         []Topic `json:"topics"`
}

// Topic belongs to a subject.
type Topic struct {
	ID             string     `json:"id"`
	SubjectID      string     `json:"subjectId"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Priority       int        `json:"priority"`
	EstimatedHours float64    `json:"estimatedHours"`
	Subtopics      []Subtopic `json:"subtopics"`
}

// Subtopic belongs to a topic.
type Subtopic struct {
	ID             string  `json:"id"`
	TopicID        string  `json:"topicId"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	Priority       int     `json:"priority"`
	EstimatedHours float64 `json:"estimatedHours"`
}

// SavedPlan is a pointer row naming a plan. Exactly one row should have
// IsActive true at any time; SaveActivePlan enforces this by flipping all
// rows inactive before upserting the active one.
type SavedPlan struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PlanID    string `json:"planId"`
	IsActive  bool   `json:"isActive"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// StudySession is an append-only record of one study sitting. The optional
// task/stage/journey links tie a session to document-engine entities when
// the session was started from a task.
type StudySession struct {
	ID        string `json:"id"`
	Subject   string `json:"subject"`
	Topic     string `json:"topic,omitempty"`
	Duration  int    `json:"duration"` // minutes
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
	Completed bool   `json:"completed"`
	Notes     string `json:"notes,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
	StageID   string `json:"stageId,omitempty"`
	JourneyID string `json:"journeyId,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// DailyLog aggregates minutes studied per subject per calendar day.
// Logs are saved wholesale, mirroring the plan save model.
type DailyLog struct {
	ID      string `json:"id"`
	Date    string `json:"date"` // YYYY-MM-DD
	Subject string `json:"subject"`
	Minutes int    `json:"minutes"`
	Notes   string `json:"notes,omitempty"`
}

// Difficulty of a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Room places a question's topic in the review arena. New questions always
// start in triage.
type Room string

const (
	RoomTriage Room = "triage"
	RoomRed    Room = "red"
	RoomYellow Room = "yellow"
	RoomGreen  Room = "green"
)

// QuestionType discriminates rows in the shared questions table.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionFlashcard      QuestionType = "flashcard"
)

// Question is a quiz question. A flashcard is a question row with empty
// content and Type QuestionFlashcard: the prompt lives in Title and the
// back of the card in CorrectAnswer.
type Question struct {
	ID             string           `json:"id"`
	TopicID        string           `json:"topicId"`
	Title          string           `json:"title"`
	Content        string           `json:"content"`
	Options        []QuestionOption `json:"options,omitempty"`
	CorrectAnswer  string           `json:"correctAnswer"`
	Explanation    string           `json:"explanation,omitempty"`
	Difficulty     Difficulty       `json:"difficulty"`
	Tags           []string         `json:"tags"`
	Images         []string         `json:"images"`
	ExaminingBoard string           `json:"examiningBoard,omitempty"`
	Position       string           `json:"position,omitempty"`
	ExamYear       string           `json:"examYear,omitempty"`
	Institution    string           `json:"institution,omitempty"`
	Type           QuestionType     `json:"questionType"`
	Room           Room             `json:"room"`
	TimesAnswered  int              `json:"timesAnswered"`
	TimesCorrect   int              `json:"timesCorrect"`
	CreatedAt      int64            `json:"createdAt"`
	UpdatedAt      int64            `json:"updatedAt"`
}

// QuestionOption is one multiple-choice alternative.
type QuestionOption struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Content   string `json:"content"`
	IsCorrect bool   `json:"isCorrect"`
}

// ConfidenceLevel reported by the student when answering.
type ConfidenceLevel string

const (
	ConfidenceSure     ConfidenceLevel = "sure"
	ConfidenceDoubtful ConfidenceLevel = "doubtful"
	ConfidenceGuess    ConfidenceLevel = "guess"
)

// QuestionAttempt records a single answer to a question.
type QuestionAttempt struct {
	ID              string          `json:"id"`
	QuestionID      string          `json:"questionId"`
	BattleSessionID string          `json:"battleSessionId,omitempty"`
	Answer          string          `json:"answer"`
	IsCorrect       bool            `json:"isCorrect"`
	Confidence      ConfidenceLevel `json:"confidenceLevel"`
	TimeTaken       int             `json:"timeTaken,omitempty"` // seconds
	XPEarned        int             `json:"xpEarned"`
	ErrorType       string          `json:"errorType,omitempty"`
	CreatedAt       int64           `json:"createdAt"`
}

// AppSetting is one typed key/value preference row, scoped by category.
type AppSetting struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// SettingsStore is the typed settings contract. A missing key is normal
// control flow, reported through the bool return, never an error.
type SettingsStore interface {
	SaveSetting(key, value, category, description string) error
	LoadSetting(key, category string) (string, bool, error)
	DeleteSetting(key, category string) error
	ListSettings(category string) ([]*AppSetting, error)
}

// SessionStore is the study-session contract. Sessions always live on the
// relational engine; the backup layer replays through this interface.
type SessionStore interface {
	SaveSession(session *StudySession) error
	ListSessions() ([]*StudySession, error)
	DeleteSession(id string) error
}

// PlanStore is the engine-agnostic repository for the plan-owning entities.
// SQLiteStore and the document-engine adapter both implement it, so an
// engine migration reads through one adapter and writes through the other.
// Study sessions stay on the relational engine regardless of the active
// engine and are not part of this interface.
type PlanStore interface {
	SavePlan(plan *StudyPlan) error
	GetPlan(id string) (*StudyPlan, error)
	DeletePlan(id string) (bool, error)
	ListPlans() ([]*StudyPlan, error)
	MostRecentPlan() (*StudyPlan, error)

	// SaveActivePlan upserts the plan, writes the active_plan_id setting
	// and flips the saved-plan pointer rows in one logical operation.
	SaveActivePlan(plan *StudyPlan) error
	SaveNamedPlan(plan *StudyPlan, name string) (string, error)
	ActiveSavedPlan() (*SavedPlan, error)
	ListSavedPlans() ([]*SavedPlan, error)
	DeleteSavedPlan(id string) error

	SettingsStore

	Close() error
}
