// Package docstore implements the document engine: typed in-memory tables
// with snapshot transactions, live change notification and debounced JSON
// persistence to a hackpadfs filesystem.
package docstore

// JourneyStatus tracks a journey through its lifecycle. Exactly one journey
// is active at a time when the document engine drives plan resolution.
type JourneyStatus string

const (
	JourneyActive    JourneyStatus = "active"
	JourneyCompleted JourneyStatus = "completed"
	JourneyPaused    JourneyStatus = "paused"
	JourneyArchived  JourneyStatus = "archived"
)

// Journey is the document-engine counterpart of a study plan. LegacyID
// carries the relational plan id across the migration so the two engines can
// refer to the same plan.
type Journey struct {
	ID             int64          `json:"id"`
	LegacyID       string         `json:"legacyId,omitempty"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	ExamDate       *int64         `json:"examDate,omitempty"`
	TotalHours     float64        `json:"totalHours"`
	CompletedHours float64        `json:"completedHours"`
	FocusAreas     []string       `json:"focusAreas"`
	Status         JourneyStatus  `json:"status"`
	Stages         []Stage        `json:"stages"`
	Meta           map[string]any `json:"meta,omitempty"`
	CreatedAt      int64          `json:"createdAt"`
	UpdatedAt      int64          `json:"updatedAt"`
}

type StageStatus string

const (
	StageNotStarted StageStatus = "not_started"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
)

// Stage is one leg of a journey. Canonical ids follow the pattern
// stage--{journeyId}--{index}; legacy ids carried over from the relational
// engine are normalized by the post-init migration.
type Stage struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Description    string      `json:"description,omitempty"`
	Priority       int         `json:"priority"`
	EstimatedHours float64     `json:"estimatedHours"`
	CompletedHours float64     `json:"completedHours"`
	Status         StageStatus `json:"status"`
	Order          int         `json:"order"`
	Tasks          []Task      `json:"tasks"`
	CreatedAt      int64       `json:"createdAt"`
	UpdatedAt      int64       `json:"updatedAt"`
}

// Task lives embedded in its stage and mirrored in the flat tasks table for
// querying. The sync migration keeps the two in step; ids are deterministic
// (task--{stageId}--{index}) so re-running the sync never duplicates rows.
type Task struct {
	ID               string `json:"id"`
	StageID          string `json:"stageId"`
	JourneyID        string `json:"journeyId"`
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	Completed        bool   `json:"completed"`
	CompletedAt      *int64 `json:"completedAt,omitempty"`
	Priority         int    `json:"priority"`
	EstimatedMinutes int    `json:"estimatedMinutes"`
	ActualMinutes    int    `json:"actualMinutes"`
	StartDate        *int64 `json:"startDate,omitempty"`
	DueDate          *int64 `json:"dueDate,omitempty"`
	CreatedAt        int64  `json:"createdAt"`
	UpdatedAt        int64  `json:"updatedAt"`
}

type HabitType string

const (
	HabitDailyReview HabitType = "daily_review"
	HabitPomodoro    HabitType = "pomodoro"
	HabitFlashcards  HabitType = "flashcards"
	HabitCustom      HabitType = "custom"
)

// Habit is a recurring activity tied to a stage. When stage ids are
// normalized, habit StageID references are renamed in the same transaction.
type Habit struct {
	ID              string    `json:"id"`
	StageID         string    `json:"stageId"`
	JourneyID       string    `json:"journeyId"`
	Type            HabitType `json:"type"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	TargetFrequency int       `json:"targetFrequency"`
	CurrentStreak   int       `json:"currentStreak"`
	LongestStreak   int       `json:"longestStreak"`
	LastCompletedAt *int64    `json:"lastCompletedAt,omitempty"`
	IsActive        bool      `json:"isActive"`
	CreatedAt       int64     `json:"createdAt"`
	UpdatedAt       int64     `json:"updatedAt"`
}

type HabitCompletion struct {
	ID          int64  `json:"id"`
	HabitID     string `json:"habitId"`
	CompletedAt int64  `json:"completedAt"`
	Notes       string `json:"notes,omitempty"`
}

// HeroProfileID is the fixed id of the singleton profile row.
const HeroProfileID int64 = 1

type HeroProfile struct {
	ID             int64  `json:"id"`
	HeroName       string `json:"heroName"`
	TotalXP        int    `json:"totalXp"`
	Level          int    `json:"level"`
	XPForNextLevel int    `json:"xpForNextLevel"`
	Title          string `json:"title,omitempty"`
	Avatar         string `json:"avatar,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
	UpdatedAt      int64  `json:"updatedAt"`
}

// The fixed attribute set.
const (
	AttributeKnowledge   = "knowledge"
	AttributeFocus       = "focus"
	AttributeConsistency = "consistency"
	AttributeSpeed       = "speed"
)

type HeroAttribute struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Level          int            `json:"level"`
	XP             int            `json:"xp"`
	XPForNextLevel int            `json:"xpForNextLevel"`
	Area           string         `json:"area"`
	Description    string         `json:"description,omitempty"`
	Icon           string         `json:"icon,omitempty"`
	Meta           map[string]any `json:"meta,omitempty"`
	UpdatedAt      int64          `json:"updatedAt"`
}

type AttributeHistory struct {
	ID          int64  `json:"id"`
	AttributeID string `json:"attributeId"`
	DeltaXP     int    `json:"deltaXp"`
	Reason      string `json:"reason,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
	TaskID      string `json:"taskId,omitempty"`
	At          int64  `json:"at"`
}

type AttributeGoal struct {
	ID          int64  `json:"id"`
	AttributeID string `json:"attributeId"`
	TargetLevel int    `json:"targetLevel"`
	TargetXP    int    `json:"targetXp"`
	CurrentXP   int    `json:"currentXp"`
	Description string `json:"description,omitempty"`
	DueDate     *int64 `json:"dueDate,omitempty"`
	IsActive    bool   `json:"isActive"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}
