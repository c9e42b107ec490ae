package docstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ExportVersion is the current export document version. The lte tag on
// ExportDocument.Version must track it.
const ExportVersion = 1

// ExportDocument is the versioned JSON contract for full-database backup
// portability. Every table is exported as an array; the hero profile array
// holds zero or one entries.
type ExportDocument struct {
	Version          int                 `json:"version" validate:"required,lte=1"`
	ExportedAt       int64               `json:"exportedAt" validate:"required"`
	Journeys         []*Journey          `json:"journeys"`
	Tasks            []*Task             `json:"tasks"`
	Habits           []*Habit            `json:"habits"`
	HabitCompletions []*HabitCompletion  `json:"habitCompletions"`
	HeroProfile      []*HeroProfile      `json:"heroProfile" validate:"max=1"`
	HeroAttributes   []*HeroAttribute    `json:"heroAttributes"`
	AttributeHistory []*AttributeHistory `json:"attributeHistory"`
	AttributeGoals   []*AttributeGoal    `json:"attributeGoals"`
}

var validate = validator.New()

// ImportMode selects between additive merge and destructive replace.
type ImportMode string

const (
	ImportMerge   ImportMode = "merge"
	ImportReplace ImportMode = "replace"
)

// Export snapshots every table into an ExportDocument.
func (db *DB) Export() (*ExportDocument, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	doc := &ExportDocument{
		Version:    ExportVersion,
		ExportedAt: time.Now().UnixMilli(),
		Journeys:   db.listJourneysLocked(),
	}
	for _, t := range db.tasks {
		c := *t
		doc.Tasks = append(doc.Tasks, &c)
	}
	sortTasks(doc.Tasks)
	for _, h := range db.habits {
		c := *h
		doc.Habits = append(doc.Habits, &c)
	}
	sortHabits(doc.Habits)
	for _, hc := range db.habitCompletions {
		c := *hc
		doc.HabitCompletions = append(doc.HabitCompletions, &c)
	}
	sortCompletions(doc.HabitCompletions)
	if db.heroProfile != nil {
		c := *db.heroProfile
		doc.HeroProfile = append(doc.HeroProfile, &c)
	}
	for _, a := range db.heroAttributes {
		doc.HeroAttributes = append(doc.HeroAttributes, cloneAttribute(a))
	}
	sortAttributes(doc.HeroAttributes)
	for _, h := range db.attributeHistory {
		c := *h
		doc.AttributeHistory = append(doc.AttributeHistory, &c)
	}
	sortHistory(doc.AttributeHistory)
	for _, g := range db.attributeGoals {
		c := *g
		doc.AttributeGoals = append(doc.AttributeGoals, &c)
	}
	sortGoals(doc.AttributeGoals)
	return doc, nil
}

// ExportJSON marshals the export document.
func (db *DB) ExportJSON() ([]byte, error) {
	doc, err := db.Export()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Import loads an export document. Replace mode clears every table first;
// merge mode upserts over existing rows. The document is validated before
// any mutation: version and exportedAt markers are required, and a version
// from a newer app is rejected.
func (db *DB) Import(doc *ExportDocument, mode ImportMode) error {
	if doc == nil {
		return fmt.Errorf("import document is nil")
	}
	if err := validate.Struct(doc); err != nil {
		return fmt.Errorf("invalid import document: %w", err)
	}

	return db.Update(func(tx *Tx) error {
		if mode == ImportReplace {
			tx.db.journeys = make(map[int64]*Journey)
			tx.db.tasks = make(map[string]*Task)
			tx.db.habits = make(map[string]*Habit)
			tx.db.habitCompletions = make(map[int64]*HabitCompletion)
			tx.db.heroProfile = nil
			tx.db.heroAttributes = make(map[string]*HeroAttribute)
			tx.db.attributeHistory = make(map[int64]*AttributeHistory)
			tx.db.attributeGoals = make(map[int64]*AttributeGoal)
			tx.db.nextJourneyID = 0
			tx.db.nextCompletionID = 0
			tx.db.nextHistoryID = 0
			tx.db.nextGoalID = 0
			for _, table := range []string{
				TableJourneys, TableTasks, TableHabits, TableHabitCompletions,
				TableHeroProfile, TableHeroAttributes, TableAttributeHistory, TableAttributeGoals,
			} {
				tx.touch(table)
			}
		}

		for _, j := range doc.Journeys {
			if err := tx.PutJourney(cloneJourney(j)); err != nil {
				return err
			}
		}
		for _, t := range doc.Tasks {
			c := *t
			if err := tx.UpsertTask(&c); err != nil {
				return err
			}
		}
		for _, h := range doc.Habits {
			c := *h
			if err := tx.UpsertHabit(&c); err != nil {
				return err
			}
		}
		for _, hc := range doc.HabitCompletions {
			c := *hc
			if c.ID == 0 {
				tx.db.nextCompletionID++
				c.ID = tx.db.nextCompletionID
			} else if c.ID > tx.db.nextCompletionID {
				tx.db.nextCompletionID = c.ID
			}
			tx.db.habitCompletions[c.ID] = &c
		}
		tx.touch(TableHabitCompletions)
		if len(doc.HeroProfile) > 0 {
			if err := tx.SaveHeroProfile(doc.HeroProfile[0]); err != nil {
				return err
			}
		}
		for _, a := range doc.HeroAttributes {
			if err := tx.UpsertAttribute(cloneAttribute(a)); err != nil {
				return err
			}
		}
		for _, h := range doc.AttributeHistory {
			c := *h
			if c.ID == 0 {
				tx.db.nextHistoryID++
				c.ID = tx.db.nextHistoryID
			} else if c.ID > tx.db.nextHistoryID {
				tx.db.nextHistoryID = c.ID
			}
			tx.db.attributeHistory[c.ID] = &c
		}
		tx.touch(TableAttributeHistory)
		for _, g := range doc.AttributeGoals {
			c := *g
			if c.ID == 0 {
				tx.db.nextGoalID++
				c.ID = tx.db.nextGoalID
			} else if c.ID > tx.db.nextGoalID {
				tx.db.nextGoalID = c.ID
			}
			tx.db.attributeGoals[c.ID] = &c
		}
		tx.touch(TableAttributeGoals)
		return nil
	})
}

// ImportJSON unmarshals and imports an export document.
func (db *DB) ImportJSON(data []byte, mode ImportMode) error {
	var doc ExportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse import document: %w", err)
	}
	return db.Import(&doc, mode)
}

// Counts reports per-table row counts, used by round-trip checks.
func (db *DB) Counts() map[string]int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	counts := map[string]int{
		TableJourneys:         len(db.journeys),
		TableTasks:            len(db.tasks),
		TableHabits:           len(db.habits),
		TableHabitCompletions: len(db.habitCompletions),
		TableHeroProfile:      0,
		TableHeroAttributes:   len(db.heroAttributes),
		TableAttributeHistory: len(db.attributeHistory),
		TableAttributeGoals:   len(db.attributeGoals),
	}
	if db.heroProfile != nil {
		counts[TableHeroProfile] = 1
	}
	return counts
}
