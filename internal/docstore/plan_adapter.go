package docstore

import (
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyquest/studyquest/internal/store"
)

// PlanAdapter exposes the document store through the engine-agnostic plan
// repository contract. Plans map to journeys (subjects become stages, topics
// and subtopics become tasks); the "active saved plan" pointer maps to the
// journey with active status. Settings stay on the relational engine and are
// delegated.
//
// The mapping is lossy on ids: a plan read back through the adapter carries
// stage/task ids in place of its original subject/topic ids. Reverse
// migration to the relational engine is not supported.
type PlanAdapter struct {
	db       *DB
	settings store.SettingsStore
	log      *zap.SugaredLogger
}

func NewPlanAdapter(db *DB, settings store.SettingsStore, log *zap.SugaredLogger) *PlanAdapter {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &PlanAdapter{db: db, settings: settings, log: log}
}

// Meta keys used to round-trip plan fields that have no journey counterpart.
const (
	metaCycle      = "cycle"
	metaWeekly     = "weekly"
	metaCycleStart = "cycleStart"
)

// SavePlan upserts the journey matched by the plan's id without touching its
// status.
func (a *PlanAdapter) SavePlan(plan *store.StudyPlan) error {
	if plan.ID == "" {
		plan.ID = "plan_" + uuid.NewString()
	}
	return a.db.Update(func(tx *Tx) error {
		return saveJourneyTx(tx, plan, "")
	})
}

// saveJourneyTx converts and upserts the plan. A non-empty status overrides
// the journey's current one.
func saveJourneyTx(tx *Tx, plan *store.StudyPlan, status JourneyStatus) error {
	existing := tx.GetJourneyByLegacyID(plan.ID)

	j := &Journey{
		LegacyID:   plan.ID,
		Title:      plan.Name,
		ExamDate:   plan.ExamDate,
		TotalHours: plan.TotalHours,
		FocusAreas: append([]string(nil), plan.FocusAreas...),
		Status:     status,
		Meta:       map[string]any{},
	}
	if existing != nil {
		j.ID = existing.ID
		j.CreatedAt = existing.CreatedAt
		j.CompletedHours = existing.CompletedHours
		if status == "" {
			j.Status = existing.Status
		}
	}
	if j.Status == "" {
		j.Status = JourneyPaused
	}
	if len(plan.Cycle) > 0 {
		if data, err := json.Marshal(plan.Cycle); err == nil {
			j.Meta[metaCycle] = string(data)
		}
	}
	if len(plan.Weekly) > 0 {
		if data, err := json.Marshal(plan.Weekly); err == nil {
			j.Meta[metaWeekly] = string(data)
		}
	}
	if plan.CycleStart != nil {
		j.Meta[metaCycleStart] = *plan.CycleStart
	}

	// First put assigns the journey id needed for canonical stage ids.
	if err := tx.PutJourney(j); err != nil {
		return err
	}

	journeyRef := JourneyRef(j.ID)
	j.Stages = make([]Stage, 0, len(plan.Subjects))
	for si, subject := range plan.Subjects {
		stageID := CanonicalStageID(j.ID, si)
		stage := Stage{
			ID:             stageID,
			Title:          subject.Name,
			Description:    subject.Description,
			Priority:       subject.Priority,
			EstimatedHours: subject.EstimatedHours,
			Status:         StageNotStarted,
			Order:          si,
			CreatedAt:      j.UpdatedAt,
			UpdatedAt:      j.UpdatedAt,
		}
		index := 0
		for _, topic := range subject.Topics {
			stage.Tasks = append(stage.Tasks, Task{
				ID:               TaskID(stageID, index),
				StageID:          stageID,
				JourneyID:        journeyRef,
				Title:            topic.Name,
				Description:      topic.Description,
				Priority:         topic.Priority,
				EstimatedMinutes: int(topic.EstimatedHours * 60),
				CreatedAt:        j.UpdatedAt,
				UpdatedAt:        j.UpdatedAt,
			})
			index++
			for _, sub := range topic.Subtopics {
				stage.Tasks = append(stage.Tasks, Task{
					ID:               TaskID(stageID, index),
					StageID:          stageID,
					JourneyID:        journeyRef,
					Title:            sub.Name,
					Description:      sub.Description,
					Priority:         sub.Priority,
					EstimatedMinutes: int(sub.EstimatedHours * 60),
					CreatedAt:        j.UpdatedAt,
					UpdatedAt:        j.UpdatedAt,
				})
				index++
			}
		}
		j.Stages = append(j.Stages, stage)
	}
	if err := tx.PutJourney(j); err != nil {
		return err
	}

	// Mirror embedded tasks into the flat table.
	for i := range j.Stages {
		for ti := range j.Stages[i].Tasks {
			task := j.Stages[i].Tasks[ti]
			if err := tx.UpsertTask(&task); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetPlan resolves a plan by the legacy id carried on its journey.
func (a *PlanAdapter) GetPlan(id string) (*store.StudyPlan, error) {
	j, err := a.db.GetJourneyByLegacyID(id)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, nil
	}
	return journeyToPlan(j), nil
}

func journeyToPlan(j *Journey) *store.StudyPlan {
	plan := &store.StudyPlan{
		ID:         j.LegacyID,
		Name:       j.Title,
		TotalHours: j.TotalHours,
		FocusAreas: append([]string(nil), j.FocusAreas...),
		ExamDate:   j.ExamDate,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
	}
	if plan.ID == "" {
		plan.ID = "journey-" + JourneyRef(j.ID)
	}
	if raw, ok := j.Meta[metaCycle].(string); ok {
		_ = json.Unmarshal([]byte(raw), &plan.Cycle)
	}
	if raw, ok := j.Meta[metaWeekly].(string); ok {
		_ = json.Unmarshal([]byte(raw), &plan.Weekly)
	}
	switch v := j.Meta[metaCycleStart].(type) {
	case int64:
		plan.CycleStart = &v
	case float64:
		ms := int64(v)
		plan.CycleStart = &ms
	}

	for _, stage := range j.Stages {
		subject := store.Subject{
			ID:             stage.ID,
			PlanID:         plan.ID,
			Name:           stage.Title,
			Description:    stage.Description,
			Priority:       stage.Priority,
			EstimatedHours: stage.EstimatedHours,
		}
		for _, task := range stage.Tasks {
			subject.Topics = append(subject.Topics, store.Topic{
				ID:             task.ID,
				SubjectID:      stage.ID,
				Name:           task.Title,
				Description:    task.Description,
				Priority:       task.Priority,
				EstimatedHours: float64(task.EstimatedMinutes) / 60,
			})
		}
		plan.Subjects = append(plan.Subjects, subject)
	}
	return plan
}

// DeletePlan removes the journey and its flat task rows.
func (a *PlanAdapter) DeletePlan(id string) (bool, error) {
	var deleted bool
	err := a.db.Update(func(tx *Tx) error {
		j := tx.GetJourneyByLegacyID(id)
		if j == nil {
			return nil
		}
		deleted = true
		ref := JourneyRef(j.ID)
		for taskID, task := range tx.db.tasks {
			if task.JourneyID == ref {
				delete(tx.db.tasks, taskID)
			}
		}
		tx.touch(TableTasks)
		return tx.DeleteJourney(j.ID)
	})
	return deleted, err
}

// ListPlans returns all non-archived journeys as plans, most recent first.
func (a *PlanAdapter) ListPlans() ([]*store.StudyPlan, error) {
	journeys, err := a.db.ListJourneys()
	if err != nil {
		return nil, err
	}
	var plans []*store.StudyPlan
	for _, j := range journeys {
		if j.Status == JourneyArchived {
			continue
		}
		plans = append(plans, journeyToPlan(j))
	}
	return plans, nil
}

// MostRecentPlan returns the most recently updated non-archived journey.
func (a *PlanAdapter) MostRecentPlan() (*store.StudyPlan, error) {
	plans, err := a.ListPlans()
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, nil
	}
	return plans[0], nil
}

// SaveActivePlan promotes this plan's journey to active status, demotes any
// other active journey and writes the settings pointer.
func (a *PlanAdapter) SaveActivePlan(plan *store.StudyPlan) error {
	if plan.ID == "" {
		plan.ID = store.DefaultActivePlanID
	}
	err := a.db.Update(func(tx *Tx) error {
		for _, j := range tx.ListJourneys() {
			if j.Status == JourneyActive && j.LegacyID != plan.ID {
				j.Status = JourneyPaused
				if err := tx.PutJourney(j); err != nil {
					return err
				}
			}
		}
		return saveJourneyTx(tx, plan, JourneyActive)
	})
	if err != nil {
		return err
	}
	return a.settings.SaveSetting(store.SettingActivePlanID, plan.ID,
		store.CategoryGeneral, "id of the current active plan")
}

// SaveNamedPlan stores the plan under a display name and points the settings
// pointer at it. The journey keeps its current status.
func (a *PlanAdapter) SaveNamedPlan(plan *store.StudyPlan, name string) (string, error) {
	if plan.ID == "" {
		plan.ID = "plan_" + uuid.NewString()
	}
	plan.Name = name
	err := a.db.Update(func(tx *Tx) error {
		return saveJourneyTx(tx, plan, "")
	})
	if err != nil {
		return "", err
	}
	if err := a.settings.SaveSetting(store.SettingActivePlanID, plan.ID,
		store.CategoryGeneral, "id of the current active plan"); err != nil {
		return "", err
	}
	return plan.ID, nil
}

// ActiveSavedPlan synthesizes a pointer row from the active journey.
func (a *PlanAdapter) ActiveSavedPlan() (*store.SavedPlan, error) {
	journeys, err := a.db.ListJourneys()
	if err != nil {
		return nil, err
	}
	for _, j := range journeys {
		if j.Status == JourneyActive {
			return journeyPointer(j), nil
		}
	}
	return nil, nil
}

func journeyPointer(j *Journey) *store.SavedPlan {
	planID := j.LegacyID
	if planID == "" {
		planID = "journey-" + JourneyRef(j.ID)
	}
	return &store.SavedPlan{
		ID:        planID,
		Name:      j.Title,
		PlanID:    planID,
		IsActive:  j.Status == JourneyActive,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// ListSavedPlans maps every non-archived journey to a pointer row.
func (a *PlanAdapter) ListSavedPlans() ([]*store.SavedPlan, error) {
	journeys, err := a.db.ListJourneys()
	if err != nil {
		return nil, err
	}
	var saved []*store.SavedPlan
	for _, j := range journeys {
		if j.Status == JourneyArchived {
			continue
		}
		saved = append(saved, journeyPointer(j))
	}
	return saved, nil
}

// DeleteSavedPlan archives the journey instead of deleting it, matching the
// pointer-only semantics of the relational engine.
func (a *PlanAdapter) DeleteSavedPlan(id string) error {
	return a.db.Update(func(tx *Tx) error {
		j := tx.GetJourneyByLegacyID(id)
		if j == nil {
			return nil
		}
		j.Status = JourneyArchived
		return tx.PutJourney(j)
	})
}

// Settings delegate to the relational engine regardless of active engine.

func (a *PlanAdapter) SaveSetting(key, value, category, description string) error {
	return a.settings.SaveSetting(key, value, category, description)
}

func (a *PlanAdapter) LoadSetting(key, category string) (string, bool, error) {
	return a.settings.LoadSetting(key, category)
}

func (a *PlanAdapter) DeleteSetting(key, category string) error {
	return a.settings.DeleteSetting(key, category)
}

func (a *PlanAdapter) ListSettings(category string) ([]*store.AppSetting, error) {
	return a.settings.ListSettings(category)
}

// Close is a no-op; the document DB's lifecycle is owned by the engine
// manager.
func (a *PlanAdapter) Close() error {
	return nil
}

var _ store.PlanStore = (*PlanAdapter)(nil)
