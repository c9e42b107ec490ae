package migrate

import (
	"fmt"

	"github.com/studyquest/studyquest/internal/docstore"
	"github.com/studyquest/studyquest/internal/store"
)

// MigrateRelationalOnce converts relational plans, sessions and earned XP
// into document-store journeys, tasks and the hero profile. Gated by
// KeyRelationalMigration; a second call is a no-op. Plan conversion failures
// are isolated per plan: one bad plan is logged and skipped, the rest still
// migrate.
func (r *Runner) MigrateRelationalOnce() error {
	done, _, err := r.flags.GetFlag(KeyRelationalMigration)
	if err != nil {
		return fmt.Errorf("failed to read migration flag: %w", err)
	}
	if done == "true" {
		r.log.Debug("relational migration already completed")
		return nil
	}

	plans, err := r.rel.ListPlans()
	if err != nil {
		return fmt.Errorf("failed to read plans: %w", err)
	}
	sessions, err := r.rel.ListSessions()
	if err != nil {
		return fmt.Errorf("failed to read sessions: %w", err)
	}
	totalXP, err := r.rel.TotalXPEarned()
	if err != nil {
		return fmt.Errorf("failed to read earned xp: %w", err)
	}

	r.log.Infow("starting relational migration", "plans", len(plans), "sessions", len(sessions))

	err = r.doc.Update(func(tx *docstore.Tx) error {
		migrated := 0
		for _, plan := range plans {
			if err := r.migratePlan(tx, plan); err != nil {
				r.log.Errorw("plan migration failed", "plan_id", plan.ID, "error", err)
				continue
			}
			migrated++
		}
		r.log.Infow("plans migrated", "migrated", migrated, "skipped", len(plans)-migrated)

		if err := r.migrateHeroProfile(tx, totalXP); err != nil {
			return err
		}

		for _, session := range sessions {
			r.migrateSessionTask(tx, session)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := r.flags.SetFlag(KeyRelationalMigration, "true"); err != nil {
		return fmt.Errorf("failed to set migration flag: %w", err)
	}
	r.log.Info("relational migration completed")
	return nil
}

func (r *Runner) migratePlan(tx *docstore.Tx, plan *store.StudyPlan) error {
	if existing := tx.GetJourneyByLegacyID(plan.ID); existing != nil {
		r.log.Debugw("journey already exists for plan", "plan_id", plan.ID)
		return nil
	}

	stages := make([]docstore.Stage, 0, len(plan.Subjects))
	for index, subject := range plan.Subjects {
		stageID := docstore.MigrationStageID(plan.ID, index)
		stage := docstore.Stage{
			ID:             stageID,
			Title:          subject.Name,
			Description:    subject.Description,
			Priority:       subject.Priority,
			EstimatedHours: subject.EstimatedHours,
			Status:         docstore.StageNotStarted,
			Order:          index,
			CreatedAt:      plan.CreatedAt,
			UpdatedAt:      plan.UpdatedAt,
		}
		for _, topic := range subject.Topics {
			stage.Tasks = append(stage.Tasks, docstore.Task{
				ID:               docstore.MigrationTaskID(subject.ID, topic.ID),
				StageID:          stageID,
				JourneyID:        plan.ID,
				Title:            topic.Name,
				Description:      topic.Description,
				Priority:         topic.Priority,
				EstimatedMinutes: int(topic.EstimatedHours * 60),
				CreatedAt:        plan.CreatedAt,
				UpdatedAt:        plan.UpdatedAt,
			})
			for _, sub := range topic.Subtopics {
				stage.Tasks = append(stage.Tasks, docstore.Task{
					ID:               docstore.MigrationTaskID(subject.ID, sub.ID),
					StageID:          stageID,
					JourneyID:        plan.ID,
					Title:            topic.Name + " - " + sub.Name,
					Description:      sub.Description,
					Priority:         sub.Priority,
					EstimatedMinutes: int(sub.EstimatedHours * 60),
					CreatedAt:        plan.CreatedAt,
					UpdatedAt:        plan.UpdatedAt,
				})
			}
		}
		stages = append(stages, stage)
	}

	journey := &docstore.Journey{
		LegacyID:   plan.ID,
		Title:      plan.Name,
		ExamDate:   plan.ExamDate,
		TotalHours: plan.TotalHours,
		FocusAreas: append([]string(nil), plan.FocusAreas...),
		Status:     docstore.JourneyActive,
		Stages:     stages,
		CreatedAt:  plan.CreatedAt,
		UpdatedAt:  plan.UpdatedAt,
	}
	if journey.Title == "" {
		journey.Title = "Migrated Plan"
	}
	return tx.PutJourney(journey)
}

// migrateHeroProfile seeds the singleton from relational XP totals unless a
// profile already exists (never clobber a live profile).
func (r *Runner) migrateHeroProfile(tx *docstore.Tx, totalXP int) error {
	if tx.HeroProfile() != nil {
		r.log.Debug("hero profile already exists, skipping")
		return nil
	}
	return tx.SaveHeroProfile(&docstore.HeroProfile{
		HeroName:       "Study Hero",
		TotalXP:        totalXP,
		Level:          1,
		XPForNextLevel: 100,
	})
}

// migrateSessionTask mirrors a task-linked session into the flat tasks table
// when no row with that id exists yet. Sessions without a task link are
// untouched; they stay relational.
func (r *Runner) migrateSessionTask(tx *docstore.Tx, session *store.StudySession) {
	if session.TaskID == "" {
		return
	}
	if tx.GetTask(session.TaskID) != nil {
		return
	}

	stageID := session.StageID
	if stageID == "" {
		stageID = "unknown"
	}
	journeyID := session.JourneyID
	if journeyID == "" {
		journeyID = "unknown"
	}
	title := session.Topic
	if title == "" {
		title = "Study Session"
	}
	task := &docstore.Task{
		ID:            session.TaskID,
		StageID:       stageID,
		JourneyID:     journeyID,
		Title:         title,
		Description:   session.Notes,
		Completed:     session.Completed,
		Priority:      1,
		ActualMinutes: session.Duration,
		CreatedAt:     session.CreatedAt,
		UpdatedAt:     session.UpdatedAt,
	}
	if session.EndTime != 0 && session.Completed {
		endTime := session.EndTime
		task.CompletedAt = &endTime
	}
	if session.StartTime != 0 {
		startTime := session.StartTime
		task.StartDate = &startTime
	}
	if err := tx.UpsertTask(task); err != nil {
		r.log.Errorw("session task migration failed", "session_id", session.ID, "error", err)
	}
}
