package migrate

import (
	"fmt"
	"time"

	"github.com/studyquest/studyquest/internal/docstore"
)

// RunPostInitOnce normalizes stage ids and then syncs embedded tasks to the
// flat table. The completion flag is written only after both phases succeed,
// so a failure re-runs the whole sequence next start. Safe: both phases are
// pure upserts keyed by deterministic ids.
func (r *Runner) RunPostInitOnce() error {
	done, _, err := r.flags.GetFlag(KeyPostInitMigrations)
	if err != nil {
		return fmt.Errorf("failed to read post-init flag: %w", err)
	}
	if done == "true" {
		r.log.Debug("post-init migrations already completed")
		return nil
	}

	if err := r.NormalizeStageIDs(); err != nil {
		return fmt.Errorf("stage id normalization failed: %w", err)
	}
	if err := r.SyncTasks(); err != nil {
		return fmt.Errorf("task sync failed: %w", err)
	}

	if err := r.flags.SetFlag(KeyPostInitMigrations, "true"); err != nil {
		return fmt.Errorf("failed to set post-init flag: %w", err)
	}
	r.log.Info("post-init migrations completed")
	return nil
}

// NormalizeStageIDs rewrites every stage id to the canonical
// stage--{journeyId}--{index} form and renames habit references to changed
// ids. Journeys and habits are mutated in one transaction so a crash cannot
// leave a habit pointing at a stage id that no longer exists.
func (r *Runner) NormalizeStageIDs() error {
	return r.doc.Update(func(tx *docstore.Tx) error {
		now := time.Now().UnixMilli()
		for _, journey := range tx.ListJourneys() {
			renamed := make(map[string]string)

			for index := range journey.Stages {
				stage := &journey.Stages[index]
				expected := docstore.CanonicalStageID(journey.ID, index)
				if stage.ID == expected {
					continue
				}
				renamed[stage.ID] = expected
				stage.ID = expected
				stage.UpdatedAt = now
				for ti := range stage.Tasks {
					stage.Tasks[ti].StageID = expected
				}
			}
			if len(renamed) == 0 {
				continue
			}

			if err := tx.PutJourney(journey); err != nil {
				return err
			}
			r.log.Infow("normalized stage ids", "journey_id", journey.ID, "renamed", len(renamed))

			journeyRef := docstore.JourneyRef(journey.ID)
			for _, habit := range tx.ListHabits() {
				newID, ok := renamed[habit.StageID]
				if !ok {
					continue
				}
				habit.StageID = newID
				habit.JourneyID = journeyRef
				if err := tx.UpsertHabit(habit); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// SyncTasks walks every journey's embedded stages/tasks and upserts the
// matching flat-table row. Tasks without an id get the deterministic
// task--{stageId}--{index} form, written back into the embedded copy so the
// two stay id-identical. Re-running never duplicates: existence is checked
// by id.
func (r *Runner) SyncTasks() error {
	return r.doc.Update(func(tx *docstore.Tx) error {
		synced := 0
		for _, journey := range tx.ListJourneys() {
			journeyRef := docstore.JourneyRef(journey.ID)
			changed := false

			for si := range journey.Stages {
				stage := &journey.Stages[si]
				for ti := range stage.Tasks {
					task := &stage.Tasks[ti]
					if task.ID == "" {
						task.ID = docstore.TaskID(stage.ID, ti)
						changed = true
					}
					if task.StageID != stage.ID || task.JourneyID != journeyRef {
						task.StageID = stage.ID
						task.JourneyID = journeyRef
						changed = true
					}

					flat := *task
					if err := tx.UpsertTask(&flat); err != nil {
						return err
					}
					synced++
				}
			}
			if changed {
				if err := tx.PutJourney(journey); err != nil {
					return err
				}
			}
		}
		r.log.Infow("task sync completed", "tasks", synced)
		return nil
	})
}
