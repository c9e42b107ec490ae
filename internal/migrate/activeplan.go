package migrate

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/studyquest/studyquest/internal/store"
)

// keepRecentPlans is how many plans survive the orphan cleanup pass.
const keepRecentPlans = 6

// RepairActivePlanPointer backfills the active_plan_id setting on relational
// databases created before the setting existed. If the setting is present it
// does nothing. Otherwise it promotes the active saved-plan pointer, or
// falls back to the most recent plan (creating its pointer row if missing),
// then prunes orphaned old plans. Runs against the relational engine only.
func RepairActivePlanPointer(rel Relational, log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	existing, ok, err := rel.LoadSetting(store.SettingActivePlanID, store.CategoryGeneral)
	if err != nil {
		return fmt.Errorf("failed to read active plan setting: %w", err)
	}
	if ok && existing != "" {
		log.Debugw("active plan setting already present", "plan_id", existing)
		return nil
	}

	// Promote the saved-plan pointer when one is flagged active.
	sp, err := rel.ActiveSavedPlan()
	if err != nil {
		return err
	}
	if sp != nil {
		log.Infow("backfilling active plan setting from saved plan", "plan_id", sp.PlanID)
		return rel.SaveSetting(store.SettingActivePlanID, sp.PlanID,
			store.CategoryGeneral, "id of the current active plan")
	}

	// Fall back to the most recent plan.
	plan, err := rel.MostRecentPlan()
	if err != nil {
		return err
	}
	if plan == nil {
		log.Debug("no plans present, nothing to repair")
		return nil
	}
	log.Infow("backfilling active plan setting from most recent plan", "plan_id", plan.ID)
	if err := rel.SaveSetting(store.SettingActivePlanID, plan.ID,
		store.CategoryGeneral, "id of the current active plan"); err != nil {
		return err
	}

	// Make sure a pointer row exists for it.
	saved, err := rel.ListSavedPlans()
	if err != nil {
		return err
	}
	hasPointer := false
	for _, row := range saved {
		if row.PlanID == plan.ID {
			hasPointer = true
			break
		}
	}
	if !hasPointer {
		if err := rel.ActivateSavedPlanPointer(plan.ID, "Current Plan"); err != nil {
			return err
		}
		log.Infow("created saved plan pointer", "plan_id", plan.ID)
	}

	pruned, err := rel.PruneOldPlans(keepRecentPlans, plan.ID)
	if err != nil {
		return err
	}
	if pruned > 0 {
		log.Infow("pruned orphaned plans", "removed", pruned)
	}
	return nil
}
