package store

import (
	"go.uber.org/zap"
)

// ResolveActivePlan finds the current plan through a three-strategy
// waterfall. The settings pointer, the saved-plan pointer table and the raw
// plans table can drift independently, so each is treated as a hint:
//
//  1. the active_plan_id setting, if it points at an existing plan;
//  2. the saved-plan row flagged active, if its plan exists;
//  3. the most recently updated plan, writing it back to the setting so the
//     next resolution takes the fast path.
//
// Returns (nil, nil) only when all three strategies come up empty, which is
// the normal first-run state.
func ResolveActivePlan(ps PlanStore, log *zap.SugaredLogger) (*StudyPlan, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	// Strategy 1: settings pointer.
	id, ok, err := ps.LoadSetting(SettingActivePlanID, CategoryGeneral)
	if err != nil {
		return nil, err
	}
	if ok && id != "" {
		plan, err := ps.GetPlan(id)
		if err != nil {
			return nil, err
		}
		if plan != nil {
			return plan, nil
		}
		log.Warnw("active plan setting points at missing plan", "plan_id", id)
	}

	// Strategy 2: saved-plan pointer row.
	sp, err := ps.ActiveSavedPlan()
	if err != nil {
		return nil, err
	}
	if sp != nil {
		plan, err := ps.GetPlan(sp.PlanID)
		if err != nil {
			return nil, err
		}
		if plan != nil {
			// Repair the settings pointer while we are here.
			if err := ps.SaveSetting(SettingActivePlanID, plan.ID, CategoryGeneral,
				"id of the current active plan"); err != nil {
				log.Warnw("failed to repair active plan setting", "error", err)
			}
			return plan, nil
		}
		log.Warnw("active saved plan points at missing plan", "plan_id", sp.PlanID)
	}

	// Strategy 3: most recent plan, with auto-repair.
	plan, err := ps.MostRecentPlan()
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, nil
	}
	log.Infow("recovered active plan from most recent", "plan_id", plan.ID)
	if err := ps.SaveSetting(SettingActivePlanID, plan.ID, CategoryGeneral,
		"id of the current active plan"); err != nil {
		log.Warnw("failed to repair active plan setting", "error", err)
	}
	return plan, nil
}
