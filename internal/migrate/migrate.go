// Package migrate holds the one-shot data migrations: relational-to-document
// conversion, stage id normalization, embedded-to-flat task sync and
// active-plan pointer repair. Every routine is idempotent (upsert by stable
// id) and gated by a persisted completion flag, so an interrupted run simply
// repeats from the top on the next start.
package migrate

import (
	"go.uber.org/zap"

	"github.com/studyquest/studyquest/internal/docstore"
	"github.com/studyquest/studyquest/internal/store"
)

// Completion flag keys. The values are historical and must not change:
// existing installations carry them.
const (
	KeyRelationalMigration = "sqlite_to_dexie_migration_completed"
	KeyPostInitMigrations  = "dexie_post_init_migrations_completed"
)

// Flags is the completion-flag storage, satisfied by backup.ShadowStore.
type Flags interface {
	GetFlag(key string) (string, bool, error)
	SetFlag(key, value string) error
}

// Relational is what the migrations need from the relational engine.
type Relational interface {
	ListPlans() ([]*store.StudyPlan, error)
	ListSessions() ([]*store.StudySession, error)
	TotalXPEarned() (int, error)
	ActiveSavedPlan() (*store.SavedPlan, error)
	MostRecentPlan() (*store.StudyPlan, error)
	ListSavedPlans() ([]*store.SavedPlan, error)
	ActivateSavedPlanPointer(planID, name string) error
	PruneOldPlans(keep int, protectID string) (int, error)
	store.SettingsStore
}

// Runner executes the document-engine migrations in their required order:
// the relational conversion first, then stage id normalization, then task
// sync. Normalization must precede sync so sync writes use canonical ids.
type Runner struct {
	rel   Relational
	doc   *docstore.DB
	flags Flags
	log   *zap.SugaredLogger
}

func NewRunner(rel Relational, doc *docstore.DB, flags Flags, log *zap.SugaredLogger) *Runner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Runner{rel: rel, doc: doc, flags: flags, log: log}
}

// Run performs all pending migrations. Already-completed phases are skipped
// via their flags; the post-init flag is only set after both normalization
// and sync succeed.
func (r *Runner) Run() error {
	if err := r.MigrateRelationalOnce(); err != nil {
		return err
	}
	return r.RunPostInitOnce()
}
