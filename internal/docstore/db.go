package docstore

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Table names, used for change notification and export.
const (
	TableJourneys         = "journeys"
	TableTasks            = "tasks"
	TableHabits           = "habits"
	TableHabitCompletions = "habitCompletions"
	TableHeroProfile      = "heroProfile"
	TableHeroAttributes   = "heroAttributes"
	TableAttributeHistory = "attributeHistory"
	TableAttributeGoals   = "attributeGoals"
)

// DB is the document engine: typed in-memory tables guarded by one lock.
// Mutations go through Update for multi-table atomicity (snapshot rollback)
// or through the single-row convenience methods. Every committed mutation
// notifies watchers and the persister hook.
type DB struct {
	mu sync.RWMutex

	journeys         map[int64]*Journey
	tasks            map[string]*Task
	habits           map[string]*Habit
	habitCompletions map[int64]*HabitCompletion
	heroProfile      *HeroProfile
	heroAttributes   map[string]*HeroAttribute
	attributeHistory map[int64]*AttributeHistory
	attributeGoals   map[int64]*AttributeGoal

	nextJourneyID    int64
	nextCompletionID int64
	nextHistoryID    int64
	nextGoalID       int64

	watchMu   sync.Mutex
	watchers  map[int]chan string
	nextWatch int

	// onChange is invoked after every committed mutation, outside the table
	// lock. The persister uses it to schedule a debounced flush.
	onChange func()

	log *zap.SugaredLogger
}

// NewDB creates an empty document store.
func NewDB(log *zap.SugaredLogger) *DB {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &DB{
		journeys:         make(map[int64]*Journey),
		tasks:            make(map[string]*Task),
		habits:           make(map[string]*Habit),
		habitCompletions: make(map[int64]*HabitCompletion),
		heroAttributes:   make(map[string]*HeroAttribute),
		attributeHistory: make(map[int64]*AttributeHistory),
		attributeGoals:   make(map[int64]*AttributeGoal),
		watchers:         make(map[int]chan string),
		log:              log,
	}
}

// SetOnChange installs the committed-mutation hook. Must be called before
// the store is shared.
func (db *DB) SetOnChange(fn func()) {
	db.onChange = fn
}

// Close drops all watchers. The in-memory tables stay readable.
func (db *DB) Close() error {
	db.watchMu.Lock()
	defer db.watchMu.Unlock()
	for id, ch := range db.watchers {
		close(ch)
		delete(db.watchers, id)
	}
	return nil
}

// Watch returns a channel that receives the name of each table mutated after
// the call. Notifications are best-effort: a slow consumer drops signals
// rather than blocking writers. The cancel func releases the watcher.
func (db *DB) Watch() (<-chan string, func()) {
	db.watchMu.Lock()
	defer db.watchMu.Unlock()

	id := db.nextWatch
	db.nextWatch++
	ch := make(chan string, 16)
	db.watchers[id] = ch

	cancel := func() {
		db.watchMu.Lock()
		defer db.watchMu.Unlock()
		if ch, ok := db.watchers[id]; ok {
			close(ch)
			delete(db.watchers, id)
		}
	}
	return ch, cancel
}

func (db *DB) notify(tables ...string) {
	db.watchMu.Lock()
	for _, ch := range db.watchers {
		for _, table := range tables {
			select {
			case ch <- table:
			default:
			}
		}
	}
	db.watchMu.Unlock()

	if db.onChange != nil {
		db.onChange()
	}
}

// Tx is a handle for multi-table mutations inside Update. Methods mutate the
// live tables; Update rolls everything back if the function errors.
type Tx struct {
	db      *DB
	touched map[string]bool
}

func (tx *Tx) touch(table string) {
	tx.touched[table] = true
}

// Update runs fn atomically. A snapshot of every table is taken first; if fn
// returns an error the snapshot is restored and nothing is observed by
// readers or watchers.
func (db *DB) Update(fn func(tx *Tx) error) error {
	db.mu.Lock()

	snap := db.snapshot()
	tx := &Tx{db: db, touched: make(map[string]bool)}
	if err := fn(tx); err != nil {
		db.restore(snap)
		db.mu.Unlock()
		return err
	}

	tables := make([]string, 0, len(tx.touched))
	for table := range tx.touched {
		tables = append(tables, table)
	}
	db.mu.Unlock()

	if len(tables) > 0 {
		db.notify(tables...)
	}
	return nil
}

// View runs fn with a read lock held.
func (db *DB) View(fn func(tx *Tx) error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return fn(&Tx{db: db, touched: make(map[string]bool)})
}

type dbSnapshot struct {
	journeys         map[int64]*Journey
	tasks            map[string]*Task
	habits           map[string]*Habit
	habitCompletions map[int64]*HabitCompletion
	heroProfile      *HeroProfile
	heroAttributes   map[string]*HeroAttribute
	attributeHistory map[int64]*AttributeHistory
	attributeGoals   map[int64]*AttributeGoal

	nextJourneyID    int64
	nextCompletionID int64
	nextHistoryID    int64
	nextGoalID       int64
}

func (db *DB) snapshot() *dbSnapshot {
	snap := &dbSnapshot{
		journeys:         make(map[int64]*Journey, len(db.journeys)),
		tasks:            make(map[string]*Task, len(db.tasks)),
		habits:           make(map[string]*Habit, len(db.habits)),
		habitCompletions: make(map[int64]*HabitCompletion, len(db.habitCompletions)),
		heroAttributes:   make(map[string]*HeroAttribute, len(db.heroAttributes)),
		attributeHistory: make(map[int64]*AttributeHistory, len(db.attributeHistory)),
		attributeGoals:   make(map[int64]*AttributeGoal, len(db.attributeGoals)),
		nextJourneyID:    db.nextJourneyID,
		nextCompletionID: db.nextCompletionID,
		nextHistoryID:    db.nextHistoryID,
		nextGoalID:       db.nextGoalID,
	}
	for id, j := range db.journeys {
		snap.journeys[id] = cloneJourney(j)
	}
	for id, t := range db.tasks {
		c := *t
		snap.tasks[id] = &c
	}
	for id, h := range db.habits {
		c := *h
		snap.habits[id] = &c
	}
	for id, hc := range db.habitCompletions {
		c := *hc
		snap.habitCompletions[id] = &c
	}
	if db.heroProfile != nil {
		c := *db.heroProfile
		snap.heroProfile = &c
	}
	for id, a := range db.heroAttributes {
		snap.heroAttributes[id] = cloneAttribute(a)
	}
	for id, h := range db.attributeHistory {
		c := *h
		snap.attributeHistory[id] = &c
	}
	for id, g := range db.attributeGoals {
		c := *g
		snap.attributeGoals[id] = &c
	}
	return snap
}

func (db *DB) restore(snap *dbSnapshot) {
	db.journeys = snap.journeys
	db.tasks = snap.tasks
	db.habits = snap.habits
	db.habitCompletions = snap.habitCompletions
	db.heroProfile = snap.heroProfile
	db.heroAttributes = snap.heroAttributes
	db.attributeHistory = snap.attributeHistory
	db.attributeGoals = snap.attributeGoals
	db.nextJourneyID = snap.nextJourneyID
	db.nextCompletionID = snap.nextCompletionID
	db.nextHistoryID = snap.nextHistoryID
	db.nextGoalID = snap.nextGoalID
}

// =============================================================================
// Journeys
// =============================================================================

// PutJourney upserts a journey; id 0 gets the next auto-increment id.
func (db *DB) PutJourney(j *Journey) error {
	return db.Update(func(tx *Tx) error {
		return tx.PutJourney(j)
	})
}

func (tx *Tx) PutJourney(j *Journey) error {
	now := time.Now().UnixMilli()
	if j.ID == 0 {
		tx.db.nextJourneyID++
		j.ID = tx.db.nextJourneyID
	} else if j.ID > tx.db.nextJourneyID {
		tx.db.nextJourneyID = j.ID
	}
	if j.CreatedAt == 0 {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	if j.Status == "" {
		j.Status = JourneyActive
	}
	tx.db.journeys[j.ID] = cloneJourney(j)
	tx.touch(TableJourneys)
	return nil
}

func (db *DB) GetJourney(id int64) (*Journey, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if j, ok := db.journeys[id]; ok {
		return cloneJourney(j), nil
	}
	return nil, nil
}

// GetJourneyByLegacyID finds the journey migrated from a relational plan.
func (db *DB) GetJourneyByLegacyID(legacyID string) (*Journey, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.journeyByLegacyIDLocked(legacyID), nil
}

func (db *DB) journeyByLegacyIDLocked(legacyID string) *Journey {
	if legacyID == "" {
		return nil
	}
	for _, j := range db.journeys {
		if j.LegacyID == legacyID {
			return cloneJourney(j)
		}
	}
	return nil
}

func (tx *Tx) GetJourneyByLegacyID(legacyID string) *Journey {
	return tx.db.journeyByLegacyIDLocked(legacyID)
}

// ListJourneys returns all journeys, most recently updated first.
func (db *DB) ListJourneys() ([]*Journey, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.listJourneysLocked(), nil
}

func (db *DB) listJourneysLocked() []*Journey {
	result := make([]*Journey, 0, len(db.journeys))
	for _, j := range db.journeys {
		result = append(result, cloneJourney(j))
	}
	sortJourneys(result)
	return result
}

func (tx *Tx) ListJourneys() []*Journey {
	return tx.db.listJourneysLocked()
}

func (db *DB) DeleteJourney(id int64) error {
	return db.Update(func(tx *Tx) error {
		return tx.DeleteJourney(id)
	})
}

func (tx *Tx) DeleteJourney(id int64) error {
	delete(tx.db.journeys, id)
	tx.touch(TableJourneys)
	return nil
}

func (db *DB) CountJourneys() (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.journeys), nil
}

// =============================================================================
// Flat tasks
// =============================================================================

// UpsertTask writes one flat-table task row keyed by its deterministic id.
func (db *DB) UpsertTask(t *Task) error {
	return db.Update(func(tx *Tx) error {
		return tx.UpsertTask(t)
	})
}

func (tx *Tx) UpsertTask(t *Task) error {
	if t.ID == "" {
		return fmt.Errorf("task id is required")
	}
	now := time.Now().UnixMilli()
	if existing, ok := tx.db.tasks[t.ID]; ok {
		t.CreatedAt = existing.CreatedAt
	} else if t.CreatedAt == 0 {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	c := *t
	tx.db.tasks[t.ID] = &c
	tx.touch(TableTasks)
	return nil
}

func (db *DB) GetTask(id string) (*Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if t, ok := db.tasks[id]; ok {
		c := *t
		return &c, nil
	}
	return nil, nil
}

func (tx *Tx) GetTask(id string) *Task {
	if t, ok := tx.db.tasks[id]; ok {
		c := *t
		return &c
	}
	return nil
}

// ListTasks returns flat tasks, optionally filtered by journey id.
func (db *DB) ListTasks(journeyID string) ([]*Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var result []*Task
	for _, t := range db.tasks {
		if journeyID == "" || t.JourneyID == journeyID {
			c := *t
			result = append(result, &c)
		}
	}
	sortTasks(result)
	return result, nil
}

// ListTasksByStage returns the flat rows for one stage.
func (db *DB) ListTasksByStage(stageID string) ([]*Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var result []*Task
	for _, t := range db.tasks {
		if t.StageID == stageID {
			c := *t
			result = append(result, &c)
		}
	}
	sortTasks(result)
	return result, nil
}

func (db *DB) DeleteTask(id string) error {
	return db.Update(func(tx *Tx) error {
		delete(tx.db.tasks, id)
		tx.touch(TableTasks)
		return nil
	})
}

func (db *DB) CountTasks() (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.tasks), nil
}

// =============================================================================
// Habits
// =============================================================================

func (db *DB) UpsertHabit(h *Habit) error {
	return db.Update(func(tx *Tx) error {
		return tx.UpsertHabit(h)
	})
}

func (tx *Tx) UpsertHabit(h *Habit) error {
	if h.ID == "" {
		return fmt.Errorf("habit id is required")
	}
	now := time.Now().UnixMilli()
	if existing, ok := tx.db.habits[h.ID]; ok {
		h.CreatedAt = existing.CreatedAt
	} else if h.CreatedAt == 0 {
		h.CreatedAt = now
	}
	h.UpdatedAt = now
	c := *h
	tx.db.habits[h.ID] = &c
	tx.touch(TableHabits)
	return nil
}

func (db *DB) GetHabit(id string) (*Habit, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if h, ok := db.habits[id]; ok {
		c := *h
		return &c, nil
	}
	return nil, nil
}

// ListHabits returns habits, optionally filtered by stage id.
func (db *DB) ListHabits(stageID string) ([]*Habit, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var result []*Habit
	for _, h := range db.habits {
		if stageID == "" || h.StageID == stageID {
			c := *h
			result = append(result, &c)
		}
	}
	sortHabits(result)
	return result, nil
}

func (tx *Tx) ListHabits() []*Habit {
	var result []*Habit
	for _, h := range tx.db.habits {
		c := *h
		result = append(result, &c)
	}
	sortHabits(result)
	return result
}

func (db *DB) DeleteHabit(id string) error {
	return db.Update(func(tx *Tx) error {
		return tx.DeleteHabit(id)
	})
}

func (tx *Tx) DeleteHabit(id string) error {
	delete(tx.db.habits, id)
	tx.touch(TableHabits)
	return nil
}

// AddHabitCompletion appends a completion row and bumps the habit's streak
// bookkeeping.
func (db *DB) AddHabitCompletion(hc *HabitCompletion) error {
	return db.Update(func(tx *Tx) error {
		habit, ok := tx.db.habits[hc.HabitID]
		if !ok {
			return fmt.Errorf("habit %s not found", hc.HabitID)
		}
		if hc.ID == 0 {
			tx.db.nextCompletionID++
			hc.ID = tx.db.nextCompletionID
		}
		if hc.CompletedAt == 0 {
			hc.CompletedAt = time.Now().UnixMilli()
		}
		c := *hc
		tx.db.habitCompletions[hc.ID] = &c
		tx.touch(TableHabitCompletions)

		habit.CurrentStreak++
		if habit.CurrentStreak > habit.LongestStreak {
			habit.LongestStreak = habit.CurrentStreak
		}
		completedAt := hc.CompletedAt
		habit.LastCompletedAt = &completedAt
		habit.UpdatedAt = time.Now().UnixMilli()
		tx.touch(TableHabits)
		return nil
	})
}

// ListHabitCompletions returns a habit's completions, oldest first.
func (db *DB) ListHabitCompletions(habitID string) ([]*HabitCompletion, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var result []*HabitCompletion
	for _, hc := range db.habitCompletions {
		if habitID == "" || hc.HabitID == habitID {
			c := *hc
			result = append(result, &c)
		}
	}
	sortCompletions(result)
	return result, nil
}

// =============================================================================
// Hero profile and attributes
// =============================================================================

// HeroProfile returns the singleton profile, (nil, nil) when absent.
func (db *DB) HeroProfile() (*HeroProfile, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.heroProfile == nil {
		return nil, nil
	}
	c := *db.heroProfile
	return &c, nil
}

func (tx *Tx) HeroProfile() *HeroProfile {
	if tx.db.heroProfile == nil {
		return nil
	}
	c := *tx.db.heroProfile
	return &c
}

// SaveHeroProfile upserts the singleton; the id is forced to 1.
func (db *DB) SaveHeroProfile(p *HeroProfile) error {
	return db.Update(func(tx *Tx) error {
		return tx.SaveHeroProfile(p)
	})
}

func (tx *Tx) SaveHeroProfile(p *HeroProfile) error {
	now := time.Now().UnixMilli()
	p.ID = HeroProfileID
	if tx.db.heroProfile != nil {
		p.CreatedAt = tx.db.heroProfile.CreatedAt
	} else if p.CreatedAt == 0 {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	c := *p
	tx.db.heroProfile = &c
	tx.touch(TableHeroProfile)
	return nil
}

func (db *DB) UpsertAttribute(a *HeroAttribute) error {
	return db.Update(func(tx *Tx) error {
		return tx.UpsertAttribute(a)
	})
}

func (tx *Tx) UpsertAttribute(a *HeroAttribute) error {
	if a.ID == "" {
		return fmt.Errorf("attribute id is required")
	}
	a.UpdatedAt = time.Now().UnixMilli()
	tx.db.heroAttributes[a.ID] = cloneAttribute(a)
	tx.touch(TableHeroAttributes)
	return nil
}

func (db *DB) GetAttribute(id string) (*HeroAttribute, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if a, ok := db.heroAttributes[id]; ok {
		return cloneAttribute(a), nil
	}
	return nil, nil
}

func (db *DB) ListAttributes() ([]*HeroAttribute, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := make([]*HeroAttribute, 0, len(db.heroAttributes))
	for _, a := range db.heroAttributes {
		result = append(result, cloneAttribute(a))
	}
	sortAttributes(result)
	return result, nil
}

// AddAttributeHistory appends an XP delta record.
func (db *DB) AddAttributeHistory(h *AttributeHistory) error {
	return db.Update(func(tx *Tx) error {
		if h.ID == 0 {
			tx.db.nextHistoryID++
			h.ID = tx.db.nextHistoryID
		}
		if h.At == 0 {
			h.At = time.Now().UnixMilli()
		}
		c := *h
		tx.db.attributeHistory[h.ID] = &c
		tx.touch(TableAttributeHistory)
		return nil
	})
}

// ListAttributeHistory returns deltas for one attribute, oldest first.
func (db *DB) ListAttributeHistory(attributeID string) ([]*AttributeHistory, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var result []*AttributeHistory
	for _, h := range db.attributeHistory {
		if attributeID == "" || h.AttributeID == attributeID {
			c := *h
			result = append(result, &c)
		}
	}
	sortHistory(result)
	return result, nil
}

func (db *DB) UpsertAttributeGoal(g *AttributeGoal) error {
	return db.Update(func(tx *Tx) error {
		now := time.Now().UnixMilli()
		if g.ID == 0 {
			tx.db.nextGoalID++
			g.ID = tx.db.nextGoalID
		}
		if g.CreatedAt == 0 {
			g.CreatedAt = now
		}
		g.UpdatedAt = now
		c := *g
		tx.db.attributeGoals[g.ID] = &c
		tx.touch(TableAttributeGoals)
		return nil
	})
}

func (db *DB) ListAttributeGoals(attributeID string) ([]*AttributeGoal, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var result []*AttributeGoal
	for _, g := range db.attributeGoals {
		if attributeID == "" || g.AttributeID == attributeID {
			c := *g
			result = append(result, &c)
		}
	}
	sortGoals(result)
	return result, nil
}

func (db *DB) DeleteAttributeGoal(id int64) error {
	return db.Update(func(tx *Tx) error {
		delete(tx.db.attributeGoals, id)
		tx.touch(TableAttributeGoals)
		return nil
	})
}
