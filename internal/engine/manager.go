// Package engine selects and initializes the active storage engine. The
// document engine is opt-in via the db_engine setting; any failure while
// bringing it up forces a fallback to the relational engine and persists
// that choice, so the next start does not retry a broken engine.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/hack-pad/hackpadfs"
	"go.uber.org/zap"

	"github.com/studyquest/studyquest/internal/backup"
	"github.com/studyquest/studyquest/internal/docstore"
	"github.com/studyquest/studyquest/internal/migrate"
	"github.com/studyquest/studyquest/internal/store"
)

// Engine identifies a storage engine. The setting values are historical:
// installations written before the Go port carry them.
type Engine string

const (
	EngineRelational Engine = "sqlite"
	EngineDocument   Engine = "dexie"
)

// State of the manager's lifecycle.
type State string

const (
	StateNew          State = "new"
	StateInitializing State = "initializing"
	StateInitialized  State = "initialized"
	StateError        State = "error"
)

// Manager owns the engine choice and the document-engine lifecycle. The
// relational store is always open (settings and sessions live there
// regardless of engine); the document store only exists while selected.
type Manager struct {
	mu sync.Mutex

	rel        *store.SQLiteStore
	shadow     *backup.ShadowStore
	fs         hackpadfs.FS
	docPath    string
	flushDelay time.Duration
	log        *zap.SugaredLogger

	engine    Engine
	state     State
	active    store.PlanStore
	doc       *docstore.DB
	persister *docstore.Persister
	lastErr   error
}

func NewManager(rel *store.SQLiteStore, shadow *backup.ShadowStore, fs hackpadfs.FS,
	docPath string, flushDelay time.Duration, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{
		rel:        rel,
		shadow:     shadow,
		fs:         fs,
		docPath:    docPath,
		flushDelay: flushDelay,
		log:        log,
		engine:     EngineRelational,
		state:      StateNew,
		active:     rel,
	}
}

// Initialize reads the engine preference and brings the chosen engine up.
// A document-engine failure is not fatal: the manager falls back to the
// relational engine, persists that choice and still reports success. Only a
// relational failure leaves the manager in the error state.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = StateInitializing
	m.lastErr = nil

	// Pointer repair predates engine choice: it fixes relational state both
	// engines depend on.
	if err := migrate.RepairActivePlanPointer(m.rel, m.log); err != nil {
		m.log.Errorw("active plan pointer repair failed", "error", err)
	}

	preferred := EngineRelational
	if value, ok, err := m.rel.LoadSetting(store.SettingDBEngine, store.CategoryGeneral); err != nil {
		m.state = StateError
		m.lastErr = err
		return fmt.Errorf("failed to read engine preference: %w", err)
	} else if ok && Engine(value) == EngineDocument {
		preferred = EngineDocument
	}

	if preferred == EngineDocument {
		if err := m.initDocumentLocked(); err != nil {
			m.log.Errorw("document engine initialization failed, falling back", "error", err)
			m.lastErr = err
			m.teardownDocumentLocked()
			if err := m.persistEngineLocked(EngineRelational); err != nil {
				m.state = StateError
				return err
			}
			preferred = EngineRelational
		}
	}

	m.engine = preferred
	if preferred == EngineDocument {
		m.active = docstore.NewPlanAdapter(m.doc, m.rel, m.log)
	} else {
		m.active = m.rel
	}
	m.state = StateInitialized
	m.log.Infow("storage engine initialized", "engine", m.engine)
	return nil
}

func (m *Manager) initDocumentLocked() error {
	doc := docstore.NewDB(m.log)
	persister, err := docstore.NewPersister(doc, m.fs, m.docPath, m.flushDelay, m.log)
	if err != nil {
		return err
	}
	if err := persister.Load(); err != nil {
		return err
	}
	m.doc = doc
	m.persister = persister

	runner := migrate.NewRunner(m.rel, doc, m.shadow, m.log)
	if err := runner.Run(); err != nil {
		return err
	}

	// Seed after the migrations so a migrated profile wins over the default.
	// This runs on every open: flag-gated migrations never fire again, but a
	// store without a profile or attributes must still get them.
	return doc.EnsureDefaults()
}

func (m *Manager) teardownDocumentLocked() {
	if m.persister != nil {
		if err := m.persister.Close(); err != nil {
			m.log.Warnw("persister close failed", "error", err)
		}
		m.persister = nil
	}
	if m.doc != nil {
		m.doc.Close()
		m.doc = nil
	}
}

func (m *Manager) persistEngineLocked(e Engine) error {
	return m.rel.SaveSetting(store.SettingDBEngine, string(e),
		store.CategoryGeneral, "Database engine preference")
}

// SwitchEngine persists a new preference and re-initializes. Switching from
// document to relational does not migrate data back; the reverse migration
// is unsupported.
func (m *Manager) SwitchEngine(e Engine) error {
	if e != EngineRelational && e != EngineDocument {
		return fmt.Errorf("unknown engine %q", e)
	}
	m.mu.Lock()
	if err := m.persistEngineLocked(e); err != nil {
		m.mu.Unlock()
		return err
	}
	m.teardownDocumentLocked()
	m.mu.Unlock()
	return m.Initialize()
}

// Shutdown flushes and releases the document engine. The relational store is
// owned by the caller and stays open.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownDocumentLocked()
	m.state = StateNew
	m.active = m.rel
	m.engine = EngineRelational
	return nil
}

// Plans returns the active engine's plan repository.
func (m *Manager) Plans() store.PlanStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Doc returns the document store, nil while the relational engine is active.
func (m *Manager) Doc() *docstore.DB {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc
}

// Persister returns the document persister, nil while the relational engine
// is active.
func (m *Manager) Persister() *docstore.Persister {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persister
}

func (m *Manager) Engine() Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError reports the most recent initialization failure, usually the
// document-engine error that forced a fallback.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}
