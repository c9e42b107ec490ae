package store

import (
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/hack-pad/hackpadfs"
	"go.uber.org/zap"
)

// DefaultFlushDelay is the debounce window between a mutation and the
// durable flush. Saves within the window coalesce into one write.
const DefaultFlushDelay = 500 * time.Millisecond

// Persister flushes the relational store to a single snapshot file on a
// hackpadfs filesystem. The browser build runs SQLite in memory and uses
// this to survive page reloads through IndexedDB; restore the snapshot with
// Load before handing the store to anything else. Flushes are debounced:
// each committed mutation re-arms a timer and only the last state in the
// window hits storage.
type Persister struct {
	db    *SQLiteStore
	fs    hackpadfs.FS
	path  string
	delay time.Duration
	log   *zap.SugaredLogger

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// NewPersister wires a persister to the store's change hook. Call Load to
// restore previous state, and Close to stop the timer and flush once more.
func NewPersister(db *SQLiteStore, fs hackpadfs.FS, filePath string, delay time.Duration, log *zap.SugaredLogger) (*Persister, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if delay <= 0 {
		delay = DefaultFlushDelay
	}
	if dir := path.Dir(filePath); dir != "." && dir != "/" {
		if err := hackpadfs.MkdirAll(fs, dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}
	p := &Persister{
		db:    db,
		fs:    fs,
		path:  filePath,
		delay: delay,
		log:   log,
	}
	db.SetOnChange(p.schedule)
	return p, nil
}

// Load restores the store from the persisted snapshot. A missing file is the
// normal first-run state, not an error.
func (p *Persister) Load() error {
	content, err := hackpadfs.ReadFile(p.fs, p.path)
	if err != nil {
		if errors.Is(err, hackpadfs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", p.path, err)
	}
	if err := p.db.ImportSnapshotJSON(content); err != nil {
		return fmt.Errorf("failed to restore relational store: %w", err)
	}
	p.log.Infow("relational store restored", "path", p.path)
	return nil
}

func (p *Persister) schedule() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.delay, func() {
		if err := p.Flush(); err != nil {
			p.log.Errorw("scheduled flush failed", "error", err)
		}
	})
}

// Flush writes the current state immediately.
func (p *Persister) Flush() error {
	data, err := p.db.ExportSnapshotJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize relational store: %w", err)
	}
	if err := hackpadfs.WriteFullFile(p.fs, p.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", p.path, err)
	}
	return nil
}

// Close stops the debounce timer and performs a final synchronous flush.
func (p *Persister) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()
	return p.Flush()
}
