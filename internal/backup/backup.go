package backup

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/studyquest/studyquest/internal/store"
)

// Shadow keys. Historical values, shared with existing installations.
const (
	KeySessions = "backup_study_sessions"
	KeyPlan     = "backup_study_plan"
	KeySubjects = "backup_subjects"
	KeyLastSync = "last_session_sync"
)

// Manager writes shadow copies of plan and session state after every
// successful primary mutation, and recovers from them when primary loads
// come back empty. The shadow is a best-effort cache, never a source of
// truth: it only flows back into the primary store through ForceSyncSessions.
type Manager struct {
	shadow *ShadowStore
	log    *zap.SugaredLogger
}

func NewManager(shadow *ShadowStore, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{shadow: shadow, log: log}
}

// Report summarizes primary/shadow session state for diagnostics.
type Report struct {
	TotalSessions     int    `json:"totalSessions"`
	BackupSessions    int    `json:"backupSessions"`
	CorruptedSessions int    `json:"corruptedSessions"`
	LastSyncTime      string `json:"lastSyncTime,omitempty"`
}

// BackupSessions replaces the session shadow with the full current set.
func (m *Manager) BackupSessions(sessions []*store.StudySession) error {
	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("failed to serialize session backup: %w", err)
	}
	return m.shadow.Set(KeySessions, data)
}

// LoadSessions reads the session shadow; (nil, nil) when absent.
func (m *Manager) LoadSessions() ([]*store.StudySession, error) {
	data, ok, err := m.shadow.Get(KeySessions)
	if err != nil || !ok {
		return nil, err
	}
	var sessions []*store.StudySession
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("failed to parse session backup: %w", err)
	}
	return sessions, nil
}

// BackupPlan shadows the active plan.
func (m *Manager) BackupPlan(plan *store.StudyPlan) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to serialize plan backup: %w", err)
	}
	if err := m.shadow.Set(KeyPlan, data); err != nil {
		return err
	}
	// Subjects get their own key so a plan row that lost its subject tree
	// can still be repaired.
	subjects, err := json.Marshal(plan.Subjects)
	if err != nil {
		return fmt.Errorf("failed to serialize subject backup: %w", err)
	}
	return m.shadow.Set(KeySubjects, subjects)
}

// LoadPlan reads the plan shadow; (nil, nil) when absent.
func (m *Manager) LoadPlan() (*store.StudyPlan, error) {
	data, ok, err := m.shadow.Get(KeyPlan)
	if err != nil || !ok {
		return nil, err
	}
	var plan store.StudyPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan backup: %w", err)
	}
	return &plan, nil
}

// LoadSubjects reads the subject shadow; (nil, nil) when absent.
func (m *Manager) LoadSubjects() ([]store.Subject, error) {
	data, ok, err := m.shadow.Get(KeySubjects)
	if err != nil || !ok {
		return nil, err
	}
	var subjects []store.Subject
	if err := json.Unmarshal(data, &subjects); err != nil {
		return nil, fmt.Errorf("failed to parse subject backup: %w", err)
	}
	return subjects, nil
}

func validSession(session *store.StudySession) bool {
	return session != nil && session.ID != "" && session.StartTime != 0
}

// ForceSyncSessions replays every valid shadowed session through the normal
// save path. Malformed entries (missing id or start time) are skipped, not
// fatal. The shadow key is cleared only after at least one successful
// replay, and the last-sync marker is stamped.
func (m *Manager) ForceSyncSessions(sessions store.SessionStore) (int, error) {
	backed, err := m.LoadSessions()
	if err != nil {
		return 0, err
	}
	if len(backed) == 0 {
		m.log.Debug("no backup sessions to sync")
		return 0, nil
	}

	success := 0
	for _, session := range backed {
		if !validSession(session) {
			m.log.Warnw("skipping invalid backup session", "session", session)
			continue
		}
		if err := sessions.SaveSession(session); err != nil {
			m.log.Errorw("failed to replay backup session", "session_id", session.ID, "error", err)
			continue
		}
		success++
	}

	if success > 0 {
		if err := m.shadow.Delete(KeySessions); err != nil {
			return success, err
		}
		if err := m.shadow.Set(KeyLastSync, []byte(time.Now().Format(time.RFC3339))); err != nil {
			return success, err
		}
		m.log.Infow("backup sessions synced", "success", success, "total", len(backed))
	}
	return success, nil
}

// ValidatePersistence compares primary and shadow session state. Read-only;
// errors degrade to an empty report rather than failing the caller.
func (m *Manager) ValidatePersistence(sessions store.SessionStore) *Report {
	report := &Report{}

	primary, err := sessions.ListSessions()
	if err != nil {
		m.log.Errorw("persistence validation failed to read sessions", "error", err)
		return report
	}
	report.TotalSessions = len(primary)
	for _, session := range primary {
		if !validSession(session) {
			report.CorruptedSessions++
		}
	}

	backed, err := m.LoadSessions()
	if err != nil {
		m.log.Warnw("persistence validation failed to read backup", "error", err)
	}
	report.BackupSessions = len(backed)

	if lastSync, ok, err := m.shadow.Get(KeyLastSync); err == nil && ok {
		report.LastSyncTime = string(lastSync)
	}
	return report
}

// CleanupSessions deletes corrupted and duplicate sessions from the primary
// store. A session is corrupted when it lacks an id or start time; a
// duplicate shares an id with an earlier session. Returns the removed count.
func (m *Manager) CleanupSessions(sessions store.SessionStore) (int, error) {
	all, err := sessions.ListSessions()
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool, len(all))
	removed := 0
	for _, session := range all {
		switch {
		case session.ID == "":
			// Unreachable through the normal save path, which always assigns
			// an id; nothing to delete by.
			continue
		case session.StartTime == 0, seen[session.ID]:
			if err := sessions.DeleteSession(session.ID); err != nil {
				return removed, err
			}
			removed++
		default:
			seen[session.ID] = true
		}
	}
	if removed > 0 {
		m.log.Infow("session cleanup removed entries", "removed", removed)
	}
	return removed, nil
}
