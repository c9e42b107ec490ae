package docstore

import (
	"fmt"
	"strconv"
	"strings"
)

// Deterministic id synthesis. Stable ids are what make every migration and
// sync routine safely re-runnable: upsert-by-id can never duplicate rows.

// CanonicalStageID is the normalized stage id form.
func CanonicalStageID(journeyID int64, index int) string {
	return fmt.Sprintf("stage--%d--%d", journeyID, index)
}

// MigrationStageID is the form used when converting a relational plan, before
// the journey's numeric id is known to downstream code.
func MigrationStageID(planID string, index int) string {
	return fmt.Sprintf("stage--%s--%d", planID, index)
}

// MigrationTaskID derives a task id from the relational subject/topic pair.
func MigrationTaskID(subjectID, topicID string) string {
	return fmt.Sprintf("task--stage--%s--%s", subjectID, topicID)
}

// TaskID derives a task id from its stage and position.
func TaskID(stageID string, index int) string {
	return fmt.Sprintf("task--%s--%d", stageID, index)
}

// IsCanonicalStageID reports whether id already has the normalized form for
// the given journey.
func IsCanonicalStageID(id string, journeyID int64) bool {
	prefix := fmt.Sprintf("stage--%d--", journeyID)
	if !strings.HasPrefix(id, prefix) {
		return false
	}
	_, err := strconv.Atoi(id[len(prefix):])
	return err == nil
}

// JourneyRef is the string form of a journey id used in task and habit rows.
func JourneyRef(journeyID int64) string {
	return strconv.FormatInt(journeyID, 10)
}
