package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicIDs(t *testing.T) {
	assert.Equal(t, "stage--7--0", CanonicalStageID(7, 0))
	assert.Equal(t, "stage--plan-1--2", MigrationStageID("plan-1", 2))
	assert.Equal(t, "task--stage--subj-1--topic-1", MigrationTaskID("subj-1", "topic-1"))
	assert.Equal(t, "task--stage--7--0--3", TaskID("stage--7--0", 3))
	assert.Equal(t, "7", JourneyRef(7))
}

func TestIsCanonicalStageID(t *testing.T) {
	assert.True(t, IsCanonicalStageID("stage--7--0", 7))
	assert.True(t, IsCanonicalStageID("stage--7--12", 7))
	assert.False(t, IsCanonicalStageID("stage--8--0", 7))
	assert.False(t, IsCanonicalStageID("stage--plan-1--0", 7))
	assert.False(t, IsCanonicalStageID("legacy", 7))
}
