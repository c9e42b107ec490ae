package engine

import (
	"testing"

	"github.com/hack-pad/hackpadfs"
	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyquest/studyquest/internal/backup"
	"github.com/studyquest/studyquest/internal/migrate"
	"github.com/studyquest/studyquest/internal/store"
)

type testEnv struct {
	rel    *store.SQLiteStore
	shadow *backup.ShadowStore
	fs     hackpadfs.FS
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	rel, err := store.Open(":memory:", nil)
	require.NoError(t, err, "Failed to open store")
	t.Cleanup(func() { rel.Close() })

	fs, err := mem.NewFS()
	require.NoError(t, err)
	shadow, err := backup.NewShadowStore(fs, "backup")
	require.NoError(t, err)
	return &testEnv{rel: rel, shadow: shadow, fs: fs}
}

func (e *testEnv) newManager() *Manager {
	return NewManager(e.rel, e.shadow, e.fs, "documents.json", 0, nil)
}

func TestInitializeDefaultsToRelational(t *testing.T) {
	env := newTestEnv(t)
	m := env.newManager()

	require.NoError(t, m.Initialize())
	defer m.Shutdown()

	assert.Equal(t, EngineRelational, m.Engine())
	assert.Equal(t, StateInitialized, m.State())
	assert.Nil(t, m.Doc())
	assert.Same(t, env.rel, m.Plans())
}

func TestInitializeDocumentEngine(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.rel.SaveSetting(store.SettingDBEngine, string(EngineDocument), store.CategoryGeneral, ""))
	require.NoError(t, env.rel.SavePlan(&store.StudyPlan{ID: "plan-1", Name: "OAB Prep"}))

	m := env.newManager()
	require.NoError(t, m.Initialize())
	defer m.Shutdown()

	assert.Equal(t, EngineDocument, m.Engine())
	require.NotNil(t, m.Doc())
	require.NotNil(t, m.Persister())

	// The relational migration ran during bring-up.
	j, err := m.Doc().GetJourneyByLegacyID("plan-1")
	require.NoError(t, err)
	require.NotNil(t, j)

	done, ok, err := env.shadow.GetFlag(migrate.KeyRelationalMigration)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "true", done)
}

func TestInitializeSeedsDocumentDefaults(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.rel.SaveSetting(store.SettingDBEngine, string(EngineDocument), store.CategoryGeneral, ""))

	m := env.newManager()
	require.NoError(t, m.Initialize())
	defer m.Shutdown()

	profile, err := m.Doc().HeroProfile()
	require.NoError(t, err)
	require.NotNil(t, profile)

	attrs, err := m.Doc().ListAttributes()
	require.NoError(t, err)
	assert.Len(t, attrs, 4)
}

func TestInitializeSeedsDefaultsWhenMigrationsAlreadyRan(t *testing.T) {
	// A store whose migration flags are set but whose document file is gone
	// (cleared site data, fresh device) must still come up with a profile.
	env := newTestEnv(t)
	require.NoError(t, env.rel.SaveSetting(store.SettingDBEngine, string(EngineDocument), store.CategoryGeneral, ""))
	require.NoError(t, env.shadow.SetFlag(migrate.KeyRelationalMigration, "true"))
	require.NoError(t, env.shadow.SetFlag(migrate.KeyPostInitMigrations, "true"))

	m := env.newManager()
	require.NoError(t, m.Initialize())
	defer m.Shutdown()

	profile, err := m.Doc().HeroProfile()
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "Study Hero", profile.HeroName)

	attrs, err := m.Doc().ListAttributes()
	require.NoError(t, err)
	assert.Len(t, attrs, 4)
}

func TestInitializeFallsBackOnCorruptDocument(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.rel.SaveSetting(store.SettingDBEngine, string(EngineDocument), store.CategoryGeneral, ""))
	require.NoError(t, hackpadfs.WriteFullFile(env.fs, "documents.json", []byte("{corrupt"), 0644))

	m := env.newManager()
	require.NoError(t, m.Initialize(), "fallback is not an initialization failure")
	defer m.Shutdown()

	assert.Equal(t, EngineRelational, m.Engine())
	assert.Equal(t, StateInitialized, m.State())
	assert.Error(t, m.LastError())
	assert.Nil(t, m.Doc())

	// The fallback choice was persisted so the next start skips the retry.
	value, ok, err := env.rel.LoadSetting(store.SettingDBEngine, store.CategoryGeneral)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, string(EngineRelational), value)
}

func TestSwitchEngine(t *testing.T) {
	env := newTestEnv(t)
	m := env.newManager()
	require.NoError(t, m.Initialize())
	defer m.Shutdown()

	require.NoError(t, m.SwitchEngine(EngineDocument))
	assert.Equal(t, EngineDocument, m.Engine())
	require.NotNil(t, m.Doc())

	require.NoError(t, m.SwitchEngine(EngineRelational))
	assert.Equal(t, EngineRelational, m.Engine())
	assert.Nil(t, m.Doc())

	assert.Error(t, m.SwitchEngine("mongodb"))
}

func TestInitializeRepairsPointer(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.rel.SavePlan(&store.StudyPlan{ID: "plan-1", Name: "OAB Prep"}))

	m := env.newManager()
	require.NoError(t, m.Initialize())
	defer m.Shutdown()

	value, ok, err := env.rel.LoadSetting(store.SettingActivePlanID, store.CategoryGeneral)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "plan-1", value)
}

func TestShutdownResetsToRelational(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.rel.SaveSetting(store.SettingDBEngine, string(EngineDocument), store.CategoryGeneral, ""))

	m := env.newManager()
	require.NoError(t, m.Initialize())
	require.NoError(t, m.Shutdown())

	assert.Nil(t, m.Doc())
	assert.Nil(t, m.Persister())
	assert.Equal(t, EngineRelational, m.Engine())

	// Shutdown flushed the document state for the next start.
	_, err := hackpadfs.Stat(env.fs, "documents.json")
	assert.NoError(t, err)
}
