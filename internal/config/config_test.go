package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateConfigRoot points the profile store at a throwaway directory.
func isolateConfigRoot(t *testing.T) {
	t.Helper()
	t.Setenv("APPDATA", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestProfileLifecycle(t *testing.T) {
	isolateConfigRoot(t)

	_, err := CurrentLabel()
	assert.ErrorIs(t, err, ErrNoConfig)

	_, err = CreateConfig("Default")
	require.NoError(t, err)
	_, err = CreateConfig("work")
	require.NoError(t, err)

	_, err = CreateConfig("work")
	assert.Error(t, err, "duplicate labels are rejected")

	require.NoError(t, SwitchConfig("work"))
	label, err := CurrentLabel()
	require.NoError(t, err)
	assert.Equal(t, "work", label)

	assert.Error(t, SwitchConfig("ghost"))

	list, err := ListConfigs()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Default", list[0].Label)
	assert.False(t, list[0].Active)
	assert.Equal(t, "work", list[1].Label)
	assert.True(t, list[1].Active)

	// Removing the active profile falls back to Default.
	require.NoError(t, RemoveConfig("work"))
	label, err = CurrentLabel()
	require.NoError(t, err)
	assert.Equal(t, "Default", label)

	assert.Error(t, RemoveConfig("Default"))
}

func TestLoadMergedWithoutProfile(t *testing.T) {
	isolateConfigRoot(t)

	cfg, src, err := LoadMerged(Options{})
	require.NoError(t, err)
	assert.Contains(t, src, "default config in memory")
	assert.Equal(t, ".", cfg.Output)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 30, cfg.TimeoutSeconds)
	assert.True(t, cfg.ExpandGists)
}

func TestLoadMergedOverlaysOptions(t *testing.T) {
	isolateConfigRoot(t)

	path, err := CreateConfig("Default")
	require.NoError(t, err)
	require.NoError(t, SwitchConfig("Default"))

	saved := DefaultConfig()
	saved.Workers = 8
	saved.UserAgent = "stored-agent"
	require.NoError(t, SaveYAML(saved, path))

	cfg, src, err := LoadMerged(Options{
		Output:         "/books",
		TimeoutSeconds: 5,
		KeepTmp:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, path, src)

	assert.Equal(t, "/books", cfg.Output, "flag wins over stored value")
	assert.Equal(t, 5, cfg.TimeoutSeconds)
	assert.True(t, cfg.KeepTmp)
	assert.Equal(t, 8, cfg.Workers, "stored value survives when no flag is given")
	assert.Equal(t, "stored-agent", cfg.UserAgent)
}

func TestLoadMergedIgnoreConfig(t *testing.T) {
	isolateConfigRoot(t)

	path, err := CreateConfig("Default")
	require.NoError(t, err)
	require.NoError(t, SwitchConfig("Default"))

	stored := DefaultConfig()
	stored.Workers = 9
	require.NoError(t, SaveYAML(stored, path))

	cfg, src, err := LoadMerged(Options{IgnoreConfig: true, Workers: 3})
	require.NoError(t, err)
	assert.Contains(t, src, "ignored")
	assert.Equal(t, 3, cfg.Workers, "stored profile must not leak through")
}
