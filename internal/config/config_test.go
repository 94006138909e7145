package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 500*time.Millisecond, cfg.Render.Interval.Std())
	require.True(t, cfg.Events.Forward)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.toml"), WithEnvFile(""), WithLookup(noEnv))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "flowpanel.toml", `
[log]
level = "debug"
format = "json"

[render]
interval = "1s"
drag_interval = "50ms"

[editor]
theme = "light"

[files]
records = "diagrams.yaml"
rules = "rules.yaml"

[preview]
enabled = true
`)
	cfg, err := Load(path, WithEnvFile(""), WithLookup(noEnv))
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, time.Second, cfg.Render.Interval.Std())
	require.Equal(t, 50*time.Millisecond, cfg.Render.DragInterval.Std())
	require.Equal(t, "light", cfg.Editor.Theme)
	require.Equal(t, Default().Editor.URL, cfg.Editor.URL)
	require.Equal(t, "diagrams.yaml", cfg.Files.Records)
	require.Equal(t, "rules.yaml", cfg.Files.Rules)
	require.True(t, cfg.Preview.Enabled)
}

func TestLoadBadFile(t *testing.T) {
	path := writeFile(t, "bad.toml", "[render\ninterval = ")
	_, err := Load(path, WithEnvFile(""), WithLookup(noEnv))
	require.Error(t, err)

	path = writeFile(t, "bad-duration.toml", "[render]\ninterval = \"soon\"\n")
	_, err = Load(path, WithEnvFile(""), WithLookup(noEnv))
	require.Error(t, err)
}

func TestEnvOverridesFileAndDotenv(t *testing.T) {
	path := writeFile(t, "flowpanel.toml", "[editor]\ntheme = \"light\"\n")
	dotenv := writeFile(t, ".env", "FLOWPANEL_EDITOR_THEME=min\nFLOWPANEL_FILES_SERIES=series.yaml\n")

	cfg, err := Load(path, WithEnvFile(dotenv), WithLookup(noEnv))
	require.NoError(t, err)
	require.Equal(t, "min", cfg.Editor.Theme)
	require.Equal(t, "series.yaml", cfg.Files.Series)

	cfg, err = Load(path, WithEnvFile(dotenv), WithLookup(envOf(map[string]string{
		"FLOWPANEL_EDITOR_THEME":    "kennedy",
		"FLOWPANEL_RENDER_INTERVAL": "2s",
		"FLOWPANEL_EVENTS_FORWARD":  "off",
		"FLOWPANEL_PREVIEW_ENABLED": "yes",
	})))
	require.NoError(t, err)
	require.Equal(t, "kennedy", cfg.Editor.Theme)
	require.Equal(t, "series.yaml", cfg.Files.Series)
	require.Equal(t, 2*time.Second, cfg.Render.Interval.Std())
	require.False(t, cfg.Events.Forward)
	require.True(t, cfg.Preview.Enabled)
}

func TestEnvInvalid(t *testing.T) {
	_, err := Load("", WithEnvFile(""), WithLookup(envOf(map[string]string{
		"FLOWPANEL_RENDER_INTERVAL": "fast",
	})))
	require.ErrorIs(t, err, ErrInvalidEnv)

	_, err = Load("", WithEnvFile(""), WithLookup(envOf(map[string]string{
		"FLOWPANEL_PREVIEW_ENABLED": "maybe",
	})))
	require.ErrorIs(t, err, ErrInvalidEnv)
}

func TestMissingDotenvIgnored(t *testing.T) {
	_, err := Load("", WithEnvFile(filepath.Join(t.TempDir(), ".env")), WithLookup(noEnv))
	require.NoError(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Render.Interval = 0
	require.ErrorIs(t, cfg.Validate(), ErrInvalidInterval)

	cfg = Default()
	cfg.Editor.InTopic = ""
	require.ErrorIs(t, cfg.Validate(), ErrMissingTopic)

	cfg = Default()
	cfg.Events.Topic = ""
	require.ErrorIs(t, cfg.Validate(), ErrMissingTopic)
	cfg.Events.Forward = false
	require.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Log.Level = "chatty"
	require.Error(t, cfg.Validate())
}

func TestEncodeRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Files.Rules = "rules.yaml"
	b, err := cfg.Encode()
	require.NoError(t, err)

	path := writeFile(t, "out.toml", string(b))
	got, err := Load(path, WithEnvFile(""), WithLookup(noEnv))
	require.NoError(t, err)
	require.Equal(t, cfg, got)
}
