package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/require"

	"github.com/dshills/flowpanel/internal/config"
	"github.com/dshills/flowpanel/internal/editor"
	"github.com/dshills/flowpanel/internal/pipeline"
)

const recordsYAML = `diagrams:
  - name: Main
    options:
      zoom: 150%
  - name: Network
`

const rulesYAML = `rules:
  - uid: cpu
    alias: cpu
    pattern: "host.*.cpu"
    cells: [cell-3]
    script: "return value > 0.9 and 2 or 0"
`

const seriesYAML = `series:
  - name: host.a.cpu
    points:
      - {at: 2026-01-02T15:04:05Z, value: 0.95}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Render.Interval = config.Duration(10 * time.Millisecond)
	return cfg
}

func TestNewWithoutFiles(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)
	defer app.Close()

	require.Equal(t, 1, app.Orchestrator().Count())
	d, ok := app.Orchestrator().Get(pipeline.DefaultDiagramName)
	require.True(t, ok)
	require.Equal(t, pipeline.DefaultDiagramName, d.Name())

	app.Tick(context.Background())
	require.False(t, app.Orchestrator().Flags().Any())

	app.Close()
	app.Close()
	require.ErrorIs(t, app.Run(context.Background()), ErrClosed)
}

func TestLoadFilesAndTick(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.Files.Records = writeFile(t, dir, "diagrams.yaml", recordsYAML)
	cfg.Files.Rules = writeFile(t, dir, "rules.yaml", rulesYAML)
	cfg.Files.Series = writeFile(t, dir, "series.yaml", seriesYAML)

	app, err := New(cfg)
	require.NoError(t, err)
	defer app.Close()

	orch := app.Orchestrator()
	require.Equal(t, 2, orch.Count())
	require.Len(t, orch.Rules(), 1)
	require.Len(t, app.Series().Series(), 1)

	app.Tick(context.Background())

	d, ok := orch.Get("Main")
	require.True(t, ok)
	require.Equal(t, "150%", d.Options().Zoom)
	st, ok := d.States()["cell-3"]
	require.True(t, ok)
	require.Equal(t, 2, st.Level)
	require.True(t, st.HasData)
}

func TestBadFileFailsNew(t *testing.T) {
	cfg := testConfig(t)
	cfg.Files.Rules = writeFile(t, t.TempDir(), "rules.yaml", "rules: [")
	_, err := New(cfg)
	require.Error(t, err)
}

func TestRunReloadsWatchedFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.Files.Rules = writeFile(t, dir, "rules.yaml", rulesYAML)
	cfg.Files.Series = writeFile(t, dir, "series.yaml", seriesYAML)

	app, err := New(cfg)
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	d, ok := app.Orchestrator().Get(pipeline.DefaultDiagramName)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		return d.States()["cell-3"].Level == 2
	}, 2*time.Second, 10*time.Millisecond)

	writeFile(t, dir, "series.yaml", `series:
  - name: host.a.cpu
    points:
      - {at: 2026-01-02T15:05:05Z, value: 0.2}
`)
	require.Eventually(t, func() bool {
		st, ok := d.States()["cell-3"]
		return ok && st.Level == 0 && st.Value == 0.2
	}, 3*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return app.Forwarded() > 0 }, 2*time.Second, 10*time.Millisecond)
	require.ErrorIs(t, app.Run(ctx), ErrAlreadyRunning)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestPreviewQuitKey(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	cfg := testConfig(t)

	app, err := New(cfg, WithScreen(screen))
	require.NoError(t, err)
	defer app.Close()

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return !app.Orchestrator().Flags().Any()
	}, 2*time.Second, 10*time.Millisecond)

	screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("quit key did not stop the panel")
	}
}

func TestPreviewEditorAndMappingKeys(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.Files.Rules = writeFile(t, dir, "rules.yaml", rulesYAML)

	app, err := New(cfg, WithScreen(screen))
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out, err := app.Broker().Subscribe(ctx, cfg.Editor.OutTopic)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	orch := app.Orchestrator()

	screen.InjectKey(tcell.KeyRune, 'e', tcell.ModNone)
	select {
	case msg := <-out:
		msg.Ack()
		require.Equal(t, editor.CommandOpen, msg.Metadata.Get(editor.MetaCommand))
		require.Contains(t, msg.Metadata.Get(editor.MetaURL), cfg.Editor.URL)
	case <-time.After(2 * time.Second):
		t.Fatal("editor was not opened")
	}
	require.Eventually(t, orch.EditorSession().IsOpen, time.Second, 10*time.Millisecond)

	screen.InjectKey(tcell.KeyRune, 'm', tcell.ModNone)
	require.Eventually(t, func() bool {
		return orch.IsMapping(nil) && orch.MappingSession().TargetID == "cpu"
	}, time.Second, 10*time.Millisecond)

	screen.InjectKey(tcell.KeyRune, 'm', tcell.ModNone)
	require.Eventually(t, func() bool { return !orch.IsMapping(nil) }, time.Second, 10*time.Millisecond)

	screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("quit key did not stop the panel")
	}
}

func TestPreviewForgetsDestroyedDiagrams(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.Files.Records = writeFile(t, dir, "diagrams.yaml", recordsYAML)

	app, err := New(cfg, WithScreen(screen))
	require.NoError(t, err)
	defer app.Close()
	screen.SetSize(80, 24)

	ctx := context.Background()
	app.Tick(ctx)
	require.Contains(t, screenText(screen), "Network")

	require.True(t, app.Orchestrator().Remove(ctx, "Network"))
	app.Tick(ctx)
	text := screenText(screen)
	require.Contains(t, text, "Main")
	require.NotContains(t, text, "Network")
}

func screenText(s tcell.Screen) string {
	w, h := s.Size()
	var b strings.Builder
	for y := range h {
		for x := range w {
			r, _, _, _ := s.GetContent(x, y) //nolint:staticcheck // GetContent is the correct API
			if r == 0 {
				r = ' '
			}
			b.WriteRune(r)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
