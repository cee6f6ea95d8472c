package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	prev := WatchDebounce
	WatchDebounce = 20 * time.Millisecond
	t.Cleanup(func() { WatchDebounce = prev })

	path := writeFile(t, t.TempDir(), "[log]\nlevel = \"info\"\n")

	got := make(chan *Config, 4)
	w, err := NewWatcher(path, func(c *Config) { got <- c })
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	// broken edit is skipped
	require.NoError(t, os.WriteFile(path, []byte("[log\n"), 0600))
	select {
	case c := <-got:
		t.Fatalf("unexpected reload: %+v", c.Log)
	case <-time.After(200 * time.Millisecond):
	}

	// atomic replace, as config init --force does
	require.NoError(t, AtomicWrite(path, []byte("[log]\nlevel = \"debug\"\n\n[schedule]\nscan = \"@hourly\"\n"), 0600))

	select {
	case c := <-got:
		assert.Equal(t, "debug", c.Log.Level)
		assert.Equal(t, "@hourly", c.Schedule.Scan)
		assert.Equal(t, Default().HTTP, c.HTTP)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after change")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	prev := WatchDebounce
	WatchDebounce = 10 * time.Millisecond
	t.Cleanup(func() { WatchDebounce = prev })

	dir := t.TempDir()
	path := writeFile(t, dir, "")

	got := make(chan *Config, 1)
	w, err := NewWatcher(path, func(c *Config) { got <- c })
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(path+".bak.1", []byte("x"), 0600))
	select {
	case <-got:
		t.Fatal("reload for unrelated file")
	case <-time.After(150 * time.Millisecond):
	}

	w.Stop()
	w.Stop()
}
