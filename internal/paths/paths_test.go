package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigPathLookup(t *testing.T) {
	home := t.TempDir()
	work := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(work)

	t.Run("nothing found", func(t *testing.T) {
		got, err := ConfigPath("")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	global := filepath.Join(home, ".chatsweep", ConfigFileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(global), 0750))
	require.NoError(t, os.WriteFile(global, []byte("# global\n"), 0600))

	t.Run("global", func(t *testing.T) {
		got, err := ConfigPath("")
		require.NoError(t, err)
		assert.Equal(t, global, got)
	})

	local := filepath.Join(work, ConfigFileName)
	require.NoError(t, os.WriteFile(local, []byte("# local\n"), 0600))

	t.Run("local wins over global", func(t *testing.T) {
		got, err := ConfigPath("")
		require.NoError(t, err)
		assert.Equal(t, local, got)
	})

	t.Run("explicit wins", func(t *testing.T) {
		got, err := ConfigPath("~/.chatsweep/" + ConfigFileName)
		require.NoError(t, err)
		assert.Equal(t, global, got)
	})

	t.Run("explicit missing is an error", func(t *testing.T) {
		_, err := ConfigPath(filepath.Join(work, "nope.toml"))
		assert.Error(t, err)
	})
}

func TestExpandTilde(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/etc/x", "/etc/x"},
		{"~", "/home/tester"},
		{"~/a/b", "/home/tester/a/b"},
	}
	for _, tt := range tests {
		got, err := ExpandTilde(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestEnsureDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "a", "b")

	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	blocker := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))
	err = EnsureDir(filepath.Join(blocker, "sub"))
	assert.ErrorContains(t, err, "failed to create directory")
}
