package browser

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeProc(t *testing.T, procs map[int]string) {
	t.Helper()
	root := t.TempDir()
	for pid, cmd := range procs {
		dir := filepath.Join(root, strconv.Itoa(pid))
		require.NoError(t, os.MkdirAll(dir, 0755))
		raw := strings.ReplaceAll(cmd, " ", "\x00")
		require.NoError(t, os.WriteFile(filepath.Join(dir, "cmdline"), []byte(raw), 0644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "self"), 0755))

	origRoot, origKill := procRoot, killFn
	procRoot = root
	t.Cleanup(func() { procRoot, killFn = origRoot, origKill })
}

func TestCleanupTagged_KillsOnlyTagged(t *testing.T) {
	tag := TagPrefix + "abc"
	fakeProc(t, map[int]string{
		101: "/usr/bin/google-chrome --headless --user-data-dir=/tmp/" + tag,
		102: "/usr/bin/chromedriver --user-data-dir=/tmp/" + tag,
		103: "/usr/bin/google-chrome --user-data-dir=/tmp/" + TagPrefix + "other",
		104: "/usr/bin/vim /tmp/" + tag,
	})

	var got []int
	killFn = func(pid int) error {
		got = append(got, pid)
		return nil
	}

	killed, err := CleanupTagged(tag)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{101, 102}, killed)
	assert.ElementsMatch(t, []int{101, 102}, got)
}

func TestCleanupTagged_EmptyTag(t *testing.T) {
	_, err := CleanupTagged("  ")
	assert.ErrorIs(t, err, ErrEmptyTag)
}

func TestCleanupTagged_NoMatches(t *testing.T) {
	fakeProc(t, map[int]string{200: "/usr/bin/chromium --headless"})
	killFn = func(int) error {
		t.Fatal("nothing should be killed")
		return nil
	}
	killed, err := CleanupTagged(TagPrefix + "missing")
	require.NoError(t, err)
	assert.Empty(t, killed)
}

func TestNewLauncher_Defaults(t *testing.T) {
	l := NewLauncher(Config{})
	assert.Equal(t, 1, l.cfg.LaunchRetries)
	assert.Equal(t, "/tmp", l.cfg.UserDataRoot)
}

func TestDriver_QuitIdempotent(t *testing.T) {
	d := &Driver{Tag: TagPrefix + "x"}
	require.NoError(t, d.Quit())
	require.NoError(t, d.Quit())
	assert.True(t, d.Closed())

	_, err := d.Fetch(t.Context(), "http://example.invalid")
	assert.ErrorIs(t, err, ErrDriverClosed)
}
