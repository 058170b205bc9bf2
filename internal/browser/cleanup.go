package browser

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"livecast/internal/logging"
)

// ErrEmptyTag guards against killing every Chrome on the host.
var ErrEmptyTag = errors.New("cleanup requires a non-empty session tag")

// procRoot is swapped in tests.
var procRoot = "/proc"

// killFn is swapped in tests.
var killFn = func(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}

// CleanupTagged kills chrome and chromedriver processes whose command line
// contains tag and returns their PIDs.
func CleanupTagged(tag string) ([]int, error) {
	if strings.TrimSpace(tag) == "" {
		return nil, ErrEmptyTag
	}

	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return nil, fmt.Errorf("scan processes: %w", err)
	}

	self := os.Getpid()
	var killed []int
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid == self {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(procRoot, e.Name(), "cmdline"))
		if err != nil || len(raw) == 0 {
			continue
		}
		cmdline := string(bytes.ReplaceAll(raw, []byte{0}, []byte{' '}))
		if !isChrome(cmdline) || !strings.Contains(cmdline, tag) {
			continue
		}
		if err := killFn(pid); err != nil {
			logging.BrowserWarn("kill %d: %v", pid, err)
			continue
		}
		killed = append(killed, pid)
	}

	if len(killed) > 0 {
		logging.Browser("killed %d processes tagged %s", len(killed), tag)
	}
	return killed, nil
}

func isChrome(cmdline string) bool {
	lower := strings.ToLower(cmdline)
	return strings.Contains(lower, "chrome") || strings.Contains(lower, "chromium")
}
