package bootstrap

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestBootstrapFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bootstrap_users.csv")
	require.NoError(t, os.WriteFile(path, []byte("user_id,password_hash,salt,is_superuser\n"), 0600))
	return path
}

func TestWatcherDeletesAfterKthPoll(t *testing.T) {
	path := writeTestBootstrapFile(t)

	const k = 7
	polls := 0
	w := &Watcher{
		File:     path,
		Interval: time.Millisecond,
		Probe: func() error {
			polls++
			if polls < k {
				return errors.New("not up yet")
			}
			// The file must still exist until the broker is healthy.
			_, err := os.Stat(path)
			assert.NoError(t, err, "file deleted before the broker reported healthy")
			return nil
		},
		Log: zerolog.Nop(),
	}

	require.NoError(t, w.Run())
	assert.Equal(t, k, polls)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "file must be gone after the successful poll")
}

func TestWatcherFirstPollHealthy(t *testing.T) {
	path := writeTestBootstrapFile(t)

	polls := 0
	w := &Watcher{
		File:     path,
		Interval: time.Millisecond,
		Probe: func() error {
			polls++
			return nil
		},
		Log: zerolog.Nop(),
	}

	require.NoError(t, w.Run())
	assert.Equal(t, 1, polls)
}

func TestWatcherTimeoutLeavesFile(t *testing.T) {
	path := writeTestBootstrapFile(t)

	polls := 0
	w := &Watcher{
		File:     path,
		Interval: time.Millisecond,
		Attempts: 60,
		Probe: func() error {
			polls++
			return errors.New("never healthy")
		},
		Log: zerolog.Nop(),
	}

	err := w.Run()
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 60, polls, "exactly the attempt budget")
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "file must survive a timeout")
}

func TestWatcherRemoveFailure(t *testing.T) {
	w := &Watcher{
		File:     "/nonexistent/bootstrap_users.csv",
		Interval: time.Millisecond,
		Probe:    func() error { return nil },
		Remove:   func(string) error { return errors.New("EACCES") },
		Log:      zerolog.Nop(),
	}

	err := w.Run()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
}
