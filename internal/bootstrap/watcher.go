package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Watcher poll schedule: the broker can take a while to form its cluster
// state on first boot, so the budget is generous — five minutes total.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollAttempts = 60
)

// ErrTimeout is returned when the watcher exhausts its poll budget without
// observing a healthy broker. The bootstrap file is left in place; it holds
// a salted hash, not the plaintext password, so this is a disclosed
// residual risk rather than a failure.
var ErrTimeout = errors.New("broker did not report healthy within the poll budget")

// Watcher deletes the bootstrap file once the broker reports healthy. The
// health check doubles as a readiness barrier: a healthy broker has
// completed its startup-time read of the file.
type Watcher struct {
	// File is the bootstrap file to remove.
	File string

	// Interval between polls and the total attempt budget. Zero values
	// take the defaults.
	Interval time.Duration
	Attempts int

	// Probe checks broker health; nil means `emqx ctl status`.
	Probe func() error

	// Remove deletes the file; nil means os.Remove.
	Remove func(string) error

	Log zerolog.Logger
}

// Run polls until the broker is healthy, then removes the bootstrap file.
// Returns ErrTimeout when the attempt budget is exhausted; the file stays
// on disk and a warning is logged.
func (w *Watcher) Run() error {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	attempts := w.Attempts
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	probe := w.Probe
	if probe == nil {
		probe = brokerStatus
	}
	remove := w.Remove
	if remove == nil {
		remove = os.Remove
	}

	for i := 1; i <= attempts; i++ {
		if err := probe(); err == nil {
			if err := remove(w.File); err != nil {
				w.Log.Error().Err(err).Str("file", w.File).
					Msg("broker is healthy but the bootstrap file could not be removed")
				return fmt.Errorf("removing bootstrap file: %w", err)
			}
			w.Log.Info().Int("attempt", i).Str("file", w.File).
				Msg("broker healthy, bootstrap file removed")
			return nil
		}
		if i < attempts {
			time.Sleep(interval)
		}
	}

	w.Log.Warn().Str("file", w.File).Int("attempts", attempts).
		Msg("broker never reported healthy; bootstrap file left on disk (salted hash only, no plaintext)")
	return ErrTimeout
}

// brokerStatus asks the broker itself whether it is up.
func brokerStatus() error {
	return exec.Command("emqx", "ctl", "status").Run()
}

// SpawnWatcher re-executes this binary as a detached watcher process
// (`wesense entrypoint watch`). The child gets its own session so its
// lifetime is not tied to the wrapper's code path: it keeps running after
// the wrapper's process image is replaced by the broker. Its output goes to
// the container's log stream.
func SpawnWatcher(file string) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating own binary for watcher: %w", err)
	}

	cmd := exec.Command(self, "entrypoint", "watch", "--file", file)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting watcher process: %w", err)
	}
	// Deliberately not waited on: after the exec handoff there is no
	// wrapper left to wait. Init collects it.
	return cmd.Process.Release()
}
