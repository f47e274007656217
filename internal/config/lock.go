package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/gasdevtools/gas-sync/internal/errs"
	"github.com/gasdevtools/gas-sync/internal/types"
)

const (
	lockSuffix            = ".worktree.lock"
	defaultPollInterval   = 200 * time.Millisecond
	defaultHeartbeatEvery = 60 * time.Second
	defaultStaleMax       = 30 * time.Minute
	defaultLockTimeout    = 15 * time.Minute
)

// Lock is the single cross-process exclusive lock guarding one ConfigStore
// document. Acquisition uses exclusive-create on a sibling
// "<config>.worktree.lock" file; a background heartbeat refreshes the lock
// while it is held so another process can tell a live holder from a dead
// one.
type Lock struct {
	path string

	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	StaleMax          time.Duration

	// OnWait, when set, is called with the seconds a successful
	// acquisition spent waiting - the observability hook for the
	// config-lock wait histogram.
	OnWait func(seconds float64)
}

// NewLock builds a ConfigLock guarding the document stored at configPath.
func NewLock(configPath string) *Lock {
	return &Lock{
		path:              configPath + lockSuffix,
		PollInterval:      defaultPollInterval,
		HeartbeatInterval: defaultHeartbeatEvery,
		StaleMax:          defaultStaleMax,
	}
}

// heldLock tracks one acquisition's heartbeat goroutine.
type heldLock struct {
	content types.LockFileContent
	stop    chan struct{}
	done    chan struct{}
}

// WithLock acquires the lock under operation, runs fn, and releases on
// every exit path - including fn panicking, since release runs via defer.
// timeout <= 0 uses the default of 15 minutes.
func (l *Lock) WithLock(ctx context.Context, operation string, timeout time.Duration, fn func() error) error {
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	held, err := l.acquire(ctx, operation, timeout)
	if err != nil {
		return err
	}
	defer l.release(held)
	return fn()
}

func (l *Lock) acquire(ctx context.Context, operation string, timeout time.Duration) (*heldLock, error) {
	started := time.Now()
	deadline := started.Add(timeout)
	hostname, _ := os.Hostname()
	pid := os.Getpid()

	for {
		now := time.Now().UTC()
		content := types.LockFileContent{
			Holder:     fmt.Sprintf("%s@%s", operation, hostname),
			PID:        pid,
			Hostname:   hostname,
			AcquiredAt: now,
			ExpiresAt:  now.Add(l.HeartbeatInterval * 3),
			Operation:  operation,
		}

		ok, err := l.tryCreate(content)
		if err != nil {
			return nil, errs.Wrap(errs.KindLockTimeout, "failed writing config lock file", err, nil)
		}
		if ok {
			if l.OnWait != nil {
				l.OnWait(time.Since(started).Seconds())
			}
			h := &heldLock{content: content, stop: make(chan struct{}), done: make(chan struct{})}
			go l.heartbeat(h)
			return h, nil
		}

		existing, readErr := l.read()
		if readErr == nil && l.isStale(existing) {
			_ = os.Remove(l.path)
			continue
		}

		if time.Now().After(deadline) {
			hints := map[string]string{}
			if readErr == nil {
				hints["holder"] = existing.Holder
				hints["pid"] = fmt.Sprintf("%d", existing.PID)
				hints["hostname"] = existing.Hostname
			}
			return nil, errs.New(errs.KindLockTimeout, "timed out waiting for config lock", hints)
		}

		select {
		case <-ctx.Done():
			return nil, errs.Wrap(errs.KindLockTimeout, "context canceled waiting for config lock", ctx.Err(), nil)
		case <-time.After(l.PollInterval):
		}
	}
}

// tryCreate attempts to exclusively create the lock file with content. ok
// is false (with a nil error) when the file already exists - the ordinary
// contention case, not a failure.
func (l *Lock) tryCreate(content types.LockFileContent) (ok bool, err error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	data, err := json.Marshal(content)
	if err != nil {
		return false, err
	}
	if _, err := f.Write(data); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Lock) read() (types.LockFileContent, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return types.LockFileContent{}, err
	}
	var c types.LockFileContent
	if err := json.Unmarshal(data, &c); err != nil {
		return types.LockFileContent{}, err
	}
	return c, nil
}

// isStale reports whether a lock file's recorded holder should be treated
// as dead: its expiry has passed, or (same host) its PID no longer exists,
// or (different host) it has aged past staleMax with no way to probe it.
func (l *Lock) isStale(c types.LockFileContent) bool {
	now := time.Now().UTC()
	if now.After(c.ExpiresAt) {
		return true
	}
	hostname, _ := os.Hostname()
	if c.Hostname == hostname {
		return !processAlive(c.PID)
	}
	return now.Sub(c.AcquiredAt) > l.StaleMax
}

// processAlive probes pid with signal 0 - delivers no signal, only reports
// whether the process exists and is signalable by this user.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// heartbeat periodically refreshes the lock file while held. It stops the
// moment it finds the lock file no longer owned by this holder - for
// example because another process reclaimed it as stale - rather than
// overwrite a new owner's lock.
func (l *Lock) heartbeat(h *heldLock) {
	defer close(h.done)

	ticker := time.NewTicker(l.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			existing, err := l.read()
			if err != nil || !existing.SameOwner(h.content) {
				return
			}
			now := time.Now().UTC()
			existing.Heartbeat = &now
			existing.ExpiresAt = now.Add(l.HeartbeatInterval * 3)

			data, err := json.Marshal(existing)
			if err != nil {
				continue
			}
			if err := os.WriteFile(l.path, data, 0o600); err != nil {
				continue
			}
			h.content = existing
		}
	}
}

// release stops the heartbeat and deletes the lock file, but only if it
// still belongs to this holder - a release that finds a different owner
// (because the lock was reclaimed as stale) is a no-op.
func (l *Lock) release(h *heldLock) {
	close(h.stop)
	<-h.done

	existing, err := l.read()
	if err != nil {
		return
	}
	if !existing.SameOwner(h.content) {
		return
	}
	_ = os.Remove(l.path)
}
