package types

import "time"

// LockFileContent is the JSON payload written to a ConfigLock's lock file.
type LockFileContent struct {
	Holder     string     `json:"holder"`
	PID        int        `json:"pid"`
	Hostname   string     `json:"hostname"`
	AcquiredAt time.Time  `json:"acquiredAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	Operation  string     `json:"operation"`
	Heartbeat  *time.Time `json:"heartbeat,omitempty"`
}

// SameOwner reports whether other was written by the same (pid, hostname)
// pair as c - the check a release or heartbeat tick must pass before it is
// allowed to touch the lock file.
func (c LockFileContent) SameOwner(other LockFileContent) bool {
	return c.PID == other.PID && c.Hostname == other.Hostname
}
