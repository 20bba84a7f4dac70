package lock

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// LockInfo contains metadata about who holds a lock.
type LockInfo struct {
	Token    string    `json:"token"`
	User     string    `json:"user"`
	Hostname string    `json:"hostname"`
	Started  time.Time `json:"started"`
	Renewed  time.Time `json:"renewed,omitempty"`
	PID      int       `json:"pid"`
	Purpose  string    `json:"purpose,omitempty"`
}

// NewLockInfo creates a LockInfo for the current process with a fresh owner token.
func NewLockInfo(purpose string) *LockInfo {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	user := os.Getenv("USER")
	if user == "" {
		user = "unknown"
	}

	return &LockInfo{
		Token:    uuid.NewString(),
		User:     user,
		Hostname: hostname,
		Started:  time.Now(),
		PID:      os.Getpid(),
		Purpose:  purpose,
	}
}

// Age returns how long ago the lock was acquired.
func (i *LockInfo) Age() time.Duration {
	return time.Since(i.Started)
}

// Idle returns how long ago the holder last showed signs of life: the
// later of acquiring the lock and its last Refresh.
func (i *LockInfo) Idle() time.Duration {
	if i.Renewed.After(i.Started) {
		return time.Since(i.Renewed)
	}
	return time.Since(i.Started)
}

// Marshal serializes the LockInfo to JSON.
func (i *LockInfo) Marshal() ([]byte, error) {
	return json.Marshal(i)
}

// ParseLockInfo deserializes JSON data into a LockInfo.
func ParseLockInfo(data []byte) (*LockInfo, error) {
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// String returns a human-readable description of who holds the lock.
func (i *LockInfo) String() string {
	return i.User + "@" + i.Hostname + " (pid " + strconv.Itoa(i.PID) + ")"
}
