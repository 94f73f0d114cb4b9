package registry

import "time"

// Subscriber is one chat that asked for build notifications.
type Subscriber struct {
	ChatID      int64  `json:"chat_id"`
	DisplayName string `json:"display_name"`
	Approved    bool   `json:"approved"`
}

// ApprovalPolicy governs whether a subscription alone makes a chat eligible
// for broadcasts.
type ApprovalPolicy string

const (
	// ApproveAll treats every subscriber as approved.
	ApproveAll ApprovalPolicy = "all"
	// ApproveManual requires approval to be granted out of band.
	ApproveManual ApprovalPolicy = "manual"
)

func ParsePolicy(s string) ApprovalPolicy {
	if ApprovalPolicy(s) == ApproveManual {
		return ApproveManual
	}
	return ApproveAll
}

// Repository is the durable storage collaborator. Save is called
// synchronously after every registry mutation, so persisted state never
// lags the committed in-memory state.
type Repository interface {
	Load() ([]Subscriber, error)
	Save(snapshot []Subscriber) error
	Close() error
}

// Config selects the repository driver.
//
// Driver values:
//   - "file": JSON snapshot file (default)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", subscriptions are held in memory only.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
