package history

import "time"

type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Call is one recorded tool invocation.
type Call struct {
	ID         string    `json:"id"`
	Tool       string    `json:"tool"`
	Arguments  string    `json:"arguments"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

type ListOptions struct {
	Tool   string
	Status Status
	Limit  int
}
