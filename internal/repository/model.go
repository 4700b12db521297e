package repository

import "time"

type CallStatus string

const (
	CallStatusRunning   CallStatus = "running"
	CallStatusCompleted CallStatus = "completed"
)

type Call struct {
	ID             string
	CallSID        string
	StreamSID      string
	Caller         string
	Mode           string
	StartedAt      time.Time
	EndedAt        *time.Time
	Status         CallStatus
	StopReason     string
	Priority       string
	Facts          map[string]string
	TimingsMs      map[string]int64
	TargetMs       int64
	BudgetExceeded bool
	TurnCount      int
}

type CallTurn struct {
	ID        string
	CallID    string
	Role      string
	Content   string
	TurnIndex int
	SpokenAt  time.Time
	CreatedAt time.Time
}
