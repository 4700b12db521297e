package repository

import (
	"context"
	"time"
)

type CreateCallInput struct {
	CallSID   string
	StreamSID string
	Caller    string
	Mode      string
	StartedAt time.Time
}

type CompleteCallInput struct {
	CallID         string
	EndedAt        time.Time
	StopReason     string
	Priority       string
	Facts          map[string]string
	TimingsMs      map[string]int64
	TargetMs       int64
	BudgetExceeded bool
	TurnCount      int
}

type InsertTurnInput struct {
	CallID    string
	Role      string
	Content   string
	TurnIndex int
	SpokenAt  time.Time
}

type CallRepository interface {
	CreateCall(ctx context.Context, input CreateCallInput) (*Call, error)
	CompleteCall(ctx context.Context, input CompleteCallInput) error
	GetRunningCallBySID(ctx context.Context, callSID string) (*Call, error)
}

type TurnRepository interface {
	InsertTurn(ctx context.Context, input InsertTurnInput) error
	ListTurnsByCallID(ctx context.Context, callID string) ([]CallTurn, error)
}

type Repository interface {
	CallRepository
	TurnRepository
}
