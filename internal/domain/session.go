package domain

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionScheduled SessionStatus = "SCHEDULED"
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionCancelled SessionStatus = "CANCELLED"
)

// AuctionSession is a scheduled batch of auctions sharing one trading date.
// Sessions are never deleted, only moved to a terminal status.
type AuctionSession struct {
	ID     uuid.UUID
	Name   string
	Date   time.Time
	Status SessionStatus
}

func NewSession(name string, date time.Time) AuctionSession {
	return AuctionSession{
		ID:     uuid.New(),
		Name:   name,
		Date:   date,
		Status: SessionScheduled,
	}
}

func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// CheckTransition validates a session status change against the current
// status. Returns ErrInvalidTransition when the change is not allowed.
func (s AuctionSession) CheckTransition(to SessionStatus) error {
	switch to {
	case SessionActive:
		if s.Status != SessionScheduled {
			return ErrInvalidTransition
		}
	case SessionCompleted:
		if s.Status != SessionActive {
			return ErrInvalidTransition
		}
	case SessionCancelled:
		if s.Status.Terminal() {
			return ErrInvalidTransition
		}
	default:
		return ErrInvalidTransition
	}
	return nil
}
