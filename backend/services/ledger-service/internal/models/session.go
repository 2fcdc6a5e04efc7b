package models

import "time"

// ClosePath names which termination path closed a session record.
type ClosePath string

const (
	ClosedByStop      ClosePath = "stop"
	ClosedByForceStop ClosePath = "force_stop"
	ClosedByExpire    ClosePath = "expire"
	// ClosedByReconcile marks a record no live session owned any more, including the record
	// of a start that never took its terminal.
	ClosedByReconcile ClosePath = "reconcile"
)

// SessionRecord is the audit row of one occupancy. EndTime is nil while the session is open.
type SessionRecord struct {
	ID             string     `db:"id" json:"id"`
	TerminalID     string     `db:"terminal_id" json:"terminal_id"`
	UserID         string     `db:"user_id" json:"user_id"`
	StartTime      time.Time  `db:"start_time" json:"start_time"`
	EndTime        *time.Time `db:"end_time" json:"end_time,omitempty"`
	GrantedSeconds int64      `db:"granted_seconds" json:"granted_seconds"`
	ClosedBy       ClosePath  `db:"closed_by" json:"closed_by,omitempty"`
}

// Open reports whether the record has not been closed yet.
func (r SessionRecord) Open() bool {
	return r.EndTime == nil
}

// SessionStart is everything an atomic start writes: a withdrawal of up to Limit seconds
// (Limit <= 0 takes the whole wallet), the open record and the idle to in_use transition.
type SessionStart struct {
	RecordID   string
	TerminalID string
	UserID     string
	Limit      int64
	At         time.Time
}
