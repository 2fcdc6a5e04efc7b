package models

import "time"

// TerminalStatus is the occupancy state of a terminal.
type TerminalStatus string

const (
	TerminalIdle    TerminalStatus = "idle"
	TerminalInUse   TerminalStatus = "in_use"
	TerminalOffline TerminalStatus = "offline"
)

// Valid reports whether s is a known status.
func (s TerminalStatus) Valid() bool {
	switch s {
	case TerminalIdle, TerminalInUse, TerminalOffline:
		return true
	}
	return false
}

// Terminal is a shared compute station. OccupantUserID and SessionEndTime are set iff Status is in_use.
type Terminal struct {
	ID             string         `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	Status         TerminalStatus `db:"status" json:"status"`
	OccupantUserID string         `db:"occupant_user_id" json:"occupant_user_id,omitempty"`
	SessionEndTime *time.Time     `db:"session_end_time" json:"session_end_time,omitempty"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// State returns the occupancy tuple used for compare-and-set transitions.
func (t Terminal) State() TerminalState {
	state := TerminalState{Status: t.Status, OccupantUserID: t.OccupantUserID}
	if t.SessionEndTime != nil {
		state.SessionEndTime = *t.SessionEndTime
	}
	return state
}

// RemainingSeconds is max(0, floor(session_end_time - now)); zero when the terminal is not in use.
func (t Terminal) RemainingSeconds(now time.Time) int64 {
	if t.Status != TerminalInUse || t.SessionEndTime == nil {
		return 0
	}
	return RemainingSeconds(*t.SessionEndTime, now)
}

// TerminalState is the (status, occupant, end time) tuple a transition is conditioned on.
// A zero SessionEndTime and empty OccupantUserID stand for null.
type TerminalState struct {
	Status         TerminalStatus
	OccupantUserID string
	SessionEndTime time.Time
}

// IdleState is the state of an unoccupied, online terminal.
func IdleState() TerminalState {
	return TerminalState{Status: TerminalIdle}
}

// OfflineState is the state of a terminal taken out of service.
func OfflineState() TerminalState {
	return TerminalState{Status: TerminalOffline}
}

// InUseState is the state of a terminal occupied by userID until endTime.
func InUseState(userID string, endTime time.Time) TerminalState {
	return TerminalState{Status: TerminalInUse, OccupantUserID: userID, SessionEndTime: endTime}
}

// Equal compares two states field by field, with time equality by instant.
func (s TerminalState) Equal(other TerminalState) bool {
	return s.Status == other.Status &&
		s.OccupantUserID == other.OccupantUserID &&
		s.SessionEndTime.Equal(other.SessionEndTime)
}

// Consistent checks the in_use <=> occupant and end time invariant.
func (s TerminalState) Consistent() bool {
	occupied := s.OccupantUserID != "" && !s.SessionEndTime.IsZero()
	if s.Status == TerminalInUse {
		return occupied
	}
	return s.OccupantUserID == "" && s.SessionEndTime.IsZero()
}

// Apply copies the state onto t.
func (t *Terminal) Apply(s TerminalState, at time.Time) {
	t.Status = s.Status
	t.OccupantUserID = s.OccupantUserID
	if s.SessionEndTime.IsZero() {
		t.SessionEndTime = nil
	} else {
		end := s.SessionEndTime
		t.SessionEndTime = &end
	}
	t.UpdatedAt = at
}

// RemainingSeconds is max(0, floor(end - now)) in whole seconds.
func RemainingSeconds(end, now time.Time) int64 {
	remaining := end.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int64(remaining / time.Second)
}
