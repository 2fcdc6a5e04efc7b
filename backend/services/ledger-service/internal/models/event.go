package models

import "time"

// Entity names a row set observed by viewers.
type Entity string

const (
	EntityTerminal Entity = "terminal"
	EntityUser     Entity = "user"
	EntitySession  Entity = "session"
)

// ChangeOp is the kind of row change.
type ChangeOp string

const (
	OpInsert ChangeOp = "insert"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// ChangeEvent is a row-level change pushed to viewers. It is display-only.
type ChangeEvent struct {
	Entity Entity      `json:"entity"`
	Op     ChangeOp    `json:"op"`
	Row    interface{} `json:"row"`
	At     time.Time   `json:"at"`
}
