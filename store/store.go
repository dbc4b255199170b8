// Package store is the persistence layer of the gateway. It owns the four
// relational tables (sensor readings, serial log, stable firmware pointer,
// user credentials) and creates them on startup if they do not exist.
//
// All four entities are insert-only, nothing is ever updated in place.
package store

import (
	"errors"

	"github.com/farmgate-io/farmgate/core/csql"
)

// ErrNotFound is returned when a query matches no record.
var ErrNotFound = errors.New("no matching record")

// ErrConflict is returned when an insert violates a uniqueness constraint,
// most notably a duplicate username.
var ErrConflict = errors.New("record already exists")

// ValidationError reports malformed input that was rejected before any
// storage write happened.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return e.Reason
}

// Store bundles the typed stores over a single gateway database handle.
type Store struct {
	Readings       *Readings
	SerialLog      *SerialLog
	StableFirmware *StableFirmware
	Users          *Users
}

// New creates the typed stores. Each store creates its own table; the
// creations are independent and a failing one does not block the others.
func New(db *csql.DB) *Store {
	return &Store{
		Readings:       NewReadings(db),
		SerialLog:      NewSerialLog(db),
		StableFirmware: NewStableFirmware(db),
		Users:          NewUsers(db),
	}
}
