// Package liveness derives a device Online/Offline status from the age of
// the most recent sensor reading.
package liveness

import (
	"time"

	"github.com/farmgate-io/farmgate/store"
)

// OnlineThreshold is the maximum age of the last reading for a device to
// count as online. The threshold itself is inclusive.
const OnlineThreshold = 30 * time.Second

// StatusOnline and StatusOffline are the two possible device states.
const (
	StatusOnline  = "Online"
	StatusOffline = "Offline"
)

// lastSeenNone is reported when no reading exists at all.
const lastSeenNone = "N/A"

// Status is the derived device status.
type Status struct {
	Status   string `json:"status"`
	LastSeen string `json:"lastSeen"`
}

// Evaluate derives the status from the most recent reading, or from nil if
// no reading exists. The age is measured in whole seconds between now and
// the reading's insertion timestamp.
func Evaluate(last *store.Reading, now time.Time) Status {
	if last == nil {
		return Status{Status: StatusOffline, LastSeen: lastSeenNone}
	}
	age := int64(now.Sub(last.Timestamp).Seconds())
	status := StatusOffline
	if age <= int64(OnlineThreshold/time.Second) {
		status = StatusOnline
	}
	return Status{Status: status, LastSeen: last.Timestamp.Format(time.RFC3339)}
}
