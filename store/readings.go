package store

import (
	"fmt"
	"time"

	"github.com/farmgate-io/farmgate/core/csql"
	"github.com/farmgate-io/farmgate/core/logger"
)

// Reading is a single sensor reading as reported by a device. Readings are
// append-only; ordering by ID is insertion order and timestamp order.
type Reading struct {
	ID              int64     `json:"id"`
	Temperature     float64   `json:"temperature"`
	Humidity        float64   `json:"humidity"`
	FanState        bool      `json:"fanState"`
	HeaterState     bool      `json:"heaterState"`
	DeviceID        string    `json:"deviceID"`
	FirmwareVersion string    `json:"firmwareVersion"`
	Timestamp       time.Time `json:"timestamp"`
}

// Readings stores sensor readings.
type Readings struct {
	db *csql.DB
}

// NewReadings creates the readings table (if it does not exist) and returns
// the store.
func NewReadings(db *csql.DB) *Readings {
	createReadingsTableIfNotExists(db)
	return &Readings{db: db}
}

func createReadingsTableIfNotExists(db *csql.DB) {
	// poor man's database migrations
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS readings
(id INTEGER PRIMARY KEY AUTOINCREMENT,
temperature REAL NOT NULL,
humidity REAL NOT NULL,
fan_state INTEGER NOT NULL,
heater_state INTEGER NOT NULL,
device_id TEXT NOT NULL,
firmware_version TEXT NOT NULL,
created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`)
	if err != nil {
		logger.Default().WithError(err).Error("cannot create readings table")
	}
}

// Insert appends a reading with the current time as its timestamp. Failures
// are logged as storage errors; ingestion callers treat the insert as
// fire-and-forget.
func (r *Readings) Insert(temperature, humidity float64, fanState, heaterState bool, deviceID, firmwareVersion string) error {
	_, err := r.db.Exec(
		`INSERT INTO readings(temperature,humidity,fan_state,heater_state,device_id,firmware_version,created_at)
VALUES(?,?,?,?,?,?,?);`,
		temperature, humidity, fanState, heaterState, deviceID, firmwareVersion, time.Now().UTC())
	if err != nil {
		logger.Default().WithError(err).Error("cannot insert reading")
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// Last returns the most recent reading, or ErrNotFound if the table is
// empty.
func (r *Readings) Last() (Reading, error) {
	var rec Reading
	err := r.db.QueryRow(
		`SELECT id,temperature,humidity,fan_state,heater_state,device_id,firmware_version,created_at
FROM readings ORDER BY id DESC LIMIT 1;`).
		Scan(&rec.ID, &rec.Temperature, &rec.Humidity, &rec.FanState, &rec.HeaterState,
			&rec.DeviceID, &rec.FirmwareVersion, &rec.Timestamp)
	if err == csql.ErrNoRows {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("query last reading: %w", err)
	}
	return rec, nil
}
