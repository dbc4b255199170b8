package store

import (
	"fmt"

	"github.com/farmgate-io/farmgate/core/csql"
	"github.com/farmgate-io/farmgate/core/logger"
)

// SerialMessage is a single log line reported by a device over its serial
// channel.
type SerialMessage struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// DefaultSerialLimit is the maximum number of serial messages returned by
// Latest.
const DefaultSerialLimit = 10

// SerialLog stores device serial log lines.
type SerialLog struct {
	db *csql.DB
}

// NewSerialLog creates the serial log table (if it does not exist) and
// returns the store.
func NewSerialLog(db *csql.DB) *SerialLog {
	createSerialLogTableIfNotExists(db)
	return &SerialLog{db: db}
}

func createSerialLogTableIfNotExists(db *csql.DB) {
	// poor man's database migrations
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS serial_messages
(id INTEGER PRIMARY KEY AUTOINCREMENT,
message TEXT NOT NULL
);`)
	if err != nil {
		logger.Default().WithError(err).Error("cannot create serial_messages table")
	}
}

// Insert appends a log line. An empty message is rejected, the store does
// not silently coerce it.
func (s *SerialLog) Insert(message string) error {
	if message == "" {
		return ValidationError{Reason: "serial message must not be empty"}
	}
	_, err := s.db.Exec(`INSERT INTO serial_messages(message) VALUES(?);`, message)
	if err != nil {
		logger.Default().WithError(err).Error("cannot insert serial message")
		return fmt.Errorf("insert serial message: %w", err)
	}
	return nil
}

// Latest returns the most recent log lines, newest first. The limit is
// capped at DefaultSerialLimit; zero or negative values select the cap.
func (s *SerialLog) Latest(limit int) ([]SerialMessage, error) {
	if limit <= 0 || limit > DefaultSerialLimit {
		limit = DefaultSerialLimit
	}
	rows, err := s.db.Query(
		`SELECT id,message FROM serial_messages ORDER BY id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("query serial messages: %w", err)
	}
	defer rows.Close()

	messages := []SerialMessage{}
	for rows.Next() {
		var m SerialMessage
		if err := rows.Scan(&m.ID, &m.Message); err != nil {
			return nil, fmt.Errorf("scan serial message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
