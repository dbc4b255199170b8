package store

import (
	"fmt"
	"regexp"
	"time"

	"github.com/farmgate-io/farmgate/core/csql"
	"github.com/farmgate-io/farmgate/core/logger"
)

var versionRegexp = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// IsValidVersion reports whether v is a well-formed major.minor.patch
// firmware version string.
func IsValidVersion(v string) bool {
	return versionRegexp.MatchString(v)
}

// StableFirmware tracks the designated known-good firmware version. The
// pointer is an append-only log of "set latest stable" events; the row with
// the latest timestamp is authoritative.
type StableFirmware struct {
	db *csql.DB
}

// NewStableFirmware creates the stable firmware table (if it does not
// exist) and returns the store.
func NewStableFirmware(db *csql.DB) *StableFirmware {
	createStableFirmwareTableIfNotExists(db)
	return &StableFirmware{db: db}
}

func createStableFirmwareTableIfNotExists(db *csql.DB) {
	// poor man's database migrations
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS stable_firmware
(id INTEGER PRIMARY KEY AUTOINCREMENT,
firmware_version TEXT NOT NULL,
created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`)
	if err != nil {
		logger.Default().WithError(err).Error("cannot create stable_firmware table")
	}
}

// Set appends a new pointer event for version. The version format is
// validated here as well, callers validate it too.
func (s *StableFirmware) Set(version string) error {
	if !IsValidVersion(version) {
		return ValidationError{Reason: fmt.Sprintf("'%s' is not a valid major.minor.patch version", version)}
	}
	_, err := s.db.Exec(
		`INSERT INTO stable_firmware(firmware_version,created_at) VALUES(?,?);`,
		version, time.Now().UTC())
	if err != nil {
		logger.Default().WithError(err).Error("cannot insert stable firmware pointer")
		return fmt.Errorf("insert stable firmware pointer: %w", err)
	}
	return nil
}

// Latest returns the version of the most recent pointer event, or
// ErrNotFound when no pointer was ever set. A row with an empty version is
// reported as not found as well.
func (s *StableFirmware) Latest() (string, error) {
	var version string
	err := s.db.QueryRow(
		`SELECT firmware_version FROM stable_firmware ORDER BY created_at DESC, id DESC LIMIT 1;`).
		Scan(&version)
	if err == csql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query stable firmware pointer: %w", err)
	}
	if version == "" {
		return "", ErrNotFound
	}
	return version, nil
}
