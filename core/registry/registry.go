/*Package registry provides a persistent registry of objects in the gateway store

The package uses JSON to serialize the data.
*/
package registry

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/farmgate-io/farmgate/core/csql"
)

// New creates a new registry on the specified store
func New(db *csql.DB) Registry {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS _registry_
(key TEXT NOT NULL,
value TEXT NOT NULL,
timestamp DATETIME NOT NULL,
PRIMARY KEY(key)
);`)

	if err != nil {
		panic(err)
	}
	return Registry{db: db}
}

// Registry provides a persistent registry of objects in the gateway store.
type Registry struct {
	db *csql.DB
}

// Accessor is an accessor with optional prefix
type Accessor struct {
	Prefix   string
	Registry Registry
}

// Accessor returns a registry accessor with prefix
func (r Registry) Accessor(prefix string) Accessor {
	return Accessor{
		Prefix:   prefix,
		Registry: r,
	}
}

// Read reads a value from the registry. It returns the
// time when the value was written, or a zero timestamp
// if there is no value.
//
// If the accessor has a prefix, the key is prepended with "{prefix}:"
func (r Accessor) Read(key string, value interface{}) (time.Time, error) {
	var (
		rawValue  string
		timestamp time.Time
	)
	if len(r.Prefix) > 0 {
		key = r.Prefix + ":" + key
	}

	err := r.Registry.db.QueryRow(
		`SELECT value, timestamp FROM _registry_ WHERE key=?;`,
		key).Scan(&rawValue, &timestamp)
	if err == csql.ErrNoRows {
		return timestamp, nil
	}
	if err != nil {
		return timestamp, fmt.Errorf("cannot read key '%s': %s", key, err.Error())
	}
	err = json.Unmarshal([]byte(rawValue), &value)

	return timestamp, err
}

// Write writes a value into the registry.
//
// If the accessor has a prefix, the key is prepended with "{prefix}:"
func (r Accessor) Write(key string, value interface{}) error {

	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if len(r.Prefix) > 0 {
		key = r.Prefix + ":" + key
	}
	now := time.Now().UTC()
	_, err = r.Registry.db.Exec(
		`INSERT INTO _registry_(key,value,timestamp)
VALUES(?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value,timestamp=excluded.timestamp;`,
		key, string(body), now)

	if err != nil {
		return fmt.Errorf("could not write key %s: %w", key, err)
	}
	return nil
}

// Delete deletes a value from the registry.
//
// If the accessor has a prefix, the key is prepended with "{prefix}:"
func (r Accessor) Delete(key string) error {

	if len(r.Prefix) > 0 {
		key = r.Prefix + ":" + key
	}
	_, err := r.Registry.db.Exec(
		`DELETE FROM _registry_ WHERE key=?;`,
		key)
	return err
}
