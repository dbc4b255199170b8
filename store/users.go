package store

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	sqlite "modernc.org/sqlite"

	"github.com/farmgate-io/farmgate/core/csql"
	"github.com/farmgate-io/farmgate/core/logger"
)

// sqlite extended result code for a UNIQUE constraint violation
const sqliteConstraintUnique = 2067

// User is a registered API user. The password is stored as a bcrypt hash.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}

// Users stores API user credentials.
type Users struct {
	db *csql.DB
}

// NewUsers creates the users table (if it does not exist) and returns the
// store.
func NewUsers(db *csql.DB) *Users {
	createUsersTableIfNotExists(db)
	return &Users{db: db}
}

func createUsersTableIfNotExists(db *csql.DB) {
	// poor man's database migrations
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS users
(id INTEGER PRIMARY KEY AUTOINCREMENT,
username TEXT NOT NULL UNIQUE,
password_hash TEXT NOT NULL
);`)
	if err != nil {
		logger.Default().WithError(err).Error("cannot create users table")
	}
}

// Create appends a new user. A duplicate username is reported as
// ErrConflict, distinct from other storage errors, and leaves the table
// unchanged.
func (u *Users) Create(username, password string) error {
	if username == "" || password == "" {
		return ValidationError{Reason: "username and password must not be empty"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = u.db.Exec(
		`INSERT INTO users(username,password_hash) VALUES(?,?);`,
		username, string(hash))
	if err != nil {
		var liteErr *sqlite.Error
		if errors.As(err, &liteErr) && liteErr.Code() == sqliteConstraintUnique {
			return fmt.Errorf("username '%s': %w", username, ErrConflict)
		}
		logger.Default().WithError(err).Error("cannot insert user")
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByUsername returns the matching user, or ErrNotFound.
func (u *Users) FindByUsername(username string) (User, error) {
	var user User
	err := u.db.QueryRow(
		`SELECT id,username,password_hash FROM users WHERE username=?;`, username).
		Scan(&user.ID, &user.Username, &user.PasswordHash)
	if err == csql.ErrNoRows {
		return user, ErrNotFound
	}
	if err != nil {
		return user, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// Authenticate checks the password of the named user. An unknown user and a
// wrong password are both reported as ErrNotFound so that callers cannot
// tell them apart.
func (u *Users) Authenticate(username, password string) (User, error) {
	user, err := u.FindByUsername(username)
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return User{}, ErrNotFound
	}
	return user, nil
}
