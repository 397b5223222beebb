// Package profile stores the contact details users fill in after login.
package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrNotFound is returned when no profile exists for an id.
var ErrNotFound = errors.New("profile not found")

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL DEFAULT '',
	phone      TEXT NOT NULL DEFAULT '',
	dob        TEXT NOT NULL DEFAULT '',
	photo_url  TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL
);
`

// Profile is the editable part of a user's account.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	DOB       string    `json:"dob"`
	PhotoURL  string    `json:"photo_url,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsComplete reports whether the fields required after first login are set.
func (p *Profile) IsComplete() bool {
	return p != nil &&
		strings.TrimSpace(p.Email) != "" &&
		strings.TrimSpace(p.Phone) != "" &&
		strings.TrimSpace(p.DOB) != ""
}

// Store persists profiles in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. The caller is responsible
// for calling Close.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Get returns the profile for id.
func (s *Store) Get(ctx context.Context, id string) (*Profile, error) {
	var p Profile
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, phone, dob, photo_url, updated_at FROM profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.Email, &p.Phone, &p.DOB, &p.PhotoURL, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return &p, nil
}

// Save creates or replaces the profile for id.
func (s *Store) Save(ctx context.Context, id string, p Profile) (*Profile, error) {
	p.ID = id
	p.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, phone, dob, photo_url, updated_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			phone = excluded.phone,
			dob = excluded.dob,
			photo_url = excluded.photo_url,
			updated_at = excluded.updated_at`,
		p.ID, p.Email, p.Phone, p.DOB, p.PhotoURL, p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	return &p, nil
}
