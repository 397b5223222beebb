// Package roster authenticates hub staff and couriers.
//
// Staff are listed in a YAML file. Couriers are not listed anywhere; a courier
// may sign in with the ID that appears in brackets after their name in the
// current assignments, using the roster's default password.
package roster

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/harrisonrobin/hubsync/pkg/model"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// ErrInvalidCredentials is returned for any failed sign-in.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Account is a credential pair.
type Account struct {
	ID           string `yaml:"id"`
	PasswordHash string `yaml:"password_hash"`
}

// Member is a hub staff member.
type Member struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Position     string `yaml:"position"`
	PasswordHash string `yaml:"password_hash,omitempty"`
}

// Roster is the parsed roster file.
type Roster struct {
	MasterAdmin         Account  `yaml:"master_admin"`
	DefaultPasswordHash string   `yaml:"default_password_hash"`
	Members             []Member `yaml:"members"`
}

// Identity is the authenticated caller.
type Identity struct {
	ID       string     `json:"id"`
	Role     model.Role `json:"role"`
	Name     string     `json:"name"`
	Position string     `json:"position,omitempty"`
}

// Load reads a roster file.
func Load(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	return &r, nil
}

// HashPassword returns a bcrypt hash suitable for the roster file.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func matches(hash, password string) bool {
	return hash != "" && bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Authenticate resolves id and password to an identity. Couriers are looked
// up in tasks, the current merged assignment list.
func (r *Roster) Authenticate(id, password string, tasks []model.Task) (Identity, error) {
	id = strings.TrimSpace(id)
	if id == "" || password == "" {
		return Identity{}, ErrInvalidCredentials
	}

	if r.MasterAdmin.ID != "" && strings.EqualFold(id, r.MasterAdmin.ID) {
		if !matches(r.MasterAdmin.PasswordHash, password) {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{ID: r.MasterAdmin.ID, Role: model.RoleAdmin, Name: "Administrator"}, nil
	}

	for _, m := range r.Members {
		if !strings.EqualFold(id, m.ID) {
			continue
		}
		hash := m.PasswordHash
		if hash == "" {
			hash = r.DefaultPasswordHash
		}
		if !matches(hash, password) {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{ID: m.ID, Role: model.RoleOperator, Name: m.Name, Position: m.Position}, nil
	}

	courierID := model.NormalizeCourierID(id)
	for _, t := range tasks {
		if t.Courier.ID == "" || t.Courier.ID != courierID {
			continue
		}
		if !matches(r.DefaultPasswordHash, password) {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{ID: t.Courier.ID, Role: model.RoleCourier, Name: t.Courier.Name, Position: "Courier"}, nil
	}
	return Identity{}, ErrInvalidCredentials
}
