/*
Package identity authenticates the users who operate the till.

PURPOSE:
  The ledger only needs a stable {id, name} snapshot of whoever acts.
  This package keeps the user directory, checks credentials and carries
  the authenticated user through a request context.

CREDENTIALS:
  Passwords are stored as bcrypt hashes. A directory file may hold either
  a plain "password" (hashed on load, for dev setups) or a "passwordHash".
  Without a directory the server seeds one admin; with no configured
  password it gets a random one that is logged at startup.

SEE ALSO:
  - context.go: WithUser / CurrentUser
  - api/server.go: Basic-auth middleware
*/
package identity

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/warp/cashdrawer/pos"
	"golang.org/x/crypto/bcrypt"
)

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleSeller  Role = "SELLER"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleSeller:
		return true
	}
	return false
}

// CanManage reports whether the role may edit the catalog.
func (r Role) CanManage() bool { return r == RoleAdmin || r == RoleManager }

type User struct {
	ID           pos.UserID `json:"id"`
	Name         string     `json:"name"`
	Role         Role       `json:"role"`
	Active       bool       `json:"active"`
	PasswordHash string     `json:"-"`
}

// Ref is the snapshot recorded on shifts, sales and expenses.
func (u User) Ref() pos.UserRef {
	return pos.UserRef{ID: u.ID, Name: u.Name}
}

// =============================================================================
// DIRECTORY
// =============================================================================

type Directory struct {
	mu    sync.RWMutex
	users map[pos.UserID]User
	cost  int
}

// NewDirectory returns an empty directory hashing with bcrypt.DefaultCost.
func NewDirectory() *Directory {
	return &Directory{users: make(map[pos.UserID]User), cost: bcrypt.DefaultCost}
}

// WithCost sets the bcrypt cost for later Add calls. Tests use bcrypt.MinCost.
func (d *Directory) WithCost(cost int) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cost = cost
	return d
}

// Add registers or replaces a user with the given password.
func (d *Directory) Add(u User, password string) error {
	if password == "" {
		return &pos.ValidationError{Field: "password", Message: "must not be blank"}
	}
	d.mu.RLock()
	cost := d.cost
	d.mu.RUnlock()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	u.PasswordHash = string(hash)
	return d.put(u)
}

// AddHashed registers a user whose bcrypt hash is already known.
func (d *Directory) AddHashed(u User) error {
	if u.PasswordHash == "" {
		return &pos.ValidationError{Field: "passwordHash", Message: "must not be blank"}
	}
	return d.put(u)
}

func (d *Directory) put(u User) error {
	u.ID = pos.UserID(strings.TrimSpace(string(u.ID)))
	if u.ID == "" {
		return &pos.ValidationError{Field: "id", Message: "must not be empty"}
	}
	if strings.TrimSpace(u.Name) == "" {
		u.Name = string(u.ID)
	}
	if !u.Role.Valid() {
		return &pos.ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", u.Role)}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
	return nil
}

// Authenticate checks a credential. Unknown users, inactive users and wrong
// passwords all yield pos.ErrUnauthorized so callers cannot tell them apart.
func (d *Directory) Authenticate(id pos.UserID, password string) (User, error) {
	d.mu.RLock()
	u, ok := d.users[id]
	d.mu.RUnlock()

	if !ok || !u.Active {
		return User{}, pos.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, pos.ErrUnauthorized
	}
	return u, nil
}

func (d *Directory) Lookup(id pos.UserID) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	return u, ok
}

// Users returns every user sorted by id.
func (d *Directory) Users() []User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// =============================================================================
// LOADING
// =============================================================================

type fileUser struct {
	ID           pos.UserID `json:"id"`
	Name         string     `json:"name"`
	Role         Role       `json:"role"`
	Active       *bool      `json:"active"`
	Password     string     `json:"password"`
	PasswordHash string     `json:"passwordHash"`
}

// LoadDirectory reads a JSON array of users. Users without an "active"
// field are active.
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading user directory: %w", err)
	}
	var entries []fileUser
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing user directory %s: %w", path, err)
	}

	d := NewDirectory()
	for i, e := range entries {
		u := User{ID: e.ID, Name: e.Name, Role: e.Role, Active: e.Active == nil || *e.Active}
		switch {
		case e.PasswordHash != "":
			u.PasswordHash = e.PasswordHash
			err = d.AddHashed(u)
		default:
			err = d.Add(u, e.Password)
		}
		if err != nil {
			return nil, fmt.Errorf("user %d (%s): %w", i, e.ID, err)
		}
	}
	return d, nil
}

// SeedAdmin returns a directory holding a single active admin and the
// password it accepts. An empty password is replaced by a random one, which
// is logged once.
func SeedAdmin(password string) (*Directory, string, error) {
	if password == "" {
		generated, err := randomPassword()
		if err != nil {
			return nil, "", fmt.Errorf("generating admin password: %w", err)
		}
		password = generated
		log.Printf("[identity] No admin password configured. Generated one for this run: %s", password)
	}
	d := NewDirectory()
	err := d.Add(User{ID: "admin", Name: "Administrator", Role: RoleAdmin, Active: true}, password)
	if err != nil {
		return nil, "", err
	}
	return d, password, nil
}

func randomPassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
