// Package directory is the process-lifetime registry of chat accounts and
// their login state. Nothing is persisted: accounts vanish on shutdown.
package directory

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"unicode"
)

// DefaultMaxUsernameLength bounds usernames when no limit is configured
const DefaultMaxUsernameLength = 32

var (
	ErrInvalidUsername = errors.New("invalid username")
	ErrNotFound        = errors.New("username does not exist")
	ErrAlreadyExists   = errors.New("username already exists")
	ErrAlreadyLoggedIn = errors.New("user already logged in")
	ErrNotLoggedIn     = errors.New("user is not logged in")
	ErrInvalidQuery    = errors.New("wildcard must be at the beginning or end of query")
)

// Account is a registered username. Existence and login state are independent.
type Account struct {
	Username string
	LoggedIn bool
}

// Directory holds every registered account
type Directory struct {
	mu        sync.RWMutex
	accounts  map[string]*Account
	maxLength int
}

// New creates an empty directory. maxLength <= 0 uses DefaultMaxUsernameLength.
func New(maxLength int) *Directory {
	if maxLength <= 0 {
		maxLength = DefaultMaxUsernameLength
	}
	return &Directory{
		accounts:  make(map[string]*Account),
		maxLength: maxLength,
	}
}

// ValidateUsername reports ErrInvalidUsername for empty names, names with
// whitespace, and names longer than the limit.
func (d *Directory) ValidateUsername(username string) error {
	if username == "" || len(username) > d.maxLength {
		return ErrInvalidUsername
	}
	if strings.IndexFunc(username, unicode.IsSpace) >= 0 {
		return ErrInvalidUsername
	}
	return nil
}

// Register creates an account and marks it logged in
func (d *Directory) Register(username string) error {
	if err := d.ValidateUsername(username); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.accounts[username]; ok {
		return ErrAlreadyExists
	}
	d.accounts[username] = &Account{Username: username, LoggedIn: true}
	return nil
}

// Login marks an existing account logged in
func (d *Directory) Login(username string) error {
	if err := d.ValidateUsername(username); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	acct, ok := d.accounts[username]
	if !ok {
		return ErrNotFound
	}
	if acct.LoggedIn {
		return ErrAlreadyLoggedIn
	}
	acct.LoggedIn = true
	return nil
}

// Logout clears the logged-in flag
func (d *Directory) Logout(username string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	acct, ok := d.accounts[username]
	if !ok || !acct.LoggedIn {
		return ErrNotLoggedIn
	}
	acct.LoggedIn = false
	return nil
}

// Delete removes a logged-in account
func (d *Directory) Delete(username string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	acct, ok := d.accounts[username]
	if !ok {
		return ErrNotFound
	}
	if !acct.LoggedIn {
		return ErrNotLoggedIn
	}
	delete(d.accounts, username)
	return nil
}

// Exists reports whether username is registered
func (d *Directory) Exists(username string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.accounts[username]
	return ok
}

// IsLoggedIn reports whether username is registered and logged in
func (d *Directory) IsLoggedIn(username string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	acct, ok := d.accounts[username]
	return ok && acct.LoggedIn
}

// Count returns the number of registered accounts
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.accounts)
}

// OnlineCount returns the number of logged-in accounts
func (d *Directory) OnlineCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n := 0
	for _, acct := range d.accounts {
		if acct.LoggedIn {
			n++
		}
	}
	return n
}

// List returns the sorted usernames matching pattern. A '*' may appear only
// at the start and/or end of the pattern; an empty pattern matches everyone.
// Matching is case-sensitive.
func (d *Directory) List(pattern string) ([]string, error) {
	match, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	names := make([]string, 0, len(d.accounts))
	for name := range d.accounts {
		if match(name) {
			names = append(names, name)
		}
	}
	d.mu.RUnlock()

	slices.Sort(names)
	return names, nil
}

func compilePattern(pattern string) (func(string) bool, error) {
	if pattern == "" {
		return func(string) bool { return true }, nil
	}

	prefixWild := strings.HasPrefix(pattern, "*")
	suffixWild := strings.HasSuffix(pattern, "*")
	core := strings.Trim(pattern, "*")
	if strings.Contains(core, "*") {
		return nil, ErrInvalidQuery
	}

	switch {
	case prefixWild && suffixWild:
		return func(s string) bool { return strings.Contains(s, core) }, nil
	case prefixWild:
		return func(s string) bool { return strings.HasSuffix(s, core) }, nil
	case suffixWild:
		return func(s string) bool { return strings.HasPrefix(s, core) }, nil
	default:
		return func(s string) bool { return s == core }, nil
	}
}
