// Package registry owns the set of registered users: the mapping from a chat
// account (user id) to a Steam32 account, the auto-notify preference, and the
// id of the last match already reported for that account.
//
// The Registry keeps an ordered slice plus an index by user id. Every mutation
// writes the complete snapshot through a Store before the in-memory state is
// swapped, so the registry never holds state that is not durable. A failed
// write leaves memory untouched and returns the error.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Sentinel errors, matched with errors.Is.
var (
	ErrDuplicateSteamID  = errors.New("steam id already registered to another user")
	ErrAlreadyRegistered = errors.New("user already registered")
	ErrNotRegistered     = errors.New("user not registered")
)

// User is one registered account.
type User struct {
	UserID      string `json:"userId"`
	SteamID     string `json:"steamId"`
	AutoNotify  bool   `json:"autoNotify"`
	LastMatchID *int64 `json:"lastReportedMatchId"`
}

// NewUser returns a user with auto-notify enabled and nothing reported yet.
func NewUser(userID, steamID string) User {
	return User{UserID: userID, SteamID: steamID, AutoNotify: true}
}

// HasReported reports whether matchID is the last match reported for u.
func (u User) HasReported(matchID int64) bool {
	return u.LastMatchID != nil && *u.LastMatchID == matchID
}

func (u User) clone() User {
	if u.LastMatchID != nil {
		id := *u.LastMatchID
		u.LastMatchID = &id
	}
	return u
}

// Store persists full snapshots of the registry. Save must be durable when it returns nil.
type Store interface {
	Load(ctx context.Context) ([]User, error)
	Save(ctx context.Context, users []User) error
}

// Registry is safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	store Store
	users []User
	index map[string]int
}

// Open loads the registry from store.
func Open(ctx context.Context, store Store) (*Registry, error) {
	users, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	r := &Registry{store: store, users: dedupe(users)}
	r.index = buildIndex(r.users)
	if len(r.users) != len(users) {
		slog.Warn("registry contains duplicate user ids; keeping the last entry for each", slog.Int("entries", len(users)), slog.Int("unique", len(r.users)), slog.String("component", "registry"))
	}
	slog.Info("registry loaded", slog.Int("users", len(r.users)), slog.String("component", "registry"))
	return r, nil
}

// dedupe keeps the last entry for each user id, at the position of its first
// appearance.
func dedupe(users []User) []User {
	out := make([]User, 0, len(users))
	pos := make(map[string]int, len(users))
	for _, u := range users {
		if i, ok := pos[u.UserID]; ok {
			out[i] = u.clone()
			continue
		}
		pos[u.UserID] = len(out)
		out = append(out, u.clone())
	}
	return out
}

func buildIndex(users []User) map[string]int {
	idx := make(map[string]int, len(users))
	for i, u := range users {
		idx[u.UserID] = i
	}
	return idx
}

// Get returns the user registered under userID.
func (r *Registry) Get(userID string) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[userID]
	if !ok {
		return User{}, false
	}
	return r.users[i].clone(), true
}

// GetBySteamID returns the user that claimed steamID.
func (r *Registry) GetBySteamID(steamID string) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.SteamID == steamID {
			return u.clone(), true
		}
	}
	return User{}, false
}

// All returns a snapshot of every user.
func (r *Registry) All() []User {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]User, len(r.users))
	for i, u := range r.users {
		out[i] = u.clone()
	}
	return out
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// Add registers u. It fails with ErrAlreadyRegistered when the user id exists and with
// ErrDuplicateSteamID when another user already claimed the Steam id.
func (r *Registry) Add(ctx context.Context, u User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[u.UserID]; ok {
		return ErrAlreadyRegistered
	}
	if err := r.steamIDFree(u.SteamID, u.UserID); err != nil {
		return err
	}
	next := make([]User, len(r.users), len(r.users)+1)
	copy(next, r.users)
	next = append(next, u.clone())
	return r.commit(ctx, next)
}

// Update replaces the stored user with the same user id. Unknown ids are a no-op.
// Moving to a Steam id claimed by another user fails with ErrDuplicateSteamID.
func (r *Registry) Update(ctx context.Context, u User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[u.UserID]
	if !ok {
		return nil
	}
	if err := r.steamIDFree(u.SteamID, u.UserID); err != nil {
		return err
	}
	next := make([]User, len(r.users))
	copy(next, r.users)
	next[i] = u.clone()
	return r.commit(ctx, next)
}

// Modify applies fn to the user registered under userID and persists the result as one
// atomic read-modify-write. fn must not change the user id. It returns the updated user.
func (r *Registry) Modify(ctx context.Context, userID string, fn func(*User)) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[userID]
	if !ok {
		return User{}, ErrNotRegistered
	}
	u := r.users[i].clone()
	fn(&u)
	u.UserID = userID
	if err := r.steamIDFree(u.SteamID, userID); err != nil {
		return User{}, err
	}
	next := make([]User, len(r.users))
	copy(next, r.users)
	next[i] = u
	if err := r.commit(ctx, next); err != nil {
		return User{}, err
	}
	return u.clone(), nil
}

// Remove unregisters userID and returns the removed user.
func (r *Registry) Remove(ctx context.Context, userID string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[userID]
	if !ok {
		return User{}, ErrNotRegistered
	}
	removed := r.users[i]
	next := make([]User, 0, len(r.users)-1)
	next = append(next, r.users[:i]...)
	next = append(next, r.users[i+1:]...)
	if err := r.commit(ctx, next); err != nil {
		return User{}, err
	}
	return removed.clone(), nil
}

// steamIDFree fails when steamID is claimed by a user other than owner. Caller holds r.mu.
func (r *Registry) steamIDFree(steamID, owner string) error {
	for _, existing := range r.users {
		if existing.SteamID == steamID && existing.UserID != owner {
			return fmt.Errorf("%w: %s is registered to %s", ErrDuplicateSteamID, steamID, existing.UserID)
		}
	}
	return nil
}

// commit persists next and swaps it in. Caller holds r.mu.
func (r *Registry) commit(ctx context.Context, next []User) error {
	if err := r.store.Save(ctx, next); err != nil {
		return fmt.Errorf("persist registry: %w", err)
	}
	r.users = next
	r.index = buildIndex(next)
	return nil
}
