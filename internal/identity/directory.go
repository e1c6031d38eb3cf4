package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/clickcart-checkout/internal/postgres"
)

var ErrUserNotFound = errors.New("user not found")

const RoleAdmin = "ADMIN"

type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"-"`
}

// Directory resolves user ids issued by the auth service.
type Directory interface {
	Lookup(ctx context.Context, userID string) (User, error)
}

type Repo struct{ DB postgres.DB }

func (r *Repo) Lookup(ctx context.Context, userID string) (User, error) {
	var u User
	err := r.DB.QueryRow(ctx, `
		SELECT id, username, email, first_name, last_name, phone_number
		  FROM users WHERE id=$1`, userID,
	).Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.PhoneNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user %s: %w", userID, err)
	}
	return u, nil
}

type Memory struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewMemory(users ...User) *Memory {
	m := &Memory{users: make(map[string]User, len(users))}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *Memory) Lookup(_ context.Context, userID string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *Memory) Put(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}
