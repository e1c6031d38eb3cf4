package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Sandbox is an in-memory Gateway for local runs and tests. Intents start in
// requires_confirmation; Confirm moves them to succeeded, or to failed when
// the amount exceeds DeclineAbove.
type Sandbox struct {
	mu           sync.Mutex
	intents      map[string]*Authorization
	failNext     error
	DeclineAbove int64 // minor units, 0 disables
}

var _ Gateway = (*Sandbox)(nil)

func NewSandbox() *Sandbox {
	return &Sandbox{intents: make(map[string]*Authorization)}
}

func (s *Sandbox) CreateAuthorization(_ context.Context, amountMinor int64, currency, _ string) (Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return Authorization{}, err
	}
	if amountMinor <= 0 {
		return Authorization{}, fmt.Errorf("%w: %w: %d", ErrGateway, ErrInvalidAmount, amountMinor)
	}
	id := "pi_sbx_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	a := &Authorization{
		ID:           id,
		ClientSecret: id + "_secret_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
		AmountMinor:  amountMinor,
		Currency:     strings.ToLower(currency),
		Status:       StatusRequiresConfirmation,
	}
	s.intents[id] = a
	return *a, nil
}

func (s *Sandbox) Confirm(_ context.Context, id string) (Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return Authorization{}, err
	}
	a, ok := s.intents[id]
	if !ok {
		return Authorization{}, fmt.Errorf("%w: %w: %s", ErrGateway, ErrAuthorizationNotFound, id)
	}
	if a.Status == StatusRequiresConfirmation {
		if s.DeclineAbove > 0 && a.AmountMinor > s.DeclineAbove {
			a.Status = StatusFailed
			return *a, fmt.Errorf("%w: %w: amount %d over limit", ErrGateway, ErrPaymentDeclined, a.AmountMinor)
		}
		a.Status = StatusSucceeded
	}
	return *a, nil
}

func (s *Sandbox) Retrieve(_ context.Context, id string) (Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return Authorization{}, err
	}
	a, ok := s.intents[id]
	if !ok {
		return Authorization{}, fmt.Errorf("%w: %w: %s", ErrGateway, ErrAuthorizationNotFound, id)
	}
	out := *a
	out.ClientSecret = ""
	return out, nil
}

// SetStatus forces an intent into status, creating it if needed.
func (s *Sandbox) SetStatus(id string, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.intents[id]; ok {
		a.Status = status
		return
	}
	s.intents[id] = &Authorization{ID: id, Status: status}
}

// FailNext makes the next gateway call return err.
func (s *Sandbox) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *Sandbox) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}
