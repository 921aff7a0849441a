package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zulelabs/marketd/internal/domain"
)

// AdminStore holds the singleton administrative record.
type AdminStore struct {
	mu    sync.Mutex
	state *domain.AdminState
}

// NewAdminStore creates an uninitialized store.
func NewAdminStore() *AdminStore {
	return &AdminStore{}
}

func (s *AdminStore) Get(_ context.Context) (domain.AdminState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return domain.AdminState{}, fmt.Errorf("memory: admin state: %w", domain.ErrNotFound)
	}
	return *s.state, nil
}

func (s *AdminStore) Init(_ context.Context, admin common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != nil {
		return fmt.Errorf("memory: admin init: %w", domain.ErrAlreadyInitialized)
	}
	now := time.Now().UTC()
	s.state = &domain.AdminState{Admin: admin, InitializedAt: now, UpdatedAt: now}
	return nil
}

func (s *AdminStore) Put(_ context.Context, st domain.AdminState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return fmt.Errorf("memory: admin put before init: %w", domain.ErrNotInitialized)
	}
	st.UpdatedAt = time.Now().UTC()
	s.state = &st
	return nil
}

// FeePolicyStore holds the singleton fee policy.
type FeePolicyStore struct {
	mu     sync.Mutex
	policy *domain.FeePolicy
}

// NewFeePolicyStore creates an uninitialized store.
func NewFeePolicyStore() *FeePolicyStore {
	return &FeePolicyStore{}
}

func (s *FeePolicyStore) Get(_ context.Context) (domain.FeePolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.policy == nil {
		return domain.FeePolicy{}, fmt.Errorf("memory: fee policy: %w", domain.ErrNotFound)
	}
	return *s.policy, nil
}

func (s *FeePolicyStore) Put(_ context.Context, p domain.FeePolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.UpdatedAt = time.Now().UTC()
	s.policy = &p
	return nil
}

var (
	_ domain.AdminStore     = (*AdminStore)(nil)
	_ domain.FeePolicyStore = (*FeePolicyStore)(nil)
)
