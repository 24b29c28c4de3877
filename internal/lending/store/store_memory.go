package store

import (
	"context"
	"sort"
	"sync"

	"lendaudit/internal/lending/models"
	"lendaudit/pkg/platform/sentinel"
)

// InMemoryStore holds buyers, vehicles and deals for the demo API.
type InMemoryStore struct {
	mu       sync.RWMutex
	buyers   map[string]models.Buyer
	vehicles map[string]models.Vehicle
	deals    map[string]models.Deal
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		buyers:   make(map[string]models.Buyer),
		vehicles: make(map[string]models.Vehicle),
		deals:    make(map[string]models.Deal),
	}
}

func (s *InMemoryStore) FindBuyer(_ context.Context, id string) (models.Buyer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buyers[id]
	if !ok {
		return models.Buyer{}, sentinel.ErrNotFound
	}
	return b, nil
}

func (s *InMemoryStore) SaveBuyer(_ context.Context, b models.Buyer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buyers[b.ID] = b
	return nil
}

func (s *InMemoryStore) FindVehicle(_ context.Context, id string) (models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vehicles[id]
	if !ok {
		return models.Vehicle{}, sentinel.ErrNotFound
	}
	return v, nil
}

func (s *InMemoryStore) SaveVehicle(_ context.Context, v models.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vehicles[v.ID] = v
	return nil
}

// CreateDeal fails with sentinel.ErrConflict if the id is taken.
func (s *InMemoryStore) CreateDeal(_ context.Context, d models.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.deals[d.ID]; exists {
		return sentinel.ErrConflict
	}
	s.deals[d.ID] = d
	return nil
}

// ListDealsByBuyer returns the buyer's deals, oldest first.
func (s *InMemoryStore) ListDealsByBuyer(_ context.Context, buyerID string) ([]models.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Deal
	for _, d := range s.deals {
		if d.BuyerID == buyerID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
