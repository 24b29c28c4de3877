package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"lendaudit/internal/lending/models"
	dErrors "lendaudit/pkg/domain-errors"
	"lendaudit/pkg/platform/sentinel"
)

type Store interface {
	FindBuyer(ctx context.Context, id string) (models.Buyer, error)
	SaveBuyer(ctx context.Context, b models.Buyer) error
	FindVehicle(ctx context.Context, id string) (models.Vehicle, error)
	CreateDeal(ctx context.Context, d models.Deal) error
	ListDealsByBuyer(ctx context.Context, buyerID string) ([]models.Deal, error)
}

const maxTermMonths = 96

// Service implements the buyer, deal and vehicle operations behind the
// lending API. It translates store sentinels into domain errors.
type Service struct {
	store     Store
	watchlist map[string]struct{}
	now       func() time.Time
}

type Option func(*Service)

// WithWatchlist sets the last names flagged by sanctions screening.
func WithWatchlist(lastNames ...string) Option {
	return func(s *Service) {
		for _, n := range lastNames {
			s.watchlist[strings.ToLower(strings.TrimSpace(n))] = struct{}{}
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		watchlist: make(map[string]struct{}),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) GetBuyer(ctx context.Context, id string) (models.Buyer, error) {
	b, err := s.store.FindBuyer(ctx, id)
	if err != nil {
		return models.Buyer{}, translate(err, "buyer not found")
	}
	return b, nil
}

func (s *Service) UpdateBuyer(ctx context.Context, id string, req models.UpdateBuyerRequest) (models.Buyer, error) {
	b, err := s.store.FindBuyer(ctx, id)
	if err != nil {
		return models.Buyer{}, translate(err, "buyer not found")
	}

	if req.Email != nil {
		if _, err := mail.ParseAddress(*req.Email); err != nil {
			return models.Buyer{}, dErrors.New(dErrors.CodeValidation, "email is invalid")
		}
		b.Email = *req.Email
	}
	if req.FirstName != nil {
		if strings.TrimSpace(*req.FirstName) == "" {
			return models.Buyer{}, dErrors.New(dErrors.CodeValidation, "firstName must not be empty")
		}
		b.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		if strings.TrimSpace(*req.LastName) == "" {
			return models.Buyer{}, dErrors.New(dErrors.CodeValidation, "lastName must not be empty")
		}
		b.LastName = *req.LastName
	}
	if req.Phone != nil {
		b.Phone = *req.Phone
	}
	if req.DateOfBirth != nil {
		if _, err := time.Parse(time.DateOnly, *req.DateOfBirth); err != nil {
			return models.Buyer{}, dErrors.New(dErrors.CodeValidation, "dateOfBirth must be YYYY-MM-DD")
		}
		b.DateOfBirth = *req.DateOfBirth
	}
	b.UpdatedAt = s.now()

	if err := s.store.SaveBuyer(ctx, b); err != nil {
		return models.Buyer{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save buyer")
	}
	return b, nil
}

// ScreenBuyer checks the buyer's last name against the sanctions watchlist.
func (s *Service) ScreenBuyer(ctx context.Context, id string) (models.ScreeningResult, error) {
	b, err := s.store.FindBuyer(ctx, id)
	if err != nil {
		return models.ScreeningResult{}, translate(err, "buyer not found")
	}
	_, flagged := s.watchlist[strings.ToLower(strings.TrimSpace(b.LastName))]
	return models.ScreeningResult{
		BuyerID:    b.ID,
		Clear:      !flagged,
		ScreenedAt: s.now(),
	}, nil
}

func (s *Service) GetVehicle(ctx context.Context, id string) (models.Vehicle, error) {
	v, err := s.store.FindVehicle(ctx, id)
	if err != nil {
		return models.Vehicle{}, translate(err, "vehicle not found")
	}
	return v, nil
}

func (s *Service) CreateDeal(ctx context.Context, req models.CreateDealRequest) (models.Deal, error) {
	if req.BuyerID == "" || req.VehicleID == "" {
		return models.Deal{}, dErrors.New(dErrors.CodeValidation, "buyerId and vehicleId are required")
	}
	if req.AmountCents <= 0 {
		return models.Deal{}, dErrors.New(dErrors.CodeValidation, "amountCents must be positive")
	}
	if req.TermMonths <= 0 || req.TermMonths > maxTermMonths {
		return models.Deal{}, dErrors.New(dErrors.CodeValidation, "termMonths must be between 1 and 96")
	}
	if _, err := s.store.FindBuyer(ctx, req.BuyerID); err != nil {
		return models.Deal{}, translate(err, "buyer not found")
	}
	vehicle, err := s.store.FindVehicle(ctx, req.VehicleID)
	if err != nil {
		return models.Deal{}, translate(err, "vehicle not found")
	}
	if req.AmountCents > vehicle.PriceCents {
		return models.Deal{}, dErrors.New(dErrors.CodeValidation, "amountCents exceeds vehicle price")
	}

	deal := models.Deal{
		ID:          uuid.NewString(),
		BuyerID:     req.BuyerID,
		VehicleID:   req.VehicleID,
		AmountCents: req.AmountCents,
		TermMonths:  req.TermMonths,
		Status:      models.DealStatusPending,
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateDeal(ctx, deal); err != nil {
		return models.Deal{}, translate(err, "deal already exists")
	}
	return deal, nil
}

// ExportDeals returns every deal for a buyer.
func (s *Service) ExportDeals(ctx context.Context, buyerID string) ([]models.Deal, error) {
	if buyerID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "buyerId is required")
	}
	if _, err := s.store.FindBuyer(ctx, buyerID); err != nil {
		return nil, translate(err, "buyer not found")
	}
	deals, err := s.store.ListDealsByBuyer(ctx, buyerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list deals")
	}
	if deals == nil {
		deals = []models.Deal{}
	}
	return deals, nil
}

func translate(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "lending store failure")
	}
}
