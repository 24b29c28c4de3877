package models

import "time"

type Buyer struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone,omitempty"`
	DateOfBirth string    `json:"dateOfBirth,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Vehicle struct {
	ID         string `json:"id"`
	VIN        string `json:"vin"`
	Make       string `json:"make"`
	Model      string `json:"model"`
	Year       int    `json:"year"`
	PriceCents int64  `json:"priceCents"`
}

type DealStatus string

const (
	DealStatusPending  DealStatus = "pending"
	DealStatusApproved DealStatus = "approved"
)

type Deal struct {
	ID          string     `json:"id"`
	BuyerID     string     `json:"buyerId"`
	VehicleID   string     `json:"vehicleId"`
	AmountCents int64      `json:"amountCents"`
	TermMonths  int        `json:"termMonths"`
	Status      DealStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// ScreeningResult is the outcome of a sanctions list check.
type ScreeningResult struct {
	BuyerID    string    `json:"buyerId"`
	Clear      bool      `json:"clear"`
	ScreenedAt time.Time `json:"screenedAt"`
}

// UpdateBuyerRequest carries the mutable buyer fields. Nil fields are left unchanged.
type UpdateBuyerRequest struct {
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	Email       *string `json:"email"`
	Phone       *string `json:"phone"`
	DateOfBirth *string `json:"dateOfBirth"`
}

type CreateDealRequest struct {
	BuyerID     string `json:"buyerId"`
	VehicleID   string `json:"vehicleId"`
	AmountCents int64  `json:"amountCents"`
	TermMonths  int    `json:"termMonths"`
}
