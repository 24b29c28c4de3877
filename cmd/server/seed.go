package main

import (
	"context"
	"time"

	"lendaudit/internal/lending/models"
	lendingstore "lendaudit/internal/lending/store"
)

var demoWatchlist = []string{"Sanctioned"}

func seedDemoData(ctx context.Context, store *lendingstore.InMemoryStore) error {
	now := time.Now()
	buyers := []models.Buyer{
		{ID: "42", FirstName: "Ann", LastName: "Lee", Email: "ann.lee@example.com", UpdatedAt: now},
		{ID: "43", FirstName: "Sam", LastName: "Sanctioned", Email: "sam@example.com", UpdatedAt: now},
	}
	for _, b := range buyers {
		if err := store.SaveBuyer(ctx, b); err != nil {
			return err
		}
	}
	vehicles := []models.Vehicle{
		{ID: "v1", VIN: "1FTFW1E50PFA00001", Make: "Ford", Model: "F-150", Year: 2024, PriceCents: 5_200_000},
		{ID: "v2", VIN: "JTDKN3DU0A0000002", Make: "Toyota", Model: "Prius", Year: 2023, PriceCents: 2_900_000},
	}
	for _, v := range vehicles {
		if err := store.SaveVehicle(ctx, v); err != nil {
			return err
		}
	}
	return nil
}
