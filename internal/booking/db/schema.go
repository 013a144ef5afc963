package db

import (
	"context"
	"fmt"

	"tour-booking/internal/models"

	"github.com/uptrace/bun"
)

var schemaModels = []interface{}{
	(*models.Tour)(nil),
	(*models.AvailabilitySlot)(nil),
	(*models.Booking)(nil),
	(*models.BookingLineItem)(nil),
	(*models.PaymentEvent)(nil),
}

// CreateSchema builds the tables straight from the models. Tests and local
// SQLite runs use it; Postgres deployments go through the SQL migrations.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range schemaModels {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return nil
}
