package analytics_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"tour-booking/internal/analytics"
	"tour-booking/internal/booking/db"
	"tour-booking/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

func setup(t *testing.T) (*db.DB, *analytics.Service) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, db.CreateSchema(context.Background(), bunDB))
	t.Cleanup(func() { bunDB.Close() })
	return db.New(bunDB), analytics.NewService(bunDB)
}

func insert(t *testing.T, store *db.DB, tourID, date string, status models.BookingStatus, guests, lunches int) {
	id := uuid.New().String()
	now := time.Now().UTC()
	b := &models.Booking{
		ID:            id,
		Reference:     "TB-261017-" + id[:8],
		Status:        status,
		TourID:        tourID,
		TourName:      "Tour " + tourID,
		CustomerName:  "Ana Silva",
		CustomerEmail: "ana@example.com",
		BookingDate:   date,
		Language:      "en",
		TotalRetail:   1500*float64(guests) + 300*float64(lunches),
		TotalNet:      1100*float64(guests) + 200*float64(lunches),
		Currency:      "THB",
		VoucherToken:  "token-" + id,
		CreatedAt:     now,
		UpdatedAt:     now,
		LineItems: []*models.BookingLineItem{{
			ID: uuid.New().String(), BookingID: id, Position: 0,
			ItemType: models.ItemTypeTour, ItemID: "guest", Name: "Guest", Quantity: guests,
			UnitRetailPriceSnapshot: 1500, UnitNetPriceSnapshot: 1100,
			SubtotalRetail: 1500 * float64(guests), SubtotalNet: 1100 * float64(guests), CreatedAt: now,
		}},
	}
	if lunches > 0 {
		b.LineItems = append(b.LineItems, &models.BookingLineItem{
			ID: uuid.New().String(), BookingID: id, Position: 1,
			ItemType: models.ItemTypeUpsell, ItemID: "lunch", Name: "Lunch", Quantity: lunches,
			UnitRetailPriceSnapshot: 300, UnitNetPriceSnapshot: 200,
			SubtotalRetail: 300 * float64(lunches), SubtotalNet: 200 * float64(lunches), CreatedAt: now,
		})
	}
	require.NoError(t, store.CreateBooking(context.Background(), b))
}

func TestGetTourAnalytics(t *testing.T) {
	store, svc := setup(t)
	insert(t, store, "walk", "2026-11-02", models.StatusConfirmed, 2, 2)
	insert(t, store, "walk", "2026-11-02", models.StatusCompleted, 1, 0)
	insert(t, store, "walk", "2026-11-03", models.StatusConfirmed, 3, 1)
	insert(t, store, "walk", "2026-11-03", models.StatusPendingPayment, 4, 0)
	insert(t, store, "walk", "2026-11-03", models.StatusCancelled, 5, 0)
	insert(t, store, "boat", "2026-11-02", models.StatusConfirmed, 1, 0)

	got, err := svc.GetTourAnalytics(context.Background(), "walk", analytics.Range{})
	require.NoError(t, err)

	// 6 sold guests and 3 lunches
	assert.Equal(t, 6*1500.0+3*300.0, got.TotalRevenue)
	assert.Equal(t, 6*1100.0+3*200.0, got.TotalNet)
	assert.Equal(t, got.TotalRevenue-got.TotalNet, got.Margin)
	assert.Equal(t, 6, got.GuestsBooked)

	require.Len(t, got.DailySales, 2)
	assert.Equal(t, "2026-11-02", got.DailySales[0].Date)
	assert.Equal(t, 2, got.DailySales[0].Bookings)
	assert.Equal(t, 3*1500.0+2*300.0, got.DailySales[0].Revenue)

	require.Len(t, got.UpsellSales, 1)
	assert.Equal(t, "lunch", got.UpsellSales[0].ItemID)
	assert.Equal(t, 3, got.UpsellSales[0].Quantity)

	byStatus := map[models.BookingStatus]int{}
	for _, c := range got.BookingsByStatus {
		byStatus[c.Status] = c.Bookings
	}
	assert.Equal(t, map[models.BookingStatus]int{
		models.StatusConfirmed:      2,
		models.StatusCompleted:      1,
		models.StatusPendingPayment: 1,
		models.StatusCancelled:      1,
	}, byStatus)
}

func TestGetTourAnalyticsRange(t *testing.T) {
	store, svc := setup(t)
	insert(t, store, "walk", "2026-11-02", models.StatusConfirmed, 2, 0)
	insert(t, store, "walk", "2026-11-09", models.StatusConfirmed, 3, 0)

	got, err := svc.GetTourAnalytics(context.Background(), "walk", analytics.Range{From: "2026-11-05", To: "2026-11-30"})
	require.NoError(t, err)
	assert.Equal(t, 3, got.GuestsBooked)
	assert.Equal(t, 4500.0, got.TotalRevenue)
	require.Len(t, got.DailySales, 1)
}

func TestGetTourAnalyticsEmpty(t *testing.T) {
	_, svc := setup(t)
	got, err := svc.GetTourAnalytics(context.Background(), "nothing", analytics.Range{})
	require.NoError(t, err)
	assert.Zero(t, got.TotalRevenue)
	assert.Empty(t, got.DailySales)
	assert.NotNil(t, got.UpsellSales)
}

func TestGetTourSummaries(t *testing.T) {
	store, svc := setup(t)
	insert(t, store, "walk", "2026-11-02", models.StatusConfirmed, 1, 0)
	insert(t, store, "boat", "2026-11-02", models.StatusConfirmed, 4, 0)
	insert(t, store, "boat", "2026-11-02", models.StatusPendingPayment, 4, 0)

	got, err := svc.GetTourSummaries(context.Background(), analytics.Range{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "boat", got[0].TourID)
	assert.Equal(t, 1, got[0].Bookings)
	assert.Equal(t, 6000.0, got[0].Revenue)
	assert.Equal(t, "Tour boat", got[0].TourName)
}
