// Package analytics aggregates revenue and guest numbers from the booking
// snapshots for the operator dashboard.
package analytics

import (
	"context"
	"fmt"

	"tour-booking/internal/models"

	"github.com/uptrace/bun"
)

// revenueStatuses are the states whose totals count as sold.
var revenueStatuses = []models.BookingStatus{models.StatusConfirmed, models.StatusCompleted}

// Service handles analytics operations
type Service struct {
	db bun.IDB
}

func NewService(db bun.IDB) *Service {
	return &Service{db: db}
}

// Range limits results to tour dates between From and To (YYYY-MM-DD, both
// inclusive). Empty bounds are open.
type Range struct {
	From string
	To   string
}

func (r Range) apply(q *bun.SelectQuery, column string) *bun.SelectQuery {
	if r.From != "" {
		q = q.Where(column+" >= ?", r.From)
	}
	if r.To != "" {
		q = q.Where(column+" <= ?", r.To)
	}
	return q
}

// TourAnalytics represents aggregated analytics data for a tour
type TourAnalytics struct {
	TourID           string              `json:"tourId"`
	TotalRevenue     float64             `json:"totalRevenue"`
	TotalNet         float64             `json:"totalNet"`
	Margin           float64             `json:"margin"`
	GuestsBooked     int                 `json:"guestsBooked"`
	BookingsByStatus []StatusCount       `json:"bookingsByStatus"`
	DailySales       []DailySalesMetrics `json:"dailySales"`
	UpsellSales      []UpsellMetrics     `json:"upsellSales"`
}

type StatusCount struct {
	Status   models.BookingStatus `bun:"status" json:"status"`
	Bookings int                  `bun:"bookings" json:"bookings"`
	Retail   float64              `bun:"retail" json:"retail"`
}

// DailySalesMetrics contains metrics for a single tour date
type DailySalesMetrics struct {
	Date     string  `bun:"date" json:"date"`
	Bookings int     `bun:"bookings" json:"bookings"`
	Revenue  float64 `bun:"revenue" json:"revenue"`
	Net      float64 `bun:"net" json:"net"`
}

type UpsellMetrics struct {
	ItemID   string  `bun:"item_id" json:"itemId"`
	Name     string  `bun:"name" json:"name"`
	Quantity int     `bun:"quantity" json:"quantity"`
	Revenue  float64 `bun:"revenue" json:"revenue"`
}

// TourSummary contains basic revenue information for a tour
type TourSummary struct {
	TourID   string  `bun:"tour_id" json:"tourId"`
	TourName string  `bun:"tour_name" json:"tourName"`
	Bookings int     `bun:"bookings" json:"bookings"`
	Revenue  float64 `bun:"revenue" json:"revenue"`
	Net      float64 `bun:"net" json:"net"`
}

// GetTourAnalytics returns revenue analytics for a specific tour
func (s *Service) GetTourAnalytics(ctx context.Context, tourID string, r Range) (*TourAnalytics, error) {
	out := &TourAnalytics{
		TourID:           tourID,
		BookingsByStatus: []StatusCount{},
		DailySales:       []DailySalesMetrics{},
		UpsellSales:      []UpsellMetrics{},
	}

	q := s.db.NewSelect().
		TableExpr("bookings AS b").
		ColumnExpr("b.status AS status").
		ColumnExpr("COUNT(*) AS bookings").
		ColumnExpr("COALESCE(SUM(b.total_retail), 0) AS retail").
		Where("b.tour_id = ?", tourID).
		GroupExpr("b.status").
		OrderExpr("b.status")
	if err := r.apply(q, "b.booking_date").Scan(ctx, &out.BookingsByStatus); err != nil {
		return nil, fmt.Errorf("bookings by status for %s: %w", tourID, err)
	}

	q = s.db.NewSelect().
		TableExpr("bookings AS b").
		ColumnExpr("b.booking_date AS date").
		ColumnExpr("COUNT(*) AS bookings").
		ColumnExpr("COALESCE(SUM(b.total_retail), 0) AS revenue").
		ColumnExpr("COALESCE(SUM(b.total_net), 0) AS net").
		Where("b.tour_id = ?", tourID).
		Where("b.status IN (?)", bun.In(revenueStatuses)).
		GroupExpr("b.booking_date").
		OrderExpr("b.booking_date")
	if err := r.apply(q, "b.booking_date").Scan(ctx, &out.DailySales); err != nil {
		return nil, fmt.Errorf("daily sales for %s: %w", tourID, err)
	}
	for _, day := range out.DailySales {
		out.TotalRevenue += day.Revenue
		out.TotalNet += day.Net
	}
	out.Margin = out.TotalRevenue - out.TotalNet

	q = s.lineItems(tourID, models.ItemTypeTour).
		ColumnExpr("COALESCE(SUM(li.quantity), 0)")
	if err := r.apply(q, "b.booking_date").Scan(ctx, &out.GuestsBooked); err != nil {
		return nil, fmt.Errorf("guests booked for %s: %w", tourID, err)
	}

	q = s.lineItems(tourID, models.ItemTypeUpsell).
		ColumnExpr("li.item_id AS item_id").
		ColumnExpr("li.name AS name").
		ColumnExpr("SUM(li.quantity) AS quantity").
		ColumnExpr("SUM(li.subtotal_retail) AS revenue").
		GroupExpr("li.item_id, li.name").
		OrderExpr("revenue DESC")
	if err := r.apply(q, "b.booking_date").Scan(ctx, &out.UpsellSales); err != nil {
		return nil, fmt.Errorf("upsell sales for %s: %w", tourID, err)
	}

	return out, nil
}

func (s *Service) lineItems(tourID, itemType string) *bun.SelectQuery {
	return s.db.NewSelect().
		TableExpr("booking_line_items AS li").
		Join("JOIN bookings AS b ON b.id = li.booking_id").
		Where("b.tour_id = ?", tourID).
		Where("b.status IN (?)", bun.In(revenueStatuses)).
		Where("li.item_type = ?", itemType)
}

// GetTourSummaries returns sold bookings and revenue per tour, best sellers first.
func (s *Service) GetTourSummaries(ctx context.Context, r Range) ([]TourSummary, error) {
	summaries := []TourSummary{}
	q := s.db.NewSelect().
		TableExpr("bookings AS b").
		ColumnExpr("b.tour_id AS tour_id").
		ColumnExpr("MAX(b.tour_name) AS tour_name").
		ColumnExpr("COUNT(*) AS bookings").
		ColumnExpr("SUM(b.total_retail) AS revenue").
		ColumnExpr("SUM(b.total_net) AS net").
		Where("b.status IN (?)", bun.In(revenueStatuses)).
		GroupExpr("b.tour_id").
		OrderExpr("revenue DESC")
	if err := r.apply(q, "b.booking_date").Scan(ctx, &summaries); err != nil {
		return nil, fmt.Errorf("tour summaries: %w", err)
	}
	return summaries, nil
}
