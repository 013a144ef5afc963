package availability_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"tour-booking/internal/availability"
	"tour-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *bun.DB {
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// one connection so every goroutine sees the same in-memory database
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	_, err = bunDB.NewCreateTable().Model((*models.AvailabilitySlot)(nil)).Exec(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}

func seedSlot(t *testing.T, ledger *availability.Ledger, date string, capacity, booked int) *models.AvailabilitySlot {
	t.Helper()
	ctx := context.Background()
	slot, err := ledger.CreateSlot(ctx, availability.NewSlot{TourID: "tour-1", Date: date, Capacity: capacity})
	require.NoError(t, err)
	if booked > 0 {
		require.NoError(t, ledger.Commit(ctx, slot.ID, booked))
	}
	return slot
}

func TestCheckCapacityIsAdvisory(t *testing.T) {
	ledger := availability.New(setupTestDB(t))
	ctx := context.Background()
	slot := seedSlot(t, ledger, "2026-11-02", 5, 3)

	ok, err := ledger.CheckCapacity(ctx, slot.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ledger.CheckCapacity(ctx, slot.ID, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	// checking reserves nothing
	got, err := ledger.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Booked)

	_, err = ledger.CheckCapacity(ctx, "missing", 1)
	assert.ErrorIs(t, err, availability.ErrSlotNotFound)
}

func TestCommitAfterSuccessfulCheckCanStillFail(t *testing.T) {
	ledger := availability.New(setupTestDB(t))
	ctx := context.Background()
	slot := seedSlot(t, ledger, "2026-11-02", 5, 3)

	// two bookings both pass the advisory check
	for i := 0; i < 2; i++ {
		ok, err := ledger.CheckCapacity(ctx, slot.ID, 2)
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.NoError(t, ledger.Commit(ctx, slot.ID, 2))
	err := ledger.Commit(ctx, slot.ID, 2)
	assert.ErrorIs(t, err, availability.ErrCapacityExceeded)

	got, err := ledger.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Booked)
}

func TestCommitDiagnostics(t *testing.T) {
	ledger := availability.New(setupTestDB(t))
	ctx := context.Background()
	slot := seedSlot(t, ledger, "2026-11-02", 5, 0)

	assert.ErrorIs(t, ledger.Commit(ctx, "missing", 1), availability.ErrSlotNotFound)
	assert.ErrorIs(t, ledger.Commit(ctx, slot.ID, 0), availability.ErrInvalidUnits)

	require.NoError(t, ledger.SetEnabled(ctx, slot.ID, false))
	assert.ErrorIs(t, ledger.Commit(ctx, slot.ID, 1), availability.ErrSlotDisabled)

	ok, err := ledger.CheckCapacity(ctx, slot.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, ledger.SetEnabled(ctx, "missing", true), availability.ErrSlotNotFound)
}

func TestConcurrentCommitsNeverExceedCapacity(t *testing.T) {
	ledger := availability.New(setupTestDB(t))
	ctx := context.Background()
	slot := seedSlot(t, ledger, "2026-11-02", 10, 0)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ledger.Commit(ctx, slot.ID, 1)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			assert.ErrorIs(t, err, availability.ErrCapacityExceeded)
			rejected++
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Equal(t, 15, rejected)

	got, err := ledger.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Booked)
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	ledger := availability.New(setupTestDB(t))
	ctx := context.Background()
	slot := seedSlot(t, ledger, "2026-11-02", 5, 2)

	require.NoError(t, ledger.Release(ctx, slot.ID, 2))
	assert.Error(t, ledger.Release(ctx, slot.ID, 1))
	assert.ErrorIs(t, ledger.Release(ctx, "missing", 1), availability.ErrSlotNotFound)

	got, err := ledger.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Booked)
}

func TestFindOpenSlots(t *testing.T) {
	ledger := availability.New(setupTestDB(t))
	ctx := context.Background()

	late := seedSlot(t, ledger, "2026-11-05", 4, 1)
	early := seedSlot(t, ledger, "2026-11-01", 4, 0)
	seedSlot(t, ledger, "2026-11-03", 2, 2) // full
	disabled := seedSlot(t, ledger, "2026-11-04", 4, 0)
	require.NoError(t, ledger.SetEnabled(ctx, disabled.ID, false))
	seedSlot(t, ledger, "2026-12-01", 4, 0) // outside range

	slots, err := ledger.FindOpenSlots(ctx, "tour-1", "2026-11-01", "2026-11-30")
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, early.ID, slots[0].ID)
	assert.Equal(t, late.ID, slots[1].ID)
	assert.Equal(t, 3, slots[1].Remaining())

	slots, err = ledger.FindOpenSlots(ctx, "other-tour", "", "")
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestCreateSlotValidation(t *testing.T) {
	ledger := availability.New(setupTestDB(t))
	ctx := context.Background()

	_, err := ledger.CreateSlot(ctx, availability.NewSlot{TourID: "tour-1", Date: "02/11/2026", Capacity: 3})
	assert.ErrorIs(t, err, availability.ErrInvalidSlot)

	_, err = ledger.CreateSlot(ctx, availability.NewSlot{TourID: "tour-1", Date: "2026-11-02", Capacity: 0})
	assert.ErrorIs(t, err, availability.ErrInvalidSlot)

	_, err = ledger.CreateSlot(ctx, availability.NewSlot{Date: "2026-11-02", Capacity: 3})
	assert.ErrorIs(t, err, availability.ErrInvalidSlot)
}
