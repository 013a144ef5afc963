package payment

import (
	"context"
	"errors"
	"testing"

	"tour-booking/internal/logger"
	"tour-booking/internal/models"
	paymentredis "tour-booking/internal/payment/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIntentService(t *testing.T) (*Service, *FakeGateway, *models.Booking) {
	store, _ := setupStore(t)
	gw := NewFakeGateway()
	svc := NewService(store, gw, nil, logger.NewNop(), "pk_test_123", []string{"card", "promptpay"})
	b := pendingBooking(t, store, "", 2)
	return svc, gw, b
}

func TestCreateIntentChargesStoredTotal(t *testing.T) {
	svc, gw, b := newIntentService(t)

	res, err := svc.CreateIntent(context.Background(), CreateIntentRequest{BookingID: b.ID, Amount: 1})
	require.NoError(t, err)

	assert.Equal(t, "pk_test_123", res.PublishableKey)
	assert.Equal(t, []string{"card", "promptpay"}, res.PaymentMethods)
	assert.Equal(t, 3000.0, res.Amount)
	assert.False(t, res.Reused)

	require.Len(t, gw.Requests, 1)
	req := gw.Requests[0]
	assert.Equal(t, 3000.0, req.Amount, "client amount is never charged")
	assert.Equal(t, b.Reference, req.BookingReference)
	assert.Equal(t, "booking-"+b.ID+"-after-", req.IdempotencyKey)

	intent, err := gw.GetIntent(context.Background(), res.IntentID)
	require.NoError(t, err)
	assert.Equal(t, int64(300000), intent.Amount)
	assert.Equal(t, b.ID, intent.Metadata["booking_id"])

	stored, err := svc.Store.GetBookingByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, res.IntentID, stored.PaymentIntentID)
}

func TestCreateIntentReusesOpenIntent(t *testing.T) {
	svc, gw, b := newIntentService(t)
	ctx := context.Background()

	first, err := svc.CreateIntent(ctx, CreateIntentRequest{BookingID: b.ID})
	require.NoError(t, err)
	second, err := svc.CreateIntent(ctx, CreateIntentRequest{BookingID: b.ID})
	require.NoError(t, err)

	assert.Equal(t, first.IntentID, second.IntentID)
	assert.True(t, second.Reused)
	assert.Len(t, gw.Requests, 1)
}

func TestCreateIntentReplacesClosedIntent(t *testing.T) {
	svc, gw, b := newIntentService(t)
	ctx := context.Background()

	first, err := svc.CreateIntent(ctx, CreateIntentRequest{BookingID: b.ID})
	require.NoError(t, err)
	gw.SetStatus(first.IntentID, IntentStatusCanceled)

	second, err := svc.CreateIntent(ctx, CreateIntentRequest{BookingID: b.ID})
	require.NoError(t, err)
	assert.NotEqual(t, first.IntentID, second.IntentID)
	assert.Equal(t, "booking-"+b.ID+"-after-"+first.IntentID, gw.Requests[1].IdempotencyKey)
}

func TestCreateIntentRefusesWhenAlreadyPaid(t *testing.T) {
	svc, gw, b := newIntentService(t)
	ctx := context.Background()

	first, err := svc.CreateIntent(ctx, CreateIntentRequest{BookingID: b.ID})
	require.NoError(t, err)
	gw.SetStatus(first.IntentID, IntentStatusSucceeded)

	_, err = svc.CreateIntent(ctx, CreateIntentRequest{BookingID: b.ID})
	assert.ErrorIs(t, err, ErrBookingNotPayable)
	assert.Len(t, gw.Requests, 1)
}

func TestCreateIntentOnlyForPendingPayment(t *testing.T) {
	svc, _, b := newIntentService(t)
	ctx := context.Background()

	store := svc.Store.(interface {
		TransitionStatus(ctx context.Context, id string, from []models.BookingStatus, to models.BookingStatus) (bool, error)
	})
	_, err := store.TransitionStatus(ctx, b.ID, []models.BookingStatus{models.StatusPendingPayment}, models.StatusCancelled)
	require.NoError(t, err)

	_, err = svc.CreateIntent(ctx, CreateIntentRequest{BookingID: b.ID})
	assert.ErrorIs(t, err, ErrBookingNotPayable)
}

func TestCreateIntentGatewayFailure(t *testing.T) {
	svc, gw, b := newIntentService(t)
	gw.Err = ErrGatewayUnavailable

	_, err := svc.CreateIntent(context.Background(), CreateIntentRequest{BookingID: b.ID})
	assert.True(t, errors.Is(err, ErrGatewayUnavailable))
}

func TestCreateIntentLock(t *testing.T) {
	svc, gw, b := newIntentService(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	locker := paymentredis.NewRedis(client, logger.NewNop(), 0)
	svc.Locker = locker
	ctx := context.Background()

	ok, err := locker.LockIntent(ctx, b.ID, "someone-else")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.CreateIntent(ctx, CreateIntentRequest{BookingID: b.ID})
	assert.ErrorIs(t, err, ErrIntentInProgress)
	assert.Empty(t, gw.Requests)

	require.NoError(t, locker.UnlockIntent(ctx, b.ID, "someone-else"))
	_, err = svc.CreateIntent(ctx, CreateIntentRequest{BookingID: b.ID})
	require.NoError(t, err)
	assert.False(t, mr.Exists("intent_lock:"+b.ID), "lock released after creation")

	// checkout keeps working without redis
	mr.Close()
	res, err := svc.CreateIntent(ctx, CreateIntentRequest{BookingID: b.ID})
	require.NoError(t, err)
	assert.True(t, res.Reused)
}

func TestMinorUnits(t *testing.T) {
	cases := []struct {
		amount   float64
		currency string
		minor    int64
	}{
		{3000, "THB", 300000},
		{19.99, "usd", 1999},
		{0.1 + 0.2, "EUR", 30},
		{5000, "JPY", 5000},
		{12000.4, "krw", 12000},
	}
	for _, tc := range cases {
		t.Run(tc.currency, func(t *testing.T) {
			assert.Equal(t, tc.minor, ToMinorUnits(tc.amount, tc.currency))
		})
	}
	assert.Equal(t, 19.99, FromMinorUnits(1999, "USD"))
	assert.Equal(t, 5000.0, FromMinorUnits(5000, "JPY"))
}
