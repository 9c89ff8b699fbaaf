package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/farm-checkout/internal/cart"
	"github.com/vasiliy-maslov/farm-checkout/internal/payment"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, 30*time.Minute), mr
}

func sampleSession(t *testing.T) *Session {
	t.Helper()

	s, err := StartCheckout([]cart.Item{{
		ProductID: 1,
		Name:      "Rice",
		Unit:      cart.UnitKg,
		UnitPrice: decimal.RequireFromString("48.50"),
		Quantity:  2,
		Stock:     10,
	}}, time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	s.Step = StepPayment
	s.Shipping = Shipping{FullName: "Ana", ContactNumber: "0917", DeliveryAddress: "Purok 3", DeliveryMethod: "pickup"}
	s.Payment = Payment{Method: payment.MethodGCash}
	s.OrderIDs = []string{"101"}
	flow, err := payment.NewFlow(payment.MethodGCash)
	require.NoError(t, err)
	require.NoError(t, flow.OrderCreated("101"))
	require.NoError(t, flow.QRIssued(payment.Transaction{ID: "9001", VerificationCode: "AB12CD34", Amount: decimal.RequireFromString("97")}))
	s.Verification = flow
	return &s
}

func TestRedisStore_SaveGet(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()
	s := sampleSession(t)

	require.NoError(t, store.Save(ctx, s))
	assert.True(t, mr.Exists(sessionKey(s.ID)))
	assert.Equal(t, 30*time.Minute, mr.TTL(sessionKey(s.ID)))

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, StepPayment, got.Step)
	assert.Equal(t, s.Shipping, got.Shipping)
	assert.Equal(t, []string{"101"}, got.OrderIDs)
	assert.True(t, got.Total().Equal(decimal.RequireFromString("97")))
	require.NotNil(t, got.Verification)
	assert.Equal(t, payment.StateAwaitingVerification, got.Verification.State)
	assert.Equal(t, "AB12CD34", got.Verification.Transaction.VerificationCode)
}

func TestRedisStore_Expiry(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()
	s := sampleSession(t)

	require.NoError(t, store.Save(ctx, s))
	mr.FastForward(31 * time.Minute)

	_, err := store.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStore_GetMissAndInvalidJSON(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := store.Get(ctx, uuid.Must(uuid.NewV4()))
	assert.ErrorIs(t, err, ErrSessionNotFound)

	id := uuid.Must(uuid.NewV4())
	require.NoError(t, mr.Set(sessionKey(id), "{not json"))
	_, err = store.Get(ctx, id)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStore_Delete(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()
	s := sampleSession(t)

	require.NoError(t, store.Save(ctx, s))
	require.NoError(t, store.Delete(ctx, s.ID))
	assert.False(t, mr.Exists(sessionKey(s.ID)))
}

func TestRedisStore_ConnectionError(t *testing.T) {
	store, mr := setupTestRedis(t)
	mr.Close()

	err := store.Save(context.Background(), sampleSession(t))
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()
	s := sampleSession(t)

	require.NoError(t, store.Save(ctx, s))

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	got.Items[0].Quantity = 50
	got.Verification.Attempts = 4

	again, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Items[0].Quantity)
	assert.Equal(t, 0, again.Verification.Attempts)

	now = now.Add(2 * time.Minute)
	_, err = store.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestInflight(t *testing.T) {
	g := newInflight()
	id := uuid.Must(uuid.NewV4())

	release, err := g.acquire(id, actionSubmit)
	require.NoError(t, err)

	_, err = g.acquire(id, actionSubmit)
	assert.ErrorIs(t, err, ErrRequestInFlight)

	_, err = g.acquire(id, actionReconcile)
	assert.ErrorIs(t, err, ErrRequestInFlight)

	otherSession, err := g.acquire(uuid.Must(uuid.NewV4()), actionSubmit)
	require.NoError(t, err)
	otherSession()

	release()
	again, err := g.acquire(id, actionSubmit)
	require.NoError(t, err)
	again()
}
