package fulfillment

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo reproduces the contract the Postgres repo gets from its
// constraints: one order per payment ref, cart consumed exactly once.
type memRepo struct {
	mu       sync.Mutex
	carts    map[string]bool   // session token -> cart exists
	orders   map[string]string // payment ref -> order id
	migrated int
}

func newMemRepo(sessions ...string) *memRepo {
	m := &memRepo{carts: map[string]bool{}, orders: map[string]string{}}
	for _, s := range sessions {
		m.carts[s] = true
	}
	return m
}

func (m *memRepo) FindOrderID(_ context.Context, ref string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[ref], nil
}

func (m *memRepo) MigrateCart(_ context.Context, p Payment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.carts[p.SessionToken] {
		return "", ErrNoCart
	}
	if _, ok := m.orders[p.Ref]; ok {
		return "", ErrAlreadyMigrated
	}
	id := uuid.NewString()
	m.orders[p.Ref] = id
	delete(m.carts, p.SessionToken)
	m.migrated++
	return id, nil
}

func TestHandlePaymentCompleted_MigratesOnce(t *testing.T) {
	repo := newMemRepo("sess-1")
	svc := NewService(repo)
	p := Payment{Ref: "cs_pay_123", SessionToken: "sess-1", Email: "guest@example.com"}

	first, err := svc.HandlePaymentCompleted(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMigrated, first.Outcome)
	require.NotEmpty(t, first.OrderID)

	// Redeliver the same event a few more times.
	for i := 0; i < 4; i++ {
		res, err := svc.HandlePaymentCompleted(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadyMigrated, res.Outcome)
		assert.Equal(t, first.OrderID, res.OrderID)
	}
	assert.Equal(t, 1, repo.migrated)
}

func TestHandlePaymentCompleted_ConcurrentDeliveries(t *testing.T) {
	repo := newMemRepo("sess-1")
	svc := NewService(repo)
	p := Payment{Ref: "cs_pay_123", SessionToken: "sess-1"}

	const n = 16
	results := make([]Result, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.HandlePaymentCompleted(context.Background(), p)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		require.NoError(t, err)
	}
	for _, res := range results {
		if res.Outcome == OutcomeMigrated {
			winners++
		} else {
			assert.Equal(t, OutcomeAlreadyMigrated, res.Outcome)
		}
		assert.Equal(t, results[0].OrderID, res.OrderID)
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, repo.migrated)
}

func TestHandlePaymentCompleted_NoCartAnomaly(t *testing.T) {
	repo := newMemRepo() // no carts at all
	svc := NewService(repo)

	res, err := svc.HandlePaymentCompleted(context.Background(), Payment{Ref: "cs_pay_999", SessionToken: "ghost"})
	require.NoError(t, err, "anomaly must not fail the webhook ack")
	assert.Equal(t, OutcomeNoCart, res.Outcome)
	assert.Empty(t, res.OrderID)
}

func TestHandlePaymentCompleted_MissingRef(t *testing.T) {
	svc := NewService(newMemRepo())
	_, err := svc.HandlePaymentCompleted(context.Background(), Payment{SessionToken: "sess-1"})
	require.Error(t, err)
}

func TestRandomPin_Format(t *testing.T) {
	for i := 0; i < 1000; i++ {
		pin := RandomPin()
		require.Len(t, pin, 4)
		for _, ch := range pin {
			require.True(t, ch >= '0' && ch <= '9', "pin %q has non-digit", pin)
		}
	}
}

func TestInsertLineWithPin_RedrawsOnCollision(t *testing.T) {
	taken := map[string]bool{"1111": true}
	seq := []string{"1111", "2222"}
	draws := 0
	gen := func() string {
		code := seq[draws]
		draws++
		return code
	}

	var landed string
	err := insertLineWithPin(true, gen, maxPinAttempts, func(pin *string) (bool, error) {
		require.NotNil(t, pin)
		if taken[*pin] {
			return false, nil
		}
		taken[*pin] = true
		landed = *pin
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, draws, "first draw collides, second lands")
	assert.Equal(t, "2222", landed)
}

func TestInsertLineWithPin_BoundedExhaustion(t *testing.T) {
	draws := 0
	gen := func() string {
		draws++
		return "1111" // every draw collides
	}

	err := insertLineWithPin(true, gen, maxPinAttempts, func(pin *string) (bool, error) {
		return false, nil
	})
	require.ErrorIs(t, err, ErrPinExhausted)
	assert.Equal(t, maxPinAttempts, draws)
}

func TestInsertLineWithPin_NonTicketLineHasNoPin(t *testing.T) {
	gen := func() string {
		t.Fatal("pin generator must not run for a non-ticket line")
		return ""
	}

	inserts := 0
	err := insertLineWithPin(false, gen, maxPinAttempts, func(pin *string) (bool, error) {
		inserts++
		assert.Nil(t, pin)
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserts)
}

func TestInsertLineWithPin_ConcurrentAllocationsStayUnique(t *testing.T) {
	var mu sync.Mutex
	taken := map[string]bool{}
	insert := func(pin *string) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		if taken[*pin] {
			return false, nil
		}
		taken[*pin] = true
		return true, nil
	}

	const n = 200
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = insertLineWithPin(true, RandomPin, maxPinAttempts, insert)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, taken, n)
}

func TestOrderTotal(t *testing.T) {
	lines := []cartSnapshot{
		{itemID: "a", qty: 2, price: "30.00"},
		{itemID: "b", qty: 1, price: "90.50"},
	}

	total, err := orderTotal("", lines)
	require.NoError(t, err)
	assert.Equal(t, "150.50", total)

	// provider-reported total wins
	total, err = orderTotal("149.00", lines)
	require.NoError(t, err)
	assert.Equal(t, "149.00", total)

	_, err = orderTotal("", []cartSnapshot{{itemID: "x", qty: 1, price: "not-a-number"}})
	require.Error(t, err)
}
