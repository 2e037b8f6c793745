package claim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo gives ClaimPin the same compare-and-set semantics the SQL
// conditional update has, under a mutex so races resolve to one winner.
type memRepo struct {
	mu      sync.Mutex
	tickets map[string]*Ticket
}

func newMemRepo(tickets ...*Ticket) *memRepo {
	m := &memRepo{tickets: map[string]*Ticket{}}
	for _, t := range tickets {
		m.tickets[t.PinCode] = t
	}
	return m
}

func (m *memRepo) GetByPin(_ context.Context, pin string) (*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[pin]
	if !ok {
		return nil, ErrPinNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memRepo) ClaimPin(_ context.Context, pin string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[pin]
	if !ok || t.ClaimedAt != nil {
		return nil, ErrClaimRaceLost
	}
	now := time.Now().UTC()
	t.ClaimedAt = &now
	return &now, nil
}

func ticket(pin string) *Ticket {
	return &Ticket{LineID: "line-1", OrderID: "order-1", Name: "Sound Bath", Qty: 1, PinCode: pin}
}

func TestLookup_Unclaimed(t *testing.T) {
	svc := NewService(newMemRepo(ticket("1234")))

	got, err := svc.Lookup(context.Background(), "1234")
	require.NoError(t, err)
	assert.Equal(t, "Sound Bath", got.Name)
	assert.Nil(t, got.ClaimedAt)
}

func TestLookup_NotFound(t *testing.T) {
	svc := NewService(newMemRepo())
	_, err := svc.Lookup(context.Background(), "0000")
	require.ErrorIs(t, err, ErrPinNotFound)
}

func TestClaim_ThenRepeatIsAlreadyClaimed(t *testing.T) {
	svc := NewService(newMemRepo(ticket("1234")))
	ctx := context.Background()

	first, err := svc.Claim(ctx, "1234")
	require.NoError(t, err)
	require.NotNil(t, first)

	// Repeated claim reports the original timestamp, unchanged.
	again, err := svc.Claim(ctx, "1234")
	require.ErrorIs(t, err, ErrPinAlreadyClaimed)
	require.NotNil(t, again)
	assert.Equal(t, *first, *again)

	// Lookup agrees.
	got, err := svc.Lookup(ctx, "1234")
	require.ErrorIs(t, err, ErrPinAlreadyClaimed)
	assert.Equal(t, *first, *got.ClaimedAt)
}

func TestClaim_UnknownPinReclassifiesToNotFound(t *testing.T) {
	svc := NewService(newMemRepo())
	_, err := svc.Claim(context.Background(), "9999")
	require.ErrorIs(t, err, ErrPinNotFound)
}

func TestClaim_ConcurrentScansOneWinner(t *testing.T) {
	svc := NewService(newMemRepo(ticket("4321")))

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Claim(context.Background(), "4321")
		}(i)
	}
	wg.Wait()

	winners, losers := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case assert.ErrorIs(t, err, ErrPinAlreadyClaimed):
			losers++
		}
	}
	assert.Equal(t, 1, winners, "exactly one scan may win")
	assert.Equal(t, n-1, losers)
}
