package credits

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"poster-api/internal/config"
	"poster-api/internal/infrastructure/dynamo"
)

func newTestLedger(store dynamo.Store, now time.Time) *Ledger {
	cfg := &config.Config{
		CreditsRefillAmount:   10,
		CreditsRefillInterval: 24 * time.Hour,
	}
	ledger := NewLedger(cfg, store, zerolog.Nop())
	ledger.now = func() time.Time { return now }
	return ledger
}

func seedBalance(t *testing.T, store dynamo.Store, sub string, balance, resetAt int64) {
	t.Helper()
	err := store.Put(context.Background(), dynamo.Item{
		dynamo.AttrPK: &types.AttributeValueMemberS{Value: dynamo.UserPK(sub)},
		dynamo.AttrSK: &types.AttributeValueMemberS{Value: dynamo.CreditsSK},
		attrCredits:   &types.AttributeValueMemberN{Value: strconv.FormatInt(balance, 10)},
		attrResetAt:   &types.AttributeValueMemberN{Value: strconv.FormatInt(resetAt, 10)},
	}, nil)
	if err != nil {
		t.Fatalf("seed balance: %v", err)
	}
}

func storedBalance(t *testing.T, store dynamo.Store, sub string) int64 {
	t.Helper()
	item, err := store.Get(context.Background(), dynamo.UserPK(sub), dynamo.CreditsSK)
	if err != nil {
		t.Fatalf("read balance: %v", err)
	}
	if item == nil {
		t.Fatal("expected a credit record")
	}
	return dynamo.NumberAttr(item, attrCredits)
}

func TestReserveFreshUserRefillsAndSpends(t *testing.T) {
	store := dynamo.NewMemoryStore()
	now := time.Now()
	ledger := newTestLedger(store, now)

	remaining, err := ledger.Reserve(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if remaining != 9 {
		t.Fatalf("remaining = %d, want 9", remaining)
	}

	item, _ := store.Get(context.Background(), dynamo.UserPK("alice"), dynamo.CreditsSK)
	if got := dynamo.NumberAttr(item, attrResetAt); got != now.Unix()+int64((24*time.Hour).Seconds()) {
		t.Fatalf("ResetAt = %d, want one interval ahead", got)
	}
}

func TestReserveSpendsInPlace(t *testing.T) {
	store := dynamo.NewMemoryStore()
	now := time.Now()
	ledger := newTestLedger(store, now)
	seedBalance(t, store, "bob", 5, now.Add(time.Hour).Unix())

	remaining, err := ledger.Reserve(context.Background(), "bob")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if remaining != 4 {
		t.Fatalf("remaining = %d, want 4", remaining)
	}
}

func TestReserveOutOfCredits(t *testing.T) {
	store := dynamo.NewMemoryStore()
	now := time.Now()
	ledger := newTestLedger(store, now)
	seedBalance(t, store, "carol", 0, now.Add(time.Hour).Unix())

	_, err := ledger.Reserve(context.Background(), "carol")
	if !errors.Is(err, ErrOutOfCredits) {
		t.Fatalf("err = %v, want ErrOutOfCredits", err)
	}
	if got := storedBalance(t, store, "carol"); got != 0 {
		t.Fatalf("balance mutated to %d on rejected reserve", got)
	}
}

func TestReserveLapsedDeadlineRefills(t *testing.T) {
	store := dynamo.NewMemoryStore()
	now := time.Now()
	ledger := newTestLedger(store, now)
	seedBalance(t, store, "dave", 0, now.Add(-time.Minute).Unix())

	remaining, err := ledger.Reserve(context.Background(), "dave")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if remaining != 9 {
		t.Fatalf("remaining = %d, want 9 after refill", remaining)
	}
}

func TestReserveConcurrentSpendsExactlyRefillAmount(t *testing.T) {
	store := dynamo.NewMemoryStore()
	now := time.Now()
	ledger := newTestLedger(store, now)

	const callers = 30
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Reserve(context.Background(), "erin")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	granted, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			granted++
		case errors.Is(err, ErrOutOfCredits):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if granted != 10 {
		t.Fatalf("granted = %d, want exactly the refill amount", granted)
	}
	if rejected != callers-10 {
		t.Fatalf("rejected = %d, want %d", rejected, callers-10)
	}
	if got := storedBalance(t, store, "erin"); got != 0 {
		t.Fatalf("final balance = %d, want 0", got)
	}
}

func TestPeek(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		seed func(t *testing.T, store dynamo.Store)
		want int
	}{
		{
			name: "missing record reads as fresh refill",
			seed: func(t *testing.T, store dynamo.Store) {},
			want: 10,
		},
		{
			name: "current record reads stored balance",
			seed: func(t *testing.T, store dynamo.Store) {
				seedBalance(t, store, "frank", 3, now.Add(time.Hour).Unix())
			},
			want: 3,
		},
		{
			name: "lapsed deadline reads as fresh refill",
			seed: func(t *testing.T, store dynamo.Store) {
				seedBalance(t, store, "frank", 0, now.Add(-time.Minute).Unix())
			},
			want: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := dynamo.NewMemoryStore()
			tt.seed(t, store)
			ledger := newTestLedger(store, now)

			got, err := ledger.Peek(context.Background(), "frank")
			if err != nil {
				t.Fatalf("Peek: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Peek = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPeekPersistsRefill(t *testing.T) {
	store := dynamo.NewMemoryStore()
	now := time.Now()
	ledger := newTestLedger(store, now)

	if _, err := ledger.Peek(context.Background(), "grace"); err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if got := storedBalance(t, store, "grace"); got != 10 {
		t.Fatalf("persisted balance = %d, want 10", got)
	}
}

func TestRefund(t *testing.T) {
	store := dynamo.NewMemoryStore()
	now := time.Now()
	ledger := newTestLedger(store, now)

	// No record: refund must not create one.
	ledger.Refund(context.Background(), "heidi")
	if item, _ := store.Get(context.Background(), dynamo.UserPK("heidi"), dynamo.CreditsSK); item != nil {
		t.Fatal("refund created a credit record")
	}

	seedBalance(t, store, "heidi", 4, now.Add(time.Hour).Unix())
	ledger.Refund(context.Background(), "heidi")
	if got := storedBalance(t, store, "heidi"); got != 5 {
		t.Fatalf("balance = %d, want 5 after refund", got)
	}
}
