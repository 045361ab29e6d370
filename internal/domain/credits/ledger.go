// Package credits owns the per-user credit balance. Every mutation is a
// single conditional write against the balance record; the ledger never
// retries a rejected predicate, it reports the typed outcome instead.
package credits

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"poster-api/internal/config"
	"poster-api/internal/infrastructure/dynamo"
	"poster-api/internal/infrastructure/metrics"
	"poster-api/internal/utils/platformerrors"
)

const (
	attrCredits   = "Credits"
	attrResetAt   = "ResetAt"
	attrUpdatedAt = "UpdatedAt"
)

// ErrOutOfCredits reports that the balance is exactly zero and the refill
// deadline has not lapsed. No mutation happened.
var ErrOutOfCredits = errors.New("out of credits")

// Ledger reserves and refunds credits atomically.
type Ledger struct {
	store          dynamo.Store
	refillAmount   int64
	refillInterval time.Duration
	log            zerolog.Logger
	now            func() time.Time
}

func NewLedger(cfg *config.Config, store dynamo.Store, log zerolog.Logger) *Ledger {
	return &Ledger{
		store:          store,
		refillAmount:   int64(cfg.CreditsRefillAmount),
		refillInterval: cfg.CreditsRefillInterval,
		log:            log.With().Str("component", "credit-ledger").Logger(),
		now:            time.Now,
	}
}

// Peek returns the caller's current balance. A missing record or a lapsed
// refill deadline reads as a fresh refill; the ledger tries to persist that
// refill but the logical value is returned even when the persist loses a
// race or fails outright.
func (l *Ledger) Peek(ctx context.Context, sub string) (int, error) {
	pk := dynamo.UserPK(sub)
	item, err := l.store.Get(ctx, pk, dynamo.CreditsSK)
	if err != nil {
		return 0, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeStoreError, "failed to read credit balance", err,
			"5f2c8a1d-93b4-4e6a-8c1f-7d0e2b4a9c63")
	}

	now := l.now().Unix()
	if refillable(item, now) {
		if _, err := l.store.Update(ctx, pk, dynamo.CreditsSK,
			l.refillMutation(l.refillAmount, now), refillCondition(item)); err != nil &&
			!errors.Is(err, dynamo.ErrConditionFailed) {
			l.log.Warn().Err(err).Str("sub", sub).Msg("refill persist failed; returning logical balance")
		}
		return int(l.refillAmount), nil
	}

	return int(dynamo.NumberAttr(item, attrCredits)), nil
}

// Reserve spends exactly one credit. Two-phase compare-and-swap, refill
// attempted first so an expired balance stored as 0 is never rejected:
//
//  1. refill-and-spend: only when no refill deadline was observed or the
//     observed deadline has lapsed; the predicate pins the observed value,
//     so two racing refills cannot both apply.
//  2. spend-in-place: only when Credits > 0.
//
// Both predicates rejected means the balance is exactly 0 and current:
// ErrOutOfCredits.
func (l *Ledger) Reserve(ctx context.Context, sub string) (int, error) {
	pk := dynamo.UserPK(sub)
	item, err := l.store.Get(ctx, pk, dynamo.CreditsSK)
	if err != nil {
		return 0, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeStoreError, "failed to read credit balance", err,
			"e4b7d210-58af-4c39-9f6e-1a2b3c4d5e6f")
	}

	now := l.now().Unix()
	if refillable(item, now) {
		updated, err := l.store.Update(ctx, pk, dynamo.CreditsSK,
			l.refillMutation(l.refillAmount-1, now), refillCondition(item))
		if err == nil {
			metrics.RecordReservation("refill")
			return int(dynamo.NumberAttr(updated, attrCredits)), nil
		}
		if !errors.Is(err, dynamo.ErrConditionFailed) {
			return 0, platformerrors.NewError(ctx, platformerrors.LayerDomain,
				platformerrors.ErrorTypeStoreError, "failed to refill credit balance", err,
				"0c9d8e7f-6a5b-4c3d-2e1f-0a9b8c7d6e5f")
		}
		// Another request won the refill; fall through and spend from it.
	}

	updated, err := l.store.Update(ctx, pk, dynamo.CreditsSK,
		dynamo.Mutation{
			Add: map[string]int64{attrCredits: -1},
			Set: dynamo.Item{attrUpdatedAt: timestampAttr(l.now())},
		},
		&dynamo.Condition{NumberGT: map[string]int64{attrCredits: 0}},
	)
	if err == nil {
		metrics.RecordReservation("spend")
		return int(dynamo.NumberAttr(updated, attrCredits)), nil
	}
	if errors.Is(err, dynamo.ErrConditionFailed) {
		metrics.RecordReservation("out_of_credits")
		return 0, ErrOutOfCredits
	}
	return 0, platformerrors.NewError(ctx, platformerrors.LayerDomain,
		platformerrors.ErrorTypeStoreError, "failed to spend credit", err,
		"7e6f5a4b-3c2d-4e1f-9a8b-7c6d5e4f3a2b")
}

// Refund returns one credit, best effort. It only increments an existing
// record, never creates one, and swallows every failure: a refund must not
// fail the caller's request.
func (l *Ledger) Refund(ctx context.Context, sub string) {
	pk := dynamo.UserPK(sub)
	_, err := l.store.Update(ctx, pk, dynamo.CreditsSK,
		dynamo.Mutation{
			Add: map[string]int64{attrCredits: 1},
			Set: dynamo.Item{attrUpdatedAt: timestampAttr(l.now())},
		},
		&dynamo.Condition{ItemExists: dynamo.Bool(true)},
	)
	if err != nil {
		metrics.RecordRefund("failed")
		l.log.Warn().Err(err).Str("sub", sub).Msg("credit refund not applied")
		return
	}
	metrics.RecordRefund("ok")
}

// refillable reports whether the observed record permits a refill: missing
// record, no stored deadline, or a lapsed deadline.
func refillable(item dynamo.Item, now int64) bool {
	if item == nil {
		return true
	}
	if _, ok := item[attrResetAt]; !ok {
		return true
	}
	return dynamo.NumberAttr(item, attrResetAt) <= now
}

// refillCondition pins the refill predicate to the observed state so only
// one of two racing refills can apply.
func refillCondition(item dynamo.Item) *dynamo.Condition {
	if item == nil {
		return &dynamo.Condition{ItemExists: dynamo.Bool(false)}
	}
	if _, ok := item[attrResetAt]; !ok {
		return &dynamo.Condition{
			ItemExists: dynamo.Bool(true),
			AttrAbsent: []string{attrResetAt},
		}
	}
	return &dynamo.Condition{
		NumberEq: map[string]int64{attrResetAt: dynamo.NumberAttr(item, attrResetAt)},
	}
}

func (l *Ledger) refillMutation(credits, now int64) dynamo.Mutation {
	return dynamo.Mutation{
		Set: dynamo.Item{
			attrCredits:   &types.AttributeValueMemberN{Value: strconv.FormatInt(credits, 10)},
			attrResetAt:   &types.AttributeValueMemberN{Value: strconv.FormatInt(now+int64(l.refillInterval.Seconds()), 10)},
			attrUpdatedAt: timestampAttr(l.now()),
		},
	}
}

func timestampAttr(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339)}
}
