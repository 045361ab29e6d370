// Package history keeps the append-only, soft-deleting record of every
// generation attempt. History is diagnostic, not authoritative for billing:
// appends are best effort and the credit ledger alone decides money.
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"poster-api/internal/config"
	"poster-api/internal/infrastructure/dynamo"
	"poster-api/internal/infrastructure/metrics"
	"poster-api/internal/utils/pagecursor"
	"poster-api/internal/utils/platformerrors"
	"poster-api/internal/utils/posterid"
)

const (
	attrDeleted  = "Deleted"
	attrFeatured = "Featured"
)

// Signer mints a fresh access URL for a stored object.
type Signer interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Log reads and mutates a user's generation history.
type Log struct {
	store     dynamo.Store
	signer    Signer
	signTTL   time.Duration
	pageSize  int
	pageMax   int
	scanPages int
	scanSize  int
	log       zerolog.Logger
	now       func() time.Time
}

func NewLog(cfg *config.Config, store dynamo.Store, signer Signer, log zerolog.Logger) *Log {
	return &Log{
		store:     store,
		signer:    signer,
		signTTL:   cfg.S3PresignTTL,
		pageSize:  cfg.HistoryPageSize,
		pageMax:   cfg.HistoryPageMax,
		scanPages: cfg.FeaturedScanPages,
		scanSize:  cfg.FeaturedScanSize,
		log:       log.With().Str("component", "history-log").Logger(),
		now:       time.Now,
	}
}

// Append records one generation attempt and returns its sort key. Best
// effort: a failed write is logged and swallowed, never surfaced.
func (l *Log) Append(ctx context.Context, sub string, entry Entry) string {
	if entry.CreatedAt == "" {
		entry.CreatedAt = l.now().UTC().Format(time.RFC3339)
	}
	entry.PK = dynamo.UserPK(sub)
	entry.SK = dynamo.GenSK(entry.CreatedAt, posterid.New())

	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		l.log.Error().Err(err).Str("sub", sub).Msg("history entry marshal failed")
		return entry.SK
	}
	if err := l.store.Put(ctx, item, nil); err != nil {
		l.log.Error().Err(err).Str("sub", sub).Str("sk", entry.SK).Msg("history append failed")
	}
	return entry.SK
}

// List returns one page of non-deleted history, newest first. SUCCESS
// entries carry a freshly signed URL; a presign failure drops the URL, not
// the row.
func (l *Log) List(ctx context.Context, sub string, limit int, cursor string) ([]ListItem, string, error) {
	if limit < 1 {
		limit = l.pageSize
	}
	if limit > l.pageMax {
		limit = l.pageMax
	}

	opts := dynamo.QueryOptions{
		Limit:      int32(limit),
		Descending: true,
		BoolFilter: map[string]bool{attrDeleted: false},
	}
	// A cursor carrying someone else's partition would be rejected by the
	// store as an invalid start key; treat it like any other stale cursor
	// and start from the beginning.
	if key := pagecursor.Decode(cursor); key != nil && key.PK == dynamo.UserPK(sub) {
		opts.StartKey = dynamo.Item{
			dynamo.AttrPK: &types.AttributeValueMemberS{Value: key.PK},
			dynamo.AttrSK: &types.AttributeValueMemberS{Value: key.SK},
		}
	}

	page, err := l.store.Query(ctx, dynamo.UserPK(sub), dynamo.GenSKPrefix, opts)
	if err != nil {
		return nil, "", platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeStoreError, "failed to list history", err,
			"b1a2c3d4-e5f6-4a7b-8c9d-0e1f2a3b4c5d")
	}

	items := make([]ListItem, 0, len(page.Items))
	for _, raw := range page.Items {
		var entry Entry
		if err := attributevalue.UnmarshalMap(raw, &entry); err != nil {
			l.log.Error().Err(err).Msg("history entry unmarshal failed")
			continue
		}
		item := ListItem{Entry: entry}
		if entry.Status == StatusSuccess && entry.StorageKey != "" {
			item.URL = l.signURL(ctx, entry.StorageKey)
		}
		items = append(items, item)
	}

	nextCursor := ""
	if page.LastKey != nil {
		nextCursor = pagecursor.Encode(&pagecursor.Key{
			PK: dynamo.StringAttr(page.LastKey, dynamo.AttrPK),
			SK: dynamo.StringAttr(page.LastKey, dynamo.AttrSK),
		})
	}
	return items, nextCursor, nil
}

// validSK reports whether sk is a well-formed history sort key: the GEN#
// prefix followed by a timestamp and a gen_* request id.
func validSK(sk string) bool {
	if !strings.HasPrefix(sk, dynamo.GenSKPrefix) {
		return false
	}
	idx := strings.LastIndex(sk, "#")
	if idx < len(dynamo.GenSKPrefix) {
		return false
	}
	return posterid.IsValid(sk[idx+1:])
}

// SoftDelete hides an entry from listings without removing the row, so the
// audit trail and any outstanding share links survive.
func (l *Log) SoftDelete(ctx context.Context, sub, sk string) error {
	if !validSK(sk) {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "not a history sort key", nil,
			"3c4d5e6f-7a8b-4c9d-0e1f-2a3b4c5d6e7f")
	}

	_, err := l.store.Update(ctx, dynamo.UserPK(sub), sk,
		dynamo.Mutation{Set: dynamo.Item{attrDeleted: &types.AttributeValueMemberBOOL{Value: true}}},
		&dynamo.Condition{ItemExists: dynamo.Bool(true)},
	)
	if errors.Is(err, dynamo.ErrConditionFailed) {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeNotFound, "history entry not found", err,
			"9d0e1f2a-3b4c-4d5e-6f7a-8b9c0d1e2f3a")
	}
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeStoreError, "failed to delete history entry", err,
			"4e5f6a7b-8c9d-4e0f-1a2b-3c4d5e6f7a8b")
	}
	return nil
}

// SetFeatured promotes one entry to featured and demotes the rest. The
// demote-then-promote sequence spans multiple items and the store offers no
// multi-item atomicity, so the single-featured invariant is best effort: a
// failure partway, or a concurrent call, can leave a stale flag that the
// next successful call corrects.
func (l *Log) SetFeatured(ctx context.Context, sub, sk string) error {
	if !validSK(sk) {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "not a history sort key", nil,
			"2b3c4d5e-6f7a-4b8c-9d0e-1f2a3b4c5d6e")
	}
	pk := dynamo.UserPK(sub)

	target, err := l.store.Get(ctx, pk, sk)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeStoreError, "failed to read history entry", err,
			"5f6a7b8c-9d0e-4f1a-2b3c-4d5e6f7a8b9c")
	}
	if target == nil {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeNotFound, "history entry not found", nil,
			"6a7b8c9d-0e1f-4a2b-3c4d-5e6f7a8b9c0d")
	}
	if dynamo.BoolAttr(target, attrDeleted) {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeInvalidState, "cannot feature a deleted entry", nil,
			"7b8c9d0e-1f2a-4b3c-4d5e-6f7a8b9c0d1e")
	}

	l.demoteOthers(ctx, pk, sk)

	_, err = l.store.Update(ctx, pk, sk,
		dynamo.Mutation{Set: dynamo.Item{attrFeatured: &types.AttributeValueMemberBOOL{Value: true}}},
		&dynamo.Condition{ItemExists: dynamo.Bool(true)},
	)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeStoreError, "failed to set featured entry", err,
			"8c9d0e1f-2a3b-4c4d-5e6f-7a8b9c0d1e2f")
	}
	return nil
}

// demoteOthers clears the featured flag on every other non-deleted entry,
// best effort, bounded by the scan page cap.
func (l *Log) demoteOthers(ctx context.Context, pk, keepSK string) {
	var startKey dynamo.Item
	for page := 0; page < l.scanPages; page++ {
		result, err := l.store.Query(ctx, pk, dynamo.GenSKPrefix, dynamo.QueryOptions{
			Limit:      int32(l.scanSize),
			Descending: true,
			StartKey:   startKey,
			BoolFilter: map[string]bool{attrFeatured: true, attrDeleted: false},
		})
		if err != nil {
			l.log.Warn().Err(err).Msg("featured scan failed; stale flags may remain")
			return
		}
		for _, item := range result.Items {
			sk := dynamo.StringAttr(item, dynamo.AttrSK)
			if sk == keepSK {
				continue
			}
			if _, err := l.store.Update(ctx, pk, sk,
				dynamo.Mutation{Set: dynamo.Item{attrFeatured: &types.AttributeValueMemberBOOL{Value: false}}},
				&dynamo.Condition{ItemExists: dynamo.Bool(true)},
			); err != nil {
				l.log.Warn().Err(err).Str("sk", sk).Msg("featured demotion failed; stale flag remains")
			}
		}
		if result.LastKey == nil {
			return
		}
		startKey = result.LastKey
	}
}

// GetFeatured returns the newest non-deleted featured entry with a fresh
// signed URL, or nil when none is featured.
func (l *Log) GetFeatured(ctx context.Context, sub string) (*FeaturedItem, error) {
	pk := dynamo.UserPK(sub)
	var startKey dynamo.Item
	for page := 0; page < l.scanPages; page++ {
		result, err := l.store.Query(ctx, pk, dynamo.GenSKPrefix, dynamo.QueryOptions{
			Limit:      int32(l.scanSize),
			Descending: true,
			StartKey:   startKey,
			BoolFilter: map[string]bool{attrFeatured: true, attrDeleted: false},
		})
		if err != nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
				platformerrors.ErrorTypeStoreError, "failed to look up featured entry", err,
				"9d0e1f2a-3b4c-4d5e-6f7a-8b9c0d1e2f4b")
		}
		for _, item := range result.Items {
			var entry Entry
			if err := attributevalue.UnmarshalMap(item, &entry); err != nil {
				continue
			}
			featured := &FeaturedItem{SK: entry.SK}
			if entry.StorageKey != "" {
				featured.URL = l.signURL(ctx, entry.StorageKey)
			}
			return featured, nil
		}
		if result.LastKey == nil {
			return nil, nil
		}
		startKey = result.LastKey
	}
	return nil, nil
}

// signURL presigns best effort; an empty URL marks a presign failure.
func (l *Log) signURL(ctx context.Context, key string) string {
	started := time.Now()
	url, err := l.signer.PresignGet(ctx, key, l.signTTL)
	metrics.PresignDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("presign failed; returning entry without url")
		return ""
	}
	return url
}
