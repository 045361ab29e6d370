// Package share mints and resolves public links to generated posters. A link
// carries its own copy of the storage key and prompt, so deleting or
// re-featuring the source history entry never breaks an outstanding share.
package share

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/rs/zerolog"

	"poster-api/internal/config"
	"poster-api/internal/domain/history"
	"poster-api/internal/infrastructure/dynamo"
	"poster-api/internal/infrastructure/metrics"
	"poster-api/internal/utils/platformerrors"
	"poster-api/internal/utils/sharetoken"
)

// Link is the stored share record. Expiry is epoch seconds and doubles as
// the table's TTL attribute, so the store may physically purge lapsed links.
type Link struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	CreatedAt  string `dynamodbav:"CreatedAt"`
	OwnerSub   string `dynamodbav:"OwnerSub"`
	StorageKey string `dynamodbav:"StorageKey"`
	Prompt     string `dynamodbav:"Prompt"`
	Expiry     int64  `dynamodbav:"Expiry,omitempty"`
}

// Created is the outcome of minting a share link.
type Created struct {
	ShareID  string `json:"share_id"`
	ShareURL string `json:"share_url"`
}

// Resolved is the public view of a share link. The URL is freshly signed on
// every resolution and never persisted.
type Resolved struct {
	URL       string `json:"url"`
	Prompt    string `json:"prompt"`
	CreatedAt string `json:"created_at"`
}

// Issuer creates and resolves share links.
type Issuer struct {
	store   dynamo.Store
	signer  history.Signer
	signTTL time.Duration
	baseURL string
	log     zerolog.Logger
	now     func() time.Time
}

func NewIssuer(cfg *config.Config, store dynamo.Store, signer history.Signer, log zerolog.Logger) *Issuer {
	return &Issuer{
		store:   store,
		signer:  signer,
		signTTL: cfg.S3PresignTTL,
		baseURL: cfg.ShareBaseURL,
		log:     log.With().Str("component", "share-issuer").Logger(),
		now:     time.Now,
	}
}

// Create mints a share link for one of the caller's history entries. The
// entry must be a non-deleted SUCCESS with a stored artifact. A ttl of zero
// means the link never expires.
func (i *Issuer) Create(ctx context.Context, sub, sk string, ttl time.Duration) (*Created, error) {
	raw, err := i.store.Get(ctx, dynamo.UserPK(sub), sk)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeStoreError, "failed to read history entry", err,
			"1f2a3b4c-5d6e-4f7a-8b9c-0d1e2f3a4b5c")
	}
	if raw == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeNotFound, "history entry not found", nil,
			"2a3b4c5d-6e7f-4a8b-9c0d-1e2f3a4b5c6d")
	}

	var entry history.Entry
	if err := attributevalue.UnmarshalMap(raw, &entry); err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeStoreError, "failed to decode history entry", err,
			"3b4c5d6e-7f8a-4b9c-0d1e-2f3a4b5c6d7e")
	}
	if entry.Deleted {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeNotFound, "history entry not found", nil,
			"4c5d6e7f-8a9b-4c0d-1e2f-3a4b5c6d7e8f")
	}
	if entry.Status != history.StatusSuccess || entry.StorageKey == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeInvalidState, "only successful generations can be shared", nil,
			"5d6e7f8a-9b0c-4d1e-2f3a-4b5c6d7e8f9a")
	}

	token, err := sharetoken.New()
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeInternal, "failed to generate share token", err,
			"6e7f8a9b-0c1d-4e2f-3a4b-5c6d7e8f9a0b")
	}

	link := Link{
		PK:         dynamo.SharePK(token),
		SK:         dynamo.ShareMetaSK,
		CreatedAt:  i.now().UTC().Format(time.RFC3339),
		OwnerSub:   sub,
		StorageKey: entry.StorageKey,
		Prompt:     entry.Prompt,
	}
	if ttl > 0 {
		link.Expiry = i.now().Add(ttl).Unix()
	}

	item, err := attributevalue.MarshalMap(link)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeInternal, "failed to encode share link", err,
			"7f8a9b0c-1d2e-4f3a-4b5c-6d7e8f9a0b1c")
	}
	// The token space makes collisions negligible; the condition turns one
	// into a hard error instead of a silent overwrite.
	if err := i.store.Put(ctx, item, &dynamo.Condition{ItemExists: dynamo.Bool(false)}); err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeStoreError, "failed to write share link", err,
			"8a9b0c1d-2e3f-4a4b-5c6d-7e8f9a0b1c2d")
	}

	metrics.SharesCreatedTotal.Inc()
	return &Created{ShareID: token, ShareURL: i.shareURL(token)}, nil
}

// Resolve returns the public view of a share link with a freshly signed
// URL. A lapsed expiry reads as expired even when the row is still present;
// a physically purged row reads as not found.
func (i *Issuer) Resolve(ctx context.Context, shareID string) (*Resolved, error) {
	if !sharetoken.IsValid(shareID) {
		metrics.RecordShareResolution("not_found")
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeNotFound, "share link not found", nil,
			"9b0c1d2e-3f4a-4b5c-6d7e-8f9a0b1c2d3e")
	}

	raw, err := i.store.Get(ctx, dynamo.SharePK(shareID), dynamo.ShareMetaSK)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeStoreError, "failed to read share link", err,
			"0c1d2e3f-4a5b-4c6d-7e8f-9a0b1c2d3e4f")
	}
	if raw == nil {
		metrics.RecordShareResolution("not_found")
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeNotFound, "share link not found", nil,
			"1d2e3f4a-5b6c-4d7e-8f9a-0b1c2d3e4f5a")
	}

	var link Link
	if err := attributevalue.UnmarshalMap(raw, &link); err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeStoreError, "failed to decode share link", err,
			"2e3f4a5b-6c7d-4e8f-9a0b-1c2d3e4f5a6b")
	}
	if link.Expiry > 0 && link.Expiry <= i.now().Unix() {
		metrics.RecordShareResolution("expired")
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeExpired, "share link has expired", nil,
			"3f4a5b6c-7d8e-4f9a-0b1c-2d3e4f5a6b7c")
	}

	url, err := i.signer.PresignGet(ctx, link.StorageKey, i.signTTL)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeStoreError, "failed to sign artifact url", err,
			"4a5b6c7d-8e9f-4a0b-1c2d-3e4f5a6b7c8d")
	}

	metrics.RecordShareResolution("ok")
	return &Resolved{URL: url, Prompt: link.Prompt, CreatedAt: link.CreatedAt}, nil
}

// shareURL builds the public URL; without a configured base the bare token
// is returned and the caller's client composes the final location.
func (i *Issuer) shareURL(token string) string {
	if i.baseURL == "" {
		return token
	}
	return i.baseURL + "/" + token
}
