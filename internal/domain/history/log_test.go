package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"poster-api/internal/config"
	"poster-api/internal/infrastructure/dynamo"
	"poster-api/internal/utils/pagecursor"
	"poster-api/internal/utils/platformerrors"
	"poster-api/internal/utils/posterid"
)

// absentSK builds a well-formed history sort key that points at no row.
func absentSK() string {
	return dynamo.GenSK(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339), posterid.New())
}

// fakeSigner returns a deterministic URL per key, or a forced error.
type fakeSigner struct {
	err   error
	calls int
}

func (f *fakeSigner) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "https://signed.example.com/" + key, nil
}

func newTestLog(store dynamo.Store, signer Signer) *Log {
	cfg := &config.Config{
		S3PresignTTL:      time.Hour,
		HistoryPageSize:   20,
		HistoryPageMax:    50,
		FeaturedScanPages: 8,
		FeaturedScanSize:  100,
	}
	return NewLog(cfg, store, signer, zerolog.Nop())
}

func appendSuccess(t *testing.T, log *Log, sub string, n int) string {
	t.Helper()
	sk := log.Append(context.Background(), sub, Entry{
		CreatedAt:    time.Date(2026, 3, 1, 12, 0, n, 0, time.UTC).Format(time.RFC3339),
		Status:       StatusSuccess,
		Prompt:       fmt.Sprintf("poster %d", n),
		AspectRatio:  "1:1",
		OutputFormat: "png",
		StorageKey:   fmt.Sprintf("generated/poster-%d.png", n),
	})
	if !strings.HasPrefix(sk, dynamo.GenSKPrefix) {
		t.Fatalf("Append returned sort key %q", sk)
	}
	return sk
}

func TestListNewestFirstWithSignedURLs(t *testing.T) {
	store := dynamo.NewMemoryStore()
	log := newTestLog(store, &fakeSigner{})

	appendSuccess(t, log, "alice", 1)
	appendSuccess(t, log, "alice", 2)
	log.Append(context.Background(), "alice", Entry{
		CreatedAt:    time.Date(2026, 3, 1, 12, 0, 3, 0, time.UTC).Format(time.RFC3339),
		Status:       StatusFailed,
		Prompt:       "poster 3",
		ErrorMessage: "model unavailable",
	})

	items, next, err := log.List(context.Background(), "alice", 10, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if next != "" {
		t.Fatalf("unexpected next cursor %q", next)
	}
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}
	if items[0].Status != StatusFailed {
		t.Fatalf("first item status = %s, want newest (FAILED) first", items[0].Status)
	}
	if items[0].URL != "" {
		t.Fatal("failed entry must not carry a URL")
	}
	if items[1].URL == "" || items[2].URL == "" {
		t.Fatal("successful entries must carry signed URLs")
	}
	if items[1].Prompt != "poster 2" {
		t.Fatalf("order wrong: second item prompt = %q", items[1].Prompt)
	}
}

func TestListPagination(t *testing.T) {
	store := dynamo.NewMemoryStore()
	log := newTestLog(store, &fakeSigner{})

	for i := 0; i < 5; i++ {
		appendSuccess(t, log, "bob", i)
	}

	seen := map[string]bool{}
	cursor := ""
	for pages := 0; pages < 10; pages++ {
		items, next, err := log.List(context.Background(), "bob", 2, cursor)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		for _, item := range items {
			if seen[item.SK] {
				t.Fatalf("entry %s returned twice", item.SK)
			}
			seen[item.SK] = true
		}
		if next == "" {
			break
		}
		cursor = next
	}
	if len(seen) != 5 {
		t.Fatalf("collected %d entries across pages, want 5", len(seen))
	}
}

func TestListTreatsGarbageCursorAsStart(t *testing.T) {
	store := dynamo.NewMemoryStore()
	log := newTestLog(store, &fakeSigner{})
	appendSuccess(t, log, "carol", 1)

	items, _, err := log.List(context.Background(), "carol", 10, "!!not-a-cursor!!")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
}

func TestListIgnoresForeignCursor(t *testing.T) {
	store := dynamo.NewMemoryStore()
	log := newTestLog(store, &fakeSigner{})
	for i := 0; i < 3; i++ {
		appendSuccess(t, log, "carol", i)
	}
	mallorySK := appendSuccess(t, log, "mallory", 9)

	// A well-formed cursor pointing into another user's partition must not
	// reach the store as a start key; the listing starts over instead.
	forged := pagecursor.Encode(&pagecursor.Key{PK: dynamo.UserPK("mallory"), SK: mallorySK})
	items, _, err := log.List(context.Background(), "carol", 2, forged)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want the first page", len(items))
	}
	for _, item := range items {
		if item.SK == mallorySK {
			t.Fatal("foreign cursor leaked another user's entry")
		}
	}
}

func TestListPresignFailureDropsURLNotRow(t *testing.T) {
	store := dynamo.NewMemoryStore()
	log := newTestLog(store, &fakeSigner{err: errors.New("s3 down")})
	appendSuccess(t, log, "dave", 1)

	items, _, err := log.List(context.Background(), "dave", 10, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	if items[0].URL != "" {
		t.Fatal("expected empty URL on presign failure")
	}
}

func TestSoftDelete(t *testing.T) {
	store := dynamo.NewMemoryStore()
	log := newTestLog(store, &fakeSigner{})
	sk := appendSuccess(t, log, "erin", 1)

	if err := log.SoftDelete(context.Background(), "erin", sk); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	items, _, err := log.List(context.Background(), "erin", 10, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("deleted entry still listed")
	}

	// The row itself survives for audit and outstanding shares.
	raw, _ := store.Get(context.Background(), dynamo.UserPK("erin"), sk)
	if raw == nil {
		t.Fatal("soft delete removed the row")
	}
	if !dynamo.BoolAttr(raw, attrDeleted) {
		t.Fatal("Deleted flag not set")
	}
}

func TestSoftDeleteMissingEntry(t *testing.T) {
	store := dynamo.NewMemoryStore()
	log := newTestLog(store, &fakeSigner{})

	err := log.SoftDelete(context.Background(), "frank", absentSK())
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}

func TestMutationsRejectMalformedSortKeys(t *testing.T) {
	store := dynamo.NewMemoryStore()
	log := newTestLog(store, &fakeSigner{})
	appendSuccess(t, log, "frank", 1)
	if _, err := store.Update(context.Background(), dynamo.UserPK("frank"), dynamo.CreditsSK,
		dynamo.Mutation{Add: map[string]int64{"Credits": 10}}, nil); err != nil {
		t.Fatalf("seed credits row: %v", err)
	}

	keys := []string{
		dynamo.CreditsSK,
		dynamo.ShareMetaSK,
		dynamo.GenSKPrefix + "nope",
		dynamo.GenSK("2026-03-01T00:00:00Z", "not-a-request-id"),
		"",
	}
	for _, sk := range keys {
		if err := log.SoftDelete(context.Background(), "frank", sk); !platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation) {
			t.Fatalf("SoftDelete(%q) = %v, want VALIDATION", sk, err)
		}
		if err := log.SetFeatured(context.Background(), "frank", sk); !platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation) {
			t.Fatalf("SetFeatured(%q) = %v, want VALIDATION", sk, err)
		}
	}

	// The credit balance row must never pick up history flags.
	raw, _ := store.Get(context.Background(), dynamo.UserPK("frank"), dynamo.CreditsSK)
	if dynamo.BoolAttr(raw, attrFeatured) || dynamo.BoolAttr(raw, attrDeleted) {
		t.Fatal("history mutation reached the credit balance row")
	}
}

func TestSetFeaturedDemotesPrevious(t *testing.T) {
	store := dynamo.NewMemoryStore()
	log := newTestLog(store, &fakeSigner{})
	first := appendSuccess(t, log, "grace", 1)
	second := appendSuccess(t, log, "grace", 2)

	if err := log.SetFeatured(context.Background(), "grace", first); err != nil {
		t.Fatalf("SetFeatured(first): %v", err)
	}
	if err := log.SetFeatured(context.Background(), "grace", second); err != nil {
		t.Fatalf("SetFeatured(second): %v", err)
	}

	raw, _ := store.Get(context.Background(), dynamo.UserPK("grace"), first)
	if dynamo.BoolAttr(raw, attrFeatured) {
		t.Fatal("previous featured entry not demoted")
	}

	featured, err := log.GetFeatured(context.Background(), "grace")
	if err != nil {
		t.Fatalf("GetFeatured: %v", err)
	}
	if featured == nil || featured.SK != second {
		t.Fatalf("featured = %+v, want sk %s", featured, second)
	}
	if featured.URL == "" {
		t.Fatal("featured entry must carry a signed URL")
	}
}

func TestSetFeaturedRejectsDeletedEntry(t *testing.T) {
	store := dynamo.NewMemoryStore()
	log := newTestLog(store, &fakeSigner{})
	sk := appendSuccess(t, log, "heidi", 1)

	if err := log.SoftDelete(context.Background(), "heidi", sk); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	err := log.SetFeatured(context.Background(), "heidi", sk)
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeInvalidState) {
		t.Fatalf("err = %v, want INVALID_STATE", err)
	}
}

func TestSetFeaturedMissingEntry(t *testing.T) {
	store := dynamo.NewMemoryStore()
	log := newTestLog(store, &fakeSigner{})

	err := log.SetFeatured(context.Background(), "ivan", absentSK())
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}

func TestGetFeaturedNoneFeatured(t *testing.T) {
	store := dynamo.NewMemoryStore()
	log := newTestLog(store, &fakeSigner{})
	appendSuccess(t, log, "judy", 1)

	featured, err := log.GetFeatured(context.Background(), "judy")
	if err != nil {
		t.Fatalf("GetFeatured: %v", err)
	}
	if featured != nil {
		t.Fatalf("featured = %+v, want nil", featured)
	}
}
