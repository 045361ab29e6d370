package poster

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"poster-api/internal/config"
	"poster-api/internal/domain/credits"
	"poster-api/internal/domain/history"
	"poster-api/internal/infrastructure/dynamo"
	"poster-api/internal/infrastructure/generation"
	"poster-api/internal/utils/platformerrors"
)

type fakeGenerator struct {
	key        string
	err        error
	params     generation.Params
	editParams generation.EditParams
	calls      int
	editCalls  int
}

func (f *fakeGenerator) GenerateAndStore(_ context.Context, p generation.Params) (string, error) {
	f.calls++
	f.params = p
	if f.err != nil {
		return "", f.err
	}
	return f.key, nil
}

func (f *fakeGenerator) EditAndStore(_ context.Context, p generation.EditParams) (string, error) {
	f.editCalls++
	f.editParams = p
	if f.err != nil {
		return "", f.err
	}
	return f.key, nil
}

// pngBytes is the PNG signature, enough for content sniffing.
var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

type fakeSigner struct{}

func (fakeSigner) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed.example.com/" + key, nil
}

func newTestService(store dynamo.Store, gen *fakeGenerator) *Service {
	cfg := &config.Config{
		S3PresignTTL:          time.Hour,
		CreditsRefillAmount:   10,
		CreditsRefillInterval: 24 * time.Hour,
		HistoryPageSize:       20,
		HistoryPageMax:        50,
		FeaturedScanPages:     8,
		FeaturedScanSize:      100,
		EditMaxImageBytes:     1 << 20,
		EditMaxPromptChars:    800,
	}
	log := zerolog.Nop()
	signer := fakeSigner{}
	ledger := credits.NewLedger(cfg, store, log)
	histLog := history.NewLog(cfg, store, signer, log)
	return NewService(cfg, ledger, histLog, gen, gen, signer, log)
}

func listHistory(t *testing.T, store dynamo.Store, sub string) []history.ListItem {
	t.Helper()
	cfg := &config.Config{
		S3PresignTTL:      time.Hour,
		HistoryPageSize:   20,
		HistoryPageMax:    50,
		FeaturedScanPages: 8,
		FeaturedScanSize:  100,
	}
	histLog := history.NewLog(cfg, store, fakeSigner{}, zerolog.Nop())
	items, _, err := histLog.List(context.Background(), sub, 50, "")
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	return items
}

func peekCredits(t *testing.T, store dynamo.Store, sub string) int {
	t.Helper()
	cfg := &config.Config{CreditsRefillAmount: 10, CreditsRefillInterval: 24 * time.Hour}
	balance, err := credits.NewLedger(cfg, store, zerolog.Nop()).Peek(context.Background(), sub)
	if err != nil {
		t.Fatalf("peek credits: %v", err)
	}
	return balance
}

func TestGenerateSuccess(t *testing.T) {
	store := dynamo.NewMemoryStore()
	gen := &fakeGenerator{key: "generated/ok.png"}
	svc := newTestService(store, gen)

	result, err := svc.Generate(context.Background(), "alice", GenerateParams{Prompt: "a red barn"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.RemainingCredits != 9 {
		t.Fatalf("remaining = %d, want 9", result.RemainingCredits)
	}
	if result.URL != "https://signed.example.com/generated/ok.png" {
		t.Fatalf("url = %q", result.URL)
	}
	if gen.params.AspectRatio != "1:1" || gen.params.OutputFormat != "png" {
		t.Fatalf("defaults not applied: %+v", gen.params)
	}

	items := listHistory(t, store, "alice")
	if len(items) != 1 {
		t.Fatalf("history entries = %d, want 1", len(items))
	}
	if items[0].Status != history.StatusSuccess || items[0].SK != result.SK {
		t.Fatalf("history entry = %+v", items[0].Entry)
	}
}

func TestGenerateFailureRefundsAndRecords(t *testing.T) {
	store := dynamo.NewMemoryStore()
	gen := &fakeGenerator{err: errors.New("model timed out")}
	svc := newTestService(store, gen)

	_, err := svc.Generate(context.Background(), "bob", GenerateParams{Prompt: "a storm"})
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeUpstream) {
		t.Fatalf("err = %v, want UPSTREAM", err)
	}

	if got := peekCredits(t, store, "bob"); got != 10 {
		t.Fatalf("credits = %d, want the reserved credit refunded", got)
	}

	items := listHistory(t, store, "bob")
	if len(items) != 1 || items[0].Status != history.StatusFailed {
		t.Fatalf("expected one FAILED history entry, got %+v", items)
	}
	if items[0].ErrorMessage == "" {
		t.Fatal("failure detail not recorded")
	}
}

func TestGenerateOutOfCredits(t *testing.T) {
	store := dynamo.NewMemoryStore()
	gen := &fakeGenerator{key: "generated/never.png"}
	svc := newTestService(store, gen)

	// Drain the fresh refill.
	for i := 0; i < 10; i++ {
		if _, err := svc.Generate(context.Background(), "carol", GenerateParams{Prompt: "x"}); err != nil {
			t.Fatalf("Generate %d: %v", i, err)
		}
	}
	calls := gen.calls

	_, err := svc.Generate(context.Background(), "carol", GenerateParams{Prompt: "one more"})
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeOutOfCredits) {
		t.Fatalf("err = %v, want OUT_OF_CREDITS", err)
	}
	if gen.calls != calls {
		t.Fatal("no external work may run when credits are exhausted")
	}

	items := listHistory(t, store, "carol")
	if len(items) != 11 || items[0].Status != history.StatusFailed {
		t.Fatalf("expected a FAILED entry for the rejected attempt, got %d items", len(items))
	}
}

func TestGenerateValidation(t *testing.T) {
	tests := []struct {
		name   string
		params GenerateParams
	}{
		{"empty prompt", GenerateParams{Prompt: "   "}},
		{"bad aspect ratio", GenerateParams{Prompt: "x", AspectRatio: "2:1"}},
		{"bad format", GenerateParams{Prompt: "x", OutputFormat: "webp"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := dynamo.NewMemoryStore()
			gen := &fakeGenerator{key: "generated/never.png"}
			svc := newTestService(store, gen)

			_, err := svc.Generate(context.Background(), "dave", tt.params)
			if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation) {
				t.Fatalf("err = %v, want VALIDATION", err)
			}
			if gen.calls != 0 {
				t.Fatal("invalid request must not reach the model")
			}
			if got := peekCredits(t, store, "dave"); got != 10 {
				t.Fatalf("credits = %d, invalid request must not spend", got)
			}
		})
	}
}

func TestEditSuccess(t *testing.T) {
	store := dynamo.NewMemoryStore()
	gen := &fakeGenerator{key: "generated/edited.png"}
	svc := newTestService(store, gen)

	result, err := svc.Edit(context.Background(), "alice", EditParams{
		Prompt: "make it night",
		Image:  pngBytes,
	})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if result.RemainingCredits != 9 {
		t.Fatalf("remaining = %d, want 9", result.RemainingCredits)
	}
	if result.URL != "https://signed.example.com/generated/edited.png" {
		t.Fatalf("url = %q", result.URL)
	}
	if gen.editParams.Strength != 0.5 {
		t.Fatalf("strength = %v, want the default", gen.editParams.Strength)
	}
	if gen.editParams.OutputFormat != "png" {
		t.Fatalf("format = %q, want png default", gen.editParams.OutputFormat)
	}

	items := listHistory(t, store, "alice")
	if len(items) != 1 {
		t.Fatalf("history entries = %d, want 1", len(items))
	}
	if items[0].Kind != history.KindEdit || items[0].Status != history.StatusSuccess {
		t.Fatalf("history entry = %+v", items[0].Entry)
	}
}

func TestEditFailureRefundsAndRecords(t *testing.T) {
	store := dynamo.NewMemoryStore()
	gen := &fakeGenerator{err: errors.New("model timed out")}
	svc := newTestService(store, gen)

	_, err := svc.Edit(context.Background(), "bob", EditParams{Prompt: "brighter", Image: pngBytes})
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeUpstream) {
		t.Fatalf("err = %v, want UPSTREAM", err)
	}

	if got := peekCredits(t, store, "bob"); got != 10 {
		t.Fatalf("credits = %d, want the reserved credit refunded", got)
	}

	items := listHistory(t, store, "bob")
	if len(items) != 1 || items[0].Status != history.StatusFailed || items[0].Kind != history.KindEdit {
		t.Fatalf("expected one FAILED edit entry, got %+v", items)
	}
}

func TestEditValidation(t *testing.T) {
	oversized := make([]byte, (1<<20)+1)
	copy(oversized, pngBytes)

	tests := []struct {
		name   string
		params EditParams
	}{
		{"empty prompt", EditParams{Prompt: "   ", Image: pngBytes}},
		{"prompt too long", EditParams{Prompt: strings.Repeat("x", 801), Image: pngBytes}},
		{"missing image", EditParams{Prompt: "x"}},
		{"image too large", EditParams{Prompt: "x", Image: oversized}},
		{"not an image", EditParams{Prompt: "x", Image: []byte("plain text, not pixels")}},
		{"bad format", EditParams{Prompt: "x", Image: pngBytes, OutputFormat: "gif"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := dynamo.NewMemoryStore()
			gen := &fakeGenerator{key: "generated/never.png"}
			svc := newTestService(store, gen)

			_, err := svc.Edit(context.Background(), "dave", tt.params)
			if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation) {
				t.Fatalf("err = %v, want VALIDATION", err)
			}
			if gen.editCalls != 0 {
				t.Fatal("invalid request must not reach the model")
			}
			if got := peekCredits(t, store, "dave"); got != 10 {
				t.Fatalf("credits = %d, invalid request must not spend", got)
			}
		})
	}
}

func TestEditClampsStrengthAndTruncatesNegativePrompt(t *testing.T) {
	store := dynamo.NewMemoryStore()
	gen := &fakeGenerator{key: "generated/edited.webp"}
	svc := newTestService(store, gen)

	high := 2.5
	_, err := svc.Edit(context.Background(), "erin", EditParams{
		Prompt:         "repaint in watercolor",
		NegativePrompt: strings.Repeat("n", 900),
		Image:          pngBytes,
		Strength:       &high,
		OutputFormat:   "WEBP",
	})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if gen.editParams.Strength != 1 {
		t.Fatalf("strength = %v, want clamped to 1", gen.editParams.Strength)
	}
	if len(gen.editParams.NegativePrompt) != 800 {
		t.Fatalf("negative prompt length = %d, want truncated to 800", len(gen.editParams.NegativePrompt))
	}
	if gen.editParams.OutputFormat != "webp" {
		t.Fatalf("format = %q, want webp", gen.editParams.OutputFormat)
	}

	low := -3.0
	_, err = svc.Edit(context.Background(), "erin", EditParams{
		Prompt:   "repaint in oil",
		Image:    pngBytes,
		Strength: &low,
	})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if gen.editParams.Strength != 0 {
		t.Fatalf("strength = %v, want clamped to 0", gen.editParams.Strength)
	}
}

func TestGenerateNormalizesJpeg(t *testing.T) {
	store := dynamo.NewMemoryStore()
	gen := &fakeGenerator{key: "generated/ok.jpg"}
	svc := newTestService(store, gen)

	_, err := svc.Generate(context.Background(), "erin", GenerateParams{
		Prompt:       "a harbor",
		OutputFormat: "JPEG",
		AspectRatio:  "16:9",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.params.OutputFormat != "jpg" {
		t.Fatalf("format = %q, want jpeg folded to jpg", gen.params.OutputFormat)
	}
	if gen.params.AspectRatio != "16:9" {
		t.Fatalf("aspect ratio = %q", gen.params.AspectRatio)
	}
}
