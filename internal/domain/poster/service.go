// Package poster orchestrates one generation or edit request end to end:
// reserve a credit, run the model, commit the outcome to history. Each
// request is a single attempt; a failed attempt refunds the credit best
// effort.
package poster

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"poster-api/internal/config"
	"poster-api/internal/domain/credits"
	"poster-api/internal/domain/history"
	"poster-api/internal/infrastructure/generation"
	"poster-api/internal/infrastructure/metrics"
	"poster-api/internal/utils/platformerrors"
)

var allowedAspectRatios = map[string]bool{
	"1:1":  true,
	"16:9": true,
	"9:16": true,
	"4:3":  true,
	"3:4":  true,
}

var allowedSourceImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
}

// defaultEditStrength applies when the caller does not say how far the model
// may drift from the source image.
const defaultEditStrength = 0.5

// Generator runs one model invocation and stores the artifact.
type Generator interface {
	GenerateAndStore(ctx context.Context, p generation.Params) (string, error)
}

// Editor reworks a source image under a prompt and stores the artifact.
type Editor interface {
	EditAndStore(ctx context.Context, p generation.EditParams) (string, error)
}

// GenerateParams is one caller-supplied generation request, pre-validation.
type GenerateParams struct {
	Prompt         string
	NegativePrompt string
	AspectRatio    string
	OutputFormat   string
}

// EditParams is one caller-supplied edit request, pre-validation. A nil
// Strength means "use the default".
type EditParams struct {
	Prompt         string
	NegativePrompt string
	Image          []byte
	Strength       *float64
	OutputFormat   string
}

// Result is a successful generation.
type Result struct {
	URL              string `json:"url"`
	SK               string `json:"sk"`
	RemainingCredits int    `json:"remaining_credits"`
}

// Service is the generation orchestrator.
type Service struct {
	ledger         *credits.Ledger
	histLog        *history.Log
	generator      Generator
	editor         Editor
	signer         history.Signer
	signTTL        time.Duration
	maxImageBytes  int64
	maxPromptChars int
	log            zerolog.Logger
	now            func() time.Time
}

func NewService(cfg *config.Config, ledger *credits.Ledger, histLog *history.Log, generator Generator, editor Editor, signer history.Signer, log zerolog.Logger) *Service {
	return &Service{
		ledger:         ledger,
		histLog:        histLog,
		generator:      generator,
		editor:         editor,
		signer:         signer,
		signTTL:        cfg.S3PresignTTL,
		maxImageBytes:  cfg.EditMaxImageBytes,
		maxPromptChars: cfg.EditMaxPromptChars,
		log:            log.With().Str("component", "poster-service").Logger(),
		now:            time.Now,
	}
}

// Generate runs the full reserve, work, commit sequence for one request.
// Exactly one credit is reserved per attempt; a failed attempt is refunded
// best effort and recorded as a FAILED history entry.
func (s *Service) Generate(ctx context.Context, sub string, params GenerateParams) (*Result, error) {
	normalized, err := normalize(ctx, params)
	if err != nil {
		return nil, err
	}

	remaining, err := s.ledger.Reserve(ctx, sub)
	if errors.Is(err, credits.ErrOutOfCredits) {
		s.histLog.Append(ctx, sub, s.failedEntry(normalized, "out of credits"))
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeOutOfCredits, "no credits remaining", err,
			"a1b2c3d4-e5f6-4a7b-8c9d-1e2f3a4b5c6e")
	}
	if err != nil {
		return nil, err
	}

	started := s.now()
	key, err := s.generator.GenerateAndStore(ctx, generation.Params{
		Prompt:         normalized.Prompt,
		NegativePrompt: normalized.NegativePrompt,
		AspectRatio:    normalized.AspectRatio,
		OutputFormat:   normalized.OutputFormat,
	})
	elapsed := s.now().Sub(started).Seconds()
	if err != nil {
		metrics.RecordGeneration("failed", elapsed)
		s.log.Error().Err(err).Str("sub", sub).Msg("generation failed; refunding credit")
		s.ledger.Refund(ctx, sub)
		s.histLog.Append(ctx, sub, s.failedEntry(normalized, err.Error()))
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeUpstream, "poster generation failed", err,
			"b2c3d4e5-f6a7-4b8c-9d0e-2f3a4b5c6d7f")
	}
	metrics.RecordGeneration("success", elapsed)

	sk := s.histLog.Append(ctx, sub, history.Entry{
		CreatedAt:    s.now().UTC().Format(time.RFC3339),
		Status:       history.StatusSuccess,
		Kind:         history.KindGenerate,
		Prompt:       normalized.Prompt,
		AspectRatio:  normalized.AspectRatio,
		OutputFormat: normalized.OutputFormat,
		StorageKey:   key,
	})

	url, err := s.signer.PresignGet(ctx, key, s.signTTL)
	if err != nil {
		// The artifact is stored and the history entry is committed; the
		// caller can recover the URL from a history listing.
		s.log.Warn().Err(err).Str("key", key).Msg("presign failed after successful generation")
	}

	return &Result{URL: url, SK: sk, RemainingCredits: remaining}, nil
}

// Edit runs the same reserve, work, commit sequence over an uploaded source
// image. Edits and generations draw from the one credit balance.
func (s *Service) Edit(ctx context.Context, sub string, params EditParams) (*Result, error) {
	normalized, err := s.normalizeEdit(ctx, params)
	if err != nil {
		return nil, err
	}

	remaining, err := s.ledger.Reserve(ctx, sub)
	if errors.Is(err, credits.ErrOutOfCredits) {
		s.histLog.Append(ctx, sub, s.failedEditEntry(normalized, "out of credits"))
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeOutOfCredits, "no credits remaining", err,
			"f6a7b8c9-d0e1-4f2a-3b4c-6d7e8f9a0b1d")
	}
	if err != nil {
		return nil, err
	}

	started := s.now()
	key, err := s.editor.EditAndStore(ctx, generation.EditParams{
		Prompt:         normalized.Prompt,
		NegativePrompt: normalized.NegativePrompt,
		Image:          normalized.Image,
		Strength:       *normalized.Strength,
		OutputFormat:   normalized.OutputFormat,
	})
	elapsed := s.now().Sub(started).Seconds()
	if err != nil {
		metrics.RecordGeneration("failed", elapsed)
		s.log.Error().Err(err).Str("sub", sub).Msg("edit failed; refunding credit")
		s.ledger.Refund(ctx, sub)
		s.histLog.Append(ctx, sub, s.failedEditEntry(normalized, err.Error()))
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeUpstream, "poster edit failed", err,
			"a7b8c9d0-e1f2-4a3b-4c5d-7e8f9a0b1c2e")
	}
	metrics.RecordGeneration("success", elapsed)

	sk := s.histLog.Append(ctx, sub, history.Entry{
		CreatedAt:    s.now().UTC().Format(time.RFC3339),
		Status:       history.StatusSuccess,
		Kind:         history.KindEdit,
		Prompt:       normalized.Prompt,
		OutputFormat: normalized.OutputFormat,
		StorageKey:   key,
	})

	url, err := s.signer.PresignGet(ctx, key, s.signTTL)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("presign failed after successful edit")
	}

	return &Result{URL: url, SK: sk, RemainingCredits: remaining}, nil
}

func (s *Service) failedEntry(params GenerateParams, detail string) history.Entry {
	return history.Entry{
		CreatedAt:    s.now().UTC().Format(time.RFC3339),
		Status:       history.StatusFailed,
		Kind:         history.KindGenerate,
		Prompt:       params.Prompt,
		AspectRatio:  params.AspectRatio,
		OutputFormat: params.OutputFormat,
		ErrorMessage: detail,
	}
}

func (s *Service) failedEditEntry(params EditParams, detail string) history.Entry {
	return history.Entry{
		CreatedAt:    s.now().UTC().Format(time.RFC3339),
		Status:       history.StatusFailed,
		Kind:         history.KindEdit,
		Prompt:       params.Prompt,
		OutputFormat: params.OutputFormat,
		ErrorMessage: detail,
	}
}

// normalize validates the request and fills defaults: aspect ratio 1:1,
// output format png, with jpeg folded into jpg.
func normalize(ctx context.Context, params GenerateParams) (GenerateParams, error) {
	params.Prompt = strings.TrimSpace(params.Prompt)
	if params.Prompt == "" {
		return params, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "prompt must not be empty", nil,
			"c3d4e5f6-a7b8-4c9d-0e1f-3a4b5c6d7e8a")
	}

	if params.AspectRatio == "" {
		params.AspectRatio = "1:1"
	}
	if !allowedAspectRatios[params.AspectRatio] {
		return params, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "unsupported aspect ratio", nil,
			"d4e5f6a7-b8c9-4d0e-1f2a-4b5c6d7e8f9b")
	}

	switch strings.ToLower(params.OutputFormat) {
	case "", "png":
		params.OutputFormat = "png"
	case "jpg", "jpeg":
		params.OutputFormat = "jpg"
	default:
		return params, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "unsupported output format", nil,
			"e5f6a7b8-c9d0-4e1f-2a3b-5c6d7e8f9a0c")
	}

	return params, nil
}

// normalizeEdit validates an edit request: prompt bounds, source image type
// and size, strength clamped to [0, 1]. An overlong negative prompt is
// truncated rather than rejected.
func (s *Service) normalizeEdit(ctx context.Context, params EditParams) (EditParams, error) {
	params.Prompt = strings.TrimSpace(params.Prompt)
	if params.Prompt == "" {
		return params, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "prompt must not be empty", nil,
			"b8c9d0e1-f2a3-4b4c-5d6e-8f9a0b1c2d3f")
	}
	if len([]rune(params.Prompt)) > s.maxPromptChars {
		return params, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "prompt too long", nil,
			"c9d0e1f2-a3b4-4c5d-6e7f-9a0b1c2d3e4a")
	}
	if neg := []rune(strings.TrimSpace(params.NegativePrompt)); len(neg) > s.maxPromptChars {
		params.NegativePrompt = string(neg[:s.maxPromptChars])
	} else {
		params.NegativePrompt = string(neg)
	}

	if len(params.Image) == 0 {
		return params, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "source image must not be empty", nil,
			"d0e1f2a3-b4c5-4d6e-7f8a-0b1c2d3e4f5b")
	}
	if int64(len(params.Image)) > s.maxImageBytes {
		return params, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "source image too large", nil,
			"e1f2a3b4-c5d6-4e7f-8a9b-1c2d3e4f5a6c")
	}
	if detected := mimetype.Detect(params.Image).String(); !allowedSourceImageTypes[detected] {
		return params, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "unsupported source image type", nil,
			"f2a3b4c5-d6e7-4f8a-9b0c-2d3e4f5a6b7d")
	}

	if params.Strength == nil {
		strength := defaultEditStrength
		params.Strength = &strength
	} else {
		strength := *params.Strength
		if strength < 0 {
			strength = 0
		}
		if strength > 1 {
			strength = 1
		}
		params.Strength = &strength
	}

	switch strings.ToLower(params.OutputFormat) {
	case "", "png":
		params.OutputFormat = "png"
	case "jpg", "jpeg":
		params.OutputFormat = "jpg"
	case "webp":
		params.OutputFormat = "webp"
	default:
		return params, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "unsupported output format", nil,
			"a3b4c5d6-e7f8-4a9b-0c1d-3e4f5a6b7c8e")
	}

	return params, nil
}
