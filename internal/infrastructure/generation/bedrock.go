// Package generation invokes the text-to-image model and stores the result.
// The rest of the service treats it as an opaque single-attempt capability:
// it either yields a storage key or fails, with no failure classification
// and no retries.
package generation

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"poster-api/internal/config"
)

// Uploader stores generated bytes under a key.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// Params describe one generation request. All fields arrive pre-validated.
type Params struct {
	Prompt         string
	NegativePrompt string
	AspectRatio    string
	OutputFormat   string // "png" or "jpg"
}

// EditParams describe one image-to-image request. All fields arrive
// pre-validated, strength already clamped to [0, 1].
type EditParams struct {
	Prompt         string
	NegativePrompt string
	Image          []byte
	Strength       float64
	OutputFormat   string // "png", "jpg" or "webp"
}

// Bedrock generates posters through the Bedrock runtime.
type Bedrock struct {
	client   *bedrockruntime.Client
	uploader Uploader
	modelID  string
	prefix   string
	log      zerolog.Logger
}

// modelRequest is the SD3.5 invocation body.
type modelRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	Mode           string `json:"mode"`
	Seed           int    `json:"seed"`
	OutputFormat   string `json:"output_format"`
	AspectRatio    string `json:"aspect_ratio"`
}

// editModelRequest is the SD3.5 image-to-image invocation body. The output
// keeps the source image's dimensions, so no aspect ratio is sent.
type editModelRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Mode           string  `json:"mode"`
	Image          string  `json:"image"`
	Strength       float64 `json:"strength"`
	Seed           int     `json:"seed"`
	OutputFormat   string  `json:"output_format"`
}

// modelResponse covers both response shapes Stability models return.
type modelResponse struct {
	Images    []string `json:"images"`
	Artifacts []struct {
		Base64 string `json:"base64"`
	} `json:"artifacts"`
}

func NewBedrock(ctx context.Context, cfg *config.Config, uploader Uploader, log zerolog.Logger) (*Bedrock, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.BedrockRegion),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Bedrock{
		client:   bedrockruntime.NewFromConfig(awsCfg),
		uploader: uploader,
		modelID:  cfg.BedrockModelID,
		prefix:   cfg.S3KeyPrefix,
		log:      log.With().Str("component", "bedrock-generation").Logger(),
	}, nil
}

// GenerateAndStore runs one model invocation and uploads the image, returning
// the storage key.
func (b *Bedrock) GenerateAndStore(ctx context.Context, p Params) (string, error) {
	payload, err := json.Marshal(modelRequest{
		Prompt:         p.Prompt,
		NegativePrompt: p.NegativePrompt,
		Mode:           "text-to-image",
		Seed:           0,
		OutputFormat:   p.OutputFormat,
		AspectRatio:    p.AspectRatio,
	})
	if err != nil {
		return "", fmt.Errorf("marshal model request: %w", err)
	}
	return b.invokeAndStore(ctx, payload, p.OutputFormat)
}

// EditAndStore reworks an uploaded image under a prompt and stores the
// result, returning the storage key.
func (b *Bedrock) EditAndStore(ctx context.Context, p EditParams) (string, error) {
	payload, err := editRequestBody(p)
	if err != nil {
		return "", fmt.Errorf("marshal edit request: %w", err)
	}
	return b.invokeAndStore(ctx, payload, p.OutputFormat)
}

func editRequestBody(p EditParams) ([]byte, error) {
	return json.Marshal(editModelRequest{
		Prompt:         p.Prompt,
		NegativePrompt: p.NegativePrompt,
		Mode:           "image-to-image",
		Image:          base64.StdEncoding.EncodeToString(p.Image),
		Strength:       p.Strength,
		Seed:           0,
		OutputFormat:   p.OutputFormat,
	})
}

func (b *Bedrock) invokeAndStore(ctx context.Context, payload []byte, format string) (string, error) {
	started := time.Now()
	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return "", fmt.Errorf("invoke model: %w", err)
	}
	b.log.Debug().
		Dur("elapsed", time.Since(started)).
		Str("model", b.modelID).
		Msg("model invocation complete")

	image, err := extractImage(out.Body)
	if err != nil {
		return "", err
	}

	key := b.objectKey(format)
	if err := b.uploader.Upload(ctx, key, image, contentTypeFor(image, format)); err != nil {
		return "", fmt.Errorf("upload generated image: %w", err)
	}

	return key, nil
}

func (b *Bedrock) objectKey(format string) string {
	ts := time.Now().UTC().Format("20060102T150405Z")
	id := uuid.New()
	return fmt.Sprintf("%s%s-%s.%s", b.prefix, ts, hex.EncodeToString(id[:]), format)
}

func extractImage(body []byte) ([]byte, error) {
	var resp modelResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}

	encoded := ""
	switch {
	case len(resp.Images) > 0:
		encoded = resp.Images[0]
	case len(resp.Artifacts) > 0:
		encoded = resp.Artifacts[0].Base64
	}
	if encoded == "" {
		return nil, errors.New("no image in model response")
	}

	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode image payload: %w", err)
	}
	return image, nil
}

// contentTypeFor sniffs the actual bytes and only falls back to the
// requested format when detection is inconclusive.
func contentTypeFor(image []byte, format string) string {
	detected := mimetype.Detect(image).String()
	if detected != "application/octet-stream" {
		return detected
	}
	if format == "png" {
		return "image/png"
	}
	return "image/jpeg"
}
