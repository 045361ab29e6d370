package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"poster-api/internal/config"
	"poster-api/internal/domain/poster"
	"poster-api/internal/infrastructure/auth"
	"poster-api/internal/interfaces/httpserver/requests"
	"poster-api/internal/interfaces/httpserver/responses"
)

// PosterHandler exposes the generation endpoint.
type PosterHandler struct {
	cfg     *config.Config
	service *poster.Service
	log     zerolog.Logger
}

func NewPosterHandler(cfg *config.Config, service *poster.Service, log zerolog.Logger) *PosterHandler {
	return &PosterHandler{
		cfg:     cfg,
		service: service,
		log:     log.With().Str("component", "poster-handler").Logger(),
	}
}

// Generate godoc
// @Summary      Generate a poster
// @Description  Reserves one credit, runs the model, and returns a signed URL for the result. A failed generation refunds the credit.
// @Tags         posters
// @Accept       json
// @Produce      json
// @Param        request  body      requests.GenerateRequest  true  "Generation request"
// @Success      200      {object}  responses.GenerateResponse
// @Failure      400      {object}  responses.ErrorResponse
// @Failure      402      {object}  responses.ErrorResponse
// @Failure      502      {object}  responses.ErrorResponse
// @Security     ApiKeyAuth
// @Router       /v1/posters [post]
func (h *PosterHandler) Generate(c *gin.Context) {
	// Parameters arrive in the JSON body or, for simple clients, as query
	// parameters; the body wins when both are present.
	var req requests.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Query("prompt") == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Prompt == "" {
		req.Prompt = c.Query("prompt")
		req.NegativePrompt = c.Query("negative_prompt")
		req.AspectRatio = c.Query("aspect_ratio")
		req.OutputFormat = c.Query("output_format")
	}

	result, err := h.service.Generate(c.Request.Context(), auth.Subject(c), poster.GenerateParams{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		AspectRatio:    req.AspectRatio,
		OutputFormat:   req.OutputFormat,
	})
	if err != nil {
		responses.HandleError(c, err, "poster generation failed")
		return
	}

	c.JSON(http.StatusOK, responses.BuildGenerateResponse(result, h.cfg.PresignTTLSeconds()))
}

// Edit godoc
// @Summary      Edit a poster
// @Description  Reserves one credit and reworks an uploaded image under a prompt. A failed edit refunds the credit.
// @Tags         posters
// @Accept       multipart/form-data
// @Produce      json
// @Param        image            formData  file    true   "Source image (png, jpeg or webp)"
// @Param        prompt           formData  string  true   "Edit instruction"
// @Param        negative_prompt  formData  string  false  "Negative prompt"
// @Param        strength         formData  number  false  "How far the model may drift from the source, 0 to 1"
// @Param        output_format    formData  string  false  "png, jpg or webp"
// @Success      200  {object}  responses.GenerateResponse
// @Failure      400  {object}  responses.ErrorResponse
// @Failure      402  {object}  responses.ErrorResponse
// @Failure      502  {object}  responses.ErrorResponse
// @Security     ApiKeyAuth
// @Router       /v1/posters/edits [post]
func (h *PosterHandler) Edit(c *gin.Context) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required file field: image"})
		return
	}
	// Reject oversized uploads before buffering them; the service re-checks
	// the byte count it actually receives.
	if fileHeader.Size > h.cfg.EditMaxImageBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image too large"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable image upload"})
		return
	}
	defer file.Close()
	image, err := io.ReadAll(io.LimitReader(file, h.cfg.EditMaxImageBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable image upload"})
		return
	}

	params := poster.EditParams{
		Prompt:         strings.TrimSpace(c.PostForm("prompt")),
		NegativePrompt: c.PostForm("negative_prompt"),
		Image:          image,
		OutputFormat:   c.PostForm("output_format"),
	}
	// An unparseable strength is ignored, leaving the service default.
	if raw := c.PostForm("strength"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			params.Strength = &v
		}
	}

	result, err := h.service.Edit(c.Request.Context(), auth.Subject(c), params)
	if err != nil {
		responses.HandleError(c, err, "poster edit failed")
		return
	}

	c.JSON(http.StatusOK, responses.BuildGenerateResponse(result, h.cfg.PresignTTLSeconds()))
}
