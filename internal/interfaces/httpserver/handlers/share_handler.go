package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"poster-api/internal/domain/share"
	"poster-api/internal/infrastructure/auth"
	"poster-api/internal/interfaces/httpserver/requests"
	"poster-api/internal/interfaces/httpserver/responses"
)

// ShareHandler exposes share link minting and public resolution.
type ShareHandler struct {
	issuer *share.Issuer
	log    zerolog.Logger
}

func NewShareHandler(issuer *share.Issuer, log zerolog.Logger) *ShareHandler {
	return &ShareHandler{
		issuer: issuer,
		log:    log.With().Str("component", "share-handler").Logger(),
	}
}

// Create godoc
// @Summary      Mint a share link
// @Description  Creates a public link to one of the caller's successful generations, optionally expiring.
// @Tags         shares
// @Accept       json
// @Produce      json
// @Param        request  body      requests.ShareCreateRequest  true  "Share request"
// @Success      200      {object}  responses.ShareCreateResponse
// @Failure      400      {object}  responses.ErrorResponse
// @Failure      404      {object}  responses.ErrorResponse
// @Failure      409      {object}  responses.ErrorResponse
// @Security     ApiKeyAuth
// @Router       /v1/shares [post]
func (h *ShareHandler) Create(c *gin.Context) {
	var req requests.ShareCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var ttl time.Duration
	if req.ExpiresInSeconds > 0 {
		ttl = time.Duration(req.ExpiresInSeconds) * time.Second
	}

	created, err := h.issuer.Create(c.Request.Context(), auth.Subject(c), req.SK, ttl)
	if err != nil {
		responses.HandleError(c, err, "failed to create share link")
		return
	}
	c.JSON(http.StatusOK, responses.BuildShareCreateResponse(created))
}

// Resolve godoc
// @Summary      Resolve a share link
// @Description  Public endpoint. Returns the shared poster's signed URL; the URL is minted fresh on every call.
// @Tags         shares
// @Produce      json
// @Param        id   path      string  true  "Share token"
// @Success      200  {object}  responses.ShareResolveResponse
// @Failure      404  {object}  responses.ErrorResponse
// @Failure      410  {object}  responses.ErrorResponse
// @Router       /v1/shares/{id} [get]
func (h *ShareHandler) Resolve(c *gin.Context) {
	resolved, err := h.issuer.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, "failed to resolve share link")
		return
	}
	c.JSON(http.StatusOK, responses.BuildShareResolveResponse(resolved))
}
