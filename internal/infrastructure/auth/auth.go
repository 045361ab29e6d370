package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"poster-api/internal/config"
)

const (
	// ContextSubjectKey is the gin context key carrying the caller's subject id.
	ContextSubjectKey = "auth_subject"
	// ContextGroupsKey is the gin context key carrying the caller's group claims.
	ContextGroupsKey = "auth_groups"
)

// Validator validates JWTs using JWKS.
type Validator struct {
	cfg  *config.Config
	log  zerolog.Logger
	jwks *keyfunc.JWKS
}

// NewValidator initializes JWKS fetching when auth is enabled.
func NewValidator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Validator, error) {
	if !cfg.AuthEnabled {
		return &Validator{cfg: cfg, log: log}, nil
	}

	options := keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Error().Err(err).Msg("jwks refresh error")
		},
	}

	jwks, err := keyfunc.Get(cfg.AuthJWKSURL, options)
	if err != nil {
		return nil, err
	}

	return &Validator{
		cfg:  cfg,
		log:  log,
		jwks: jwks,
	}, nil
}

// Middleware enforces JWT auth when enabled and stores the subject id on
// the request context. When auth is disabled (local development) a fixed
// subject is injected so downstream handlers always have one.
func (v *Validator) Middleware() gin.HandlerFunc {
	if v == nil || !v.cfg.AuthEnabled {
		return func(c *gin.Context) {
			c.Set(ContextSubjectKey, "local-dev")
			c.Next()
		}
	}

	return func(c *gin.Context) {
		tokenString := bearerToken(c.GetHeader("Authorization"))
		if tokenString == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		token, err := jwt.Parse(tokenString, v.jwks.Keyfunc,
			jwt.WithIssuer(v.cfg.AuthIssuer),
			jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		)
		if err != nil || !token.Valid {
			abortUnauthorized(c, "invalid token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abortUnauthorized(c, "invalid token claims")
			return
		}

		if audience := strings.TrimSpace(v.cfg.Account); audience != "" {
			if !audienceMatches(claims["aud"], audience) {
				abortUnauthorized(c, "invalid token audience")
				return
			}
		}

		sub, _ := claims["sub"].(string)
		if strings.TrimSpace(sub) == "" {
			abortUnauthorized(c, "token has no subject")
			return
		}

		c.Set(ContextSubjectKey, sub)
		c.Set(ContextGroupsKey, GroupClaims(claims))
		c.Next()
	}
}

// RequireGroup gates a route on membership in the configured group. The
// middleware is a no-op when no group is configured or auth is disabled.
func (v *Validator) RequireGroup() gin.HandlerFunc {
	group := ""
	if v != nil {
		group = strings.TrimSpace(v.cfg.AuthRequiredGroup)
	}
	if group == "" || v == nil || !v.cfg.AuthEnabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		groups, _ := c.Get(ContextGroupsKey)
		memberships, _ := groups.([]string)
		for _, g := range memberships {
			if g == group {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "membership in group " + group + " required",
		})
	}
}

// Subject returns the authenticated subject id from the gin context.
func Subject(c *gin.Context) string {
	sub, _ := c.Get(ContextSubjectKey)
	value, _ := sub.(string)
	return value
}

// GroupClaims normalizes the cognito:groups claim, which arrives either as
// a list or as a comma separated string.
func GroupClaims(claims jwt.MapClaims) []string {
	raw, ok := claims["cognito:groups"]
	if !ok {
		return nil
	}
	switch value := raw.(type) {
	case []any:
		groups := make([]string, 0, len(value))
		for _, entry := range value {
			if s, ok := entry.(string); ok && strings.TrimSpace(s) != "" {
				groups = append(groups, strings.TrimSpace(s))
			}
		}
		return groups
	case string:
		parts := strings.Split(value, ",")
		groups := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				groups = append(groups, trimmed)
			}
		}
		return groups
	default:
		return nil
	}
}

// Ready indicates if the validator is prepared.
func (v *Validator) Ready() bool {
	if v == nil || !v.cfg.AuthEnabled {
		return true
	}
	return v.jwks != nil
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func audienceMatches(claim any, audience string) bool {
	switch aud := claim.(type) {
	case nil:
		return true
	case string:
		return aud == audience
	case []any:
		for _, entry := range aud {
			if s, ok := entry.(string); ok && s == audience {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
	})
}
