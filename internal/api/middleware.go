package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/premeepro/production/internal/auth"
	"example.com/premeepro/production/internal/metrics"
	"example.com/premeepro/production/internal/models"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	principalKey    = "principal"

	touchTimeout = 5 * time.Second
)

// Authenticator resolves bearer secrets to API keys
type Authenticator interface {
	Authenticate(ctx context.Context, secret string) (*models.APIKey, error)
	Touch(ctx context.Context, key *models.APIKey) error
}

// RequestID propagates the caller's request id or assigns a new one
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// Logger logs every request once it has been served
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= http.StatusInternalServerError:
			event = log.Error()
		case status >= http.StatusBadRequest:
			event = log.Warn()
		}

		event = event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(requestIDKey))
		if p, ok := principalFrom(c); ok {
			event = event.Str("principal", p.Name)
		}
		event.Msg("HTTP request")
	}
}

// Metrics counts requests and records a timer per route
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.IncrementCounter(metrics.CounterHTTPRequests)
		if c.Writer.Status() >= http.StatusInternalServerError {
			m.IncrementCounter(metrics.CounterHTTPRequestsServerErr)
		}
		m.Since("http "+c.Request.Method+" "+route, start)
	}
}

// CORS answers preflight requests and sets CORS headers for allowed origins
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowedOrigin := ""
		switch {
		case allowAll:
			allowedOrigin = "*"
		case allowed[origin]:
			allowedOrigin = origin
		}

		if allowedOrigin != "" {
			c.Header("Access-Control-Allow-Origin", allowedOrigin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			c.Header("Access-Control-Max-Age", "86400")
			if allowedOrigin != "*" {
				c.Header("Access-Control-Allow-Credentials", "true")
				c.Header("Vary", "Origin")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Authenticate requires a valid bearer API key and stores its principal on the request
func Authenticate(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			WriteError(c, ErrUnauthorized)
			return
		}

		key, err := a.Authenticate(c.Request.Context(), secret)
		if err != nil {
			WriteError(c, err)
			return
		}

		p := auth.PrincipalFromKey(key)
		c.Set(principalKey, p)
		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), p))

		go touch(a, key)
		c.Next()
	}
}

func touch(a Authenticator, key *models.APIKey) {
	ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
	defer cancel()
	if err := a.Touch(ctx, key); err != nil {
		log.Warn().Err(err).Str("key_id", key.ID.String()).Msg("failed to record API key use")
	}
}

// RequireCapability rejects principals that lack c
func RequireCapability(c auth.Capability) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		p, ok := principalFrom(ctx)
		if !ok {
			WriteError(ctx, ErrUnauthorized)
			return
		}
		if err := p.Require(c); err != nil {
			WriteError(ctx, err)
			return
		}
		ctx.Next()
	}
}

func bearerToken(header string) (string, bool) {
	const scheme = "bearer "
	if len(header) <= len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return "", false
	}
	token := strings.TrimSpace(header[len(scheme):])
	return token, token != ""
}

func principalFrom(c *gin.Context) (auth.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok
}
