package server

import (
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/auth"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const visitorIdleTimeout = 10 * time.Minute

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:  []string{"Authorization", "Content-Type", "Accept", "Cache-Control"},
		ExposeHeaders: []string{"Content-Type"},
		MaxAge:        12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(started)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// RateLimitConfig bounds requests per client address. A zero RPS disables limiting.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	clock     func() time.Time
	lastSweep time.Time
}

func newRateLimiter(cfg RateLimitConfig, clock func() time.Time) *rateLimiter {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	if clock == nil {
		clock = time.Now
	}
	return &rateLimiter{
		visitors:  make(map[string]*visitor),
		limit:     rate.Limit(cfg.RPS),
		burst:     burst,
		clock:     clock,
		lastSweep: clock(),
	}
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock()
	if now.Sub(rl.lastSweep) > visitorIdleTimeout {
		for address, entry := range rl.visitors {
			if now.Sub(entry.lastSeen) > visitorIdleTimeout {
				delete(rl.visitors, address)
			}
		}
		rl.lastSweep = now
	}

	entry, ok := rl.visitors[key]
	if !ok {
		entry = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (rl *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": errorCodeRateLimited})
			return
		}
		c.Next()
	}
}

// authorize validates the bearer token and resolves the caller's session.
// Event streams may also pass the token as the access_token query parameter.
func (h *httpHandler) authorize(allowQueryToken bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if token == "" && allowQueryToken {
			token = c.Query("access_token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorCodeUnauthorized})
			return
		}

		claims, err := h.tokens.ValidateToken(token)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredAccessToken) {
				h.logger.Info("token validation failed", zap.Error(err))
			} else {
				h.logger.Warn("token validation failed", zap.Error(err))
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorCodeUnauthorized})
			return
		}

		session, err := h.catalog.ResolveSession(c.Request.Context(), sessionFromClaims(token, claims))
		if err != nil {
			h.logger.Error("session resolution failed", zap.String("user_id", claims.Subject), zap.Error(err))
			respondError(c, err)
			c.Abort()
			return
		}
		c.Set(sessionContextKey, session)
		c.Next()
	}
}
