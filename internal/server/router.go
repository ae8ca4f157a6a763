package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/catalog"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	sessionContextKey        = "cuisine_session"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingTokenValidator = errors.New("token validator dependency required")
	errMissingCatalogService = errors.New("catalog service dependency required")
	errMissingEventHub       = errors.New("event hub dependency required")
)

type TokenValidator interface {
	ValidateToken(token string) (auth.AccessClaims, error)
}

// CatalogService is the catalog surface the HTTP layer drives.
type CatalogService interface {
	ResolveSession(ctx context.Context, session catalog.Session) (catalog.Session, error)
	UpgradeToEditor(ctx context.Context, session catalog.Session, code string) (catalog.Session, error)
	Browse(ctx context.Context, session catalog.Session, query catalog.Query) (catalog.BrowseResult, error)
	MyRecipes(ctx context.Context, session catalog.Session) (catalog.MySpace, error)
	Ingredients(ctx context.Context, session catalog.Session) ([]catalog.Ingredient, error)
	RecipeIngredients(ctx context.Context, session catalog.Session, recipeID string) ([]catalog.RecipeIngredientLink, error)
	CreateRecipe(ctx context.Context, session catalog.Session, draft catalog.RecipeDraft) (catalog.CreationReport, error)
	UpdateRecipe(ctx context.Context, session catalog.Session, recipeID string, patch catalog.RecipePatch) (catalog.Recipe, error)
	DeleteRecipe(ctx context.Context, session catalog.Session, recipeID string) error
	SetRecipeSeasons(ctx context.Context, session catalog.Session, recipeID string, raw []string) ([]catalog.Season, error)
	AddRecipeIngredient(ctx context.Context, session catalog.Session, recipeID string, line catalog.IngredientLine) (catalog.RecipeIngredientLink, error)
	UpdateRecipeIngredient(ctx context.Context, session catalog.Session, recipeID, ingredientID string, patch catalog.LinkPatch) error
	DeleteRecipeIngredient(ctx context.Context, session catalog.Session, recipeID, ingredientID string) error
}

type Dependencies struct {
	TokenValidator    TokenValidator
	Catalog           CatalogService
	Events            *EventHub
	Logger            *zap.Logger
	AllowedOrigins    []string
	RateLimit         RateLimitConfig
	HeartbeatInterval time.Duration
	Clock             func() time.Time
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenValidator == nil {
		return nil, errMissingTokenValidator
	}
	if deps.Catalog == nil {
		return nil, errMissingCatalogService
	}
	if deps.Events == nil {
		return nil, errMissingEventHub
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins))
	if deps.RateLimit.RPS > 0 {
		router.Use(newRateLimiter(deps.RateLimit, deps.Clock).middleware())
	}

	handler := &httpHandler{
		tokens:    deps.TokenValidator,
		catalog:   deps.Catalog,
		events:    deps.Events,
		logger:    logger,
		heartbeat: heartbeat,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/events", handler.authorize(true), handler.handleEvents)

	protected := router.Group("/")
	protected.Use(handler.authorize(false))
	protected.GET("/me", handler.handleMe)
	protected.POST("/me/editor", handler.handleUpgradeToEditor)
	protected.GET("/me/recipes", handler.handleMyRecipes)
	protected.GET("/recipes", handler.handleBrowse)
	protected.POST("/recipes", handler.handleCreateRecipe)
	protected.PATCH("/recipes/:id", handler.handleUpdateRecipe)
	protected.DELETE("/recipes/:id", handler.handleDeleteRecipe)
	protected.PUT("/recipes/:id/seasons", handler.handleSetSeasons)
	protected.GET("/recipes/:id/ingredients", handler.handleRecipeIngredients)
	protected.POST("/recipes/:id/ingredients", handler.handleAddIngredient)
	protected.PATCH("/recipes/:id/ingredients/:ingredient_id", handler.handleUpdateIngredient)
	protected.DELETE("/recipes/:id/ingredients/:ingredient_id", handler.handleDeleteIngredient)
	protected.GET("/ingredients", handler.handleIngredients)

	return router, nil
}

type httpHandler struct {
	tokens    TokenValidator
	catalog   CatalogService
	events    *EventHub
	logger    *zap.Logger
	heartbeat time.Duration
}

func sessionFromClaims(token string, claims auth.AccessClaims) catalog.Session {
	return catalog.Session{
		AccessToken: token,
		UserID:      claims.Subject,
		Email:       claims.Email,
	}
}

func currentSession(c *gin.Context) (catalog.Session, bool) {
	value, ok := c.Get(sessionContextKey)
	if !ok {
		return catalog.Session{}, false
	}
	session, ok := value.(catalog.Session)
	return session, ok && session.UserID != ""
}
