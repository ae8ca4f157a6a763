package server

import (
	"net/http"
	"slices"
	"time"

	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/catalog"
	"github.com/gin-gonic/gin"
)

type mePayload struct {
	UserID string       `json:"user_id"`
	Email  string       `json:"email"`
	Role   catalog.Role `json:"role"`
}

type upgradeRequestPayload struct {
	Code string `json:"code"`
}

type seasonsRequestPayload struct {
	Seasons []string `json:"seasons"`
}

type ingredientRequestPayload struct {
	IngredientID   string `json:"ingredient_id"`
	IngredientName string `json:"ingredient_name"`
	Quantity       string `json:"quantity"`
	Unit           string `json:"unit"`
	Comment        string `json:"comment"`
}

type heartbeatPayload struct {
	Source string    `json:"source"`
	At     time.Time `json:"at"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// withSession runs handle with the session resolved by authorize.
func withSession(c *gin.Context, handle func(session catalog.Session)) {
	session, ok := currentSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errorCodeUnauthorized})
		return
	}
	handle(session)
}

func (h *httpHandler) handleMe(c *gin.Context) {
	withSession(c, func(session catalog.Session) {
		c.JSON(http.StatusOK, mePayload{UserID: session.UserID, Email: session.Email, Role: session.Role})
	})
}

func (h *httpHandler) handleUpgradeToEditor(c *gin.Context) {
	withSession(c, func(session catalog.Session) {
		var request upgradeRequestPayload
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeInvalidRequest})
			return
		}
		upgraded, err := h.catalog.UpgradeToEditor(c.Request.Context(), session, request.Code)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, mePayload{UserID: upgraded.UserID, Email: upgraded.Email, Role: upgraded.Role})
	})
}

func (h *httpHandler) handleMyRecipes(c *gin.Context) {
	withSession(c, func(session catalog.Session) {
		space, err := h.catalog.MyRecipes(c.Request.Context(), session)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, space)
	})
}

func (h *httpHandler) handleBrowse(c *gin.Context) {
	withSession(c, func(session catalog.Session) {
		query, err := parseBrowseQuery(c)
		if err != nil {
			respondError(c, err)
			return
		}
		result, err := h.catalog.Browse(c.Request.Context(), session, query)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})
}

// parseBrowseQuery reads season, season_match, ingredient, ingredient_match, creator,
// q and sort. Every unreadable parameter is reported at once.
func parseBrowseQuery(c *gin.Context) (catalog.Query, error) {
	var problems []string

	seasons := make([]catalog.Season, 0)
	for _, raw := range c.QueryArray("season") {
		season, err := catalog.ParseSeason(raw)
		if err != nil {
			problems = append(problems, "Unknown season: "+raw)
			continue
		}
		seasons = append(seasons, season)
	}
	seasonMode, err := catalog.ParseMatchMode(c.Query("season_match"))
	if err != nil {
		problems = append(problems, "season_match must be any or all.")
	}
	ingredientMode, err := catalog.ParseMatchMode(c.Query("ingredient_match"))
	if err != nil {
		problems = append(problems, "ingredient_match must be any or all.")
	}
	sortOrder, err := catalog.ParseSortOrder(c.Query("sort"))
	if err != nil {
		problems = append(problems, "sort must be name, time_asc or time_desc.")
	}
	if len(problems) > 0 {
		return catalog.Query{}, &catalog.ValidationError{Problems: problems}
	}

	return catalog.Query{
		Seasons:     catalog.SetFilter[catalog.Season]{Chosen: seasons, Mode: seasonMode},
		Ingredients: catalog.SetFilter[string]{Chosen: c.QueryArray("ingredient"), Mode: ingredientMode},
		Creator:     c.Query("creator"),
		Search:      c.Query("q"),
		Sort:        sortOrder,
	}, nil
}

func (h *httpHandler) handleCreateRecipe(c *gin.Context) {
	withSession(c, func(session catalog.Session) {
		var draft catalog.RecipeDraft
		if err := c.ShouldBindJSON(&draft); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeInvalidRequest})
			return
		}
		report, err := h.catalog.CreateRecipe(c.Request.Context(), session, draft)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, report)
	})
}

func (h *httpHandler) handleUpdateRecipe(c *gin.Context) {
	withSession(c, func(session catalog.Session) {
		var patch catalog.RecipePatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeInvalidRequest})
			return
		}
		recipe, err := h.catalog.UpdateRecipe(c.Request.Context(), session, c.Param("id"), patch)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, recipe)
	})
}

func (h *httpHandler) handleDeleteRecipe(c *gin.Context) {
	withSession(c, func(session catalog.Session) {
		if err := h.catalog.DeleteRecipe(c.Request.Context(), session, c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func (h *httpHandler) handleSetSeasons(c *gin.Context) {
	withSession(c, func(session catalog.Session) {
		var request seasonsRequestPayload
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeInvalidRequest})
			return
		}
		seasons, err := h.catalog.SetRecipeSeasons(c.Request.Context(), session, c.Param("id"), request.Seasons)
		if err != nil {
			respondError(c, err)
			return
		}
		sorted := slices.Clone(seasons)
		slices.Sort(sorted)
		c.JSON(http.StatusOK, gin.H{"seasons": sorted, "label": catalog.SeasonsLabel(sorted)})
	})
}

func (h *httpHandler) handleRecipeIngredients(c *gin.Context) {
	withSession(c, func(session catalog.Session) {
		links, err := h.catalog.RecipeIngredients(c.Request.Context(), session, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ingredients": links})
	})
}

func (h *httpHandler) handleAddIngredient(c *gin.Context) {
	withSession(c, func(session catalog.Session) {
		var request ingredientRequestPayload
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeInvalidRequest})
			return
		}
		link, err := h.catalog.AddRecipeIngredient(c.Request.Context(), session, c.Param("id"), catalog.IngredientLine{
			IngredientID: request.IngredientID,
			Name:         request.IngredientName,
			Quantity:     request.Quantity,
			Unit:         request.Unit,
			Comment:      request.Comment,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, link)
	})
}

func (h *httpHandler) handleUpdateIngredient(c *gin.Context) {
	withSession(c, func(session catalog.Session) {
		var patch catalog.LinkPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeInvalidRequest})
			return
		}
		if err := h.catalog.UpdateRecipeIngredient(c.Request.Context(), session, c.Param("id"), c.Param("ingredient_id"), patch); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func (h *httpHandler) handleDeleteIngredient(c *gin.Context) {
	withSession(c, func(session catalog.Session) {
		if err := h.catalog.DeleteRecipeIngredient(c.Request.Context(), session, c.Param("id"), c.Param("ingredient_id")); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func (h *httpHandler) handleIngredients(c *gin.Context) {
	withSession(c, func(session catalog.Session) {
		ingredients, err := h.catalog.Ingredients(c.Request.Context(), session)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ingredients": ingredients})
	})
}

// handleEvents streams catalog change notices as server-sent events with periodic heartbeats.
func (h *httpHandler) handleEvents(c *gin.Context) {
	if _, ok := currentSession(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errorCodeUnauthorized})
		return
	}
	ctx := c.Request.Context()
	stream, cleanup := h.events.Subscribe(ctx)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent(eventHeartbeat, heartbeatPayload{Source: eventSource, At: time.Now().UTC()})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case notice := <-stream:
			c.SSEvent(EventCatalogChanged, notice)
			c.Writer.Flush()
		case <-ticker.C:
			c.SSEvent(eventHeartbeat, heartbeatPayload{Source: eventSource, At: time.Now().UTC()})
			c.Writer.Flush()
		}
	}
}
