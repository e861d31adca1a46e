// Package api wires the HTTP surface: one handler struct per feature area,
// each registering its own routes under /api.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/forkcast/backend/config"
	"github.com/forkcast/backend/internal/service"
)

// Deps carries everything the handlers need. LLM, Images, Jobs, Kroger and
// HA are optional; handlers answer 503 for features whose integration is
// missing.
type Deps struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Config *config.Config
	Logger *zap.Logger
	LLM    service.LLMClient
	Images *service.ImageService
}

// SetupAPI builds the service layer and registers every route group.
func SetupAPI(router *gin.Engine, deps Deps) {
	db := deps.DB
	logger := deps.Logger

	rules := service.NewRulesService(db, logger)
	taste := service.NewTasteService(db, deps.LLM, logger)
	recipes := service.NewRecipeService(db, taste, logger)
	shopping := service.NewShoppingService(db, logger)
	swipe := service.NewSwipeService(db, logger)
	guestMenus := service.NewGuestMenuService(db, deps.LLM, deps.Images, logger)
	suggest := service.NewSuggestService(db, deps.LLM, rules, logger)
	scraper := service.NewScraper(logger)
	importer := service.NewImporterService(db, scraper, deps.LLM, deps.Images, logger)

	var ha *service.HACalendarService
	if deps.Config.HomeAssistant.BaseURL != "" {
		ha = service.NewHACalendarService(&deps.Config.HomeAssistant, logger)
	}
	planner := service.NewPlannerService(db, rules, ha, taste, logger)

	var kroger *service.KrogerClient
	if deps.Config.Kroger.ClientID != "" {
		kroger = service.NewKrogerClient(&deps.Config.Kroger, logger)
	}

	var jobs *service.JobStore
	if deps.Redis != nil {
		jobs = service.NewJobStore(deps.Redis)
	}

	root := router.Group("/api")
	{
		NewHealthHandler(db, deps.Redis).RegisterRoutes(root)
		NewUserHandler(db).RegisterRoutes(root)
		NewRecipeHandler(recipes).RegisterRoutes(root)
		NewImportHandler(importer, jobs, logger).RegisterRoutes(root)
		NewPlannerHandler(planner, suggest).RegisterRoutes(root)
		NewRulesHandler(rules, deps.LLM).RegisterRoutes(root)
		NewSwipeHandler(swipe).RegisterRoutes(root)
		NewRatingHandler(recipes, taste).RegisterRoutes(root)
		NewShoppingHandler(shopping).RegisterRoutes(root)
		NewTasteHandler(taste).RegisterRoutes(root)
		NewGuestMenuHandler(guestMenus).RegisterRoutes(root)
		NewCookAlongHandler(recipes).RegisterRoutes(root)
		NewHomeAssistantHandler(db).RegisterRoutes(root)
		NewKrogerHandler(db, kroger, recipes).RegisterRoutes(root)
	}
}
