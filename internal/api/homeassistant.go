package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/forkcast/backend/internal/models"
	"github.com/forkcast/backend/internal/service"
)

// HomeAssistantHandler serves sensor-shaped payloads for Home Assistant
// template sensors and automations: a "state" string plus an attributes map.
type HomeAssistantHandler struct {
	db *gorm.DB
}

func NewHomeAssistantHandler(db *gorm.DB) *HomeAssistantHandler {
	return &HomeAssistantHandler{db: db}
}

func (h *HomeAssistantHandler) RegisterRoutes(router *gin.RouterGroup) {
	ha := router.Group("/ha")
	{
		ha.GET("/tonight", h.Tonight)
		ha.GET("/week-summary", h.WeekSummary)
		ha.GET("/shopping-count", h.ShoppingCount)
		ha.GET("/matches", h.RecentMatches)
		ha.GET("/pending-ratings", h.PendingRatings)
		ha.GET("/stats", h.Stats)
	}
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (h *HomeAssistantHandler) Tonight(c *gin.Context) {
	day := today()

	var plan models.MealPlan
	err := h.db.Where("date = ? AND meal_type = ?", day, "dinner").First(&plan).Error
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"state": "Nothing planned",
			"attributes": gin.H{
				"friendly_name": "Tonight's Dinner",
				"icon":          "mdi:food-off",
				"planned":       false,
				"date":          day.Format("2006-01-02"),
			},
		})
		return
	}

	var recipe models.Recipe
	if err := h.db.First(&recipe, "id = ?", plan.RecipeID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load recipe"})
		return
	}

	cuisine := recipe.Cuisine
	if cuisine == "" {
		cuisine = "Unknown"
	}
	c.JSON(http.StatusOK, gin.H{
		"state": recipe.Title,
		"attributes": gin.H{
			"friendly_name":  "Tonight's Dinner",
			"icon":           "mdi:silverware-fork-knife",
			"planned":        true,
			"recipe_id":      recipe.ID,
			"recipe_title":   recipe.Title,
			"cuisine":        cuisine,
			"total_time_min": recipe.TotalTimeMin,
			"difficulty":     recipe.Difficulty,
			"servings":       recipe.Servings,
			"status":         plan.Status,
			"date":           day.Format("2006-01-02"),
			"url":            "/recipes/" + recipe.ID.String(),
			"cook_url":       "/cook/" + recipe.ID.String(),
		},
	})
}

func (h *HomeAssistantHandler) WeekSummary(c *gin.Context) {
	weekStart := service.WeekStartFor(time.Now().UTC())
	weekEnd := weekStart.AddDate(0, 0, 6)

	var plans []models.MealPlan
	err := h.db.Where("date >= ? AND date <= ?", weekStart, weekEnd).Order("date").Find(&plans).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load meal plans"})
		return
	}

	dayNames := []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
	schedule := gin.H{}
	cooked := 0
	for _, plan := range plans {
		if plan.Status == models.PlanStatusCooked {
			cooked++
		}
		dayIdx := int(plan.Date.Sub(weekStart).Hours() / 24)
		if dayIdx < 0 || dayIdx > 6 {
			continue
		}
		var recipe models.Recipe
		if err := h.db.First(&recipe, "id = ?", plan.RecipeID).Error; err == nil {
			schedule[dayNames[dayIdx]] = recipe.Title
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"state": plural(len(plans), "meal") + " planned",
		"attributes": gin.H{
			"friendly_name": "Week's Meal Plan",
			"icon":          "mdi:calendar-week",
			"planned_count": len(plans),
			"cooked_count":  cooked,
			"remaining":     len(plans) - cooked,
			"week_start":    weekStart.Format("2006-01-02"),
			"week_end":      weekEnd.Format("2006-01-02"),
			"schedule":      schedule,
		},
	})
}

func (h *HomeAssistantHandler) ShoppingCount(c *gin.Context) {
	var list models.ShoppingList
	err := h.db.Order("created_at DESC").First(&list).Error
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"state": "No list",
			"attributes": gin.H{
				"friendly_name": "Shopping List",
				"icon":          "mdi:cart-outline",
				"total":         0,
				"checked":       0,
				"remaining":     0,
			},
		})
		return
	}

	var total, checked int64
	h.db.Model(&models.ShoppingItem{}).Where("list_id = ?", list.ID).Count(&total)
	h.db.Model(&models.ShoppingItem{}).Where("list_id = ? AND checked = ?", list.ID, true).Count(&checked)
	remaining := total - checked

	icon := "mdi:cart-check"
	if remaining > 0 {
		icon = "mdi:cart"
	}
	percent := 0
	if total > 0 {
		percent = int(math.Round(float64(checked) / float64(total) * 100))
	}
	c.JSON(http.StatusOK, gin.H{
		"state": plural(int(remaining), "item") + " left",
		"attributes": gin.H{
			"friendly_name":    "Shopping List",
			"icon":             icon,
			"total":            total,
			"checked":          checked,
			"remaining":        remaining,
			"list_name":        list.Name,
			"percent_complete": percent,
		},
	})
}

func (h *HomeAssistantHandler) RecentMatches(c *gin.Context) {
	yesterday := today().AddDate(0, 0, -1)

	var matches []models.SwipeMatch
	err := h.db.Where("matched_at >= ?", yesterday).Order("matched_at DESC").Find(&matches).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load matches"})
		return
	}

	matchList := make([]gin.H, 0, len(matches))
	for _, match := range matches {
		var recipe models.Recipe
		if err := h.db.First(&recipe, "id = ?", match.RecipeID).Error; err != nil {
			continue
		}
		matchList = append(matchList, gin.H{
			"recipe":     recipe.Title,
			"recipe_id":  recipe.ID,
			"matched_at": match.MatchedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"state": len(matchList),
		"attributes": gin.H{
			"friendly_name":   "Recipe Matches",
			"icon":            "mdi:heart",
			"matches":         matchList,
			"has_new_matches": len(matchList) > 0,
		},
	})
}

func (h *HomeAssistantHandler) PendingRatings(c *gin.Context) {
	weekAgo := today().AddDate(0, 0, -7)

	var cooked []models.MealPlan
	err := h.db.Where("status = ? AND date >= ?", models.PlanStatusCooked, weekAgo).Find(&cooked).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cooked meals"})
		return
	}

	pending := []gin.H{}
	for _, plan := range cooked {
		var ratingCount int64
		h.db.Model(&models.Rating{}).
			Where("recipe_id = ? AND cooked_at = ?", plan.RecipeID, plan.Date).
			Count(&ratingCount)
		if ratingCount >= 2 {
			continue
		}
		var recipe models.Recipe
		if err := h.db.First(&recipe, "id = ?", plan.RecipeID).Error; err != nil {
			continue
		}
		pending = append(pending, gin.H{
			"recipe":         recipe.Title,
			"recipe_id":      recipe.ID,
			"cooked_date":    plan.Date.Format("2006-01-02"),
			"ratings_so_far": ratingCount,
		})
	}

	icon := "mdi:star-check"
	if len(pending) > 0 {
		icon = "mdi:star-half-full"
	}
	c.JSON(http.StatusOK, gin.H{
		"state": len(pending),
		"attributes": gin.H{
			"friendly_name": "Pending Ratings",
			"icon":          icon,
			"pending":       pending,
			"has_pending":   len(pending) > 0,
		},
	})
}

func (h *HomeAssistantHandler) Stats(c *gin.Context) {
	var totalRecipes, cookedThisWeek, totalCooked int64
	h.db.Model(&models.Recipe{}).Count(&totalRecipes)

	weekStart := service.WeekStartFor(time.Now().UTC())
	h.db.Model(&models.MealPlan{}).
		Where("date >= ? AND status = ?", weekStart, models.PlanStatusCooked).
		Count(&cookedThisWeek)
	h.db.Model(&models.CookingHistory{}).Count(&totalCooked)

	var avgRating float64
	h.db.Model(&models.Rating{}).Select("COALESCE(AVG(stars), 0)").Scan(&avgRating)

	c.JSON(http.StatusOK, gin.H{
		"state": plural(int(totalRecipes), "recipe"),
		"attributes": gin.H{
			"friendly_name":      "Forkcast Stats",
			"icon":               "mdi:chef-hat",
			"total_recipes":      totalRecipes,
			"cooked_this_week":   cookedThisWeek,
			"total_meals_cooked": totalCooked,
			"average_rating":     math.Round(avgRating*10) / 10,
		},
	})
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
