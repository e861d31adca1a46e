package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/forkcast/backend/internal/models"
)

// ErrExtractionFailed is returned when neither structured markup nor the
// language model could pull a recipe out of a source.
var ErrExtractionFailed = errors.New("could not extract recipe data")

// Extraction methods recorded in the import log.
const (
	MethodSchema = "schema"
	MethodAI     = "ai"
	MethodVision = "vision"
)

// tagTypeMap classifies well-known tag names; everything unrecognized is
// treated as a cuisine, matching how imported tags are mostly cuisines.
var tagTypeMap = map[string]string{
	"chicken": models.TagTypeProtein, "beef": models.TagTypeProtein,
	"pork": models.TagTypeProtein, "salmon": models.TagTypeProtein,
	"shrimp": models.TagTypeProtein, "fish": models.TagTypeProtein,
	"tofu": models.TagTypeProtein,
	"vegetarian": models.TagTypeDietary, "vegan": models.TagTypeDietary,
	"gluten-free": models.TagTypeDietary, "dairy-free": models.TagTypeDietary,
	"low-carb": models.TagTypeDietary,
	"easy": models.TagTypeEffort, "medium": models.TagTypeEffort,
	"hard": models.TagTypeEffort,
}

// ImporterService runs the import pipeline: fetch, structured extraction,
// language model fallback, then persistence.
type ImporterService struct {
	db      *gorm.DB
	scraper *Scraper
	llm     LLMClient
	images  *ImageService
	logger  *zap.Logger
}

// NewImporterService creates an importer. llm may be nil, which disables the
// AI fallback and photo imports.
func NewImporterService(db *gorm.DB, scraper *Scraper, llm LLMClient, images *ImageService, logger *zap.Logger) *ImporterService {
	return &ImporterService{db: db, scraper: scraper, llm: llm, images: images, logger: logger}
}

// ImportResult reports the outcome of one import.
type ImportResult struct {
	RecipeID         uuid.UUID `json:"recipe_id"`
	RecipeTitle      string    `json:"recipe_title"`
	URL              string    `json:"url"`
	ExtractionMethod string    `json:"extraction_method"`
	DurationMs       int       `json:"duration_ms"`
}

// ImportFromURL fetches a page, extracts a recipe from it and saves it.
// Structured schema.org data is preferred; the language model is the
// fallback for pages without it.
func (s *ImporterService) ImportFromURL(ctx context.Context, url string, userID *uuid.UUID) (*ImportResult, error) {
	start := time.Now()
	s.logger.Info("importing recipe", zap.String("url", url))

	html, err := s.scraper.Fetch(ctx, url)
	if err != nil {
		s.logFailure(ctx, url, fmt.Sprintf("Failed to fetch URL: %v", err), start)
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}

	method := MethodSchema
	extracted := s.scraper.ExtractStructured(html, url)
	if extracted == nil {
		if s.llm == nil {
			s.logFailure(ctx, url, ErrExtractionFailed.Error(), start)
			return nil, ErrExtractionFailed
		}
		s.logger.Info("no structured data, falling back to AI extraction", zap.String("url", url))
		extracted, err = s.extractWithAI(ctx, html, url)
		if err != nil {
			s.logFailure(ctx, url, ErrExtractionFailed.Error(), start)
			return nil, ErrExtractionFailed
		}
		method = MethodAI
	}

	// Structured markup carries no tags, so let the model classify.
	if method == MethodSchema && len(extracted.Tags) == 0 {
		extracted.Tags = s.enrichTags(ctx, extracted)
	}

	return s.save(ctx, extracted, url, method, userID, "", start)
}

// ImportFromImage extracts a recipe from a photo of a cookbook page or recipe
// card using the vision model. The uploaded photo becomes the recipe image.
func (s *ImporterService) ImportFromImage(ctx context.Context, imageData []byte, contentType, filename string, userID *uuid.UUID) (*ImportResult, error) {
	start := time.Now()
	if s.llm == nil {
		return nil, ErrAIUnavailable
	}
	s.logger.Info("importing recipe from photo",
		zap.String("filename", filename), zap.Int("bytes", len(imageData)))

	raw, err := s.llm.GenerateFromImage(ctx, imageExtractionPrompt, formatFromContentType(contentType), imageData)
	if err != nil {
		s.logFailure(ctx, "photo:"+filename, fmt.Sprintf("Vision extraction failed: %v", err), start)
		return nil, ErrExtractionFailed
	}

	var extracted ExtractedRecipe
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &extracted); err != nil {
		s.logFailure(ctx, "photo:"+filename, "Vision model returned invalid JSON", start)
		return nil, ErrExtractionFailed
	}

	sourceImage := ""
	if s.images != nil {
		if path, err := s.images.SaveUpload(ctx, imageData, filename, contentType); err == nil {
			sourceImage = path
		} else {
			s.logger.Warn("failed to save uploaded photo", zap.Error(err))
		}
	}

	return s.save(ctx, &extracted, "photo:"+filename, MethodVision, userID, sourceImage, start)
}

func (s *ImporterService) extractWithAI(ctx context.Context, html, url string) (*ExtractedRecipe, error) {
	text := s.scraper.CleanText(html)
	prompt := fmt.Sprintf(htmlExtractionPrompt, url, text)

	raw, err := s.llm.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("AI extraction failed: %w", err)
	}

	var extracted ExtractedRecipe
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &extracted); err != nil {
		return nil, fmt.Errorf("AI returned invalid JSON: %w", err)
	}
	if extracted.Title == "" {
		return nil, fmt.Errorf("AI extraction produced no title")
	}
	return &extracted, nil
}

// enrichTags asks the model to classify a recipe by protein, cuisine, effort
// and dietary labels. Failures fall back to whatever tags were extracted.
func (s *ImporterService) enrichTags(ctx context.Context, extracted *ExtractedRecipe) []string {
	if s.llm == nil {
		return extracted.Tags
	}

	ingredients := make([]string, 0, 20)
	for i, ing := range extracted.Ingredients {
		if i >= 20 {
			break
		}
		ingredients = append(ingredients, ing.RawText)
	}

	prompt := fmt.Sprintf(`Given this recipe, return a JSON array of tags. Include:
- Primary protein (chicken, beef, pork, salmon, shrimp, tofu, none/vegetarian)
- Cuisine (italian, mexican, thai, japanese, american, mediterranean, indian, etc.)
- Meal type (weeknight, weekend, date-night, meal-prep)
- Effort (easy, medium, hard)
- Any dietary labels (vegetarian, vegan, gluten-free, dairy-free, low-carb)
- Season (summer, winter, fall, spring) if clearly seasonal

Title: %s
Ingredients: %s

Return ONLY a JSON array of lowercase strings, nothing else.`,
		extracted.Title, strings.Join(ingredients, ", "))

	raw, err := s.llm.GenerateContent(ctx, prompt)
	if err != nil {
		s.logger.Warn("tag enrichment failed", zap.Error(err))
		return extracted.Tags
	}
	var tags []string
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &tags); err != nil {
		s.logger.Warn("tag enrichment returned invalid JSON", zap.Error(err))
		return extracted.Tags
	}
	return tags
}

// save persists an extracted recipe and its children, downloads the hero
// image and writes the import log entry.
func (s *ImporterService) save(ctx context.Context, extracted *ExtractedRecipe, sourceURL, method string, userID *uuid.UUID, sourceImagePath string, start time.Time) (*ImportResult, error) {
	if extracted.Title == "" {
		extracted.Title = "Untitled"
	}
	if extracted.Servings == 0 {
		extracted.Servings = 4
	}
	if extracted.Difficulty == "" {
		extracted.Difficulty = models.DifficultyMedium
	}

	recipe := &models.Recipe{
		Title:        extracted.Title,
		Description:  extracted.Description,
		SourceURL:    sourceURL,
		ImageURL:     extracted.ImageURL,
		PrepTimeMin:  extracted.PrepTimeMin,
		CookTimeMin:  extracted.CookTimeMin,
		TotalTimeMin: extracted.TotalTimeMin,
		Servings:     extracted.Servings,
		Cuisine:      extracted.Cuisine,
		Difficulty:   extracted.Difficulty,
		Notes:        extracted.Notes,
		OriginalText: buildOriginalText(extracted),
		CreatedBy:    userID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(recipe).Error; err != nil {
			return fmt.Errorf("failed to create recipe: %w", err)
		}

		for i, ing := range extracted.Ingredients {
			name := ing.Name
			if name == "" {
				name = ing.RawText
			}
			normalized, err := getOrCreateIngredient(tx, name, "other")
			if err != nil {
				return err
			}
			rawText := ing.RawText
			if rawText == "" {
				rawText = name
			}
			ri := &models.RecipeIngredient{
				RecipeID:     recipe.ID,
				IngredientID: &normalized.ID,
				RawText:      rawText,
				Quantity:     ing.Quantity,
				Unit:         ing.Unit,
				Preparation:  ing.Preparation,
				GroupName:    ing.Group,
				SortOrder:    i,
			}
			if err := tx.Create(ri).Error; err != nil {
				return fmt.Errorf("failed to create recipe ingredient: %w", err)
			}
		}

		for i, step := range extracted.Steps {
			rs := &models.RecipeStep{
				RecipeID:        recipe.ID,
				StepNumber:      i + 1,
				Instruction:     step.Instruction,
				DurationMinutes: step.DurationMinutes,
				TimerLabel:      step.TimerLabel,
			}
			if err := tx.Create(rs).Error; err != nil {
				return fmt.Errorf("failed to create recipe step: %w", err)
			}
		}

		for _, tagName := range extracted.Tags {
			tagType, ok := tagTypeMap[strings.ToLower(tagName)]
			if !ok {
				tagType = models.TagTypeCuisine
			}
			tag, err := getOrCreateTag(tx, tagName, tagType)
			if err != nil {
				return err
			}
			rt := &models.RecipeTag{RecipeID: recipe.ID, TagID: tag.ID}
			if err := tx.Create(rt).Error; err != nil {
				return fmt.Errorf("failed to create recipe tag: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.logFailure(ctx, sourceURL, err.Error(), start)
		return nil, err
	}

	// Hero image: downloaded copy first, the uploaded source photo second.
	imagePath := ""
	if s.images != nil && extracted.ImageURL != "" {
		path, err := s.images.Download(ctx, extracted.ImageURL, recipe.ID)
		if err != nil {
			s.logger.Warn("failed to download recipe image", zap.Error(err))
		} else {
			imagePath = path
		}
	}
	if imagePath == "" {
		imagePath = sourceImagePath
	}
	if imagePath != "" {
		err := s.db.WithContext(ctx).Model(recipe).Update("image_path", imagePath).Error
		if err != nil {
			s.logger.Warn("failed to save image path", zap.Error(err))
		}
	}

	durationMs := time.Since(start).Milliseconds()
	entry := &models.ImportLog{
		URL:              sourceURL,
		Status:           models.ImportStatusSuccess,
		RecipeID:         &recipe.ID,
		ExtractionMethod: method,
		DurationMs:       &durationMs,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		s.logger.Warn("failed to write import log", zap.Error(err))
	}

	s.logger.Info("recipe imported",
		zap.String("title", recipe.Title),
		zap.String("recipe_id", recipe.ID.String()),
		zap.String("method", method),
		zap.Int64("duration_ms", durationMs))

	return &ImportResult{
		RecipeID:         recipe.ID,
		RecipeTitle:      recipe.Title,
		URL:              sourceURL,
		ExtractionMethod: method,
		DurationMs:       int(durationMs),
	}, nil
}

func (s *ImporterService) logFailure(ctx context.Context, url, errMsg string, start time.Time) {
	durationMs := time.Since(start).Milliseconds()
	entry := &models.ImportLog{
		URL:        url,
		Status:     models.ImportStatusFailed,
		Error:      errMsg,
		DurationMs: &durationMs,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		s.logger.Warn("failed to write import log", zap.Error(err))
	}
}

// History lists recent import attempts, newest first.
func (s *ImporterService) History(ctx context.Context, limit int) ([]models.ImportLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var logs []models.ImportLog
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load import history: %w", err)
	}
	return logs, nil
}

func getOrCreateTag(tx *gorm.DB, name, tagType string) (*models.Tag, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	var tag models.Tag
	err := tx.Where("name = ? AND type = ?", name, tagType).First(&tag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		tag = models.Tag{Name: name, Type: tagType}
		if err := tx.Create(&tag).Error; err != nil {
			return nil, fmt.Errorf("failed to create tag: %w", err)
		}
		return &tag, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tag: %w", err)
	}
	return &tag, nil
}

func getOrCreateIngredient(tx *gorm.DB, name, category string) (*models.Ingredient, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	var ingredient models.Ingredient
	err := tx.Where("name = ?", name).First(&ingredient).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		ingredient = models.Ingredient{Name: name, Category: category}
		if err := tx.Create(&ingredient).Error; err != nil {
			return nil, fmt.Errorf("failed to create ingredient: %w", err)
		}
		return &ingredient, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ingredient: %w", err)
	}
	return &ingredient, nil
}

// buildOriginalText assembles a plain-text rendition of the extraction for
// the recipe's reference copy.
func buildOriginalText(extracted *ExtractedRecipe) string {
	var sb strings.Builder
	sb.WriteString(extracted.Title)
	if extracted.Description != "" {
		sb.WriteString("\n\n")
		sb.WriteString(extracted.Description)
	}
	if len(extracted.Ingredients) > 0 {
		sb.WriteString("\n\nIngredients:\n")
		for _, ing := range extracted.Ingredients {
			sb.WriteString("  • ")
			sb.WriteString(ing.RawText)
			sb.WriteString("\n")
		}
	}
	if len(extracted.Steps) > 0 {
		sb.WriteString("\nInstructions:\n")
		for i, step := range extracted.Steps {
			fmt.Fprintf(&sb, "  %d. %s\n", i+1, step.Instruction)
		}
	}
	if extracted.Notes != "" {
		sb.WriteString("\nNotes:\n")
		sb.WriteString(extracted.Notes)
	}
	return sb.String()
}

func formatFromContentType(contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return "png"
	case strings.Contains(contentType, "webp"):
		return "webp"
	case strings.Contains(contentType, "heic"):
		return "heic"
	default:
		return "jpeg"
	}
}

const htmlExtractionPrompt = `Extract the recipe from this webpage. Return a JSON object with these fields:

{
  "title": "Recipe title",
  "description": "Full description of the dish — include what makes it special, flavor notes, etc.",
  "prep_time_min": 15,
  "cook_time_min": 30,
  "total_time_min": 45,
  "servings": 4,
  "cuisine": "Italian",
  "difficulty": "easy|medium|hard",
  "image_url": "URL of the main recipe image",
  "notes": "All tips, author notes, variations, make-ahead instructions, storage tips, serving suggestions",
  "ingredients": [
    {"raw_text": "2 cups all-purpose flour", "quantity": 2, "unit": "cups", "name": "all-purpose flour", "preparation": "", "group": ""}
  ],
  "steps": [
    {"instruction": "Preheat oven to 375F.", "duration_minutes": null, "timer_label": ""}
  ],
  "tags": ["italian", "chicken", "easy", "weeknight"]
}

CRITICAL RULES:
- Extract EVERY ingredient exactly as written, including optional ingredients and garnishes.
- Extract EVERY step with FULL DETAIL. Do NOT summarize, condense, or combine steps.
- Keep the EXACT wording from the original, including temperatures, visual cues, and technique tips.
- Include ALL author tips, headnotes, variations and storage instructions in "notes".
- Parse quantities as numbers (1.5, 0.25, etc.)
- Preserve ingredient groupings (e.g. "For the sauce") in the "group" field
- If a step has a clear timer, set duration_minutes and timer_label
- Tags should include: cuisine, primary protein, difficulty, and other relevant categories
- If info is missing, use null
- Return ONLY the JSON, no other text

URL: %s

Page content:
%s`

const imageExtractionPrompt = `Look at this image of a recipe. Extract ALL the recipe information you can see and return it as a JSON object:

{
  "title": "Recipe title",
  "description": "Full description of the dish",
  "prep_time_min": 15,
  "cook_time_min": 30,
  "total_time_min": 45,
  "servings": 4,
  "cuisine": "Italian",
  "difficulty": "easy|medium|hard",
  "notes": "All tips, author notes, variations, storage tips, serving suggestions",
  "ingredients": [
    {"raw_text": "2 cups all-purpose flour", "quantity": 2, "unit": "cups", "name": "all-purpose flour", "preparation": "", "group": ""}
  ],
  "steps": [
    {"instruction": "Preheat oven to 375F.", "duration_minutes": null, "timer_label": ""}
  ],
  "tags": ["italian", "chicken", "easy", "weeknight"]
}

CRITICAL RULES:
- Transcribe EVERY ingredient and EVERY step EXACTLY as written. Do NOT summarize or combine steps.
- For handwritten recipes, do your best to read the handwriting.
- If the image shows multiple recipes, extract only the main one.
- If something is unclear, make your best guess and note it in "notes".
- If info is missing, use reasonable defaults.
- Parse quantities as numbers. Preserve ingredient groupings in "group".
- Tags should include: cuisine, primary protein, difficulty, and any relevant categories.
- Return ONLY the JSON, no other text.`
