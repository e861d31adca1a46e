package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forkcast/backend/internal/models"
)

// RegenerateTheme re-runs theme generation for a menu, optionally with a new
// prompt. The stored theme only changes when generation succeeds, so a flaky
// LLM never wipes a theme the host already liked.
func (s *GuestMenuService) RegenerateTheme(ctx context.Context, menuID uuid.UUID, newPrompt *string) (*models.GuestMenu, error) {
	menu, err := s.Get(ctx, menuID)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if newPrompt != nil {
		menu.ThemePrompt = *newPrompt
		changes["theme_prompt"] = *newPrompt
	}

	items := make([]MenuItemInput, 0, len(menu.Items))
	for _, item := range menu.Items {
		items = append(items, MenuItemInput{RecipeID: item.RecipeID})
	}
	if theme := s.generateTheme(ctx, menu.Title, menu.ThemePrompt, s.recipeTitles(ctx, items)); theme != nil {
		changes["theme"] = theme
	}

	if len(changes) > 0 {
		err := s.db.WithContext(ctx).Model(&models.GuestMenu{}).
			Where("id = ?", menuID).
			Updates(changes).Error
		if err != nil {
			return nil, fmt.Errorf("failed to update theme: %w", err)
		}
	}
	return s.Get(ctx, menuID)
}

// generateTheme asks the LLM for a complete visual theme for a menu's public
// page. It fails open: any error returns nil and the menu ships unthemed.
func (s *GuestMenuService) generateTheme(ctx context.Context, title, themePrompt string, recipeTitles []string) models.JSONMap {
	if s.llm == nil {
		return nil
	}
	if themePrompt == "" {
		themePrompt = "Elegant dinner party"
	}

	recipeList := make([]string, 0, len(recipeTitles))
	for _, t := range recipeTitles {
		recipeList = append(recipeList, "- "+t)
	}

	raw, err := s.llm.GenerateContent(ctx, fmt.Sprintf(menuThemePrompt, title, themePrompt, strings.Join(recipeList, "\n")))
	if err != nil {
		s.logger.Warn("theme generation failed", zap.String("menu", title), zap.Error(err))
		return nil
	}

	var theme models.JSONMap
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &theme); err != nil {
		s.logger.Warn("model returned invalid theme JSON", zap.String("menu", title), zap.Error(err))
		return nil
	}

	ensureSectionCoverage(theme, recipeTitles)

	s.logger.Info("theme generated",
		zap.String("menu", title),
		zap.String("tagline", theme.GetString("tagline", "")))
	return theme
}

// ensureSectionCoverage checks that every recipe landed in a theme section
// and collects stragglers into a trailing MORE section, so no dish vanishes
// from the rendered menu.
func ensureSectionCoverage(theme models.JSONMap, recipeTitles []string) {
	sections, ok := theme["sections"].([]any)
	if !ok {
		return
	}

	placed := map[string]bool{}
	for _, raw := range sections {
		section, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		items, ok := section["items"].([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			if title, ok := item.(string); ok {
				placed[title] = true
			}
		}
	}

	var missing []any
	for _, title := range recipeTitles {
		if !placed[title] {
			missing = append(missing, title)
		}
	}
	if len(missing) > 0 {
		theme["sections"] = append(sections, map[string]any{"title": "MORE", "items": missing})
	}
}

const menuThemePrompt = `You are a world-class restaurant menu designer. Create a complete visual theme for a dinner party menu page that looks like an elegant PHYSICAL RESTAURANT MENU, not a web app.

MENU TITLE: %s
THEME DESCRIPTION: %s
RECIPES ON THE MENU:
%s

Generate a JSON object with these exact keys. The design should feel like a beautiful printed menu: single column, decorative borders, elegant typography, themed dividers between sections.

{
  "title_font": "A dramatic/script Google Font for the menu title, e.g. Great Vibes, Cinzel Decorative, Playfair Display SC. This is the showpiece.",
  "heading_font": "A Google Font for section headers, e.g. Cormorant Garamond, Cinzel, EB Garamond. Should complement the title font with a small-caps feel.",
  "body_font": "A Google Font for dish names and body text, e.g. EB Garamond, Crimson Text, Lora. Readable and elegant.",

  "background_color": "#hex fallback solid background color for the outer page",
  "background_gradient": "CSS gradient for the full viewport behind the menu paper",
  "pattern_css": "Subtle CSS repeating pattern overlay for texture, or empty string",

  "menu_bg": "Background for the menu paper area. Should feel like quality paper.",
  "menu_border": "CSS border for the outer menu frame, e.g. 2px solid #8B7355",
  "menu_border_inset": "CSS box-shadow for an inset decorative line, creating a double-frame effect",
  "menu_shadow": "CSS box-shadow for the menu paper",
  "menu_max_width": "Max width for the menu paper, between 500px and 650px",

  "text_color": "#hex main dish name text color",
  "heading_color": "#hex section header and title color",
  "accent_color": "#hex accent for dividers, checkmarks, highlights",
  "muted_color": "#hex subtle text for descriptions, attribution",

  "divider_char": "Unicode character(s) for section divider decoration, e.g. ❋, ✦, ❅, ◆, ⚜",
  "divider_line_css": "CSS for the horizontal lines flanking the divider",

  "tagline": "A short evocative phrase (5-10 words) that captures the evening's mood, specific to this menu",
  "decorative_emoji": "One main emoji that represents this theme",

  "sections": [
    { "title": "SECTION NAME", "items": ["exact recipe title 1", "exact recipe title 2"] },
    { "title": "SECTION NAME", "items": ["exact recipe title 3"] }
  ],

  "checkbox_border": "CSS border color for unchecked selection indicator",
  "checkbox_checked_bg": "Background color when a dish is selected",
  "checkbox_checked_color": "Checkmark color when selected",

  "button_bg": "Submit button background, solid or gradient",
  "button_text": "#hex submit button text color",
  "button_border": "Submit button border CSS"
}

RULES:
- Use REAL Google Font names that actually exist on Google Fonts
- The menu_bg should feel like quality paper (cream, ivory, parchment, or a dark elegant surface for dark themes)
- All colors must have sufficient contrast against the menu_bg for readability
- The background behind the menu should contrast with the menu paper
- SECTIONS: categorize ALL recipes into 2-5 logical sections (e.g. Starters, Mains, Sides, Desserts). Every recipe title MUST appear in exactly one section, using the EXACT titles as provided
- divider_char should match the theme vibe
- The tagline should be specific to this menu's theme, not generic
- Return ONLY the JSON object, no other text`
