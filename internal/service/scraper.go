package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Browser-like user agent; many recipe sites block default Go clients.
const scraperUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ExtractedIngredient is one ingredient line from an import source.
type ExtractedIngredient struct {
	RawText     string   `json:"raw_text"`
	Quantity    *float64 `json:"quantity"`
	Unit        string   `json:"unit"`
	Name        string   `json:"name"`
	Preparation string   `json:"preparation"`
	Group       string   `json:"group"`
}

// ExtractedStep is one instruction from an import source.
type ExtractedStep struct {
	Instruction     string `json:"instruction"`
	DurationMinutes *int   `json:"duration_minutes"`
	TimerLabel      string `json:"timer_label"`
}

// ExtractedRecipe is the normalized shape all import paths produce before
// anything touches the database.
type ExtractedRecipe struct {
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	ImageURL     string                `json:"image_url"`
	PrepTimeMin  *int                  `json:"prep_time_min"`
	CookTimeMin  *int                  `json:"cook_time_min"`
	TotalTimeMin *int                  `json:"total_time_min"`
	Servings     int                   `json:"servings"`
	Cuisine      string                `json:"cuisine"`
	Difficulty   string                `json:"difficulty"`
	Notes        string                `json:"notes"`
	Ingredients  []ExtractedIngredient `json:"ingredients"`
	Steps        []ExtractedStep       `json:"steps"`
	Tags         []string              `json:"tags"`
}

// Scraper fetches recipe pages and pulls schema.org Recipe data out of them.
type Scraper struct {
	client *http.Client
	logger *zap.Logger
}

// NewScraper creates a scraper with a 15 second request timeout.
func NewScraper(logger *zap.Logger) *Scraper {
	return &Scraper{
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

// Fetch downloads a page and returns its HTML.
func (s *Scraper) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", scraperUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch URL: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	s.logger.Info("fetched page", zap.String("url", url), zap.Int("bytes", len(body)))
	return string(body), nil
}

// ExtractStructured pulls a schema.org Recipe out of the page's JSON-LD
// blocks. Returns nil when no recipe markup is present.
func (s *Scraper) ExtractStructured(html, url string) *ExtractedRecipe {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		s.logger.Warn("failed to parse HTML", zap.String("url", url), zap.Error(err))
		return nil
	}

	var recipe *ExtractedRecipe
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var raw any
		if err := json.Unmarshal([]byte(sel.Text()), &raw); err != nil {
			return true
		}
		if node := findRecipeNode(raw); node != nil {
			recipe = recipeFromSchema(node)
			return false
		}
		return true
	})

	if recipe == nil || recipe.Title == "" || len(recipe.Ingredients) == 0 {
		return nil
	}

	if recipe.Notes == "" {
		recipe.Notes = extractNotes(doc)
	}

	s.logger.Info("structured extraction succeeded",
		zap.String("url", url),
		zap.String("title", recipe.Title),
		zap.Int("ingredients", len(recipe.Ingredients)),
		zap.Int("steps", len(recipe.Steps)))
	return recipe
}

// CleanText strips scripts, styles and chrome from the page and returns the
// remaining text, for feeding to the language model fallback.
func (s *Scraper) CleanText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style, nav, footer, iframe, noscript").Each(func(_ int, sel *goquery.Selection) {
		sel.Remove()
	})
	text := strings.TrimSpace(doc.Find("body").Text())
	if len(text) > 50000 {
		text = text[:50000]
	}
	return text
}

// findRecipeNode walks a JSON-LD document looking for an object whose @type
// is (or includes) Recipe, descending into @graph and top-level arrays.
func findRecipeNode(raw any) map[string]any {
	switch node := raw.(type) {
	case map[string]any:
		if hasType(node, "Recipe") {
			return node
		}
		if graph, ok := node["@graph"].([]any); ok {
			for _, entry := range graph {
				if found := findRecipeNode(entry); found != nil {
					return found
				}
			}
		}
	case []any:
		for _, entry := range node {
			if found := findRecipeNode(entry); found != nil {
				return found
			}
		}
	}
	return nil
}

func hasType(node map[string]any, typeName string) bool {
	switch t := node["@type"].(type) {
	case string:
		return t == typeName
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && s == typeName {
				return true
			}
		}
	}
	return false
}

func recipeFromSchema(node map[string]any) *ExtractedRecipe {
	recipe := &ExtractedRecipe{
		Title:       schemaString(node["name"]),
		Description: schemaString(node["description"]),
		ImageURL:    schemaImage(node["image"]),
		Cuisine:     schemaString(node["recipeCuisine"]),
		Difficulty:  "medium",
		Servings:    parseServings(schemaString(node["recipeYield"])),
	}
	recipe.PrepTimeMin = parseISODuration(schemaString(node["prepTime"]))
	recipe.CookTimeMin = parseISODuration(schemaString(node["cookTime"]))
	recipe.TotalTimeMin = parseISODuration(schemaString(node["totalTime"]))

	if ings, ok := node["recipeIngredient"].([]any); ok {
		for _, entry := range ings {
			text := strings.TrimSpace(schemaString(entry))
			if text == "" {
				continue
			}
			recipe.Ingredients = append(recipe.Ingredients, ExtractedIngredient{
				RawText: text,
				Name:    text,
			})
		}
	}

	for _, instruction := range schemaInstructions(node["recipeInstructions"]) {
		recipe.Steps = append(recipe.Steps, ExtractedStep{Instruction: instruction})
	}

	return recipe
}

// schemaInstructions flattens recipeInstructions, which may be a plain
// string, a list of strings, HowToStep objects, or HowToSection groups.
func schemaInstructions(raw any) []string {
	var out []string
	switch node := raw.(type) {
	case string:
		for _, line := range strings.Split(node, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
	case []any:
		for _, entry := range node {
			switch step := entry.(type) {
			case string:
				if s := strings.TrimSpace(step); s != "" {
					out = append(out, s)
				}
			case map[string]any:
				if hasType(step, "HowToSection") {
					out = append(out, schemaInstructions(step["itemListElement"])...)
				} else if text := strings.TrimSpace(schemaString(step["text"])); text != "" {
					out = append(out, text)
				}
			}
		}
	}
	return out
}

func schemaString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		if len(v) > 0 {
			return schemaString(v[0])
		}
	}
	return ""
}

// schemaImage handles the string / array / ImageObject forms of the image
// property.
func schemaImage(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			return schemaImage(v[0])
		}
	case map[string]any:
		return schemaString(v["url"])
	}
	return ""
}

var (
	durationRe = regexp.MustCompile(`^P(?:([\d.]+)D)?T?(?:([\d.]+)H)?(?:([\d.]+)M)?(?:([\d.]+)S)?$`)
	servingsRe = regexp.MustCompile(`(\d+)`)
)

// parseISODuration converts an ISO 8601 duration like PT1H30M to minutes.
func parseISODuration(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	m := durationRe.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	total := 0.0
	for i, factor := range []float64{1440, 60, 1, 1.0 / 60} {
		if m[i+1] == "" {
			continue
		}
		v, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return nil
		}
		total += v * factor
	}
	minutes := int(total)
	if minutes <= 0 {
		return nil
	}
	return &minutes
}

// parseServings pulls the first number out of a yield string like
// "4 servings", defaulting to 4.
func parseServings(raw string) int {
	if m := servingsRe.FindStringSubmatch(raw); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 4
}

// extractNotes scrapes tip and note sections that schema.org markup leaves
// out.
func extractNotes(doc *goquery.Document) string {
	var parts []string
	seen := map[string]bool{}
	for _, selector := range []string{
		"[class*='note']", "[class*='tip']", "[class*='variation']",
		"[class*='make-ahead']", "[class*='storage']",
	} {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			if len(parts) >= 5 {
				return
			}
			text := strings.TrimSpace(sel.Text())
			if len(text) < 20 || len(text) > 2000 || seen[text] {
				return
			}
			seen[text] = true
			parts = append(parts, text)
		})
	}
	return strings.Join(parts, "\n\n")
}
