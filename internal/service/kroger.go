package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/forkcast/backend/config"
)

const (
	krogerAPIBase = "https://api.kroger.com/v1"

	// Kroger Middlebelt, Farmington Hills MI.
	defaultKrogerStore = "01800661"
)

// KrogerTokens is the token response from the OAuth endpoints.
type KrogerTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// KrogerProduct is a matched store product for one ingredient.
type KrogerProduct struct {
	UPC          string   `json:"upc"`
	Description  string   `json:"description"`
	Brand        string   `json:"brand"`
	Size         string   `json:"size"`
	Price        *float64 `json:"price"`
	PriceRegular *float64 `json:"price_regular"`
	OnSale       bool     `json:"on_sale"`
	InStock      bool     `json:"in_stock"`
	Aisle        string   `json:"aisle"`
	ImageURL     string   `json:"image_url"`
	ProductURL   string   `json:"product_url"`
	SearchURL    string   `json:"search_url"`
}

// IngredientMatch pairs an ingredient name with its best store product, if
// any.
type IngredientMatch struct {
	Ingredient string         `json:"ingredient"`
	Matched    bool           `json:"matched"`
	Product    *KrogerProduct `json:"product,omitempty"`
}

// CartItem is one UPC/quantity pair for a cart add.
type CartItem struct {
	UPC      string `json:"upc"`
	Quantity int    `json:"quantity"`
}

// KrogerClient talks to the Kroger API: client-credentials product search and
// user OAuth for cart writes. The client-credentials token is cached until
// shortly before expiry.
type KrogerClient struct {
	cfg    *config.KrogerConfig
	client *http.Client
	logger *zap.Logger

	mu             sync.Mutex
	clientToken    string
	clientTokenExp time.Time
}

// NewKrogerClient creates a Kroger API client.
func NewKrogerClient(cfg *config.KrogerConfig, logger *zap.Logger) *KrogerClient {
	return &KrogerClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

// Configured reports whether API credentials are present.
func (k *KrogerClient) Configured() bool {
	return k.cfg.ClientID != "" && k.cfg.ClientSecret != ""
}

// StoreID returns the configured store, falling back to the default.
func (k *KrogerClient) StoreID() string {
	if k.cfg.StoreID != "" {
		return k.cfg.StoreID
	}
	return defaultKrogerStore
}

func (k *KrogerClient) basicAuth() string {
	return base64.StdEncoding.EncodeToString([]byte(k.cfg.ClientID + ":" + k.cfg.ClientSecret))
}

func (k *KrogerClient) getClientToken(ctx context.Context) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.clientToken != "" && time.Now().Before(k.clientTokenExp.Add(-time.Minute)) {
		return k.clientToken, nil
	}

	tokens, err := k.tokenRequest(ctx, url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {"product.compact"},
	})
	if err != nil {
		return "", err
	}

	k.clientToken = tokens.AccessToken
	k.clientTokenExp = time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second)
	return k.clientToken, nil
}

func (k *KrogerClient) tokenRequest(ctx context.Context, form url.Values) (*KrogerTokens, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		krogerAPIBase+"/connect/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+k.basicAuth())

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("token request failed: status %d: %s", resp.StatusCode, body)
	}

	var tokens KrogerTokens
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	return &tokens, nil
}

// AuthorizeURL builds the user OAuth consent URL. The state parameter is a
// short-lived signed token so the callback can reject forged redirects.
func (k *KrogerClient) AuthorizeURL() (string, error) {
	state, err := k.signState()
	if err != nil {
		return "", err
	}
	params := url.Values{
		"scope":         {"cart.basic:write product.compact profile.compact"},
		"response_type": {"code"},
		"client_id":     {k.cfg.ClientID},
		"redirect_uri":  {k.cfg.RedirectURI},
		"state":         {state},
	}
	return krogerAPIBase + "/connect/oauth2/authorize?" + params.Encode(), nil
}

func (k *KrogerClient) signState() (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    "forkcast",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(10 * time.Minute)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(k.cfg.StateSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return signed, nil
}

// VerifyState checks an OAuth callback state token.
func (k *KrogerClient) VerifyState(state string) error {
	_, err := jwt.ParseWithClaims(state, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(k.cfg.StateSecret), nil
	})
	if err != nil {
		return fmt.Errorf("invalid state: %w", err)
	}
	return nil
}

// ExchangeCode trades an authorization code for user tokens.
func (k *KrogerClient) ExchangeCode(ctx context.Context, code string) (*KrogerTokens, error) {
	return k.tokenRequest(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {k.cfg.RedirectURI},
	})
}

// RefreshUserToken refreshes an expired user access token.
func (k *KrogerClient) RefreshUserToken(ctx context.Context, refreshToken string) (*KrogerTokens, error) {
	return k.tokenRequest(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

// SearchProducts searches the store catalog.
func (k *KrogerClient) SearchProducts(ctx context.Context, term, locationID string, limit int) ([]map[string]any, error) {
	token, err := k.getClientToken(ctx)
	if err != nil {
		return nil, err
	}
	if locationID == "" {
		locationID = k.StoreID()
	}

	params := url.Values{
		"filter.term":       {term},
		"filter.locationId": {locationID},
		"filter.limit":      {fmt.Sprint(limit)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		krogerAPIBase+"/products?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build product request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("product search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("product search failed: status %d: %s", resp.StatusCode, body)
	}

	var out struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode product response: %w", err)
	}
	return out.Data, nil
}

// SearchBestMatch returns the top product match for an ingredient, or nil
// when the store has nothing.
func (k *KrogerClient) SearchBestMatch(ctx context.Context, ingredient, locationID string) (*KrogerProduct, error) {
	products, err := k.SearchProducts(ctx, ingredient, locationID, 1)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, nil
	}

	p := products[0]
	upc, _ := p["upc"].(string)
	desc, _ := p["description"].(string)
	brand, _ := p["brand"].(string)

	product := &KrogerProduct{
		UPC:         upc,
		Description: desc,
		Brand:       brand,
		ImageURL:    productImageURL(p),
		ProductURL:  fmt.Sprintf("https://www.kroger.com/p/%s/%s", productSlug(desc), upc),
		SearchURL: "https://www.kroger.com/search?query=" +
			url.QueryEscape(ingredient) + "&searchType=default_search",
	}

	if items, ok := p["items"].([]any); ok && len(items) > 0 {
		if item, ok := items[0].(map[string]any); ok {
			product.Size, _ = item["size"].(string)
			if fulfillment, ok := item["fulfillment"].(map[string]any); ok {
				product.InStock, _ = fulfillment["inStore"].(bool)
			}
			if price, ok := item["price"].(map[string]any); ok {
				regular, _ := price["regular"].(float64)
				promo, _ := price["promo"].(float64)
				product.PriceRegular = &regular
				if promo > 0 {
					product.OnSale = true
					product.Price = &promo
				} else {
					product.Price = &regular
				}
			}
		}
	}
	if aisles, ok := p["aisleLocations"].([]any); ok && len(aisles) > 0 {
		if a, ok := aisles[0].(map[string]any); ok {
			desc, _ := a["description"].(string)
			number, _ := a["number"].(string)
			product.Aisle = strings.TrimSpace(fmt.Sprintf("%s #%s", desc, number))
		}
	}
	return product, nil
}

// MatchIngredients maps ingredient names to their best store products.
func (k *KrogerClient) MatchIngredients(ctx context.Context, ingredients []string, locationID string) ([]IngredientMatch, error) {
	results := make([]IngredientMatch, 0, len(ingredients))
	for _, name := range ingredients {
		product, err := k.SearchBestMatch(ctx, name, locationID)
		if err != nil {
			k.logger.Warn("ingredient match failed", zap.String("ingredient", name), zap.Error(err))
			results = append(results, IngredientMatch{Ingredient: name})
			continue
		}
		results = append(results, IngredientMatch{
			Ingredient: name,
			Matched:    product != nil,
			Product:    product,
		})
	}
	return results, nil
}

// AddToCart puts items in the user's online cart.
func (k *KrogerClient) AddToCart(ctx context.Context, userToken string, items []CartItem) error {
	payload, err := json.Marshal(map[string]any{"items": items})
	if err != nil {
		return fmt.Errorf("failed to encode cart items: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		krogerAPIBase+"/cart/add", strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("failed to build cart request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+userToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return fmt.Errorf("cart add failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		k.logger.Info("added items to cart", zap.Int("count", len(items)))
		return nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("cart add failed: status %d: %s", resp.StatusCode, body)
	}
}

// productSlug builds a URL slug from a product description.
func productSlug(desc string) string {
	desc = strings.ToLower(desc)
	var sb strings.Builder
	for _, r := range desc {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ':
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), "-")
}

func productImageURL(product map[string]any) string {
	images, ok := product["images"].([]any)
	if !ok {
		return ""
	}
	for _, raw := range images {
		img, ok := raw.(map[string]any)
		if !ok || img["perspective"] != "front" {
			continue
		}
		sizes, ok := img["sizes"].([]any)
		if !ok {
			continue
		}
		for _, rawSize := range sizes {
			size, ok := rawSize.(map[string]any)
			if !ok || size["size"] != "medium" {
				continue
			}
			if u, ok := size["url"].(string); ok {
				return u
			}
		}
	}
	return ""
}
