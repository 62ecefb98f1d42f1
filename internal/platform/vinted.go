package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/shopspring/decimal"

	"crosslister/internal/model"
	"crosslister/pkg/log"
)

const (
	PlatformVinted = "vinted"

	vintedAPIURL       = "https://api.vinted.com/v1"
	vintedTokenURL     = "https://www.vinted.com/oauth/token"
	vintedMaxPhotos    = 8
	vintedCatalogCache = 30 * time.Minute
)

// vintedConditions internal condition -> Vinted condition id
var vintedConditions = map[string]int{
	model.ConditionNew:       1, // brand_new_with_tag
	model.ConditionLikeNew:   2, // brand_new_without_tag
	model.ConditionExcellent: 3, // very_good
	model.ConditionGood:      4,
	model.ConditionFair:      5, // satisfactory
	model.ConditionPoor:      6,
}

// VintedConfig credentials and endpoint settings for the Vinted adapter
type VintedConfig struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration

	BaseURL       string
	TokenEndpoint string
	Timeout       time.Duration
}

// vintedAdapter Vinted marketplace integration. Auth goes through an OAuth
// token manager; category and brand id lookups are cached because the catalog
// endpoints are heavily rate limited.
type vintedAdapter struct {
	cfg     VintedConfig
	baseURL string
	client  *apiClient
	oauth   *TokenManager
	catalog *bigcache.BigCache
	now     func() time.Time
}

// NewVintedAdapter creates the Vinted adapter
func NewVintedAdapter(cfg VintedConfig) (Adapter, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = vintedAPIURL
	}
	tokenEndpoint := cfg.TokenEndpoint
	if tokenEndpoint == "" {
		tokenEndpoint = vintedTokenURL
	}

	oauth := NewTokenManager(cfg.ClientID, cfg.ClientSecret, tokenEndpoint, nil)
	if cfg.AccessToken != "" {
		oauth.SetTokens(cfg.AccessToken, cfg.RefreshToken, cfg.ExpiresIn)
	}

	catalog, err := bigcache.New(context.Background(), bigcache.DefaultConfig(vintedCatalogCache))
	if err != nil {
		return nil, err
	}

	return &vintedAdapter{
		cfg:     cfg,
		baseURL: baseURL,
		client:  newAPIClient(PlatformVinted, cfg.Timeout),
		oauth:   oauth,
		catalog: catalog,
		now:     time.Now,
	}, nil
}

func (v *vintedAdapter) Name() string {
	return PlatformVinted
}

func (v *vintedAdapter) headers(ctx context.Context) (map[string]string, error) {
	auth, err := v.oauth.AuthorizationHeader(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"Authorization":   auth,
		"Accept-Language": "en",
	}, nil
}

func (v *vintedAdapter) Authenticate(ctx context.Context) error {
	if !v.oauth.Valid() {
		return NewError(PlatformVinted, KindAuthRequired, "no valid OAuth token")
	}
	headers, err := v.headers(ctx)
	if err != nil {
		return err
	}
	return v.client.doJSON(ctx, request{
		method:     http.MethodGet,
		url:        v.baseURL + "/user/profile",
		headers:    headers,
		wantStatus: http.StatusOK,
	}, nil)
}

func (v *vintedAdapter) Create(ctx context.Context, listing *model.ListingRecord) (string, error) {
	headers, err := v.headers(ctx)
	if err != nil {
		return "", err
	}

	photos := listing.Photos
	if len(photos) > vintedMaxPhotos {
		photos = photos[:vintedMaxPhotos]
	}

	conditionID, ok := vintedConditions[listing.Condition]
	if !ok {
		conditionID = vintedConditions[model.ConditionGood]
	}

	payload := map[string]interface{}{
		"title":             listing.Title,
		"description":       listing.Description,
		"price":             listing.Price,
		"currency":          listing.Currency,
		"status":            "active",
		"item_condition_id": conditionID,
		"quantity":          listing.Quantity,
		"photos":            []string(photos),
		"is_hidden":         false,
		"is_for_swap":       false,
		"is_for_sell":       true,
	}
	if id, err := v.categoryID(ctx, listing.Category); err == nil && id != 0 {
		payload["category_id"] = id
	}
	if id, err := v.brandID(ctx, listing.Brand); err == nil && id != 0 {
		payload["brand_id"] = id
	}

	var resp struct {
		Item struct {
			ID json.Number `json:"id"`
		} `json:"item"`
	}
	err = v.client.doJSON(ctx, request{
		method:     http.MethodPost,
		url:        v.baseURL + "/items",
		headers:    headers,
		body:       payload,
		wantStatus: http.StatusCreated,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Item.ID.String() == "" {
		return "", NewError(PlatformVinted, KindFatal, "create response missing item id")
	}
	return resp.Item.ID.String(), nil
}

func (v *vintedAdapter) Update(ctx context.Context, remoteID string, fields *model.ListingUpdate) error {
	headers, err := v.headers(ctx)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{"status": "active"}
	if fields.Title != nil {
		payload["title"] = *fields.Title
	}
	if fields.Description != nil {
		payload["description"] = *fields.Description
	}
	if fields.Price != nil {
		payload["price"] = *fields.Price
	}
	if fields.Quantity != nil {
		payload["quantity"] = *fields.Quantity
	}

	return v.client.doJSON(ctx, request{
		method:     http.MethodPut,
		url:        v.baseURL + "/items/" + remoteID,
		headers:    headers,
		body:       payload,
		wantStatus: http.StatusOK,
	}, nil)
}

func (v *vintedAdapter) Delete(ctx context.Context, remoteID string) error {
	headers, err := v.headers(ctx)
	if err != nil {
		return err
	}
	return v.client.doJSON(ctx, request{
		method:     http.MethodDelete,
		url:        v.baseURL + "/items/" + remoteID,
		headers:    headers,
		wantStatus: http.StatusNoContent,
	}, nil)
}

func (v *vintedAdapter) ListRemote(ctx context.Context, filter RemoteFilter) ([]Snapshot, error) {
	headers, err := v.headers(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	perPage := filter.PageSize
	if perPage <= 0 {
		perPage = 100
	}
	query.Set("per_page", strconv.Itoa(perPage))
	if filter.Status != "" {
		query.Set("status", filter.Status)
	}

	var resp struct {
		Items []struct {
			ID    json.Number     `json:"id"`
			Title string          `json:"title"`
			Price decimal.Decimal `json:"price"`
		} `json:"items"`
	}
	err = v.client.doJSON(ctx, request{
		method:     http.MethodGet,
		url:        v.baseURL + "/items",
		query:      query,
		headers:    headers,
		wantStatus: http.StatusOK,
	}, &resp)
	if err != nil {
		return nil, err
	}

	observed := v.now()
	snapshots := make([]Snapshot, 0, len(resp.Items))
	for _, item := range resp.Items {
		snapshots = append(snapshots, Snapshot{
			RemoteID: item.ID.String(),
			Title:    item.Title,
			Price:    item.Price,
			// Vinted listings are single-quantity
			Quantity:   1,
			ObservedAt: observed,
		})
	}
	return snapshots, nil
}

func (v *vintedAdapter) ListSales(ctx context.Context, from, to time.Time) ([]*model.SaleRecord, error) {
	headers, err := v.headers(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{"per_page": {"100"}}
	if !from.IsZero() {
		query.Set("created_at_from", from.Format(time.RFC3339))
	}
	if !to.IsZero() {
		query.Set("created_at_to", to.Format(time.RFC3339))
	}

	var resp struct {
		Transactions []struct {
			ID             json.Number     `json:"id"`
			ItemID         json.Number     `json:"item_id"`
			Status         string          `json:"status"`
			TotalItemPrice decimal.Decimal `json:"total_item_price"`
			CreatedAt      string          `json:"created_at"`
		} `json:"transactions"`
	}
	err = v.client.doJSON(ctx, request{
		method:     http.MethodGet,
		url:        v.baseURL + "/transactions",
		query:      query,
		headers:    headers,
		wantStatus: http.StatusOK,
	}, &resp)
	if err != nil {
		return nil, err
	}

	sales := make([]*model.SaleRecord, 0, len(resp.Transactions))
	for _, tx := range resp.Transactions {
		if tx.Status != "sold" {
			continue
		}
		saleDate, _ := time.Parse(time.RFC3339, tx.CreatedAt)
		gross := tx.TotalItemPrice
		sales = append(sales, model.NewSaleRecord(tx.ID.String(), tx.ItemID.String(), PlatformVinted, saleDate, gross, vintedFees(gross)))
	}
	return sales, nil
}

func (v *vintedAdapter) HealthCheck(ctx context.Context) error {
	return v.Authenticate(ctx)
}

// categoryID resolves a Vinted category id, caching results
func (v *vintedAdapter) categoryID(ctx context.Context, category string) (int, error) {
	if category == "" {
		return 0, nil
	}
	return v.lookupID(ctx, "/catalog/categories", "category:"+category, category)
}

// brandID resolves a Vinted brand id, caching results
func (v *vintedAdapter) brandID(ctx context.Context, brand string) (int, error) {
	if brand == "" {
		return 0, nil
	}
	return v.lookupID(ctx, "/catalog/brands", "brand:"+brand, brand)
}

func (v *vintedAdapter) lookupID(ctx context.Context, path, cacheKey, title string) (int, error) {
	if cached, err := v.catalog.Get(cacheKey); err == nil {
		id, err := strconv.Atoi(string(cached))
		if err == nil {
			return id, nil
		}
	}

	headers, err := v.headers(ctx)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Entries []struct {
			ID    int    `json:"id"`
			Title string `json:"title"`
		} `json:"entries"`
	}
	err = v.client.doJSON(ctx, request{
		method:     http.MethodGet,
		url:        v.baseURL + path,
		query:      url.Values{"search_text": {title}},
		headers:    headers,
		wantStatus: http.StatusOK,
	}, &resp)
	if err != nil {
		return 0, err
	}

	for _, entry := range resp.Entries {
		if entry.Title == title {
			if err := v.catalog.Set(cacheKey, []byte(strconv.Itoa(entry.ID))); err != nil {
				log.WithFields(map[string]interface{}{
					"platform": PlatformVinted,
					"key":      cacheKey,
					"error":    err.Error(),
				}).Warn("Failed to cache catalog id")
			}
			return entry.ID, nil
		}
	}
	return 0, nil
}

// vintedFees 5% platform fee plus 3% buyer protection
func vintedFees(gross decimal.Decimal) decimal.Decimal {
	rate := decimal.NewFromFloat(0.05).Add(decimal.NewFromFloat(0.03))
	return gross.Mul(rate).Round(2)
}
