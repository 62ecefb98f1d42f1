package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"crosslister/internal/model"
	"crosslister/pkg/utils"
)

const (
	PlatformMercari = "mercari"

	mercariProductionURL = "https://api.mercari.com/v1"
	mercariSandboxURL    = "https://api-sandbox.mercari.com/v1"
	mercariMaxPhotos     = 8
)

// mercariConditions internal condition -> Mercari condition
var mercariConditions = map[string]string{
	model.ConditionNew:       "new",
	model.ConditionLikeNew:   "like_new",
	model.ConditionExcellent: "good",
	model.ConditionGood:      "good",
	model.ConditionFair:      "fair",
	model.ConditionPoor:      "poor",
}

// mercariCategories internal category -> Mercari category
var mercariCategories = map[string]string{
	model.CategoryClothing:    "clothing",
	model.CategoryShoes:       "shoes",
	model.CategoryAccessories: "accessories",
	model.CategoryBags:        "bags",
}

// MercariConfig credentials and endpoint settings for the Mercari adapter
type MercariConfig struct {
	APIKey      string
	Secret      string
	AccessToken string
	Sandbox     bool

	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
	Timeout time.Duration
}

// mercariAdapter Mercari marketplace integration. Requests carry a Bearer
// token plus an HMAC-SHA256 signature over method, path and timestamp.
type mercariAdapter struct {
	cfg           MercariConfig
	baseURL       string
	client        *apiClient
	authenticated atomic.Bool
	now           func() time.Time
}

// NewMercariAdapter creates the Mercari adapter
func NewMercariAdapter(cfg MercariConfig) Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.Sandbox {
			baseURL = mercariSandboxURL
		} else {
			baseURL = mercariProductionURL
		}
	}
	return &mercariAdapter{
		cfg:     cfg,
		baseURL: baseURL,
		client:  newAPIClient(PlatformMercari, cfg.Timeout),
		now:     time.Now,
	}
}

func (m *mercariAdapter) Name() string {
	return PlatformMercari
}

// headers builds auth headers including the request signature
func (m *mercariAdapter) headers(method, path string) map[string]string {
	ts := strconv.FormatInt(m.now().Unix(), 10)
	payload := fmt.Sprintf("%s\n%s\n%s", method, path, ts)
	return map[string]string{
		"Authorization": "Bearer " + m.cfg.AccessToken,
		"X-API-Key":     m.cfg.APIKey,
		"X-Timestamp":   ts,
		"X-Signature":   utils.HMACSHA256(m.cfg.Secret, payload),
	}
}

func (m *mercariAdapter) Authenticate(ctx context.Context) error {
	if m.authenticated.Load() {
		return nil
	}
	err := m.client.doJSON(ctx, request{
		method:     http.MethodGet,
		url:        m.baseURL + "/user/profile",
		headers:    m.headers(http.MethodGet, "/user/profile"),
		wantStatus: http.StatusOK,
	}, nil)
	if err != nil {
		return err
	}
	m.authenticated.Store(true)
	return nil
}

func (m *mercariAdapter) Create(ctx context.Context, listing *model.ListingRecord) (string, error) {
	if err := m.Authenticate(ctx); err != nil {
		return "", err
	}

	photos := listing.Photos
	if len(photos) > mercariMaxPhotos {
		photos = photos[:mercariMaxPhotos]
	}

	payload := map[string]interface{}{
		"name":        listing.Title,
		"description": listing.Description,
		"price":       toCents(listing.Price),
		"condition":   mapOrDefault(mercariConditions, listing.Condition, "good"),
		"category":    mapOrDefault(mercariCategories, listing.Category, "other"),
		"photos":      []string(photos),
		"quantity":    listing.Quantity,
	}
	if listing.Size != "" {
		payload["size"] = listing.Size
	}
	if listing.Brand != "" {
		payload["brand"] = listing.Brand
	}

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	err := m.client.doJSON(ctx, request{
		method:     http.MethodPost,
		url:        m.baseURL + "/items",
		headers:    m.headers(http.MethodPost, "/items"),
		body:       payload,
		wantStatus: http.StatusCreated,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", NewError(PlatformMercari, KindFatal, "create response missing item id")
	}
	return resp.Data.ID, nil
}

func (m *mercariAdapter) Update(ctx context.Context, remoteID string, fields *model.ListingUpdate) error {
	if err := m.Authenticate(ctx); err != nil {
		return err
	}

	payload := map[string]interface{}{}
	if fields.Title != nil {
		payload["name"] = *fields.Title
	}
	if fields.Description != nil {
		payload["description"] = *fields.Description
	}
	if fields.Price != nil {
		payload["price"] = toCents(*fields.Price)
	}
	if fields.Quantity != nil {
		payload["quantity"] = *fields.Quantity
	}

	path := "/items/" + remoteID
	return m.client.doJSON(ctx, request{
		method:     http.MethodPut,
		url:        m.baseURL + path,
		headers:    m.headers(http.MethodPut, path),
		body:       payload,
		wantStatus: http.StatusOK,
	}, nil)
}

func (m *mercariAdapter) Delete(ctx context.Context, remoteID string) error {
	if err := m.Authenticate(ctx); err != nil {
		return err
	}

	path := "/items/" + remoteID
	return m.client.doJSON(ctx, request{
		method:     http.MethodDelete,
		url:        m.baseURL + path,
		headers:    m.headers(http.MethodDelete, path),
		wantStatus: http.StatusNoContent,
	}, nil)
}

func (m *mercariAdapter) ListRemote(ctx context.Context, filter RemoteFilter) ([]Snapshot, error) {
	if err := m.Authenticate(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	if filter.Status != "" {
		query.Set("status", filter.Status)
	}
	if filter.PageSize > 0 {
		query.Set("per_page", strconv.Itoa(filter.PageSize))
	}

	var resp struct {
		Data []struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Price    int64  `json:"price"`
			Quantity int    `json:"quantity"`
		} `json:"data"`
	}
	err := m.client.doJSON(ctx, request{
		method:     http.MethodGet,
		url:        m.baseURL + "/items",
		query:      query,
		headers:    m.headers(http.MethodGet, "/items"),
		wantStatus: http.StatusOK,
	}, &resp)
	if err != nil {
		return nil, err
	}

	observed := m.now()
	snapshots := make([]Snapshot, 0, len(resp.Data))
	for _, item := range resp.Data {
		snapshots = append(snapshots, Snapshot{
			RemoteID:   item.ID,
			Title:      item.Name,
			Price:      fromCents(item.Price),
			Quantity:   item.Quantity,
			ObservedAt: observed,
		})
	}
	return snapshots, nil
}

func (m *mercariAdapter) ListSales(ctx context.Context, from, to time.Time) ([]*model.SaleRecord, error) {
	if err := m.Authenticate(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	if !from.IsZero() {
		query.Set("start_date", from.Format(time.RFC3339))
	}
	if !to.IsZero() {
		query.Set("end_date", to.Format(time.RFC3339))
	}

	var resp struct {
		Data []struct {
			ID     string `json:"id"`
			ItemID string `json:"item_id"`
			Price  int64  `json:"price"`
			SoldAt string `json:"sold_at"`
		} `json:"data"`
	}
	err := m.client.doJSON(ctx, request{
		method:     http.MethodGet,
		url:        m.baseURL + "/sales",
		query:      query,
		headers:    m.headers(http.MethodGet, "/sales"),
		wantStatus: http.StatusOK,
	}, &resp)
	if err != nil {
		return nil, err
	}

	sales := make([]*model.SaleRecord, 0, len(resp.Data))
	for _, s := range resp.Data {
		gross := fromCents(s.Price)
		saleDate, _ := time.Parse(time.RFC3339, s.SoldAt)
		sales = append(sales, model.NewSaleRecord(s.ID, s.ItemID, PlatformMercari, saleDate, gross, mercariFees(gross)))
	}
	return sales, nil
}

func (m *mercariAdapter) HealthCheck(ctx context.Context) error {
	return m.client.doJSON(ctx, request{
		method:     http.MethodGet,
		url:        m.baseURL + "/user/profile",
		headers:    m.headers(http.MethodGet, "/user/profile"),
		wantStatus: http.StatusOK,
	}, nil)
}

// mercariFees 10% platform fee plus 2.9% payment processing
func mercariFees(gross decimal.Decimal) decimal.Decimal {
	rate := decimal.NewFromFloat(0.10).Add(decimal.NewFromFloat(0.029))
	return gross.Mul(rate).Round(2)
}

func mapOrDefault(mapping map[string]string, key, fallback string) string {
	if v, ok := mapping[key]; ok {
		return v
	}
	return fallback
}

func toCents(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).IntPart()
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))
}
