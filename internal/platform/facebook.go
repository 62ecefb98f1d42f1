package platform

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"crosslister/internal/model"
	"crosslister/pkg/log"
)

const (
	PlatformFacebook = "facebook_marketplace"

	facebookGraphURL     = "https://graph.facebook.com"
	facebookGraphVersion = "v18.0"
	facebookMaxPhotos    = 10
)

// facebookConditions internal condition -> Facebook condition
var facebookConditions = map[string]string{
	model.ConditionNew:       "NEW",
	model.ConditionLikeNew:   "LIKE_NEW",
	model.ConditionExcellent: "GOOD",
	model.ConditionGood:      "GOOD",
	model.ConditionFair:      "FAIR",
	model.ConditionPoor:      "POOR",
}

// facebookCategories internal category -> Facebook category
var facebookCategories = map[string]string{
	model.CategoryClothing:    "APPAREL",
	model.CategoryShoes:       "SHOES",
	model.CategoryAccessories: "ACCESSORIES",
	model.CategoryBags:        "BAGS_AND_LUGGAGE",
}

// FacebookConfig credentials and endpoint settings for the Facebook adapter
type FacebookConfig struct {
	AppID       string
	AppSecret   string
	AccessToken string
	PageID      string
	CatalogID   string

	GraphVersion string
	BaseURL      string
	Timeout      time.Duration
}

// facebookAdapter Facebook Marketplace integration via the Graph API.
// Creation is two-phase: a catalog product first, then a marketplace listing
// referencing it. When the second phase fails the catalog product is removed
// so a failed create leaves nothing behind.
type facebookAdapter struct {
	cfg     FacebookConfig
	baseURL string
	client  *apiClient
}

// NewFacebookAdapter creates the Facebook Marketplace adapter
func NewFacebookAdapter(cfg FacebookConfig) Adapter {
	version := cfg.GraphVersion
	if version == "" {
		version = facebookGraphVersion
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = facebookGraphURL + "/" + version
	}
	return &facebookAdapter{
		cfg:     cfg,
		baseURL: baseURL,
		client:  newAPIClient(PlatformFacebook, cfg.Timeout),
	}
}

func (f *facebookAdapter) Name() string {
	return PlatformFacebook
}

func (f *facebookAdapter) tokenQuery() url.Values {
	return url.Values{"access_token": {f.cfg.AccessToken}}
}

func (f *facebookAdapter) Authenticate(ctx context.Context) error {
	return f.client.doJSON(ctx, request{
		method:     http.MethodGet,
		url:        f.baseURL + "/me",
		query:      f.tokenQuery(),
		wantStatus: http.StatusOK,
	}, nil)
}

func (f *facebookAdapter) Create(ctx context.Context, listing *model.ListingRecord) (string, error) {
	if f.cfg.CatalogID == "" {
		return "", NewError(PlatformFacebook, KindValidationFailed, "catalog id not configured")
	}

	productID, err := f.createCatalogProduct(ctx, listing)
	if err != nil {
		return "", err
	}

	listingID, err := f.createMarketplaceListing(ctx, productID)
	if err != nil {
		// Phase two failed; remove the orphaned catalog product so the
		// remote state matches the reported failure.
		if delErr := f.deleteObject(ctx, productID); delErr != nil {
			log.WithFields(map[string]interface{}{
				"platform":   PlatformFacebook,
				"product_id": productID,
				"error":      delErr.Error(),
			}).Error("Failed to roll back catalog product")
		}
		return "", err
	}
	return listingID, nil
}

func (f *facebookAdapter) createCatalogProduct(ctx context.Context, listing *model.ListingRecord) (string, error) {
	photos := listing.Photos
	if len(photos) > facebookMaxPhotos {
		photos = photos[:facebookMaxPhotos]
	}

	payload := map[string]interface{}{
		"name":         listing.Title,
		"description":  listing.Description,
		"price":        toCents(listing.Price),
		"currency":     listing.Currency,
		"condition":    mapOrDefault(facebookConditions, listing.Condition, "GOOD"),
		"category":     mapOrDefault(facebookCategories, listing.Category, "APPAREL"),
		"availability": "in stock",
		"inventory":    listing.Quantity,
		"retailer_id":  listing.ID,
		"access_token": f.cfg.AccessToken,
	}
	if listing.Brand != "" {
		payload["brand"] = listing.Brand
	}
	if listing.Size != "" {
		payload["size"] = listing.Size
	}
	if len(photos) > 0 {
		payload["image_url"] = photos[0]
		if len(photos) > 1 {
			payload["additional_image_urls"] = []string(photos[1:])
		}
	}

	var resp struct {
		ID string `json:"id"`
	}
	err := f.client.doJSON(ctx, request{
		method:     http.MethodPost,
		url:        f.baseURL + "/" + f.cfg.CatalogID + "/products",
		body:       payload,
		wantStatus: http.StatusOK,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", NewError(PlatformFacebook, KindFatal, "product response missing id")
	}
	return resp.ID, nil
}

func (f *facebookAdapter) createMarketplaceListing(ctx context.Context, productID string) (string, error) {
	payload := map[string]interface{}{
		"product_id":   productID,
		"access_token": f.cfg.AccessToken,
	}

	var resp struct {
		ID string `json:"id"`
	}
	err := f.client.doJSON(ctx, request{
		method:     http.MethodPost,
		url:        f.baseURL + "/" + f.cfg.PageID + "/marketplace_listings",
		body:       payload,
		wantStatus: http.StatusOK,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", NewError(PlatformFacebook, KindFatal, "listing response missing id")
	}
	return resp.ID, nil
}

func (f *facebookAdapter) Update(ctx context.Context, remoteID string, fields *model.ListingUpdate) error {
	payload := map[string]interface{}{
		"access_token": f.cfg.AccessToken,
	}
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
		payload["inventory"] = *fields.Quantity
	}

	return f.client.doJSON(ctx, request{
		method:     http.MethodPost,
		url:        f.baseURL + "/" + remoteID,
		body:       payload,
		wantStatus: http.StatusOK,
	}, nil)
}

func (f *facebookAdapter) Delete(ctx context.Context, remoteID string) error {
	return f.deleteObject(ctx, remoteID)
}

func (f *facebookAdapter) deleteObject(ctx context.Context, id string) error {
	return f.client.doJSON(ctx, request{
		method:     http.MethodDelete,
		url:        f.baseURL + "/" + id,
		query:      f.tokenQuery(),
		wantStatus: http.StatusOK,
	}, nil)
}

func (f *facebookAdapter) ListRemote(ctx context.Context, filter RemoteFilter) ([]Snapshot, error) {
	query := f.tokenQuery()
	query.Set("fields", "id,name,price,inventory,availability,retailer_id")
	if filter.PageSize > 0 {
		query.Set("limit", strconv.Itoa(filter.PageSize))
	}

	var resp struct {
		Data []struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			Price     int64  `json:"price"`
			Inventory int    `json:"inventory"`
		} `json:"data"`
	}
	err := f.client.doJSON(ctx, request{
		method:     http.MethodGet,
		url:        f.baseURL + "/" + f.cfg.CatalogID + "/products",
		query:      query,
		wantStatus: http.StatusOK,
	}, &resp)
	if err != nil {
		return nil, err
	}

	observed := time.Now()
	snapshots := make([]Snapshot, 0, len(resp.Data))
	for _, p := range resp.Data {
		snapshots = append(snapshots, Snapshot{
			RemoteID:   p.ID,
			Title:      p.Name,
			Price:      fromCents(p.Price),
			Quantity:   p.Inventory,
			ObservedAt: observed,
		})
	}
	return snapshots, nil
}

// ListSales the Graph API exposes no marketplace sales feed, so this always
// reports nothing sold rather than failing aggregation for other platforms.
func (f *facebookAdapter) ListSales(ctx context.Context, from, to time.Time) ([]*model.SaleRecord, error) {
	log.WithFields(map[string]interface{}{
		"platform": PlatformFacebook,
	}).Debug("Sales data not available via API, returning empty set")
	return []*model.SaleRecord{}, nil
}

func (f *facebookAdapter) HealthCheck(ctx context.Context) error {
	if err := f.Authenticate(ctx); err != nil {
		return err
	}
	// Catalog access is required for listing operations, so check it too.
	return f.client.doJSON(ctx, request{
		method:     http.MethodGet,
		url:        f.baseURL + "/" + f.cfg.CatalogID,
		query:      f.tokenQuery(),
		wantStatus: http.StatusOK,
	}, nil)
}
