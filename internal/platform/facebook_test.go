package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosslister/internal/model"
)

func newFacebookForTest(t *testing.T, handler http.Handler) Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewFacebookAdapter(FacebookConfig{
		AppID:       "app",
		AppSecret:   "secret",
		AccessToken: "fb-token",
		PageID:      "page-1",
		CatalogID:   "catalog-1",
		BaseURL:     server.URL,
	})
}

func TestFacebookCreate(t *testing.T) {
	t.Run("TwoPhaseSuccess", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/catalog-1/products", func(w http.ResponseWriter, r *http.Request) {
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "item-001", payload["retailer_id"])
			assert.Equal(t, "GOOD", payload["condition"])
			assert.Equal(t, "APPAREL", payload["category"])
			assert.Equal(t, "in stock", payload["availability"])

			w.Write([]byte(`{"id":"prod-1"}`))
		})
		mux.HandleFunc("/page-1/marketplace_listings", func(w http.ResponseWriter, r *http.Request) {
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "prod-1", payload["product_id"])

			w.Write([]byte(`{"id":"fb-listing-1"}`))
		})

		adapter := newFacebookForTest(t, mux)
		remoteID, err := adapter.Create(context.Background(), testListing())
		require.NoError(t, err)
		assert.Equal(t, "fb-listing-1", remoteID)
	})

	t.Run("PhaseTwoFailureRollsBackProduct", func(t *testing.T) {
		var productDeleted int32

		mux := http.NewServeMux()
		mux.HandleFunc("/catalog-1/products", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id":"prod-1"}`))
		})
		mux.HandleFunc("/page-1/marketplace_listings", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "listing rejected", http.StatusBadRequest)
		})
		mux.HandleFunc("/prod-1", func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodDelete, r.Method)
			atomic.AddInt32(&productDeleted, 1)
			w.Write([]byte(`{"success":true}`))
		})

		adapter := newFacebookForTest(t, mux)
		_, err := adapter.Create(context.Background(), testListing())
		require.Error(t, err)
		assert.Equal(t, KindValidationFailed, KindOf(err))
		assert.Equal(t, int32(1), atomic.LoadInt32(&productDeleted))
	})

	t.Run("MissingCatalogID", func(t *testing.T) {
		adapter := NewFacebookAdapter(FacebookConfig{
			AccessToken: "fb-token",
			PageID:      "page-1",
			BaseURL:     "http://unused",
		})

		_, err := adapter.Create(context.Background(), testListing())
		require.Error(t, err)
		assert.Equal(t, KindValidationFailed, KindOf(err))
	})
}

func TestFacebookUpdate(t *testing.T) {
	title := "New Title"
	quantity := 5

	mux := http.NewServeMux()
	mux.HandleFunc("/fb-listing-1", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "New Title", payload["name"])
		assert.Equal(t, float64(5), payload["inventory"])

		w.Write([]byte(`{"success":true}`))
	})

	adapter := newFacebookForTest(t, mux)
	err := adapter.Update(context.Background(), "fb-listing-1", &model.ListingUpdate{
		Title:    &title,
		Quantity: &quantity,
	})
	assert.NoError(t, err)
}

func TestFacebookListRemote(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/catalog-1/products", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("fields"), "inventory")
		w.Write([]byte(`{"data":[{"id":"prod-1","name":"Hoodie","price":25000,"inventory":2}]}`))
	})

	adapter := newFacebookForTest(t, mux)
	snapshots, err := adapter.ListRemote(context.Background(), RemoteFilter{PageSize: 50})
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, 2, snapshots[0].Quantity)
}

func TestFacebookListSalesAlwaysEmpty(t *testing.T) {
	adapter := NewFacebookAdapter(FacebookConfig{BaseURL: "http://unused"})

	sales, err := adapter.ListSales(context.Background(), time.Time{}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestFacebookHealthCheck(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fb-token", r.URL.Query().Get("access_token"))
		w.Write([]byte(`{"id":"u-1","name":"Shop"}`))
	})
	mux.HandleFunc("/catalog-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"catalog-1"}`))
	})

	adapter := newFacebookForTest(t, mux)
	assert.NoError(t, adapter.HealthCheck(context.Background()))
}
