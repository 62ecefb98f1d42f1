package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVintedForTest(t *testing.T, handler http.Handler) Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	adapter, err := NewVintedAdapter(VintedConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		AccessToken:  "vinted-token",
		BaseURL:      server.URL,
	})
	require.NoError(t, err)
	return adapter
}

func vintedCatalogHandler(mux *http.ServeMux, lookupCalls *int32) {
	mux.HandleFunc("/catalog/categories", func(w http.ResponseWriter, r *http.Request) {
		if lookupCalls != nil {
			atomic.AddInt32(lookupCalls, 1)
		}
		w.Write([]byte(`{"entries":[{"id":1,"title":"Clothing"},{"id":2,"title":"Shoes"}]}`))
	})
	mux.HandleFunc("/catalog/brands", func(w http.ResponseWriter, r *http.Request) {
		if lookupCalls != nil {
			atomic.AddInt32(lookupCalls, 1)
		}
		w.Write([]byte(`{"entries":[{"id":1001,"title":"Supreme"}]}`))
	})
}

func TestVintedAuthenticate(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/user/profile", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer vinted-token", r.Header.Get("Authorization"))
			w.Write([]byte(`{"user":{"login":"reseller"}}`))
		})

		adapter := newVintedForTest(t, mux)
		assert.NoError(t, adapter.Authenticate(context.Background()))
	})

	t.Run("MissingToken", func(t *testing.T) {
		adapter, err := NewVintedAdapter(VintedConfig{
			ClientID:     "client",
			ClientSecret: "secret",
			BaseURL:      "http://unused",
		})
		require.NoError(t, err)

		err = adapter.Authenticate(context.Background())
		require.Error(t, err)
		assert.Equal(t, KindAuthRequired, KindOf(err))
	})
}

func TestVintedCreate(t *testing.T) {
	var lookupCalls int32

	mux := http.NewServeMux()
	vintedCatalogHandler(mux, &lookupCalls)
	mux.HandleFunc("/items", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Supreme Box Logo Hoodie", payload["title"])
		// Excellent maps to very_good (condition id 3)
		assert.Equal(t, float64(3), payload["item_condition_id"])
		assert.Equal(t, float64(1), payload["category_id"])
		assert.Equal(t, float64(1001), payload["brand_id"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"item":{"id":987654}}`))
	})

	adapter := newVintedForTest(t, mux)

	remoteID, err := adapter.Create(context.Background(), testListing())
	require.NoError(t, err)
	assert.Equal(t, "987654", remoteID)

	firstRound := atomic.LoadInt32(&lookupCalls)
	assert.Equal(t, int32(2), firstRound)

	// Second create resolves category and brand from cache
	_, err = adapter.Create(context.Background(), testListing())
	require.NoError(t, err)
	assert.Equal(t, firstRound, atomic.LoadInt32(&lookupCalls))
}

func TestVintedDelete(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/items/987654", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})

	adapter := newVintedForTest(t, mux)
	assert.NoError(t, adapter.Delete(context.Background(), "987654"))
}

func TestVintedListRemote(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/items", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		w.Write([]byte(`{"items":[{"id":11,"title":"Hoodie","price":"250.00"},{"id":12,"title":"Cap","price":"45.00"}]}`))
	})

	adapter := newVintedForTest(t, mux)
	snapshots, err := adapter.ListRemote(context.Background(), RemoteFilter{})
	require.NoError(t, err)
	require.Len(t, snapshots, 2)

	assert.Equal(t, "11", snapshots[0].RemoteID)
	assert.True(t, snapshots[0].Price.Equal(decimal.RequireFromString("250.00")))
	assert.Equal(t, 1, snapshots[0].Quantity)
}

func TestVintedListSales(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/transactions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transactions":[
			{"id":21,"item_id":11,"status":"sold","total_item_price":"100.00","created_at":"2026-08-10T09:00:00Z"},
			{"id":22,"item_id":12,"status":"pending","total_item_price":"45.00","created_at":"2026-08-11T09:00:00Z"}
		]}`))
	})

	adapter := newVintedForTest(t, mux)
	sales, err := adapter.ListSales(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)

	// Pending transactions are not sales
	require.Len(t, sales, 1)
	sale := sales[0]
	assert.Equal(t, "21", sale.SaleID)
	// 8% combined fee on 100.00
	assert.True(t, sale.Fees.Equal(decimal.RequireFromString("8.00")), "fees = %s", sale.Fees)
	assert.True(t, sale.Net.Equal(decimal.RequireFromString("92.00")), "net = %s", sale.Net)
}

func TestVintedServerErrorIsTransient(t *testing.T) {
	mux := http.NewServeMux()
	vintedCatalogHandler(mux, nil)
	mux.HandleFunc("/items", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})

	adapter := newVintedForTest(t, mux)
	_, err := adapter.Create(context.Background(), testListing())
	require.Error(t, err)
	assert.Equal(t, KindTransient, KindOf(err))
	assert.True(t, IsRetryable(err))
}
