package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"crosslister/internal/model"
	"crosslister/internal/service/reconciler"
	"crosslister/pkg/lock"
	"crosslister/pkg/utils"
)

// MockReconciler mock reconciler
type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) RunOnce(ctx context.Context) (*reconciler.Report, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciler.Report), args.Error(1)
}

func (m *MockReconciler) Start() {
	m.Called()
}

func (m *MockReconciler) Stop() {
	m.Called()
}

// MockDivergenceRepository mock divergence repository
type MockDivergenceRepository struct {
	mock.Mock
}

func (m *MockDivergenceRepository) Create(ctx context.Context, divergence *model.SyncDivergence) error {
	args := m.Called(ctx, divergence)
	return args.Error(0)
}

func (m *MockDivergenceRepository) GetByID(ctx context.Context, id uint64) (*model.SyncDivergence, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SyncDivergence), args.Error(1)
}

func (m *MockDivergenceRepository) ListPending(ctx context.Context, listingID string) ([]*model.SyncDivergence, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.SyncDivergence), args.Error(1)
}

func (m *MockDivergenceRepository) MarkResolved(ctx context.Context, id uint64, resolution int8) error {
	args := m.Called(ctx, id, resolution)
	return args.Error(0)
}

func newTestSyncHandler(rec *MockReconciler, divergences *MockDivergenceRepository, listings *MockListingRepository) *SyncHandler {
	return NewSyncHandler(rec, divergences, listings, lock.NewListingLocker(nil, 0))
}

func TestSyncHandler_TriggerSync(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("pass completes", func(t *testing.T) {
		mockRec := new(MockReconciler)
		mockRepo := new(MockDivergenceRepository)
		handler := newTestSyncHandler(mockRec, mockRepo, new(MockListingRepository))

		router := gin.New()
		router.POST("/sync", handler.TriggerSync)

		mockRec.On("RunOnce", mock.Anything).Return(&reconciler.Report{
			Platforms:   3,
			Listings:    12,
			Divergences: 2,
			Pending:     2,
		}, nil)

		req, _ := http.NewRequest("POST", "/sync", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)

		data := response["data"].(map[string]interface{})
		assert.Equal(t, float64(2), data["divergences"])
	})

	t.Run("already running", func(t *testing.T) {
		mockRec := new(MockReconciler)
		mockRepo := new(MockDivergenceRepository)
		handler := newTestSyncHandler(mockRec, mockRepo, new(MockListingRepository))

		router := gin.New()
		router.POST("/sync", handler.TriggerSync)

		mockRec.On("RunOnce", mock.Anything).Return(nil, utils.ErrSyncInProgress)

		req, _ := http.NewRequest("POST", "/sync", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestSyncHandler_ListDivergences(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockRec := new(MockReconciler)
	mockRepo := new(MockDivergenceRepository)
	handler := newTestSyncHandler(mockRec, mockRepo, new(MockListingRepository))

	router := gin.New()
	router.GET("/divergences", handler.ListDivergences)

	mockRepo.On("ListPending", mock.Anything, "item-001").Return([]*model.SyncDivergence{
		{
			ID:            7,
			ListingID:     "item-001",
			Platform:      "vinted",
			Field:         model.DivergenceFieldPrice,
			StoredValue:   "250",
			ObservedValue: "230",
			Resolution:    model.ResolutionPending,
		},
	}, nil)

	req, _ := http.NewRequest("GET", "/divergences?listing_id=item-001", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)

	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["count"])

	mockRepo.AssertExpectations(t)
}

func TestSyncHandler_ResolveDivergence(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("apply rewrites stored price", func(t *testing.T) {
		mockRec := new(MockReconciler)
		mockRepo := new(MockDivergenceRepository)
		mockListings := new(MockListingRepository)
		handler := newTestSyncHandler(mockRec, mockRepo, mockListings)

		router := gin.New()
		router.POST("/divergences/:id/resolve", handler.ResolveDivergence)

		mockRepo.On("GetByID", mock.Anything, uint64(7)).Return(&model.SyncDivergence{
			ID:            7,
			ListingID:     "item-001",
			Platform:      "vinted",
			Field:         model.DivergenceFieldPrice,
			StoredValue:   "250",
			ObservedValue: "230",
			Resolution:    model.ResolutionPending,
		}, nil)
		mockListings.On("GetByID", mock.Anything, "item-001").Return(&model.ListingRecord{
			ID:        "item-001",
			Price:     decimal.RequireFromString("250.00"),
			Quantity:  1,
			RemoteIDs: model.JSONMap{"vinted": "v-1"},
			Status:    model.ListingStatusActive,
		}, nil)
		mockListings.On("Save", mock.Anything, mock.MatchedBy(func(l *model.ListingRecord) bool {
			return l.Price.Equal(decimal.RequireFromString("230"))
		})).Return(nil)
		mockRepo.On("MarkResolved", mock.Anything, uint64(7), int8(model.ResolutionApplied)).Return(nil)

		jsonBody, _ := json.Marshal(map[string]string{"resolution": "applied"})
		req, _ := http.NewRequest("POST", "/divergences/7/resolve", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockRepo.AssertExpectations(t)
		mockListings.AssertExpectations(t)
	})

	t.Run("apply absent clears remote id", func(t *testing.T) {
		mockRec := new(MockReconciler)
		mockRepo := new(MockDivergenceRepository)
		mockListings := new(MockListingRepository)
		handler := newTestSyncHandler(mockRec, mockRepo, mockListings)

		router := gin.New()
		router.POST("/divergences/:id/resolve", handler.ResolveDivergence)

		mockRepo.On("GetByID", mock.Anything, uint64(9)).Return(&model.SyncDivergence{
			ID:            9,
			ListingID:     "item-002",
			Platform:      "mercari",
			Field:         model.DivergenceFieldExistence,
			StoredValue:   "listed",
			ObservedValue: "absent",
			Resolution:    model.ResolutionPending,
		}, nil)
		mockListings.On("GetByID", mock.Anything, "item-002").Return(&model.ListingRecord{
			ID:        "item-002",
			Price:     decimal.RequireFromString("80.00"),
			Quantity:  1,
			RemoteIDs: model.JSONMap{"mercari": "m-1"},
			Status:    model.ListingStatusActive,
		}, nil)
		mockListings.On("Save", mock.Anything, mock.MatchedBy(func(l *model.ListingRecord) bool {
			_, listed := l.RemoteID("mercari")
			return !listed && l.Status == model.ListingStatusDeleted
		})).Return(nil)
		mockRepo.On("MarkResolved", mock.Anything, uint64(9), int8(model.ResolutionApplied)).Return(nil)

		jsonBody, _ := json.Marshal(map[string]string{"resolution": "applied"})
		req, _ := http.NewRequest("POST", "/divergences/9/resolve", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockRepo.AssertExpectations(t)
		mockListings.AssertExpectations(t)
	})

	t.Run("keep leaves listing untouched", func(t *testing.T) {
		mockRec := new(MockReconciler)
		mockRepo := new(MockDivergenceRepository)
		mockListings := new(MockListingRepository)
		handler := newTestSyncHandler(mockRec, mockRepo, mockListings)

		router := gin.New()
		router.POST("/divergences/:id/resolve", handler.ResolveDivergence)

		mockRepo.On("GetByID", mock.Anything, uint64(7)).Return(&model.SyncDivergence{
			ID:            7,
			ListingID:     "item-001",
			Platform:      "vinted",
			Field:         model.DivergenceFieldPrice,
			ObservedValue: "230",
			Resolution:    model.ResolutionPending,
		}, nil)
		mockRepo.On("MarkResolved", mock.Anything, uint64(7), int8(model.ResolutionKept)).Return(nil)

		jsonBody, _ := json.Marshal(map[string]string{"resolution": "kept"})
		req, _ := http.NewRequest("POST", "/divergences/7/resolve", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockListings.AssertNotCalled(t, "Save")
		mockRepo.AssertExpectations(t)
	})

	t.Run("unknown divergence", func(t *testing.T) {
		mockRec := new(MockReconciler)
		mockRepo := new(MockDivergenceRepository)
		handler := newTestSyncHandler(mockRec, mockRepo, new(MockListingRepository))

		router := gin.New()
		router.POST("/divergences/:id/resolve", handler.ResolveDivergence)

		mockRepo.On("GetByID", mock.Anything, uint64(404)).Return(nil, utils.ErrDivergenceNotFound)

		jsonBody, _ := json.Marshal(map[string]string{"resolution": "applied"})
		req, _ := http.NewRequest("POST", "/divergences/404/resolve", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		mockRepo.AssertNotCalled(t, "MarkResolved")
	})

	t.Run("invalid resolution rejected", func(t *testing.T) {
		mockRec := new(MockReconciler)
		mockRepo := new(MockDivergenceRepository)
		handler := newTestSyncHandler(mockRec, mockRepo, new(MockListingRepository))

		router := gin.New()
		router.POST("/divergences/:id/resolve", handler.ResolveDivergence)

		jsonBody, _ := json.Marshal(map[string]string{"resolution": "overwrite"})
		req, _ := http.NewRequest("POST", "/divergences/7/resolve", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockRepo.AssertNotCalled(t, "MarkResolved")
	})
}
