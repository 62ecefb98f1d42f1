package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"crosslister/internal/model"
	"crosslister/pkg/utils"
)

func setupTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open gorm: %v", err)
	}

	t.Cleanup(func() { sqlDB.Close() })
	return gormDB, mock
}

func testListingRecord() *model.ListingRecord {
	return &model.ListingRecord{
		ID:        "item-001",
		Title:     "Supreme Box Logo Hoodie",
		Price:     decimal.RequireFromString("250.00"),
		Currency:  "USD",
		Condition: model.ConditionExcellent,
		Category:  model.CategoryClothing,
		Quantity:  1,
		Status:    model.ListingStatusActive,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestListingRepository_Create(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewListingRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `listings`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := repo.Create(context.Background(), testListingRecord()); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestListingRepository_GetByID(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewListingRepository(db)

	t.Run("Found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "title", "price", "currency", "condition", "quantity", "remote_ids", "status"}).
			AddRow("item-001", "Hoodie", "250.00", "USD", "Excellent", 1, []byte(`{"mercari":"m-1"}`), model.ListingStatusActive)

		mock.ExpectQuery("SELECT \\* FROM `listings` WHERE id = \\?").
			WithArgs("item-001", 1).
			WillReturnRows(rows)

		listing, err := repo.GetByID(context.Background(), "item-001")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if listing.ID != "item-001" {
			t.Errorf("Expected id item-001, got %s", listing.ID)
		}
		if id, ok := listing.RemoteID("mercari"); !ok || id != "m-1" {
			t.Errorf("Expected mercari remote id m-1, got %q", id)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT \\* FROM `listings` WHERE id = \\?").
			WithArgs("missing", 1).
			WillReturnError(gorm.ErrRecordNotFound)

		_, err := repo.GetByID(context.Background(), "missing")
		if !errors.Is(err, utils.ErrListingNotFound) {
			t.Errorf("Expected ErrListingNotFound, got %v", err)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestListingRepository_Save(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewListingRepository(db)

	listing := testListingRecord()
	listing.SetRemoteID("mercari", "m-123")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `listings` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.Save(context.Background(), listing); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestListingRepository_UpdateStatus(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewListingRepository(db)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `listings` SET `status`").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		if err := repo.UpdateStatus(context.Background(), "item-001", model.ListingStatusSold); err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `listings` SET `status`").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := repo.UpdateStatus(context.Background(), "missing", model.ListingStatusSold)
		if !errors.Is(err, utils.ErrListingNotFound) {
			t.Errorf("Expected ErrListingNotFound, got %v", err)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestListingRepository_ListActive(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewListingRepository(db)

	rows := sqlmock.NewRows([]string{"id", "title", "status"}).
		AddRow("item-001", "Hoodie", model.ListingStatusActive).
		AddRow("item-002", "Cap", model.ListingStatusActive)

	mock.ExpectQuery("SELECT \\* FROM `listings` WHERE status = \\?").
		WithArgs(model.ListingStatusActive).
		WillReturnRows(rows)

	listings, err := repo.ListActive(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(listings) != 2 {
		t.Errorf("Expected 2 listings, got %d", len(listings))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}
