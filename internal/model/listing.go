package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ListingRecord platform-neutral inventory item model
type ListingRecord struct {
	ID          string          `gorm:"type:varchar(32);primaryKey" json:"id"`
	Title       string          `gorm:"type:varchar(200);not null" json:"title"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Currency    string          `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Condition   string          `gorm:"type:varchar(20);not null" json:"condition"`
	Category    string          `gorm:"type:varchar(50);index" json:"category,omitempty"`
	Brand       string          `gorm:"type:varchar(50);index" json:"brand,omitempty"`
	Size        string          `gorm:"type:varchar(20)" json:"size,omitempty"`
	Quantity    int             `gorm:"type:int;not null;default:0" json:"quantity"`
	Photos      JSONArray       `gorm:"type:json" json:"photos,omitempty"`
	RemoteIDs   JSONMap         `gorm:"type:json" json:"remote_ids,omitempty"`
	Status      int8            `gorm:"type:tinyint;not null;default:1;index" json:"status"`
	CreatedAt   time.Time       `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (ListingRecord) TableName() string {
	return "listings"
}

// ListingStatus listing status const
const (
	ListingStatusActive  = 1
	ListingStatusSold    = 2
	ListingStatusDeleted = 3
)

// Condition values shared across all platforms. Adapters map these to
// platform-specific condition identifiers.
const (
	ConditionNew       = "New"
	ConditionLikeNew   = "Like New"
	ConditionExcellent = "Excellent"
	ConditionGood      = "Good"
	ConditionFair      = "Fair"
	ConditionPoor      = "Poor"
)

// Category values shared across all platforms.
const (
	CategoryClothing    = "Clothing"
	CategoryShoes       = "Shoes"
	CategoryAccessories = "Accessories"
	CategoryBags        = "Bags"
)

var validConditions = map[string]bool{
	ConditionNew:       true,
	ConditionLikeNew:   true,
	ConditionExcellent: true,
	ConditionGood:      true,
	ConditionFair:      true,
	ConditionPoor:      true,
}

// Validate checks required fields before any platform operation is dispatched.
// A failure here means no network call is attempted.
func (l *ListingRecord) Validate(maxPhotos int) error {
	if l.ID == "" {
		return fmt.Errorf("listing id is required")
	}
	if l.Title == "" {
		return fmt.Errorf("listing title is required")
	}
	if l.Price.IsNegative() {
		return fmt.Errorf("price must not be negative")
	}
	if l.Quantity < 0 {
		return fmt.Errorf("quantity must not be negative")
	}
	if !validConditions[l.Condition] {
		return fmt.Errorf("unknown condition: %s", l.Condition)
	}
	if maxPhotos > 0 && len(l.Photos) > maxPhotos {
		return fmt.Errorf("photo count %d exceeds limit %d", len(l.Photos), maxPhotos)
	}
	return nil
}

// RemoteID returns the platform's remote listing id, if creation was confirmed.
func (l *ListingRecord) RemoteID(platform string) (string, bool) {
	id, ok := l.RemoteIDs[platform]
	return id, ok
}

// SetRemoteID records a confirmed remote listing id for a platform.
func (l *ListingRecord) SetRemoteID(platform, remoteID string) {
	if l.RemoteIDs == nil {
		l.RemoteIDs = make(JSONMap)
	}
	l.RemoteIDs[platform] = remoteID
}

// ClearRemoteID removes a platform's remote id after a confirmed delete.
func (l *ListingRecord) ClearRemoteID(platform string) {
	delete(l.RemoteIDs, platform)
}

// IsListedAnywhere reports whether any platform still holds a remote id.
func (l *ListingRecord) IsListedAnywhere() bool {
	return len(l.RemoteIDs) > 0
}

// ListingUpdate partial field update for an existing listing
type ListingUpdate struct {
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Quantity    *int             `json:"quantity,omitempty"`
}

// Apply copies the set fields onto the record.
func (u *ListingUpdate) Apply(l *ListingRecord) {
	if u.Title != nil {
		l.Title = *u.Title
	}
	if u.Description != nil {
		l.Description = *u.Description
	}
	if u.Price != nil {
		l.Price = *u.Price
	}
	if u.Quantity != nil {
		l.Quantity = *u.Quantity
	}
}

// JSONArray custom json array type
type JSONArray []string

// Value implement driver.Valuer interface
func (j JSONArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implement sql.Scanner interface
func (j *JSONArray) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONArray", value)
	}

	return json.Unmarshal(bytes, j)
}

// JSONMap custom json string map type
type JSONMap map[string]string

// Value implement driver.Valuer interface
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implement sql.Scanner interface
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}

	return json.Unmarshal(bytes, j)
}
