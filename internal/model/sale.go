package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SaleRecord normalized sale event, append-only once ingested
type SaleRecord struct {
	ID        uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	SaleID    string          `gorm:"type:varchar(64);uniqueIndex:idx_platform_sale,priority:2;not null" json:"sale_id"`
	ListingID string          `gorm:"type:varchar(32);not null;index" json:"listing_id"`
	Platform  string          `gorm:"type:varchar(32);uniqueIndex:idx_platform_sale,priority:1;not null" json:"platform"`
	BuyerInfo JSONObject      `gorm:"type:json" json:"buyer_info,omitempty"`
	SaleDate  time.Time       `gorm:"type:timestamp;not null;index" json:"sale_date"`
	Gross     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"gross_amount"`
	Fees      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"fees"`
	Net       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"net_amount"`
	Extra     JSONObject      `gorm:"type:json" json:"extra,omitempty"`
	CreatedAt time.Time       `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName set name
func (SaleRecord) TableName() string {
	return "sales"
}

// NewSaleRecord builds a sale record. Net is always derived from gross and
// fees here, never accepted from the caller.
func NewSaleRecord(saleID, listingID, platform string, saleDate time.Time, gross, fees decimal.Decimal) *SaleRecord {
	return &SaleRecord{
		SaleID:    saleID,
		ListingID: listingID,
		Platform:  platform,
		SaleDate:  saleDate,
		Gross:     gross,
		Fees:      fees,
		Net:       gross.Sub(fees),
	}
}

// Validate checks required fields and amount invariants.
func (s *SaleRecord) Validate() error {
	if s.SaleID == "" {
		return fmt.Errorf("sale id is required")
	}
	if s.ListingID == "" {
		return fmt.Errorf("listing id is required")
	}
	if s.Platform == "" {
		return fmt.Errorf("platform is required")
	}
	if s.Gross.IsNegative() {
		return fmt.Errorf("gross amount must not be negative")
	}
	if s.Fees.IsNegative() {
		return fmt.Errorf("fees must not be negative")
	}
	if !s.Net.Equal(s.Gross.Sub(s.Fees)) {
		return fmt.Errorf("net amount %s does not equal gross - fees", s.Net)
	}
	return nil
}

// ProfitMargin returns net/gross as a percentage, zero when gross is zero.
func (s *SaleRecord) ProfitMargin() decimal.Decimal {
	if s.Gross.IsZero() {
		return decimal.Zero
	}
	return s.Net.Div(s.Gross).Mul(decimal.NewFromInt(100))
}

// JSONObject custom json object type for opaque platform payloads
type JSONObject map[string]interface{}

// Value implement driver.Valuer interface
func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implement sql.Scanner interface
func (j *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONObject", value)
	}

	return json.Unmarshal(bytes, j)
}
