package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"crosslister/internal/model"
	"crosslister/internal/repository"
	"crosslister/internal/service/sales"
	"crosslister/pkg/lock"
	"crosslister/pkg/log"
	"crosslister/pkg/queue"
)

// SaleConsumer applies recorded sales to stored listings: each sale decrements
// the listing's quantity, and a listing that sells out is marked sold.
type SaleConsumer struct {
	listings repository.ListingRepository
	locker   *lock.ListingLocker
	events   queue.Queue
	stopCh   chan struct{}
}

// NewSaleConsumer creates a sale consumer
func NewSaleConsumer(listings repository.ListingRepository, locker *lock.ListingLocker, events queue.Queue) *SaleConsumer {
	return &SaleConsumer{
		listings: listings,
		locker:   locker,
		events:   events,
		stopCh:   make(chan struct{}),
	}
}

// Start subscribes to sale events
func (c *SaleConsumer) Start(ctx context.Context) error {
	log.Info("Starting sale consumer")

	return c.events.Subscribe(ctx, sales.TopicSaleRecorded, func(ctx context.Context, topic string, message []byte) error {
		select {
		case <-c.stopCh:
			return nil
		default:
		}

		if err := c.handleSale(ctx, message); err != nil {
			log.WithError(err).Error("Failed to process sale event")
			return err
		}
		return nil
	})
}

// Stop stops the consumer
func (c *SaleConsumer) Stop() {
	close(c.stopCh)
}

func (c *SaleConsumer) handleSale(ctx context.Context, message []byte) error {
	var sale model.SaleRecord
	if err := json.Unmarshal(message, &sale); err != nil {
		return fmt.Errorf("decode sale event: %w", err)
	}
	if sale.ListingID == "" {
		return fmt.Errorf("sale event without listing id")
	}

	release, err := c.locker.Acquire(ctx, sale.ListingID)
	if err != nil {
		return err
	}
	defer release()

	listing, err := c.listings.GetByID(ctx, sale.ListingID)
	if err != nil {
		// The sale may reference inventory this instance never stored.
		log.WithFields(map[string]interface{}{
			"listing_id": sale.ListingID,
			"platform":   sale.Platform,
			"sale_id":    sale.SaleID,
		}).Warn("Sale for unknown listing ignored")
		return nil
	}

	if listing.Quantity > 0 {
		listing.Quantity--
	}
	if listing.Quantity == 0 && listing.Status == model.ListingStatusActive {
		listing.Status = model.ListingStatusSold
	}

	if err := c.listings.Save(ctx, listing); err != nil {
		return fmt.Errorf("save listing %s: %w", sale.ListingID, err)
	}

	log.WithFields(map[string]interface{}{
		"listing_id": listing.ID,
		"platform":   sale.Platform,
		"sale_id":    sale.SaleID,
		"quantity":   listing.Quantity,
	}).Info("Sale applied to listing")
	return nil
}
