package model

import (
	"fmt"
	"time"
)

// ReferenceEntity names a read-only cache refreshed from the remote system.
type ReferenceEntity string

const (
	RefCustomers  ReferenceEntity = "customers"
	RefPromotions ReferenceEntity = "promotions"
	RefStock      ReferenceEntity = "stock_levels"
)

// ReferenceEntities lists every cache in refresh order.
var ReferenceEntities = []ReferenceEntity{RefCustomers, RefPromotions, RefStock}

// ParseReferenceEntity converts a string into a ReferenceEntity.
func ParseReferenceEntity(s string) (ReferenceEntity, error) {
	for _, e := range ReferenceEntities {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown reference entity %q: must be one of customers, promotions, stock_levels", s)
}

// Customer is a cached projection of a remote customer row.
type Customer struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Points    int64
	Active    bool
	UpdatedAt time.Time
}

// Promotion is a cached promotion with its validity window. Targets and
// FreeProducts are child rows deleted together with the promotion.
type Promotion struct {
	ID           string
	Name         string
	Kind         string // percent, fixed, buy_x_get_y
	Value        int64
	ValidFrom    time.Time
	ValidUntil   *time.Time
	Active       bool
	UpdatedAt    time.Time
	Targets      []PromotionTarget
	FreeProducts []PromotionFreeProduct
}

// Expired reports whether the validity window has lapsed at now.
func (p *Promotion) Expired(now time.Time) bool {
	return p.ValidUntil != nil && p.ValidUntil.Before(now)
}

// PromotionTarget restricts a promotion to a product or a category.
type PromotionTarget struct {
	PromotionID string
	TargetType  string // product, category
	TargetID    string
}

// PromotionFreeProduct is a product granted for free by a promotion.
type PromotionFreeProduct struct {
	PromotionID string
	ProductID   string
	Quantity    int
}

// StockLevel is the cached on-hand quantity of a product at a location.
type StockLevel struct {
	ProductID  string
	LocationID string
	Quantity   int64
	UpdatedAt  time.Time
}

// Key identifies the stock row in the cache.
func (s *StockLevel) Key() string {
	return s.ProductID + "@" + s.LocationID
}

// SyncMetadata records the last refresh of one reference cache.
type SyncMetadata struct {
	Entity      ReferenceEntity `json:"entity"`
	LastSyncAt  time.Time       `json:"last_sync_at"`
	RecordCount int             `json:"record_count"`
}
