package domain

import "time"

type InventoryLogType string

const (
	InventorySale       InventoryLogType = "SALE"
	InventoryReturn     InventoryLogType = "RETURN"
	InventoryAdjustment InventoryLogType = "ADJUSTMENT"
	InventoryStockIn    InventoryLogType = "STOCK_IN"
	InventoryStockOut   InventoryLogType = "STOCK_OUT"
)

// Product.StockQuantity — единственный авторитетный счётчик остатка.
type Product struct {
	ID            ProductID `json:"id"`
	Name          string    `json:"name"`
	Price         int64     `json:"price"`
	StockQuantity int64     `json:"stock_quantity"`
}

// InventoryLogEntry — запись журнала движения остатков, append-only.
// Инвариант: NewQuantity = OldQuantity + Delta.
type InventoryLogEntry struct {
	ID          string           `json:"id"`
	ProductID   ProductID        `json:"product_id"`
	Type        InventoryLogType `json:"type"`
	Delta       int64            `json:"delta"`
	Reason      string           `json:"reason,omitempty"`
	Reference   string           `json:"reference,omitempty"`
	OldQuantity int64            `json:"old_quantity"`
	NewQuantity int64            `json:"new_quantity"`
	CreatedAt   time.Time        `json:"created_at"`
}

// ValidLogType — известный ли тип движения.
func ValidLogType(t InventoryLogType) bool {
	switch t {
	case InventorySale, InventoryReturn, InventoryAdjustment, InventoryStockIn, InventoryStockOut:
		return true
	}
	return false
}

// DeltaSignOK — знак дельты согласован с типом движения.
// ADJUSTMENT допускает любой знак.
func DeltaSignOK(t InventoryLogType, delta int64) bool {
	switch t {
	case InventorySale, InventoryStockOut:
		return delta < 0
	case InventoryReturn, InventoryStockIn:
		return delta > 0
	case InventoryAdjustment:
		return delta != 0
	}
	return false
}
