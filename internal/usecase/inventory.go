package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/shop-core/internal/domain"
)

// AdjustInventory — явная корректировка остатка вне заказа
// (ADJUSTMENT/STOCK_IN/STOCK_OUT) с той же дисциплиной: блокировка
// строки, запись журнала и новый счётчик в одной транзакции.
func (e *OrderEngine) AdjustInventory(ctx context.Context, productID domain.ProductID, t domain.InventoryLogType, delta int64, reason, reference string) (*domain.InventoryLogEntry, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: product id required", domain.ErrValidation)
	}
	if !domain.ValidLogType(t) || t == domain.InventorySale || t == domain.InventoryReturn {
		return nil, fmt.Errorf("%w: log type %q not allowed for manual adjustment", domain.ErrValidation, t)
	}
	if !domain.DeltaSignOK(t, delta) {
		return nil, fmt.Errorf("%w: delta %d does not match type %s", domain.ErrValidation, delta, t)
	}

	var entry *domain.InventoryLogEntry
	var newQty int64
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		p, err := tx.LockProduct(ctx, productID)
		if err != nil {
			return err
		}
		logged, err := e.moveStock(ctx, tx, p, t, delta, reason, reference, e.now())
		if err != nil {
			return err
		}
		entry = logged
		newQty = p.StockQuantity
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.afterCommit("adjust inventory",
		func() { e.inv.InvalidateProduct(ctx, productID) },
		func() {
			e.notif.NotifyProductUpdate(domain.NewEvent(domain.EventProductInventoryUpdated,
				domain.ProductEventPayload{ProductID: productID, StockQuantity: newQty}))
		},
	)
	return entry, nil
}

// GetInventoryLog — журнал движений товара для аудита.
func (e *OrderEngine) GetInventoryLog(ctx context.Context, productID domain.ProductID, limit int) ([]domain.InventoryLogEntry, error) {
	return e.store.ListInventoryLog(ctx, productID, limit)
}

// StockMessage — входящее сообщение корректировки остатка (STAN intake).
type StockMessage struct {
	ProductID string `json:"product_id"`
	Type      string `json:"type"`
	Delta     int64  `json:"delta"`
	Reason    string `json:"reason,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// HandleStockMessage — обработчик подписки. Невалидные сообщения
// подтверждаются и отбрасываются, инфраструктурные ошибки ведут к
// переотправке.
func (e *OrderEngine) HandleStockMessage(ctx context.Context, raw []byte) error {
	var msg StockMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		e.log.Warn("invalid stock message", zap.Error(err))
		return nil
	}
	t := domain.InventoryLogType(msg.Type)
	if msg.Type == "" {
		t = domain.InventoryAdjustment
	}
	_, err := e.AdjustInventory(ctx, domain.ProductID(msg.ProductID), t, msg.Delta, msg.Reason, msg.Reference)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrProductNotFound) || errors.Is(err, domain.ErrInsufficientStock) {
			e.log.Warn("stock message rejected", zap.String("product_id", msg.ProductID), zap.Error(err))
			return nil
		}
		return err
	}
	return nil
}
