package domain

import (
	"context"
	"time"
)

// Store — порт персистентности заказов и остатков.
type Store interface {
	// WithinTx выполняет fn в одной транзакции; при ошибке — полный откат.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetOrder(ctx context.Context, id OrderID) (*Order, error)
	ListOrders(ctx context.Context, q ListOrdersQuery) ([]Order, error)
	OrderStatistics(ctx context.Context, customerID CustomerID) (*OrderStatistics, error)
	ListInventoryLog(ctx context.Context, productID ProductID, limit int) ([]InventoryLogEntry, error)
	// OrderOwner — владелец заказа; используется при авторизации подписок.
	OrderOwner(ctx context.Context, id OrderID) (CustomerID, error)
}

// Tx — операции внутри открытой транзакции.
type Tx interface {
	// LockProduct блокирует строку товара (FOR UPDATE) до конца транзакции.
	LockProduct(ctx context.Context, id ProductID) (*Product, error)
	SetProductStock(ctx context.Context, id ProductID, qty int64) error
	AppendInventoryLog(ctx context.Context, e *InventoryLogEntry) error
	OrderNumberExists(ctx context.Context, number string) (bool, error)
	InsertOrder(ctx context.Context, o *Order) error
	InsertOrderItem(ctx context.Context, it *OrderItem) error
	InsertAddress(ctx context.Context, a *Address) error
	GetOrderForUpdate(ctx context.Context, id OrderID) (*Order, error)
	UpdateOrder(ctx context.Context, o *Order) error
}

// CacheStats — счётчики кэша.
type CacheStats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// Cache — порт многоуровневого read-through кэша.
type Cache interface {
	// Remember возвращает кэшированное значение в dest, иначе вычисляет
	// его через loader, сохраняет и возвращает.
	Remember(ctx context.Context, key string, ttl time.Duration, dest any, loader func(context.Context) (any, error), tags ...string) error
	Set(ctx context.Context, key string, value any, ttl time.Duration, tags ...string) error
	Get(ctx context.Context, key string, dest any) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	DeleteByTags(ctx context.Context, tags ...string) error
	Clear(ctx context.Context) error
	CleanExpired(ctx context.Context) error
	Stats() CacheStats
}

// Invalidator — точечная инвалидация производных представлений.
// Все методы best-effort: ошибки логируются и не возвращаются.
type Invalidator interface {
	InvalidateProduct(ctx context.Context, id ProductID)
	InvalidateOrder(ctx context.Context, id OrderID, customerID CustomerID)
	InvalidateCustomer(ctx context.Context, id CustomerID)
}

// Notifier — рассылка доменных событий по комнатам. Fire-and-forget.
type Notifier interface {
	NotifyOrderUpdate(ev Event)
	NotifyProductUpdate(ev Event)
	NotifyCustomerUpdate(ev Event)
	NotifyServiceRequestUpdate(ev Event)
	NotifySystemUpdate(ev Event, adminOnly bool)
}

// MessageSubscriber — порт подписчика на входящие сообщения.
type MessageSubscriber interface {
	// Subscribe регистрирует обработчик; ack/повторные доставки реализует адаптер.
	Subscribe(ctx context.Context, handler func(ctx context.Context, raw []byte) error) error
}
