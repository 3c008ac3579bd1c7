package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/shop-core/internal/domain"
	"github.com/example/shop-core/pkg/metrics"
)

const (
	maxOrderNumberAttempts = 5

	orderCacheTTL = 30 * time.Second
	statsCacheTTL = time.Minute
)

// OrderEngine — транзакционное ядро заказов. Кэш и рассылка — побочные
// эффекты строго после коммита; их сбой не влияет на мутацию.
type OrderEngine struct {
	store domain.Store
	cache domain.Cache
	inv   domain.Invalidator
	notif domain.Notifier
	log   *zap.Logger
	met   *metrics.CoreMetrics

	now func() time.Time
}

func NewOrderEngine(store domain.Store, c domain.Cache, inv domain.Invalidator, notif domain.Notifier, log *zap.Logger, met *metrics.CoreMetrics) *OrderEngine {
	return &OrderEngine{
		store: store,
		cache: c,
		inv:   inv,
		notif: notif,
		log:   log,
		met:   met,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

type NewOrderItem struct {
	ProductID domain.ProductID `json:"product_id"`
	Quantity  int64            `json:"quantity"`
}

type CreateOrderInput struct {
	CustomerID domain.CustomerID `json:"customer_id,omitempty"` // пусто для гостя
	Items      []NewOrderItem    `json:"items"`
	Address    domain.Address    `json:"address"`
	Tax        int64             `json:"tax"`
	Shipping   int64             `json:"shipping"`
	Discount   int64             `json:"discount"`
	Notes      string            `json:"notes,omitempty"`
}

// CreateOrder создаёт заказ атомарно: проверка остатков, списание и
// записи журнала живут в одной транзакции. Номер заказа регенерируется
// при коллизии ограниченное число раз.
func (e *OrderEngine) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: order must have at least one item", domain.ErrValidation)
	}
	for _, it := range in.Items {
		if it.ProductID == "" || it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item quantity must be positive", domain.ErrValidation)
		}
	}

	// стабильный порядок блокировок страхует от взаимных блокировок
	items := make([]NewOrderItem, len(in.Items))
	copy(items, in.Items)
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	var ord *domain.Order
	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		number := generateOrderNumber(e.now())
		var placed *domain.Order
		err := e.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			taken, err := tx.OrderNumberExists(ctx, number)
			if err != nil {
				return err
			}
			if taken {
				return domain.ErrOrderNumberTaken
			}
			o, err := e.placeOrder(ctx, tx, in, items, number)
			if err != nil {
				return err
			}
			placed = o
			return nil
		})
		if errors.Is(err, domain.ErrOrderNumberTaken) {
			// сюда же попадает 23505 на коммите: транзакция откатилась,
			// placed не пережил попытку
			e.log.Warn("order number collision, regenerating", zap.String("number", number), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, err
		}
		ord = placed
		break
	}
	if ord == nil {
		return nil, domain.ErrOrderNumberExhausted
	}

	if e.met != nil {
		e.met.OrdersTotal.WithLabelValues("created").Inc()
	}
	e.afterCommit("create order",
		func() {
			for _, it := range ord.Items {
				e.inv.InvalidateProduct(ctx, it.ProductID)
			}
			e.inv.InvalidateOrder(ctx, ord.ID, ord.CustomerID)
			if ord.CustomerID != "" {
				e.inv.InvalidateCustomer(ctx, ord.CustomerID)
			}
		},
		func() {
			e.notif.NotifyOrderUpdate(domain.NewEvent(domain.EventOrderCreated, orderPayload(ord, "")))
		},
	)
	return ord, nil
}

// placeOrder — тело транзакции создания: валидация остатков до любой
// записи, затем заказ, позиции, журнал и списание.
func (e *OrderEngine) placeOrder(ctx context.Context, tx domain.Tx, in CreateOrderInput, items []NewOrderItem, number string) (*domain.Order, error) {
	now := e.now()
	products := make(map[domain.ProductID]*domain.Product, len(items))
	for _, it := range items {
		p, err := tx.LockProduct(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		if p.StockQuantity < it.Quantity {
			return nil, fmt.Errorf("%w: product %s has %d, need %d",
				domain.ErrInsufficientStock, p.ID, p.StockQuantity, it.Quantity)
		}
		products[it.ProductID] = p
	}

	ord := &domain.Order{
		ID:            domain.OrderID(uuid.NewString()),
		OrderNumber:   number,
		CustomerID:    in.CustomerID,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Tax:           in.Tax,
		Shipping:      in.Shipping,
		Discount:      in.Discount,
		Notes:         in.Notes,
		CreatedAt:     now,
	}
	for _, it := range items {
		p := products[it.ProductID]
		ord.Items = append(ord.Items, domain.OrderItem{
			OrderID:    ord.ID,
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			UnitPrice:  p.Price,
			TotalPrice: p.Price * it.Quantity,
		})
		ord.Subtotal += p.Price * it.Quantity
	}
	ord.Total = ord.Subtotal + ord.Tax + ord.Shipping - ord.Discount

	if err := tx.InsertOrder(ctx, ord); err != nil {
		return nil, err
	}
	addr := in.Address
	addr.ID = uuid.NewString()
	addr.OrderID = ord.ID
	if err := tx.InsertAddress(ctx, &addr); err != nil {
		return nil, err
	}
	for i := range ord.Items {
		it := &ord.Items[i]
		if err := tx.InsertOrderItem(ctx, it); err != nil {
			return nil, err
		}
		p := products[it.ProductID]
		if _, err := e.moveStock(ctx, tx, p, domain.InventorySale, -it.Quantity,
			"order placed", string(ord.ID), now); err != nil {
			return nil, err
		}
	}
	return ord, nil
}

// CancelOrder отменяет заказ из PENDING/CONFIRMED и возвращает остатки
// записями RETURN в той же транзакции.
func (e *OrderEngine) CancelOrder(ctx context.Context, id domain.OrderID, reason string, requestedBy domain.CustomerID) (*domain.Order, error) {
	var ord *domain.Order
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		// покупатель видит только свои заказы
		if requestedBy != "" && o.CustomerID != requestedBy {
			return domain.ErrOrderNotFound
		}
		if !o.Status.IsCancellable() {
			return fmt.Errorf("%w: status %s", domain.ErrOrderNotCancellable, o.Status)
		}

		items := make([]domain.OrderItem, len(o.Items))
		copy(items, o.Items)
		sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
		now := e.now()
		for _, it := range items {
			p, err := tx.LockProduct(ctx, it.ProductID)
			if err != nil {
				return err
			}
			if _, err := e.moveStock(ctx, tx, p, domain.InventoryReturn, it.Quantity,
				"order cancelled", string(o.ID), now); err != nil {
				return err
			}
		}

		o.Status = domain.OrderStatusCancelled
		if o.PaymentStatus == domain.PaymentStatusPaid {
			o.PaymentStatus = domain.PaymentStatusRefunded
		}
		o.Notes = appendNote(o.Notes, "cancelled: "+reason)
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		ord = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.met != nil {
		e.met.OrdersTotal.WithLabelValues("cancelled").Inc()
	}
	e.afterCommit("cancel order",
		func() {
			for _, it := range ord.Items {
				e.inv.InvalidateProduct(ctx, it.ProductID)
			}
			e.inv.InvalidateOrder(ctx, ord.ID, ord.CustomerID)
		},
		func() {
			e.notif.NotifyOrderUpdate(domain.NewEvent(domain.EventOrderCancelled, orderPayload(ord, reason)))
		},
	)
	return ord, nil
}

// UpdateOrderStatus переводит заказ по таблице переходов. Отмена идёт
// только через CancelOrder, иначе остатки не вернутся.
func (e *OrderEngine) UpdateOrderStatus(ctx context.Context, id domain.OrderID, status domain.OrderStatus, notes string) (*domain.Order, error) {
	if !domain.ValidStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, status)
	}
	if status == domain.OrderStatusCancelled {
		return nil, fmt.Errorf("%w: use cancellation, it restores stock", domain.ErrValidation)
	}

	var ord *domain.Order
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !domain.CanTransition(o.Status, status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, o.Status, status)
		}
		now := e.now()
		o.Status = status
		switch status {
		case domain.OrderStatusShipped:
			o.ShippedAt = &now
		case domain.OrderStatusDelivered:
			o.DeliveredAt = &now
		case domain.OrderStatusRefunded:
			o.PaymentStatus = domain.PaymentStatusRefunded
		}
		if notes != "" {
			o.Notes = appendNote(o.Notes, notes)
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		ord = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.afterCommit("update order status",
		func() { e.inv.InvalidateOrder(ctx, ord.ID, ord.CustomerID) },
		func() {
			e.notif.NotifyOrderUpdate(domain.NewEvent(domain.EventOrderStatusChanged, orderPayload(ord, "")))
		},
	)
	return ord, nil
}

// GetOrderByID — чтение через кэш.
func (e *OrderEngine) GetOrderByID(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	var ord domain.Order
	err := e.cache.Remember(ctx, domain.OrderKey(id), orderCacheTTL, &ord,
		func(ctx context.Context) (any, error) {
			return e.store.GetOrder(ctx, id)
		}, domain.OrderTag(id), domain.TagOrders)
	if err != nil {
		return nil, err
	}
	return &ord, nil
}

func (e *OrderEngine) GetOrders(ctx context.Context, q domain.ListOrdersQuery) ([]domain.Order, error) {
	key := listKey(q)
	tags := []string{domain.TagOrders}
	if q.CustomerID != "" {
		tags = append(tags, domain.CustomerTag(q.CustomerID))
	}
	var orders []domain.Order
	err := e.cache.Remember(ctx, key, orderCacheTTL, &orders,
		func(ctx context.Context) (any, error) {
			return e.store.ListOrders(ctx, q)
		}, tags...)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// GetOrderStatistics — агрегаты; выручка не учитывает отменённые заказы.
func (e *OrderEngine) GetOrderStatistics(ctx context.Context, customerID domain.CustomerID) (*domain.OrderStatistics, error) {
	tags := []string{domain.TagOrders}
	if customerID != "" {
		tags = append(tags, domain.CustomerTag(customerID))
	}
	var st domain.OrderStatistics
	err := e.cache.Remember(ctx, domain.StatsKey(customerID), statsCacheTTL, &st,
		func(ctx context.Context) (any, error) {
			return e.store.OrderStatistics(ctx, customerID)
		}, tags...)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// moveStock — единственный путь изменения остатка: журнал и счётчик
// пишутся вместе, под уже взятой блокировкой строки товара.
func (e *OrderEngine) moveStock(ctx context.Context, tx domain.Tx, p *domain.Product, t domain.InventoryLogType, delta int64, reason, reference string, now time.Time) (*domain.InventoryLogEntry, error) {
	newQty := p.StockQuantity + delta
	if newQty < 0 {
		return nil, fmt.Errorf("%w: product %s has %d, delta %d", domain.ErrInsufficientStock, p.ID, p.StockQuantity, delta)
	}
	entry := &domain.InventoryLogEntry{
		ID:          uuid.NewString(),
		ProductID:   p.ID,
		Type:        t,
		Delta:       delta,
		Reason:      reason,
		Reference:   reference,
		OldQuantity: p.StockQuantity,
		NewQuantity: newQty,
		CreatedAt:   now,
	}
	if err := tx.AppendInventoryLog(ctx, entry); err != nil {
		return nil, err
	}
	if err := tx.SetProductStock(ctx, p.ID, newQty); err != nil {
		return nil, err
	}
	p.StockQuantity = newQty
	return entry, nil
}

// afterCommit выполняет best-effort хуки; паника или ошибка хука только
// логируется и никогда не всплывает к вызывающему.
func (e *OrderEngine) afterCommit(op string, hooks ...func()) {
	for _, h := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("post-commit hook panicked", zap.String("op", op), zap.Any("panic", r))
				}
			}()
			h()
		}()
	}
}

func orderPayload(o *domain.Order, reason string) domain.OrderEventPayload {
	return domain.OrderEventPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID,
		Status:      o.Status,
		Total:       o.Total,
		Reason:      reason,
	}
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}

func listKey(q domain.ListOrdersQuery) string {
	return fmt.Sprintf("orders:list:%s:%s:%d:%d", q.CustomerID, q.Status, q.Limit, q.Offset)
}

// generateOrderNumber — метка времени плюс случайный хвост; уникальность
// гарантирует ограничение в БД, коллизия лечится регенерацией.
func generateOrderNumber(now time.Time) string {
	ts := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	return fmt.Sprintf("ORD-%s-%04X", ts, rand.Intn(0x10000))
}
