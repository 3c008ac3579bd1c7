package domain

import "time"

type OrderID string
type ProductID string
type CustomerID string

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// Order — заказ. Все суммы в минимальных единицах (копейки/центы).
type Order struct {
	ID            OrderID       `json:"id"`
	OrderNumber   string        `json:"order_number"`
	CustomerID    CustomerID    `json:"customer_id,omitempty"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Subtotal      int64         `json:"subtotal"`
	Tax           int64         `json:"tax"`
	Shipping      int64         `json:"shipping"`
	Discount      int64         `json:"discount"`
	Total         int64         `json:"total"`
	Notes         string        `json:"notes,omitempty"`
	Items         []OrderItem   `json:"items,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	ShippedAt     *time.Time    `json:"shipped_at,omitempty"`
	DeliveredAt   *time.Time    `json:"delivered_at,omitempty"`
}

type OrderItem struct {
	OrderID    OrderID   `json:"order_id"`
	ProductID  ProductID `json:"product_id"`
	Quantity   int64     `json:"quantity"`
	UnitPrice  int64     `json:"unit_price"`
	TotalPrice int64     `json:"total_price"`
}

// Address — адрес доставки, сохраняется в той же транзакции, что и заказ.
type Address struct {
	ID         string  `json:"id"`
	OrderID    OrderID `json:"order_id"`
	Recipient  string  `json:"recipient"`
	Line1      string  `json:"line1"`
	Line2      string  `json:"line2,omitempty"`
	City       string  `json:"city"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
}

// orderTransitions — допустимые переходы статуса заказа.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusRefunded},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusRefunded},
}

// CanTransition — разрешён ли переход from -> to.
func CanTransition(from, to OrderStatus) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal — терминальный статус, из него переходов нет.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled || s == OrderStatusRefunded
}

// IsCancellable — отменить можно только до начала обработки.
func (s OrderStatus) IsCancellable() bool {
	return s == OrderStatusPending || s == OrderStatusConfirmed
}

// ValidStatus — известный ли это статус вообще.
func ValidStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// OrderStatistics — агрегаты по заказам; выручка не учитывает отменённые.
type OrderStatistics struct {
	TotalOrders     int64                 `json:"total_orders"`
	OrdersByStatus  map[OrderStatus]int64 `json:"orders_by_status"`
	TotalRevenue    int64                 `json:"total_revenue"`
	AverageOrder    int64                 `json:"average_order"`
	CancelledOrders int64                 `json:"cancelled_orders"`
}

// ListOrdersQuery — параметры выборки заказов.
type ListOrdersQuery struct {
	CustomerID CustomerID
	Status     OrderStatus
	Limit      int
	Offset     int
}
