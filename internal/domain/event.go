package domain

import "time"

type EventType string

const (
	EventOrderCreated       EventType = "order_created"
	EventOrderCancelled     EventType = "order_cancelled"
	EventOrderStatusChanged EventType = "order_status_changed"

	EventProductCreated          EventType = "product_created"
	EventProductUpdated          EventType = "product_updated"
	EventProductInventoryUpdated EventType = "product_inventory_updated"
	EventProductDeleted          EventType = "product_deleted"

	EventCustomerUpdated       EventType = "customer_updated"
	EventServiceRequestUpdated EventType = "service_request_updated"
	EventSystemUpdate          EventType = "system_update"
)

// EventPayload — закрытое объединение полезных нагрузок событий.
// Потребители разбирают его исчерпывающим type switch.
type EventPayload interface {
	isEventPayload()
}

type OrderEventPayload struct {
	OrderID     OrderID     `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	CustomerID  CustomerID  `json:"customer_id,omitempty"`
	Status      OrderStatus `json:"status"`
	Total       int64       `json:"total"`
	Reason      string      `json:"reason,omitempty"`
}

type ProductEventPayload struct {
	ProductID     ProductID `json:"product_id"`
	Name          string    `json:"name,omitempty"`
	StockQuantity int64     `json:"stock_quantity"`
}

type CustomerEventPayload struct {
	CustomerID CustomerID `json:"customer_id"`
	Change     string     `json:"change,omitempty"`
}

type ServiceRequestEventPayload struct {
	ServiceRequestID string     `json:"service_request_id"`
	CustomerID       CustomerID `json:"customer_id,omitempty"`
	Status           string     `json:"status,omitempty"`
}

type SystemEventPayload struct {
	Message  string `json:"message"`
	Severity string `json:"severity,omitempty"`
}

func (OrderEventPayload) isEventPayload()          {}
func (ProductEventPayload) isEventPayload()        {}
func (CustomerEventPayload) isEventPayload()       {}
func (ServiceRequestEventPayload) isEventPayload() {}
func (SystemEventPayload) isEventPayload()         {}

// Event — типизированное доменное событие.
type Event struct {
	Type    EventType
	Payload EventPayload
	At      time.Time
}

func NewEvent(t EventType, p EventPayload) Event {
	return Event{Type: t, Payload: p, At: time.Now().UTC()}
}
