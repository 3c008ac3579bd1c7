package broadcast

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/example/shop-core/internal/domain"
)

// NotifyOrderUpdate — админам, в комнату заказа и, если известен
// покупатель, в его комнату.
func (h *Hub) NotifyOrderUpdate(ev domain.Event) {
	p, ok := ev.Payload.(domain.OrderEventPayload)
	if !ok {
		h.badPayload(ev)
		return
	}
	rooms := []string{RoomAdmin, OrderRoom(p.OrderID)}
	if p.CustomerID != "" {
		rooms = append(rooms, CustomerRoom(p.CustomerID))
	}
	h.send(rooms, false, ev)
}

// NotifyProductUpdate — админам всегда; всем клиентам только публичное
// подмножество (создание, изменение, движение остатков). Удаления
// остаются админскими.
func (h *Hub) NotifyProductUpdate(ev domain.Event) {
	if _, ok := ev.Payload.(domain.ProductEventPayload); !ok {
		h.badPayload(ev)
		return
	}
	switch ev.Type {
	case domain.EventProductCreated, domain.EventProductUpdated, domain.EventProductInventoryUpdated:
		h.send(nil, true, ev)
	default:
		h.send([]string{RoomAdmin}, false, ev)
	}
}

func (h *Hub) NotifyCustomerUpdate(ev domain.Event) {
	p, ok := ev.Payload.(domain.CustomerEventPayload)
	if !ok {
		h.badPayload(ev)
		return
	}
	h.send([]string{RoomAdmin, CustomerRoom(p.CustomerID)}, false, ev)
}

func (h *Hub) NotifyServiceRequestUpdate(ev domain.Event) {
	p, ok := ev.Payload.(domain.ServiceRequestEventPayload)
	if !ok {
		h.badPayload(ev)
		return
	}
	h.send([]string{RoomAdmin, ServiceRoom(p.ServiceRequestID)}, false, ev)
}

func (h *Hub) NotifySystemUpdate(ev domain.Event, adminOnly bool) {
	if _, ok := ev.Payload.(domain.SystemEventPayload); !ok {
		h.badPayload(ev)
		return
	}
	if adminOnly {
		h.send([]string{RoomAdmin}, false, ev)
		return
	}
	h.send(nil, true, ev)
}

func (h *Hub) badPayload(ev domain.Event) {
	h.log.Error("event payload does not match notification kind", zap.String("type", string(ev.Type)))
}

var _ domain.Notifier = (*Hub)(nil)

// OrderOwnerFunc — поиск владельца заказа для авторизации подписки.
type OrderOwnerFunc func(ctx context.Context, id domain.OrderID) (domain.CustomerID, error)

// Authorizer проверяет право соединения войти в комнату. Исходная
// реализация пускала кого угодно куда угодно; здесь вход закрыт.
type Authorizer struct {
	OrderOwner OrderOwnerFunc
}

func (a Authorizer) CanJoin(ctx context.Context, id Identity, room string) error {
	if id.Admin {
		return nil
	}
	switch {
	case room == RoomAdmin:
		return domain.ErrForbidden
	case strings.HasPrefix(room, "customer:"):
		if id.CustomerID != "" && room == CustomerRoom(id.CustomerID) {
			return nil
		}
		return domain.ErrForbidden
	case strings.HasPrefix(room, "order:"):
		if id.CustomerID == "" || a.OrderOwner == nil {
			return domain.ErrForbidden
		}
		owner, err := a.OrderOwner(ctx, domain.OrderID(strings.TrimPrefix(room, "order:")))
		if err != nil {
			return err
		}
		if owner == id.CustomerID {
			return nil
		}
		return domain.ErrForbidden
	case strings.HasPrefix(room, "service:"):
		return domain.ErrForbidden
	}
	return domain.ErrValidation
}
