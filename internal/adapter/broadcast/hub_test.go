package broadcast

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/shop-core/internal/domain"
)

type fakeClient struct {
	id       string
	identity Identity
	events   chan Envelope
	full     bool
	closed   atomic.Bool
}

func newFakeClient(id string, identity Identity) *fakeClient {
	return &fakeClient{id: id, identity: identity, events: make(chan Envelope, 16)}
}

func (c *fakeClient) ID() string         { return c.id }
func (c *fakeClient) Identity() Identity { return c.identity }
func (c *fakeClient) Close()             { c.closed.Store(true) }

func (c *fakeClient) Deliver(env Envelope) bool {
	if c.full {
		return false
	}
	c.events <- env
	return true
}

func (c *fakeClient) waitEvent(t *testing.T) Envelope {
	t.Helper()
	select {
	case env := <-c.events:
		return env
	case <-time.After(time.Second):
		t.Fatalf("client %s: no event within 1s", c.id)
		return Envelope{}
	}
}

func (c *fakeClient) assertNoEvent(t *testing.T) {
	t.Helper()
	select {
	case env := <-c.events:
		t.Fatalf("client %s: unexpected event %s", c.id, env.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(zap.NewNop(), nil)
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go h.Run(stop)
	return h
}

func orderEvent(orderID domain.OrderID, customerID domain.CustomerID) domain.Event {
	return domain.NewEvent(domain.EventOrderCreated, domain.OrderEventPayload{
		OrderID:    orderID,
		CustomerID: customerID,
		Status:     domain.OrderStatusPending,
	})
}

func TestEmitToRoomReachesOnlyMembers(t *testing.T) {
	h := startHub(t)

	admin := newFakeClient("admin-1", Identity{Admin: true})
	customer := newFakeClient("cust-1", Identity{CustomerID: "c1"})
	h.Register(admin)
	h.Register(customer)
	h.Join(admin.id, RoomAdmin)
	h.Join(customer.id, CustomerRoom("c1"))

	h.EmitToAdmin(domain.NewEvent(domain.EventSystemUpdate, domain.SystemEventPayload{Message: "hi"}))

	if env := admin.waitEvent(t); env.Type != domain.EventSystemUpdate {
		t.Errorf("admin got %s, want %s", env.Type, domain.EventSystemUpdate)
	}
	customer.assertNoEvent(t)
}

func TestNotifyOrderUpdateFanOut(t *testing.T) {
	h := startHub(t)

	admin := newFakeClient("admin-1", Identity{Admin: true})
	owner := newFakeClient("cust-1", Identity{CustomerID: "c1"})
	watcher := newFakeClient("watch-1", Identity{CustomerID: "c1"})
	other := newFakeClient("cust-2", Identity{CustomerID: "c2"})
	for _, c := range []*fakeClient{admin, owner, watcher, other} {
		h.Register(c)
	}
	h.Join(admin.id, RoomAdmin)
	h.Join(owner.id, CustomerRoom("c1"))
	h.Join(watcher.id, OrderRoom("o1"))
	h.Join(other.id, CustomerRoom("c2"))

	h.NotifyOrderUpdate(orderEvent("o1", "c1"))

	admin.waitEvent(t)
	owner.waitEvent(t)
	watcher.waitEvent(t)
	other.assertNoEvent(t)
}

func TestNotifyProductUpdateVisibility(t *testing.T) {
	h := startHub(t)

	admin := newFakeClient("admin-1", Identity{Admin: true})
	customer := newFakeClient("cust-1", Identity{CustomerID: "c1"})
	h.Register(admin)
	h.Register(customer)
	h.Join(admin.id, RoomAdmin)

	// публичное событие уходит всем подключённым
	h.NotifyProductUpdate(domain.NewEvent(domain.EventProductInventoryUpdated,
		domain.ProductEventPayload{ProductID: "p1", StockQuantity: 3}))
	admin.waitEvent(t)
	customer.waitEvent(t)

	// удаление видят только админы
	h.NotifyProductUpdate(domain.NewEvent(domain.EventProductDeleted,
		domain.ProductEventPayload{ProductID: "p1"}))
	if env := admin.waitEvent(t); env.Type != domain.EventProductDeleted {
		t.Errorf("admin got %s, want %s", env.Type, domain.EventProductDeleted)
	}
	customer.assertNoEvent(t)
}

func TestNotifySystemUpdateAdminFlag(t *testing.T) {
	h := startHub(t)

	admin := newFakeClient("admin-1", Identity{Admin: true})
	customer := newFakeClient("cust-1", Identity{CustomerID: "c1"})
	h.Register(admin)
	h.Register(customer)
	h.Join(admin.id, RoomAdmin)

	h.NotifySystemUpdate(domain.NewEvent(domain.EventSystemUpdate,
		domain.SystemEventPayload{Message: "maintenance"}), true)
	admin.waitEvent(t)
	customer.assertNoEvent(t)

	h.NotifySystemUpdate(domain.NewEvent(domain.EventSystemUpdate,
		domain.SystemEventPayload{Message: "for everyone"}), false)
	admin.waitEvent(t)
	customer.waitEvent(t)
}

func TestCountsAndRoomInfo(t *testing.T) {
	h := startHub(t)

	admin := newFakeClient("admin-1", Identity{Admin: true})
	customer := newFakeClient("cust-1", Identity{CustomerID: "c1"})
	h.Register(admin)
	h.Register(customer)
	h.Join(admin.id, RoomAdmin)
	h.Join(customer.id, CustomerRoom("c1"))

	if got := h.ConnectedClientsCount(); got != 2 {
		t.Errorf("ConnectedClientsCount() = %d, want 2", got)
	}
	if got := h.AdminClientsCount(); got != 1 {
		t.Errorf("AdminClientsCount() = %d, want 1", got)
	}

	info := h.RoomInfo()
	if len(info[RoomAdmin]) != 1 || info[RoomAdmin][0] != admin.id {
		t.Errorf("RoomInfo()[admin] = %v, want [%s]", info[RoomAdmin], admin.id)
	}
	if len(info[CustomerRoom("c1")]) != 1 {
		t.Errorf("RoomInfo()[customer:c1] = %v, want one member", info[CustomerRoom("c1")])
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	h := startHub(t)

	slow := newFakeClient("slow-1", Identity{CustomerID: "c1"})
	slow.full = true
	h.Register(slow)
	h.Join(slow.id, CustomerRoom("c1"))

	h.EmitToCustomer("c1", orderEvent("o1", "c1"))

	deadline := time.Now().Add(time.Second)
	for h.ConnectedClientsCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("slow client was not dropped within 1s")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !slow.closed.Load() {
		t.Error("dropped client was not closed; its connection would hang silently")
	}
}

func TestNotifyCustomerUpdateFanOut(t *testing.T) {
	h := startHub(t)

	admin := newFakeClient("admin-1", Identity{Admin: true})
	customer := newFakeClient("cust-1", Identity{CustomerID: "c1"})
	other := newFakeClient("cust-2", Identity{CustomerID: "c2"})
	for _, c := range []*fakeClient{admin, customer, other} {
		h.Register(c)
	}
	h.Join(admin.id, RoomAdmin)
	h.Join(customer.id, CustomerRoom("c1"))
	h.Join(other.id, CustomerRoom("c2"))

	h.NotifyCustomerUpdate(domain.NewEvent(domain.EventCustomerUpdated,
		domain.CustomerEventPayload{CustomerID: "c1", Change: "address"}))

	if env := admin.waitEvent(t); env.Type != domain.EventCustomerUpdated {
		t.Errorf("admin got %s, want %s", env.Type, domain.EventCustomerUpdated)
	}
	if env := customer.waitEvent(t); env.Type != domain.EventCustomerUpdated {
		t.Errorf("customer got %s, want %s", env.Type, domain.EventCustomerUpdated)
	}
	other.assertNoEvent(t)
}

func TestLeaveStopsDelivery(t *testing.T) {
	h := startHub(t)

	c := newFakeClient("cust-1", Identity{CustomerID: "c1"})
	h.Register(c)
	h.Join(c.id, OrderRoom("o1"))
	h.EmitToOrder("o1", orderEvent("o1", "c1"))
	c.waitEvent(t)

	h.Leave(c.id, OrderRoom("o1"))
	h.EmitToOrder("o1", orderEvent("o1", "c1"))
	c.assertNoEvent(t)
}

func TestAuthorizerCanJoin(t *testing.T) {
	owner := func(ctx context.Context, id domain.OrderID) (domain.CustomerID, error) {
		if id == "o1" {
			return "c1", nil
		}
		return "", domain.ErrOrderNotFound
	}
	auth := Authorizer{OrderOwner: owner}
	ctx := context.Background()

	tests := []struct {
		name     string
		identity Identity
		room     string
		wantErr  bool
	}{
		{"admin joins admin", Identity{Admin: true}, RoomAdmin, false},
		{"admin joins any order", Identity{Admin: true}, OrderRoom("o9"), false},
		{"customer denied admin room", Identity{CustomerID: "c1"}, RoomAdmin, true},
		{"customer joins own room", Identity{CustomerID: "c1"}, CustomerRoom("c1"), false},
		{"customer denied foreign room", Identity{CustomerID: "c1"}, CustomerRoom("c2"), true},
		{"owner joins own order", Identity{CustomerID: "c1"}, OrderRoom("o1"), false},
		{"stranger denied order", Identity{CustomerID: "c2"}, OrderRoom("o1"), true},
		{"guest denied order", Identity{}, OrderRoom("o1"), true},
		{"customer denied service room", Identity{CustomerID: "c1"}, ServiceRoom("s1"), true},
		{"unknown room shape", Identity{CustomerID: "c1"}, "lobby", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.CanJoin(ctx, tt.identity, tt.room)
			if (err != nil) != tt.wantErr {
				t.Errorf("CanJoin(%v, %s) error = %v, wantErr %v", tt.identity, tt.room, err, tt.wantErr)
			}
		})
	}
}
