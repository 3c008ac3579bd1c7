package domain

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{"pending to confirmed", OrderStatusPending, OrderStatusConfirmed, true},
		{"pending to cancelled", OrderStatusPending, OrderStatusCancelled, true},
		{"pending to shipped", OrderStatusPending, OrderStatusShipped, false},
		{"confirmed to processing", OrderStatusConfirmed, OrderStatusProcessing, true},
		{"confirmed to delivered", OrderStatusConfirmed, OrderStatusDelivered, false},
		{"processing to shipped", OrderStatusProcessing, OrderStatusShipped, true},
		{"processing to cancelled", OrderStatusProcessing, OrderStatusCancelled, false},
		{"shipped to delivered", OrderStatusShipped, OrderStatusDelivered, true},
		{"shipped to refunded", OrderStatusShipped, OrderStatusRefunded, true},
		{"delivered is terminal", OrderStatusDelivered, OrderStatusRefunded, false},
		{"cancelled is terminal", OrderStatusCancelled, OrderStatusConfirmed, false},
		{"refunded is terminal", OrderStatusRefunded, OrderStatusPending, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestIsCancellable(t *testing.T) {
	cancellable := map[OrderStatus]bool{
		OrderStatusPending:    true,
		OrderStatusConfirmed:  true,
		OrderStatusProcessing: false,
		OrderStatusShipped:    false,
		OrderStatusDelivered:  false,
		OrderStatusCancelled:  false,
		OrderStatusRefunded:   false,
	}
	for status, want := range cancellable {
		if got := status.IsCancellable(); got != want {
			t.Errorf("%s.IsCancellable() = %v, want %v", status, got, want)
		}
	}
}

func TestDeltaSignOK(t *testing.T) {
	tests := []struct {
		typ   InventoryLogType
		delta int64
		want  bool
	}{
		{InventorySale, -2, true},
		{InventorySale, 2, false},
		{InventoryReturn, 2, true},
		{InventoryReturn, -2, false},
		{InventoryStockIn, 10, true},
		{InventoryStockOut, -10, true},
		{InventoryStockOut, 10, false},
		{InventoryAdjustment, -1, true},
		{InventoryAdjustment, 1, true},
		{InventoryAdjustment, 0, false},
	}
	for _, tt := range tests {
		if got := DeltaSignOK(tt.typ, tt.delta); got != tt.want {
			t.Errorf("DeltaSignOK(%s, %d) = %v, want %v", tt.typ, tt.delta, got, tt.want)
		}
	}
}
