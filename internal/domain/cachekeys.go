package domain

// Ключи и теги кэшируемых представлений. Чтения регистрируют теги через
// Cache.Remember, мутации снимают их через Invalidator.
const (
	TagProducts = "products"
	TagOrders   = "orders"
)

func ProductKey(id ProductID) string { return "product:" + string(id) }
func ProductTag(id ProductID) string { return "product:" + string(id) }

func OrderKey(id OrderID) string { return "order:" + string(id) }
func OrderTag(id OrderID) string { return "order:" + string(id) }

func CustomerTag(id CustomerID) string { return "customer:" + string(id) }

func StatsKey(id CustomerID) string {
	if id == "" {
		return "orders:stats"
	}
	return "orders:stats:" + string(id)
}
