package cache

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/shop-core/internal/domain"
)

// Инвалидация идёт по тегам из domain (ProductTag, OrderTag, CustomerTag);
// мутации снимают тег целиком, какие бы ключи он ни накрывал.

func (c *Layered) InvalidateProduct(ctx context.Context, id domain.ProductID) {
	if err := c.DeleteByTags(ctx, domain.ProductTag(id), domain.TagProducts); err != nil {
		c.log.Warn("product cache invalidation failed", zap.String("product_id", string(id)), zap.Error(err))
	}
}

func (c *Layered) InvalidateOrder(ctx context.Context, id domain.OrderID, customerID domain.CustomerID) {
	tags := []string{domain.OrderTag(id), domain.TagOrders}
	if customerID != "" {
		tags = append(tags, domain.CustomerTag(customerID))
	}
	if err := c.DeleteByTags(ctx, tags...); err != nil {
		c.log.Warn("order cache invalidation failed", zap.String("order_id", string(id)), zap.Error(err))
	}
}

func (c *Layered) InvalidateCustomer(ctx context.Context, id domain.CustomerID) {
	if err := c.DeleteByTags(ctx, domain.CustomerTag(id)); err != nil {
		c.log.Warn("customer cache invalidation failed", zap.String("customer_id", string(id)), zap.Error(err))
	}
}

var _ domain.Invalidator = (*Layered)(nil)
