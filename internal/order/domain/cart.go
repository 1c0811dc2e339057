package domain

// CartSnapshot is a read-only view of a user's cart fetched from the cart
// service. The saga never mutates it; clearing the cart is a separate call.
type CartSnapshot struct {
	UserID string
	Items  []CartItem
}

type CartItem struct {
	ProductID       string
	Quantity        int
	PriceAtAddCents int64
}

func (c CartSnapshot) Empty() bool { return len(c.Items) == 0 }

// OrderItems converts the snapshot into order line items, preserving the
// cart order. The saga applies stock adjustments in exactly this order and
// compensates in reverse.
func (c CartSnapshot) OrderItems() []OrderItem {
	items := make([]OrderItem, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, OrderItem{
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			PriceCents: it.PriceAtAddCents,
		})
	}
	return items
}
