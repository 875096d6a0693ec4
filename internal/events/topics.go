package events

// Topic constants for domain events emitted by the platform.
const (
	TopicOrderCreated          = "order.created"
	TopicOrderStatusChanged    = "order.status_changed"
	TopicOrderPricesReconciled = "order.prices_reconciled"
	TopicShippingRatesUpdated  = "shipping.rates_updated"
)

// DefaultTopics returns the canonical list of topics.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderStatusChanged,
		TopicOrderPricesReconciled,
		TopicShippingRatesUpdated,
	}
}
