package events

// Topic constants for domain events emitted by the terminal.
const (
	TopicSaleCompleted = "sale.completed"
	TopicSaleFailed    = "sale.failed"
	TopicPromoApplied  = "promo.applied"
	TopicPromoRemoved  = "promo.removed"
)
