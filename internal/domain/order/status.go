package order

// Status is the fulfilment lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusReturned   Status = "returned"
)

// PaymentStatus is the payment lifecycle state, independent of Status.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// statusTransitions is the fulfilment state machine:
// pending -> processing -> shipped -> delivered, with cancellation allowed
// before shipping and returns allowed after delivery. Delivered, cancelled
// and returned are otherwise terminal.
var statusTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {StatusReturned},
}

// paymentTransitions is the payment state machine. Refunded is only reachable
// from paid.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPaid, PaymentFailed},
	PaymentPaid:    {PaymentRefunded},
}

// CanTransition reports whether the fulfilment state machine allows s -> to.
func (s Status) CanTransition(to Status) bool {
	for _, next := range statusTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known fulfilment status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled, StatusReturned:
		return true
	}
	return false
}

// CanTransition reports whether the payment state machine allows ps -> to.
func (ps PaymentStatus) CanTransition(to PaymentStatus) bool {
	for _, next := range paymentTransitions[ps] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether ps is a known payment status.
func (ps PaymentStatus) Valid() bool {
	switch ps {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}
