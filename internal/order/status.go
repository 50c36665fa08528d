package order

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

func (s Status) String() string {
	return string(s)
}

var validStatuses = map[Status]bool{
	StatusPending:    true,
	StatusConfirmed:  true,
	StatusProcessing: true,
	StatusShipped:    true,
	StatusDelivered:  true,
	StatusCancelled:  true,
	StatusRefunded:   true,
}

func (s Status) Valid() bool {
	return validStatuses[s]
}

// customerCancellable lists the only states a customer may cancel from.
// Administrative transitions are not adjacency-checked; the audit history
// records every change regardless of who made it.
var customerCancellable = map[Status]bool{
	StatusPending:   true,
	StatusConfirmed: true,
}

func CanCustomerCancel(s Status) bool {
	return customerCancellable[s]
}

// IsTerminal reports whether s is an absorbing state.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusRefunded || s == StatusDelivered
}
