package domain

import "time"

type TransactionType string

const (
	TransactionOutbound TransactionType = "outbound"
	TransactionInbound  TransactionType = "inbound"
)

// InboundOrderRef is the order reference the backend expects for stock
// replenishment that is not tied to a retrieval order.
const InboundOrderRef = "reconcile"

// Transaction is an append-only quantity movement. Quantity is signed:
// negative for picks, positive for inbound.
type Transaction struct {
	ID          string
	OrderID     string
	TrayID      string
	Material    string
	Quantity    int
	Type        TransactionType
	Date        time.Time
	SapOrderRef string
}
