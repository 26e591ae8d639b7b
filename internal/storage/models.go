package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// SupplySnapshot records the aggregate voting power at a period boundary.
type SupplySnapshot struct {
	Period      uint64
	PeriodStart time.Time
	TotalPower  decimal.Decimal
	TotalExact  string // rational a/b
	Slope       decimal.Decimal
	Locks       int
	CreatedAt   time.Time
}

// JournalEntry is an audit record of one executed ledger command.
type JournalEntry struct {
	ID        int64
	Period    uint64
	Action    string
	Sender    string
	Payload   json.RawMessage
	Error     *string
	CreatedAt time.Time
}

// AlertRecord captures an emitted alert for de-duplication/auditing.
type AlertRecord struct {
	ID           int64
	Period       uint64
	ChangePct    decimal.Decimal
	ThresholdPct decimal.Decimal
	Direction    string
	Channels     []string
	CreatedAt    time.Time
}
