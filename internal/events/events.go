package events

import "context"

// DealChannel carries every deal-related event.
const DealChannel = "events:deal"

// Event types
const (
	EventDealStatusChanged = "deal_status_changed"
	EventDealUpdated       = "deal_updated"
	EventDepositSubmitted  = "deposit_submitted"
	EventWalletChanged     = "wallet_changed"
)

type Event struct {
	Type    string         `json:"type"`
	DealID  int64          `json:"deal_id,omitempty"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
