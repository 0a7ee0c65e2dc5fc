package models

import (
	"time"

	"github.com/google/uuid"
)

// Journal actions
const (
	ActionWalletPush   = "wallet_push"
	ActionWalletClear  = "wallet_clear"
	ActionPayoutPush   = "payout_push"
	ActionDealCreate   = "deal_create"
	ActionDraftSave    = "draft_save"
	ActionDealSign     = "deal_sign"
	ActionDealReject   = "deal_reject"
	ActionDeposit      = "escrow_deposit"
	ActionStatusChange = "status_change"
)

// JournalEntry is a local record of something the desk did or observed.
type JournalEntry struct {
	ID        uuid.UUID `json:"id"`
	DealID    *int64    `json:"deal_id,omitempty"`
	ActorID   int64     `json:"actor_id"` // telegram user id of the viewer
	Action    string    `json:"action"`
	OK        bool      `json:"ok"`
	Error     *string   `json:"error,omitempty"`
	Meta      any       `json:"meta,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
