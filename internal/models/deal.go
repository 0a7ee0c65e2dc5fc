package models

import (
	"strings"
	"time"
)

type DealStatus string

// Deal statuses
const (
	DealStatusDraft                  DealStatus = "draft"
	DealStatusApproved               DealStatus = "approved"
	DealStatusWaitingEscrowDeposit   DealStatus = "waiting_escrow_deposit"
	DealStatusEscrowDepositConfirmed DealStatus = "escrow_deposit_confirmed"
	DealStatusInProgress             DealStatus = "in_progress"
	DealStatusWaitingEscrowRelease   DealStatus = "waiting_escrow_release"
	DealStatusEscrowReleaseConfirmed DealStatus = "escrow_release_confirmed"
	DealStatusCompleted              DealStatus = "completed"
	DealStatusWaitingEscrowRefund    DealStatus = "waiting_escrow_refund"
	DealStatusEscrowRefundConfirmed  DealStatus = "escrow_refund_confirmed"
	DealStatusExpired                DealStatus = "expired"
	DealStatusRejected               DealStatus = "rejected"
)

// AllDealStatuses lists every status in lifecycle order.
var AllDealStatuses = []DealStatus{
	DealStatusDraft,
	DealStatusApproved,
	DealStatusWaitingEscrowDeposit,
	DealStatusEscrowDepositConfirmed,
	DealStatusInProgress,
	DealStatusWaitingEscrowRelease,
	DealStatusEscrowReleaseConfirmed,
	DealStatusCompleted,
	DealStatusWaitingEscrowRefund,
	DealStatusEscrowRefundConfirmed,
	DealStatusExpired,
	DealStatusRejected,
}

var dealStatusLabels = map[DealStatus]string{
	DealStatusDraft:                  "Draft",
	DealStatusApproved:               "Approved",
	DealStatusWaitingEscrowDeposit:   "Waiting deposit",
	DealStatusEscrowDepositConfirmed: "Deposit confirmed",
	DealStatusInProgress:             "In progress",
	DealStatusWaitingEscrowRelease:   "Waiting release",
	DealStatusEscrowReleaseConfirmed: "Release confirmed",
	DealStatusCompleted:              "Completed",
	DealStatusWaitingEscrowRefund:    "Waiting refund",
	DealStatusEscrowRefundConfirmed:  "Refund confirmed",
	DealStatusExpired:                "Expired",
	DealStatusRejected:               "Rejected",
}

func (s DealStatus) IsKnown() bool {
	_, ok := dealStatusLabels[s]
	return ok
}

// IsTerminal reports whether the server will never move the deal again.
func (s DealStatus) IsTerminal() bool {
	return s == DealStatusCompleted || s == DealStatusRejected || s == DealStatusExpired
}

// Label returns a human readable status name. Unknown values are
// title-cased from their snake_case form.
func (s DealStatus) Label() string {
	if l, ok := dealStatusLabels[s]; ok {
		return l
	}
	parts := strings.Split(string(s), "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

// DealDetails is the negotiation payload. Only these two keys are read by
// the client; anything else the server stores is ignored.
type DealDetails struct {
	Message  *string `json:"message,omitempty"`
	PostedAt *string `json:"posted_at,omitempty"` // ISO 8601
}

type Deal struct {
	ID                  int64       `json:"id"`
	ListingID           int64       `json:"listing_id"`
	LessorID            int64       `json:"lessor_id"`
	LesseeID            int64       `json:"lessee_id"`
	ChannelID           *int64      `json:"channel_id,omitempty"`
	Type                string      `json:"type"`
	Duration            int64       `json:"duration"` // hours
	Price               float64     `json:"price"`    // TON
	EscrowAmount        *int64      `json:"escrow_amount,omitempty"` // nanoton
	Details             DealDetails `json:"details"`
	LessorSignature     *string     `json:"lessor_signature,omitempty"`
	LesseeSignature     *string     `json:"lessee_signature,omitempty"`
	Status              DealStatus  `json:"status"`
	EscrowAddress       *string     `json:"escrow_address,omitempty"`
	EscrowReleaseTime   *time.Time  `json:"escrow_release_time,omitempty"`
	LessorPayoutAddress *string     `json:"lessor_payout_address,omitempty"`
	LesseePayoutAddress *string     `json:"lessee_payout_address,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// Message returns details.message or "".
func (d *Deal) Message() string {
	if d == nil || d.Details.Message == nil {
		return ""
	}
	return *d.Details.Message
}

// PostedAt returns details.posted_at as sent by the server, or "".
func (d *Deal) PostedAt() string {
	if d == nil || d.Details.PostedAt == nil {
		return ""
	}
	return *d.Details.PostedAt
}

// HasEscrowAmount reports whether a positive escrow amount is known.
func (d *Deal) HasEscrowAmount() bool {
	return d != nil && d.EscrowAmount != nil && *d.EscrowAmount > 0
}

// Clone returns a deep enough copy for handing snapshots to other goroutines.
func (d *Deal) Clone() *Deal {
	if d == nil {
		return nil
	}
	cp := *d
	cp.ChannelID = clonePtr(d.ChannelID)
	cp.EscrowAmount = clonePtr(d.EscrowAmount)
	cp.Details.Message = clonePtr(d.Details.Message)
	cp.Details.PostedAt = clonePtr(d.Details.PostedAt)
	cp.LessorSignature = clonePtr(d.LessorSignature)
	cp.LesseeSignature = clonePtr(d.LesseeSignature)
	cp.EscrowAddress = clonePtr(d.EscrowAddress)
	cp.EscrowReleaseTime = clonePtr(d.EscrowReleaseTime)
	cp.LessorPayoutAddress = clonePtr(d.LessorPayoutAddress)
	cp.LesseePayoutAddress = clonePtr(d.LesseePayoutAddress)
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// DealDraftUpdate is the PATCH /deals/{id} body.
type DealDraftUpdate struct {
	Type     string      `json:"type"`
	Duration int64       `json:"duration"`
	Price    float64     `json:"price"`
	Details  DealDetails `json:"details"`
}

// CreateDealRequest is the POST /deals body.
type CreateDealRequest struct {
	ListingID int64       `json:"listing_id"`
	ChannelID *int64      `json:"channel_id,omitempty"`
	Type      string      `json:"type"`
	Duration  int64       `json:"duration"`
	Price     float64     `json:"price"`
	Details   DealDetails `json:"details"`
}

type WalletAddressRequest struct {
	WalletAddress string `json:"wallet_address"`
}

type ChatLink struct {
	ChatLink string `json:"chat_link"`
}
