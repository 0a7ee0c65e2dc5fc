package dealstate

import (
	"time"

	"github.com/ads-marketplace/dealdesk/internal/models"
)

// Viewer is who is looking at the deal.
type Viewer struct {
	UserID          int64
	WalletConnected bool
}

type Permissions struct {
	IsLessor           bool `json:"is_lessor"`
	IsLessee           bool `json:"is_lessee"`
	CanSignAsLessor    bool `json:"can_sign_as_lessor"`
	CanSignAsLessee    bool `json:"can_sign_as_lessee"`
	BothPayoutsSet     bool `json:"both_payouts_set"`
	NeedsWalletToSign  bool `json:"needs_wallet_to_sign"`
	CanSignNow         bool `json:"can_sign_now"`
	CanEditDraft       bool `json:"can_edit_draft"`
	CanReject          bool `json:"can_reject"`
	ShowHandshake      bool `json:"show_handshake"`
	ShowDepositPanel   bool `json:"show_deposit_panel"`
	CanDeposit         bool `json:"can_deposit"`
	ShowDeadlinePassed bool `json:"show_deadline_passed"`
	CanOpenChat        bool `json:"can_open_chat"`
}

// Rules carries the tunables of the deal screen.
type Rules struct {
	DepositWindow time.Duration
}

var defaultRules = Rules{DepositWindow: DefaultDepositWindow}

// Evaluate uses the default one hour deposit window.
func Evaluate(deal *models.Deal, v Viewer, now time.Time) Permissions {
	return defaultRules.Evaluate(deal, v, now)
}

// Evaluate decides what the viewer may do with the deal right now. Only the
// literal draft status unlocks draft actions; an unknown status allows nothing.
func (r Rules) Evaluate(deal *models.Deal, v Viewer, now time.Time) Permissions {
	var p Permissions
	if deal == nil {
		return p
	}

	if v.UserID != 0 {
		p.IsLessor = deal.LessorID == v.UserID
		// a viewer holds one role only
		p.IsLessee = !p.IsLessor && deal.LesseeID == v.UserID
	}
	party := p.IsLessor || p.IsLessee

	draft := deal.Status == models.DealStatusDraft
	p.CanSignAsLessor = draft && p.IsLessor && deal.LessorSignature == nil
	p.CanSignAsLessee = draft && p.IsLessee && deal.LesseeSignature == nil
	p.BothPayoutsSet = deal.LessorPayoutAddress != nil && deal.LesseePayoutAddress != nil

	canSign := p.CanSignAsLessor || p.CanSignAsLessee
	p.NeedsWalletToSign = canSign && !v.WalletConnected
	p.CanSignNow = canSign && v.WalletConnected && p.BothPayoutsSet

	p.CanEditDraft = draft && party
	p.CanReject = canSign
	p.ShowHandshake = party && (draft || deal.Status == models.DealStatusApproved)

	deadline := DepositDeadline(deal, r.DepositWindow, now)
	waiting := deal.Status == models.DealStatusWaitingEscrowDeposit
	p.ShowDeadlinePassed = waiting && deadline.Passed && party
	p.ShowDepositPanel = waiting && !deadline.Passed && p.IsLessee && deal.EscrowAddress != nil
	p.CanDeposit = p.ShowDepositPanel && deal.HasEscrowAmount()

	p.CanOpenChat = party && deal.Status != models.DealStatusRejected

	return p
}
