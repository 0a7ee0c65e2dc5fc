package models

import "time"

const (
	DepositStateReady       = "ready"
	DepositStateNotReady    = "not_ready"
	DepositStateNoWallet    = "no_wallet"
	DepositStateWrongWallet = "wrong_wallet"
	DepositStateInFlight    = "in_flight"
)

// DepositAttempt is one escrow deposit submitted through the wallet.
// Success only means the wallet accepted the transfer; the deal status moves
// when the backend sees the funds on chain.
type DepositAttempt struct {
	DealID        int64     `json:"deal_id"`
	EscrowAddress string    `json:"escrow_address"`
	AmountNano    int64     `json:"amount_nano"`
	ValidUntil    time.Time `json:"valid_until"`
	TxHash        *string   `json:"tx_hash,omitempty"`
	Error         *string   `json:"error,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at"`
}
