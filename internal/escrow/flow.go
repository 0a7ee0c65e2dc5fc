// Package escrow funds a deal's escrow account from the connected wallet.
package escrow

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/ads-marketplace/dealdesk/internal/metrics"
	"github.com/ads-marketplace/dealdesk/internal/models"
	"github.com/ads-marketplace/dealdesk/internal/ton"
	"go.uber.org/zap"
)

// DefaultValidFor is how long the wallet may take to broadcast the transfer.
const DefaultValidFor = 5 * time.Minute

var (
	ErrNotReady       = errors.New("deal is not ready for deposit")
	ErrNoWallet       = errors.New("connect wallet to proceed")
	ErrWalletMismatch = errors.New("connect original wallet to proceed")
	ErrInFlight       = errors.New("deposit is already in progress")
)

// Signer signs and broadcasts a transfer; it blocks until the wallet
// confirms or fails.
type Signer interface {
	SendTransaction(ctx context.Context, tx ton.Transaction) (string, error)
}

type Recorder interface {
	Record(ctx context.Context, e models.JournalEntry) error
}

type Flow struct {
	signer   Signer
	addr     ton.Formatter
	validFor time.Duration
	journal  Recorder
	log      *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	inFlight map[int64]bool
	last     map[int64]models.DepositAttempt
}

func NewFlow(signer Signer, addr ton.Formatter, validFor time.Duration, journal Recorder, log *zap.Logger) *Flow {
	if validFor <= 0 {
		validFor = DefaultValidFor
	}
	return &Flow{
		signer:   signer,
		addr:     addr,
		validFor: validFor,
		journal:  journal,
		log:      log,
		now:      time.Now,
		inFlight: make(map[int64]bool),
		last:     make(map[int64]models.DepositAttempt),
	}
}

// Check reports whether a deposit can start for the deal with the given
// connected wallet (raw or friendly, "" when none).
func (f *Flow) Check(deal *models.Deal, wallet string) string {
	if deal == nil || deal.Status != models.DealStatusWaitingEscrowDeposit ||
		deal.EscrowAddress == nil || !deal.HasEscrowAmount() {
		return models.DepositStateNotReady
	}
	f.mu.Lock()
	busy := f.inFlight[deal.ID]
	f.mu.Unlock()
	if busy {
		return models.DepositStateInFlight
	}
	if wallet == "" {
		return models.DepositStateNoWallet
	}
	if deal.LesseePayoutAddress == nil || !ton.Equal(wallet, *deal.LesseePayoutAddress) {
		return models.DepositStateWrongWallet
	}
	return models.DepositStateReady
}

// BuildTransfer makes the single-message transfer to the escrow account.
func (f *Flow) BuildTransfer(deal *models.Deal, now time.Time) (ton.Transaction, error) {
	if deal == nil || deal.EscrowAddress == nil || !deal.HasEscrowAmount() {
		return ton.Transaction{}, ErrNotReady
	}
	return ton.Transaction{
		ValidUntil: now.Add(f.validFor).Unix(),
		Messages: []ton.Message{{
			Address: f.addr.ToFriendly(*deal.EscrowAddress, false),
			Amount:  strconv.FormatInt(*deal.EscrowAmount, 10),
		}},
	}, nil
}

// Deposit sends the escrow transfer. The deal status is left alone: the
// backend moves it once the funds land. Wallet errors come back unchanged.
func (f *Flow) Deposit(ctx context.Context, deal *models.Deal, wallet string) (models.DepositAttempt, error) {
	switch f.Check(deal, wallet) {
	case models.DepositStateNotReady:
		return models.DepositAttempt{}, ErrNotReady
	case models.DepositStateInFlight:
		return models.DepositAttempt{}, ErrInFlight
	case models.DepositStateNoWallet:
		return models.DepositAttempt{}, ErrNoWallet
	case models.DepositStateWrongWallet:
		return models.DepositAttempt{}, ErrWalletMismatch
	}

	f.mu.Lock()
	if f.inFlight[deal.ID] {
		f.mu.Unlock()
		return models.DepositAttempt{}, ErrInFlight
	}
	f.inFlight[deal.ID] = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.inFlight, deal.ID)
		f.mu.Unlock()
	}()

	now := f.now()
	tx, err := f.BuildTransfer(deal, now)
	if err != nil {
		return models.DepositAttempt{}, err
	}

	attempt := models.DepositAttempt{
		DealID:        deal.ID,
		EscrowAddress: tx.Messages[0].Address,
		AmountNano:    *deal.EscrowAmount,
		ValidUntil:    time.Unix(tx.ValidUntil, 0),
		SubmittedAt:   now,
	}

	f.log.Info("escrow deposit started",
		zap.Int64("deal_id", deal.ID),
		zap.String("escrow", attempt.EscrowAddress),
		zap.Int64("amount_nano", attempt.AmountNano),
	)

	hash, sendErr := f.signer.SendTransaction(ctx, tx)
	metrics.ObserveDeposit(sendErr)
	if sendErr != nil {
		msg := sendErr.Error()
		attempt.Error = &msg
		f.log.Warn("escrow deposit failed", zap.Int64("deal_id", deal.ID), zap.Error(sendErr))
	} else {
		attempt.TxHash = &hash
	}

	f.mu.Lock()
	f.last[deal.ID] = attempt
	f.mu.Unlock()

	if f.journal != nil {
		dealID := deal.ID
		if jerr := f.journal.Record(ctx, models.JournalEntry{
			DealID:  &dealID,
			ActorID: deal.LesseeID,
			Action:  models.ActionDeposit,
			OK:      sendErr == nil,
			Error:   attempt.Error,
			Meta:    attempt,
		}); jerr != nil {
			f.log.Warn("journal write failed", zap.Error(jerr))
		}
	}

	return attempt, sendErr
}

// LastAttempt returns the most recent deposit attempt for a deal.
func (f *Flow) LastAttempt(dealID int64) (models.DepositAttempt, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.last[dealID]
	return a, ok
}
