package dealsync

import (
	"context"

	"github.com/ads-marketplace/dealdesk/internal/models"
	"go.uber.org/zap"
)

// SetWallet tells the controller which wallet is connected (raw form) and
// pushes it where it is still missing. "" means disconnected locally only.
func (c *Controller) SetWallet(ctx context.Context, rawAddress string) {
	c.mu.Lock()
	changed := c.wallet != rawAddress
	c.wallet = rawAddress
	c.mu.Unlock()

	if changed {
		c.changed()
	}
	c.reconcile(ctx)
}

// DisconnectWallet forgets the wallet and clears it on the server. Both push
// flags reset, so a reconnect registers everything again. Switching to
// another wallet without a disconnect does not re-push the payout address.
func (c *Controller) DisconnectWallet(ctx context.Context) error {
	c.mu.Lock()
	c.wallet = ""
	c.walletPushedFor = ""
	c.sync.payoutPushed = false
	id := c.dealID
	c.mu.Unlock()

	err := c.api.ClearWallet(ctx)
	c.record(ctx, id, models.ActionWalletClear, err, nil)
	if err != nil {
		c.log.Warn("wallet clear failed", zap.Error(err))
	}
	c.changed()
	return err
}

// reconcile performs the best-effort wallet side effects. A failed push
// stays unmarked and is tried again on the next trigger.
func (c *Controller) reconcile(ctx context.Context) {
	c.pushWallet(ctx)
	c.pushPayout(ctx)
}

func (c *Controller) pushWallet(ctx context.Context) {
	c.mu.Lock()
	addr := c.wallet
	if addr == "" || c.walletPushedFor == addr || c.walletPushing {
		c.mu.Unlock()
		return
	}
	c.walletPushing = true
	id := c.dealID
	c.mu.Unlock()

	err := c.api.SetWallet(ctx, addr)

	c.mu.Lock()
	c.walletPushing = false
	if err == nil && c.wallet == addr {
		c.walletPushedFor = addr
	}
	c.mu.Unlock()

	c.record(ctx, id, models.ActionWalletPush, err, map[string]any{"address": addr})
	if err != nil {
		c.log.Warn("wallet push failed", zap.String("address", addr), zap.Error(err))
		return
	}
	c.changed()
}

func (c *Controller) pushPayout(ctx context.Context) {
	c.mu.Lock()
	addr := c.wallet
	deal := c.deal
	if addr == "" || deal == nil || deal.Status != models.DealStatusDraft ||
		c.sync.payoutPushing || c.sync.payoutPushed ||
		(deal.LessorID != c.viewer && deal.LesseeID != c.viewer) || c.viewer == 0 {
		c.mu.Unlock()
		return
	}
	c.sync.payoutPushing = true
	id, epoch := c.dealID, c.epoch
	seq := c.nextSeqLocked()
	c.mu.Unlock()

	updated, err := c.api.SetDealPayoutAddress(ctx, id, addr)

	c.mu.Lock()
	if epoch == c.epoch {
		c.sync.payoutPushing = false
		// один раз на сделку, даже если кошелёк сменился во время запроса
		if err == nil {
			c.sync.payoutPushed = true
			c.applyMutationLocked(seq, updated)
		}
	}
	c.mu.Unlock()

	c.record(ctx, id, models.ActionPayoutPush, err, map[string]any{"address": addr})
	if err != nil {
		c.log.Warn("payout address push failed", zap.Int64("deal_id", id), zap.Error(err))
		return
	}
	c.changed()
}
