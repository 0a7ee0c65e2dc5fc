// Package desk keeps one deal controller per watched deal and assembles the
// deal views served to the UI.
package desk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/ads-marketplace/dealdesk/internal/dealstate"
	"github.com/ads-marketplace/dealdesk/internal/dealsync"
	"github.com/ads-marketplace/dealdesk/internal/escrow"
	"github.com/ads-marketplace/dealdesk/internal/events"
	"github.com/ads-marketplace/dealdesk/internal/metrics"
	"github.com/ads-marketplace/dealdesk/internal/models"
	"github.com/ads-marketplace/dealdesk/internal/pricing"
	"github.com/ads-marketplace/dealdesk/internal/statsparser"
	"github.com/ads-marketplace/dealdesk/internal/ton"
	"go.uber.org/zap"
)

var (
	ErrBadDealID        = errors.New("invalid deal id")
	ErrBadListingID     = errors.New("invalid listing id")
	ErrNoPrices         = errors.New("listing has no price options")
	ErrDepositsDisabled = errors.New("escrow deposits are not configured")
)

// Previewer loads the public channel page shown next to a deal.
type Previewer interface {
	Preview(ctx context.Context, username string) (*statsparser.Preview, error)
}

// WalletSource reports the connected wallet (raw form, "" when none).
type WalletSource interface {
	RawAddress() string
}

type Options struct {
	Sync        dealsync.Options // template for every controller; callbacks are set by the desk
	IdleTimeout time.Duration    // unviewed deals stop polling after this long
	Formatter   ton.Formatter
}

type watch struct {
	ctrl      *dealsync.Controller
	cancel    context.CancelFunc
	lastSeen  time.Time
	published []byte
}

type Desk struct {
	api     dealsync.API
	viewer  int64
	opts    Options
	flow    *escrow.Flow
	wallet  WalletSource
	preview Previewer
	pub     events.Publisher
	log     *zap.Logger
	now     func() time.Time
	run     func(ctx context.Context, c *dealsync.Controller)

	mu      sync.Mutex
	base    context.Context
	watches map[int64]*watch
}

func New(api dealsync.API, viewerID int64, opts Options, flow *escrow.Flow, wallet WalletSource, preview Previewer, pub events.Publisher, log *zap.Logger) *Desk {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 10 * time.Minute
	}
	return &Desk{
		api:     api,
		viewer:  viewerID,
		opts:    opts,
		flow:    flow,
		wallet:  wallet,
		preview: preview,
		pub:     pub,
		log:     log,
		now:     time.Now,
		run:     func(ctx context.Context, c *dealsync.Controller) { go c.Run(ctx) },
		base:    context.Background(),
		watches: make(map[int64]*watch),
	}
}

// Run stops idle watches until ctx is done, then stops all of them.
func (d *Desk) Run(ctx context.Context) {
	d.mu.Lock()
	d.base = ctx
	d.mu.Unlock()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.closeAll()
			return
		case <-ticker.C:
			d.closeIdle()
		}
	}
}

func (d *Desk) closeIdle() {
	cutoff := d.now().Add(-d.opts.IdleTimeout)
	d.mu.Lock()
	for id, w := range d.watches {
		if w.lastSeen.Before(cutoff) {
			w.cancel()
			delete(d.watches, id)
			d.log.Info("deal watch expired", zap.Int64("deal_id", id))
		}
	}
	metrics.SetWatchedDeals(len(d.watches))
	d.mu.Unlock()
}

func (d *Desk) closeAll() {
	d.mu.Lock()
	for id, w := range d.watches {
		w.cancel()
		delete(d.watches, id)
	}
	metrics.SetWatchedDeals(0)
	d.mu.Unlock()
}

// Open returns the controller for the deal, starting a watch when needed.
func (d *Desk) Open(ctx context.Context, id int64) (*dealsync.Controller, error) {
	if id <= 0 {
		return nil, ErrBadDealID
	}

	if ctrl, ok := d.touch(id); ok {
		return ctrl, nil
	}

	// Switch notifies observers, so it runs before the desk lock is taken
	ctrl := d.newController()
	ctrl.Switch(id)

	d.mu.Lock()
	if w, ok := d.watches[id]; ok {
		w.lastSeen = d.now()
		d.mu.Unlock()
		return w.ctrl, nil
	}
	d.startLocked(id, ctrl)
	d.mu.Unlock()

	if addr := d.walletAddress(); addr != "" {
		ctrl.SetWallet(ctx, addr)
	}
	return ctrl, nil
}

func (d *Desk) touch(id int64) (*dealsync.Controller, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.watches[id]
	if !ok {
		return nil, false
	}
	w.lastSeen = d.now()
	return w.ctrl, true
}

// Close stops watching a deal.
func (d *Desk) Close(id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.watches[id]
	if !ok {
		return false
	}
	w.cancel()
	delete(d.watches, id)
	metrics.SetWatchedDeals(len(d.watches))
	return true
}

// Watched lists the deal ids being polled.
func (d *Desk) Watched() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]int64, 0, len(d.watches))
	for id := range d.watches {
		ids = append(ids, id)
	}
	return ids
}

func (d *Desk) startLocked(id int64, ctrl *dealsync.Controller) {
	runCtx, cancel := context.WithCancel(d.base)
	d.watches[id] = &watch{ctrl: ctrl, cancel: cancel, lastSeen: d.now()}
	metrics.SetWatchedDeals(len(d.watches))
	d.run(runCtx, ctrl)
}

func (d *Desk) newController() *dealsync.Controller {
	opts := d.opts.Sync
	opts.OnChange = d.onChange
	opts.OnStatusChange = d.onStatusChange
	return dealsync.New(d.api, d.viewer, opts, d.log)
}

func (d *Desk) walletAddress() string {
	if d.wallet == nil {
		return ""
	}
	return d.wallet.RawAddress()
}

func (d *Desk) onStatusChange(dealID int64, from, to models.DealStatus) {
	d.publish(events.Event{
		Type:   events.EventDealStatusChanged,
		DealID: dealID,
		Payload: map[string]any{
			"from": from,
			"to":   to,
		},
	})
}

// onChange publishes deal_updated when the snapshot differs from the last
// one published for that deal. Poll timestamps alone do not count.
func (d *Desk) onChange(st dealsync.State) {
	if st.DealID == 0 {
		return
	}
	st.UpdatedAt = time.Time{}
	fp, err := json.Marshal(st)
	if err != nil {
		return
	}

	d.mu.Lock()
	w, ok := d.watches[st.DealID]
	if !ok || bytes.Equal(w.published, fp) {
		d.mu.Unlock()
		return
	}
	w.published = fp
	d.mu.Unlock()

	payload := map[string]any{"busy": st.Busy, "error": st.Error}
	if st.Deal != nil {
		payload["status"] = st.Deal.Status
	}
	d.publish(events.Event{Type: events.EventDealUpdated, DealID: st.DealID, Payload: payload})
}

func (d *Desk) publish(e events.Event) {
	if d.pub == nil {
		return
	}
	if err := d.pub.Publish(context.Background(), events.DealChannel, e); err != nil {
		d.log.Warn("event publish failed", zap.String("type", e.Type), zap.Error(err))
	}
}

// SetWallet hands the connected wallet to every watched deal.
func (d *Desk) SetWallet(ctx context.Context, rawAddress string) {
	for _, ctrl := range d.controllers() {
		ctrl.SetWallet(ctx, rawAddress)
	}
	d.publish(events.Event{Type: events.EventWalletChanged, Payload: map[string]any{"address": rawAddress}})
}

// DisconnectWallet clears the wallet on the server and in every watch.
func (d *Desk) DisconnectWallet(ctx context.Context) error {
	ctrls := d.controllers()
	var err error
	if len(ctrls) == 0 {
		err = d.api.ClearWallet(ctx)
	}
	for _, ctrl := range ctrls {
		if cerr := ctrl.DisconnectWallet(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}
	d.publish(events.Event{Type: events.EventWalletChanged, Payload: map[string]any{"address": ""}})
	return err
}

func (d *Desk) controllers() []*dealsync.Controller {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*dealsync.Controller, 0, len(d.watches))
	for _, w := range d.watches {
		out = append(out, w.ctrl)
	}
	return out
}

// CreateDeal creates a deal and starts watching it. Without explicit terms
// the listing's first price option is used.
func (d *Desk) CreateDeal(ctx context.Context, in models.CreateDealRequest) (*models.Deal, error) {
	if in.ListingID <= 0 {
		return nil, ErrBadListingID
	}
	if in.Duration <= 0 {
		listing, err := d.api.GetListing(ctx, in.ListingID)
		if err != nil {
			return nil, err
		}
		pair, ok := pricing.FirstPair(listing.Prices)
		if !ok {
			return nil, ErrNoPrices
		}
		in.Type, in.Duration, in.Price = pair.Type, pair.Duration, pair.Price
		if in.ChannelID == nil {
			in.ChannelID = listing.ChannelID
		}
	}

	ctrl := d.newController()
	if addr := d.walletAddress(); addr != "" {
		ctrl.SetWallet(ctx, addr)
	}
	deal, err := ctrl.CreateDeal(ctx, in)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	if old, ok := d.watches[deal.ID]; ok {
		old.cancel()
	}
	d.startLocked(deal.ID, ctrl)
	d.mu.Unlock()
	return deal, nil
}

func (d *Desk) UpdateEditor(ctx context.Context, id int64, p dealsync.EditorPatch) (View, error) {
	ctrl, err := d.Open(ctx, id)
	if err != nil {
		return View{}, err
	}
	if err := ctrl.UpdateEditor(p); err != nil {
		return d.view(ctx, ctrl), err
	}
	return d.view(ctx, ctrl), nil
}

func (d *Desk) SaveDraft(ctx context.Context, id int64) (View, error) {
	return d.act(ctx, id, func(c *dealsync.Controller) error {
		_, err := c.SaveDraft(ctx)
		return err
	})
}

func (d *Desk) Sign(ctx context.Context, id int64) (View, error) {
	return d.act(ctx, id, func(c *dealsync.Controller) error {
		_, err := c.Sign(ctx)
		return err
	})
}

func (d *Desk) Reject(ctx context.Context, id int64, confirmed bool) (View, error) {
	return d.act(ctx, id, func(c *dealsync.Controller) error {
		_, err := c.Reject(ctx, confirmed)
		return err
	})
}

func (d *Desk) ChatLink(ctx context.Context, id int64) (string, error) {
	ctrl, err := d.Open(ctx, id)
	if err != nil {
		return "", err
	}
	if err := d.ensureLoaded(ctx, ctrl); err != nil {
		return "", err
	}
	return ctrl.ChatLink(ctx)
}

func (d *Desk) act(ctx context.Context, id int64, fn func(*dealsync.Controller) error) (View, error) {
	ctrl, err := d.Open(ctx, id)
	if err != nil {
		return View{}, err
	}
	if err := d.ensureLoaded(ctx, ctrl); err != nil {
		return View{}, err
	}
	err = fn(ctrl)
	return d.view(ctx, ctrl), err
}

// Deposit funds the escrow of the deal from the connected wallet.
func (d *Desk) Deposit(ctx context.Context, id int64) (models.DepositAttempt, error) {
	if d.flow == nil {
		return models.DepositAttempt{}, ErrDepositsDisabled
	}
	ctrl, err := d.Open(ctx, id)
	if err != nil {
		return models.DepositAttempt{}, err
	}
	if err := d.ensureLoaded(ctx, ctrl); err != nil {
		return models.DepositAttempt{}, err
	}

	deal := ctrl.State().Deal
	if perms := ctrl.Permissions(); !perms.CanDeposit {
		return models.DepositAttempt{}, escrow.ErrNotReady
	}

	attempt, err := d.flow.Deposit(ctx, deal, d.walletAddress())
	if err != nil {
		return attempt, err
	}
	d.publish(events.Event{
		Type:   events.EventDepositSubmitted,
		DealID: id,
		Payload: map[string]any{
			"amount_nano": attempt.AmountNano,
			"escrow":      attempt.EscrowAddress,
			"tx_hash":     attempt.TxHash,
		},
	})
	return attempt, nil
}

// ensureLoaded polls once when the watch has no snapshot yet.
func (d *Desk) ensureLoaded(ctx context.Context, ctrl *dealsync.Controller) error {
	if ctrl.State().Deal != nil {
		return nil
	}
	if err := ctrl.Poll(ctx); err != nil {
		return err
	}
	if ctrl.State().Deal == nil {
		return dealsync.ErrNoDeal
	}
	return nil
}

// View opens the deal if needed and returns its current view.
func (d *Desk) View(ctx context.Context, id int64) (View, error) {
	ctrl, err := d.Open(ctx, id)
	if err != nil {
		return View{}, err
	}
	if err := d.ensureLoaded(ctx, ctrl); err != nil {
		return d.view(ctx, ctrl), err
	}
	return d.view(ctx, ctrl), nil
}

func (d *Desk) view(ctx context.Context, ctrl *dealsync.Controller) View {
	st := ctrl.State()
	in := viewInput{
		State:       st,
		Permissions: ctrl.Permissions(),
		Rules:       d.opts.Sync.Rules,
		Formatter:   d.opts.Formatter,
		Now:         d.now(),
	}
	if d.flow != nil && st.Deal != nil {
		in.DepositState = d.flow.Check(st.Deal, d.walletAddress())
		if a, ok := d.flow.LastAttempt(st.DealID); ok {
			in.LastAttempt = &a
		}
	}
	if d.preview != nil && st.Listing != nil && st.Listing.ChannelUsername != nil && *st.Listing.ChannelUsername != "" {
		pv, err := d.preview.Preview(ctx, *st.Listing.ChannelUsername)
		if err != nil {
			d.log.Debug("channel preview failed", zap.String("username", *st.Listing.ChannelUsername), zap.Error(err))
		} else {
			in.Channel = pv
		}
	}
	return buildView(in)
}

// Rules exposes the deadline rules used by the views.
func (d *Desk) Rules() dealstate.Rules {
	return d.opts.Sync.Rules
}
