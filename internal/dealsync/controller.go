// Package dealsync keeps one deal's view in step with the market backend:
// it polls the deal, protects local draft edits, pushes the connected wallet
// and runs the one-shot deal actions.
package dealsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ads-marketplace/dealdesk/internal/dealstate"
	"github.com/ads-marketplace/dealdesk/internal/market"
	"github.com/ads-marketplace/dealdesk/internal/metrics"
	"github.com/ads-marketplace/dealdesk/internal/models"
	"github.com/ads-marketplace/dealdesk/internal/pricing"
	"go.uber.org/zap"
)

// DefaultPollInterval matches the Mini App's deal screen refresh.
const DefaultPollInterval = 3 * time.Second

var (
	ErrNoDeal             = errors.New("no deal selected")
	ErrNotAllowed         = errors.New("action is not available")
	ErrBusy               = errors.New("another action is in progress")
	ErrRejectNotConfirmed = errors.New("reject must be confirmed")
	ErrInvalidPostedAt    = errors.New("invalid date and time")
	ErrBadPriceIndex      = errors.New("price option out of range")
)

// API is the part of the market backend the controller uses.
type API interface {
	GetDeal(ctx context.Context, id int64) (*models.Deal, error)
	UpdateDealDraft(ctx context.Context, id int64, upd models.DealDraftUpdate) (*models.Deal, error)
	SignDeal(ctx context.Context, id int64) (*models.Deal, error)
	RejectDeal(ctx context.Context, id int64) (*models.Deal, error)
	SetDealPayoutAddress(ctx context.Context, id int64, walletAddress string) (*models.Deal, error)
	CreateDeal(ctx context.Context, in models.CreateDealRequest) (*models.Deal, error)
	ChatLink(ctx context.Context, id int64) (string, error)
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
	SetWallet(ctx context.Context, rawAddress string) error
	ClearWallet(ctx context.Context) error
}

// Recorder persists what the controller did.
type Recorder interface {
	Record(ctx context.Context, e models.JournalEntry) error
}

type Options struct {
	PollInterval   time.Duration
	Location       *time.Location // zone of the posted-at editor, local by default
	Rules          dealstate.Rules
	Journal        Recorder
	OnChange       func(State)
	OnStatusChange func(dealID int64, from, to models.DealStatus)
}

// syncState is scoped to one deal id and replaced when the id changes.
type syncState struct {
	editorsSynced bool
	payoutPushed  bool
	payoutPushing bool
}

type listingKey struct {
	id       int64
	duration int64
	price    float64
}

type statusChange struct {
	dealID   int64
	from, to models.DealStatus
}

type Controller struct {
	api      API
	viewer   int64
	interval time.Duration
	loc      *time.Location
	rules    dealstate.Rules
	journal  Recorder
	onChange func(State)
	onStatus func(dealID int64, from, to models.DealStatus)
	log      *zap.Logger
	now      func() time.Time
	kick     chan struct{}

	mu          sync.Mutex
	dealID      int64
	epoch       uint64
	seq         uint64
	mutationSeq uint64
	sync        syncState
	deal        *models.Deal
	listing     *models.Listing
	listingKey  listingKey
	rows        []pricing.Row
	editor      Editor
	err         string
	busy        string
	updatedAt   time.Time
	pending     []statusChange

	wallet          string
	walletPushedFor string
	walletPushing   bool
}

func New(api API, viewerID int64, opts Options, log *zap.Logger) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Controller{
		api:      api,
		viewer:   viewerID,
		interval: opts.PollInterval,
		loc:      opts.Location,
		rules:    opts.Rules,
		journal:  opts.Journal,
		onChange: opts.OnChange,
		onStatus: opts.OnStatusChange,
		log:      log,
		now:      time.Now,
		kick:     make(chan struct{}, 1),
	}
}

// Run polls the current deal now and then every interval until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		case <-c.kick:
			c.tick(ctx)
		}
	}
}

func (c *Controller) tick(ctx context.Context) {
	err := c.Poll(ctx)
	if err != nil && !errors.Is(err, ErrNoDeal) && ctx.Err() == nil {
		c.log.Debug("deal poll failed", zap.Int64("deal_id", c.DealID()), zap.Error(err))
	}
}

// Switch points the controller at another deal. Everything learned about the
// previous deal is dropped, and responses still in flight for it are ignored.
func (c *Controller) Switch(id int64) {
	c.mu.Lock()
	if id == c.dealID {
		c.mu.Unlock()
		return
	}
	c.switchLocked(id)
	c.mu.Unlock()

	select {
	case c.kick <- struct{}{}:
	default:
	}
	c.changed()
}

func (c *Controller) switchLocked(id int64) {
	c.dealID = id
	c.epoch++
	c.mutationSeq = c.seq
	c.sync = syncState{}
	c.deal = nil
	c.listing = nil
	c.listingKey = listingKey{}
	c.rows = nil
	c.editor = Editor{}
	c.err = ""
	c.busy = ""
	c.updatedAt = c.now()
}

func (c *Controller) DealID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dealID
}

// Poll fetches the deal once. A failure keeps the last good snapshot.
func (c *Controller) Poll(ctx context.Context) error {
	c.mu.Lock()
	id, epoch := c.dealID, c.epoch
	seq := c.nextSeqLocked()
	c.mu.Unlock()
	if id == 0 {
		return ErrNoDeal
	}

	deal, err := c.api.GetDeal(ctx, id)
	metrics.ObservePoll(err)

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.err = market.ErrorCode(err)
		c.updatedAt = c.now()
		c.mu.Unlock()
		c.changed()
		return err
	}
	if seq < c.mutationSeq {
		c.mu.Unlock()
		c.log.Debug("dropping poll issued before a mutation", zap.Int64("deal_id", id))
		return nil
	}
	c.err = ""
	c.applyLocked(deal, true)
	c.mu.Unlock()
	c.changed()

	c.refreshListing(ctx)
	c.reconcile(ctx)
	return nil
}

func (c *Controller) nextSeqLocked() uint64 {
	c.seq++
	return c.seq
}

// applyLocked installs a server snapshot. Editor fields follow the server
// only while the deal is not a draft, or on the first draft load of this id.
func (c *Controller) applyLocked(deal *models.Deal, fromPoll bool) {
	prev := c.deal
	c.deal = deal
	c.updatedAt = c.now()

	if prev != nil && prev.Status != deal.Status {
		c.pending = append(c.pending, statusChange{dealID: deal.ID, from: prev.Status, to: deal.Status})
	}

	if !fromPoll {
		return
	}
	if deal.Status != models.DealStatusDraft {
		c.sync.editorsSynced = false
		c.loadEditorLocked(deal)
	} else if !c.sync.editorsSynced {
		c.sync.editorsSynced = true
		c.loadEditorLocked(deal)
	}
}

// applyMutationLocked installs a mutation result; polls issued before it
// can no longer overwrite it.
func (c *Controller) applyMutationLocked(seq uint64, deal *models.Deal) {
	if seq > c.mutationSeq {
		c.mutationSeq = seq
	}
	c.applyLocked(deal, false)
}

func (c *Controller) loadEditorLocked(deal *models.Deal) {
	c.editor.Message = deal.Message()
	c.editor.PostedAt = toEditorTime(deal.PostedAt(), c.loc)
	c.editor.PostedAtError = ""
}

// refreshListing loads the listing when the deal's listing or terms change
// and selects the matching price option.
func (c *Controller) refreshListing(ctx context.Context) {
	c.mu.Lock()
	if c.deal == nil || c.deal.ListingID == 0 {
		c.mu.Unlock()
		return
	}
	key := listingKey{id: c.deal.ListingID, duration: c.deal.Duration, price: c.deal.Price}
	if key == c.listingKey {
		c.mu.Unlock()
		return
	}
	c.listingKey = key
	epoch := c.epoch
	c.mu.Unlock()

	listing, err := c.api.GetListing(ctx, key.id)

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	if err != nil {
		// retried on the next poll
		c.listingKey = listingKey{}
		c.mu.Unlock()
		c.log.Warn("listing fetch failed", zap.Int64("listing_id", key.id), zap.Error(err))
		return
	}
	c.listing = listing
	c.rows = pricing.Parse(listing.Prices)
	if idx := pricing.MatchIndex(c.rows, key.duration, key.price); idx >= 0 {
		c.editor.PriceIndex = idx
	}
	c.mu.Unlock()
	c.changed()
}

// Permissions evaluates the current snapshot for the viewer.
func (c *Controller) Permissions() dealstate.Permissions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.permissionsLocked()
}

func (c *Controller) permissionsLocked() dealstate.Permissions {
	return c.rules.Evaluate(c.deal, dealstate.Viewer{UserID: c.viewer, WalletConnected: c.wallet != ""}, c.now())
}

// changed flushes status transitions and notifies the observer.
func (c *Controller) changed() {
	c.mu.Lock()
	st := c.stateLocked()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, ch := range pending {
		c.log.Info("deal status changed",
			zap.Int64("deal_id", ch.dealID),
			zap.String("from", string(ch.from)),
			zap.String("to", string(ch.to)),
		)
		if c.onStatus != nil {
			c.onStatus(ch.dealID, ch.from, ch.to)
		}
	}
	if c.onChange != nil {
		c.onChange(st)
	}
}

func (c *Controller) record(ctx context.Context, dealID int64, action string, err error, meta any) {
	metrics.ObserveAction(action, err)
	if c.journal == nil {
		return
	}
	e := models.JournalEntry{
		ActorID: c.viewer,
		Action:  action,
		OK:      err == nil,
		Meta:    meta,
	}
	if dealID != 0 {
		e.DealID = &dealID
	}
	if err != nil {
		msg := market.ErrorCode(err)
		e.Error = &msg
	}
	if jerr := c.journal.Record(ctx, e); jerr != nil {
		c.log.Warn("journal write failed", zap.String("action", action), zap.Error(jerr))
	}
}
