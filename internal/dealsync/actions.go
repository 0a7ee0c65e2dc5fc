package dealsync

import (
	"context"
	"fmt"
	"strings"

	"github.com/ads-marketplace/dealdesk/internal/dealstate"
	"github.com/ads-marketplace/dealdesk/internal/models"
	"github.com/ads-marketplace/dealdesk/internal/pricing"
)

type dealCall func(ctx context.Context, id int64) (*models.Deal, error)

// mutate runs one action against the current deal. Success replaces the
// snapshot; failure leaves it as it was. Actions never run concurrently.
func (c *Controller) mutate(ctx context.Context, action string, allowed func(dealstate.Permissions) bool, call dealCall, meta any) (*models.Deal, error) {
	c.mu.Lock()
	if c.dealID == 0 {
		c.mu.Unlock()
		return nil, ErrNoDeal
	}
	if c.busy != "" {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	if !allowed(c.permissionsLocked()) {
		c.mu.Unlock()
		return nil, ErrNotAllowed
	}
	id, epoch := c.dealID, c.epoch
	seq := c.nextSeqLocked()
	c.busy = action
	c.mu.Unlock()
	c.changed()

	deal, err := call(ctx, id)

	c.mu.Lock()
	if epoch == c.epoch {
		c.busy = ""
		if err == nil {
			c.applyMutationLocked(seq, deal)
		}
	}
	c.mu.Unlock()

	c.record(ctx, id, action, err, meta)
	c.changed()
	if err != nil {
		return nil, err
	}
	return deal.Clone(), nil
}

// Sign signs the draft as whichever party the viewer is.
func (c *Controller) Sign(ctx context.Context) (*models.Deal, error) {
	return c.mutate(ctx, models.ActionDealSign,
		func(p dealstate.Permissions) bool { return p.CanSignNow },
		c.api.SignDeal, nil)
}

// Reject is irreversible, so the caller must pass the user's confirmation.
func (c *Controller) Reject(ctx context.Context, confirmed bool) (*models.Deal, error) {
	if !confirmed {
		return nil, ErrRejectNotConfirmed
	}
	return c.mutate(ctx, models.ActionDealReject,
		func(p dealstate.Permissions) bool { return p.CanReject },
		c.api.RejectDeal, nil)
}

// SaveDraft sends the editor fields. An unparseable posted-at is reported on
// the editor and nothing is sent.
func (c *Controller) SaveDraft(ctx context.Context) (*models.Deal, error) {
	c.mu.Lock()
	if c.deal == nil {
		c.mu.Unlock()
		return nil, ErrNotAllowed
	}
	postedAt, err := parseEditorTime(c.editor.PostedAt, c.loc)
	if err != nil {
		c.editor.PostedAtError = "Invalid date and time"
		c.mu.Unlock()
		c.changed()
		return nil, err
	}
	c.editor.PostedAtError = ""
	upd := draftUpdate(c.deal, c.rows, c.editor, postedAt.IsZero(), postedAt.UTC().Format(postedAtLayout))
	c.mu.Unlock()

	return c.mutate(ctx, models.ActionDraftSave,
		func(p dealstate.Permissions) bool { return p.CanEditDraft },
		func(ctx context.Context, id int64) (*models.Deal, error) {
			return c.api.UpdateDealDraft(ctx, id, upd)
		}, upd)
}

func draftUpdate(deal *models.Deal, rows []pricing.Row, ed Editor, noPostedAt bool, postedAt string) models.DealDraftUpdate {
	var pair pricing.Pair
	if len(rows) > 0 {
		idx := ed.PriceIndex
		if idx < 0 || idx >= len(rows) {
			idx = 0
		}
		pair = pricing.PairFor(rows[idx])
	} else {
		// listing not loaded: keep the current terms
		pair = pricing.Pair{Type: deal.Type, Duration: deal.Duration, Price: deal.Price}
		if pair.Duration <= 0 {
			pair.Duration = 24
		}
		if pair.Type == "" {
			pair.Type = fmt.Sprintf("%dhr", pair.Duration)
		}
	}

	upd := models.DealDraftUpdate{Type: pair.Type, Duration: pair.Duration, Price: pair.Price}
	if msg := strings.TrimSpace(ed.Message); msg != "" {
		upd.Details.Message = &msg
	}
	if !noPostedAt {
		upd.Details.PostedAt = &postedAt
	}
	return upd
}

// CreateDeal creates a deal and points the controller at it; the result
// counts as the first load of the new id.
func (c *Controller) CreateDeal(ctx context.Context, in models.CreateDealRequest) (*models.Deal, error) {
	deal, err := c.api.CreateDeal(ctx, in)
	var id int64
	if deal != nil {
		id = deal.ID
	}
	c.record(ctx, id, models.ActionDealCreate, err, in)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.switchLocked(deal.ID)
	c.applyLocked(deal, true)
	c.mu.Unlock()
	c.changed()

	c.refreshListing(ctx)
	c.reconcile(ctx)
	return deal.Clone(), nil
}

// ChatLink asks the backend for the deal chat invite link.
func (c *Controller) ChatLink(ctx context.Context) (string, error) {
	c.mu.Lock()
	id := c.dealID
	allowed := c.permissionsLocked().CanOpenChat
	c.mu.Unlock()
	if id == 0 {
		return "", ErrNoDeal
	}
	if !allowed {
		return "", ErrNotAllowed
	}
	return c.api.ChatLink(ctx, id)
}
