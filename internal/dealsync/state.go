package dealsync

import (
	"strings"
	"time"

	"github.com/ads-marketplace/dealdesk/internal/models"
	"github.com/ads-marketplace/dealdesk/internal/pricing"
)

// editorLayout is the value format of an HTML datetime-local input.
const editorLayout = "2006-01-02T15:04"

// postedAtLayout matches what the Mini App sends (JS toISOString).
const postedAtLayout = "2006-01-02T15:04:05.000Z"

// Editor is the local draft working copy. It is never sent anywhere until
// SaveDraft.
type Editor struct {
	Message       string `json:"message"`
	PostedAt      string `json:"posted_at"` // 2006-01-02T15:04 in the editor zone
	PriceIndex    int    `json:"price_index"`
	PostedAtError string `json:"posted_at_error,omitempty"`
}

// EditorPatch changes only the fields that are set.
type EditorPatch struct {
	Message    *string `json:"message,omitempty"`
	PostedAt   *string `json:"posted_at,omitempty"`
	PriceIndex *int    `json:"price_index,omitempty"`
}

// State is a snapshot safe to hand to other goroutines.
type State struct {
	DealID       int64           `json:"deal_id"`
	Deal         *models.Deal    `json:"deal,omitempty"`
	Listing      *models.Listing `json:"listing,omitempty"`
	PriceRows    []pricing.Row   `json:"price_rows,omitempty"`
	Editor       Editor          `json:"editor"`
	Loading      bool            `json:"loading"`
	Error        string          `json:"error,omitempty"`
	Busy         string          `json:"busy,omitempty"`
	Wallet       string          `json:"wallet,omitempty"`
	WalletSynced bool            `json:"wallet_synced"`
	PayoutSynced bool            `json:"payout_synced"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	st := State{
		DealID:       c.dealID,
		Deal:         c.deal.Clone(),
		Listing:      c.listing,
		Editor:       c.editor,
		Loading:      c.dealID != 0 && c.deal == nil && c.err == "",
		Error:        c.err,
		Busy:         c.busy,
		Wallet:       c.wallet,
		WalletSynced: c.wallet != "" && c.walletPushedFor == c.wallet,
		PayoutSynced: c.wallet != "" && c.sync.payoutPushed,
		UpdatedAt:    c.updatedAt,
	}
	if len(c.rows) > 0 {
		st.PriceRows = append([]pricing.Row(nil), c.rows...)
	}
	return st
}

// UpdateEditor edits the local draft fields. Nothing is sent to the server.
func (c *Controller) UpdateEditor(p EditorPatch) error {
	c.mu.Lock()
	if p.PriceIndex != nil {
		if *p.PriceIndex < 0 || (len(c.rows) > 0 && *p.PriceIndex >= len(c.rows)) {
			c.mu.Unlock()
			return ErrBadPriceIndex
		}
		c.editor.PriceIndex = *p.PriceIndex
	}
	if p.Message != nil {
		c.editor.Message = *p.Message
	}
	if p.PostedAt != nil {
		c.editor.PostedAt = *p.PostedAt
		c.editor.PostedAtError = ""
	}
	c.mu.Unlock()
	c.changed()
	return nil
}

// toEditorTime converts a server ISO timestamp to the editor format; an
// unparseable value gives "".
func toEditorTime(iso string, loc *time.Location) string {
	if iso == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		return ""
	}
	return t.In(loc).Format(editorLayout)
}

// parseEditorTime reads the editor value. Empty means "not set".
func parseEditorTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{editorLayout, "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	return time.Time{}, ErrInvalidPostedAt
}
