package desk

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ads-marketplace/dealdesk/internal/dealstate"
	"github.com/ads-marketplace/dealdesk/internal/dealsync"
	"github.com/ads-marketplace/dealdesk/internal/escrow"
	"github.com/ads-marketplace/dealdesk/internal/events"
	"github.com/ads-marketplace/dealdesk/internal/market"
	"github.com/ads-marketplace/dealdesk/internal/models"
	"github.com/ads-marketplace/dealdesk/internal/statsparser"
	"github.com/ads-marketplace/dealdesk/internal/ton"
	"go.uber.org/zap"
)

const (
	lessorID  = 100
	lesseeID  = 200
	escrowRaw = "0:abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"
	lesseeRaw = "0:1111111111111111111111111111111111111111111111111111111111111111"
)

type stubAPI struct {
	mu      sync.Mutex
	deals   map[int64]*models.Deal
	listing *models.Listing
	clears  int
	wallets []string
}

func newStubAPI(deals ...*models.Deal) *stubAPI {
	s := &stubAPI{deals: map[int64]*models.Deal{}}
	for _, d := range deals {
		s.deals[d.ID] = d
	}
	return s
}

func (s *stubAPI) deal(id int64) (*models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[id]
	if !ok {
		return nil, &market.APIError{Status: 404, Code: "deal_not_found"}
	}
	return d.Clone(), nil
}

func (s *stubAPI) setStatus(id int64, st models.DealStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deals[id].Status = st
}

func (s *stubAPI) GetDeal(_ context.Context, id int64) (*models.Deal, error) { return s.deal(id) }

func (s *stubAPI) UpdateDealDraft(_ context.Context, id int64, upd models.DealDraftUpdate) (*models.Deal, error) {
	s.mu.Lock()
	d := s.deals[id]
	d.Duration, d.Price, d.Type, d.Details = upd.Duration, upd.Price, upd.Type, upd.Details
	s.mu.Unlock()
	return s.deal(id)
}

func (s *stubAPI) SignDeal(_ context.Context, id int64) (*models.Deal, error) {
	s.mu.Lock()
	sig := "signed"
	s.deals[id].LessorSignature = &sig
	s.mu.Unlock()
	return s.deal(id)
}

func (s *stubAPI) RejectDeal(_ context.Context, id int64) (*models.Deal, error) {
	s.setStatus(id, models.DealStatusRejected)
	return s.deal(id)
}

func (s *stubAPI) SetDealPayoutAddress(_ context.Context, id int64, addr string) (*models.Deal, error) {
	s.mu.Lock()
	d := s.deals[id]
	if d.LesseeID == lesseeID {
		d.LesseePayoutAddress = &addr
	}
	s.mu.Unlock()
	return s.deal(id)
}

func (s *stubAPI) CreateDeal(_ context.Context, in models.CreateDealRequest) (*models.Deal, error) {
	s.mu.Lock()
	d := &models.Deal{
		ID:        int64(len(s.deals) + 1000),
		ListingID: in.ListingID,
		LessorID:  lessorID,
		LesseeID:  lesseeID,
		Type:      in.Type,
		Duration:  in.Duration,
		Price:     in.Price,
		Status:    models.DealStatusDraft,
		UpdatedAt: time.Now(),
	}
	s.deals[d.ID] = d
	s.mu.Unlock()
	return s.deal(d.ID)
}

func (s *stubAPI) ChatLink(_ context.Context, id int64) (string, error) {
	return "https://t.me/+chat", nil
}

func (s *stubAPI) GetListing(_ context.Context, id int64) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listing == nil || s.listing.ID != id {
		return nil, &market.APIError{Status: 404, Code: "listing_not_found"}
	}
	l := *s.listing
	return &l, nil
}

func (s *stubAPI) SetWallet(_ context.Context, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets = append(s.wallets, addr)
	return nil
}

func (s *stubAPI) ClearWallet(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	return nil
}

type fixedWallet string

func (w fixedWallet) RawAddress() string { return string(w) }

type okSigner struct{}

func (okSigner) SendTransaction(context.Context, ton.Transaction) (string, error) {
	return "cafe", nil
}

type stubPreview struct{ calls int }

func (p *stubPreview) Preview(_ context.Context, username string) (*statsparser.Preview, error) {
	p.calls++
	return &statsparser.Preview{Username: username, Title: "Channel"}, nil
}

func waitingDeal(id int64) *models.Deal {
	escrowAddr, payout := escrowRaw, lesseeRaw
	amount := int64(1_500_000_000)
	return &models.Deal{
		ID:                  id,
		ListingID:           50,
		LessorID:            lessorID,
		LesseeID:            lesseeID,
		Type:                "24hr",
		Duration:            24,
		Price:               1.5,
		Status:              models.DealStatusWaitingEscrowDeposit,
		EscrowAddress:       &escrowAddr,
		EscrowAmount:        &amount,
		LesseePayoutAddress: &payout,
		UpdatedAt:           time.Now(),
	}
}

func listing() *models.Listing {
	username := "cryptodaily"
	return &models.Listing{
		ID:              50,
		Type:            models.ListingTypeLessor,
		ChannelUsername: &username,
		Prices:          json.RawMessage(`[["12hr", 1], ["24hr", 1.5]]`),
	}
}

func newDesk(t *testing.T, api *stubAPI, viewer int64, flow *escrow.Flow, wallet WalletSource, pv Previewer, pub events.Publisher) *Desk {
	t.Helper()
	opts := Options{Sync: dealsync.Options{PollInterval: time.Hour, Location: time.UTC}}
	d := New(api, viewer, opts, flow, wallet, pv, pub, zap.NewNop())
	d.run = func(context.Context, *dealsync.Controller) {} // polls are driven by the tests
	ctx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	d.base = ctx
	d.mu.Unlock()
	t.Cleanup(cancel)
	return d
}

func TestViewAssemblesDealScreen(t *testing.T) {
	api := newStubAPI(waitingDeal(7))
	api.listing = listing()
	pv := &stubPreview{}
	flow := escrow.NewFlow(okSigner{}, ton.Formatter{}, 0, nil, zap.NewNop())
	d := newDesk(t, api, lesseeID, flow, fixedWallet(lesseeRaw), pv, nil)

	v, err := d.View(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if v.Deal == nil || v.Roadmap == nil || v.Roadmap.Current != models.DealStatusWaitingEscrowDeposit {
		t.Fatalf("view = %+v", v)
	}
	if !v.Permissions.IsLessee || !v.Permissions.ShowDepositPanel || !v.Permissions.CanDeposit {
		t.Errorf("permissions = %+v", v.Permissions)
	}
	if v.Deadline == nil || v.Deadline.Passed || v.Deadline.TimeLeft == "0:00" {
		t.Errorf("deadline = %+v", v.Deadline)
	}
	if v.Deposit.State != models.DepositStateReady || v.Deposit.Amount != "1.5 TON" {
		t.Errorf("deposit = %+v", v.Deposit)
	}
	if v.Deposit.EscrowAddress != ton.ToFriendly(escrowRaw, false) {
		t.Errorf("escrow address = %q", v.Deposit.EscrowAddress)
	}
	if len(v.PriceOptions) != 2 || !v.PriceOptions[1].Selected || v.PriceOptions[1].Label != "24 hours - 1.5 TON" {
		t.Errorf("price options = %+v", v.PriceOptions)
	}
	if v.Terms != "24 hours - 1.5 TON" {
		t.Errorf("terms = %q", v.Terms)
	}
	if v.Channel == nil || v.Channel.Username != "cryptodaily" {
		t.Errorf("channel = %+v", v.Channel)
	}
	if v.Wallet == "" || v.WalletShort == "" {
		t.Error("wallet not rendered")
	}
}

func TestViewUnknownDeal(t *testing.T) {
	d := newDesk(t, newStubAPI(), lessorID, nil, nil, nil, nil)
	v, err := d.View(context.Background(), 404)
	if market.ErrorCode(err) != "deal_not_found" {
		t.Fatalf("err = %v", err)
	}
	if v.Error != "deal_not_found" || v.Deal != nil {
		t.Errorf("view = %+v", v)
	}
	if _, err := d.View(context.Background(), 0); !errors.Is(err, ErrBadDealID) {
		t.Errorf("zero id: %v", err)
	}
}

func TestOpenReusesWatch(t *testing.T) {
	api := newStubAPI(waitingDeal(7))
	d := newDesk(t, api, lessorID, nil, nil, nil, nil)

	a, _ := d.Open(context.Background(), 7)
	b, _ := d.Open(context.Background(), 7)
	if a != b {
		t.Error("second open created another controller")
	}
	if got := d.Watched(); len(got) != 1 || got[0] != 7 {
		t.Errorf("watched = %v", got)
	}
	if !d.Close(7) || d.Close(7) {
		t.Error("close should succeed once")
	}
}

func TestCloseIdle(t *testing.T) {
	d := newDesk(t, newStubAPI(waitingDeal(7)), lessorID, nil, nil, nil, nil)
	d.opts.IdleTimeout = time.Minute
	if _, err := d.Open(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	d.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	d.closeIdle()
	if len(d.Watched()) != 0 {
		t.Error("idle watch kept")
	}
}

func TestEventsPublished(t *testing.T) {
	api := newStubAPI(waitingDeal(7))
	bus := events.NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []events.Event
	_ = bus.Subscribe(ctx, events.DealChannel, func(e events.Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})

	d := newDesk(t, api, lessorID, nil, nil, nil, bus)
	ctrl, _ := d.Open(context.Background(), 7)
	_ = ctrl.Poll(context.Background())
	_ = ctrl.Poll(context.Background())

	api.setStatus(7, models.DealStatusEscrowDepositConfirmed)
	_ = ctrl.Poll(context.Background())

	// delivery is asynchronous: wait for the three expected events, then
	// give a stray fourth one a moment to show up
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	var updated, status int
	for _, e := range got {
		switch e.Type {
		case events.EventDealUpdated:
			updated++
		case events.EventDealStatusChanged:
			status++
			if e.Payload["to"] != models.DealStatusEscrowDepositConfirmed {
				t.Errorf("status payload = %v", e.Payload)
			}
		}
	}
	if status != 1 {
		t.Errorf("status events = %d, want 1", status)
	}
	// first load and the status change; the identical second poll is silent
	if updated != 2 {
		t.Errorf("updated events = %d, want 2", updated)
	}
}

func TestDeposit(t *testing.T) {
	api := newStubAPI(waitingDeal(7))
	bus := events.NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	submitted := make(chan events.Event, 1)
	_ = bus.Subscribe(ctx, events.DealChannel, func(e events.Event) {
		if e.Type == events.EventDepositSubmitted {
			submitted <- e
		}
	})

	flow := escrow.NewFlow(okSigner{}, ton.Formatter{}, 0, nil, zap.NewNop())
	d := newDesk(t, api, lesseeID, flow, fixedWallet(lesseeRaw), nil, bus)

	attempt, err := d.Deposit(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if attempt.TxHash == nil || *attempt.TxHash != "cafe" {
		t.Errorf("attempt = %+v", attempt)
	}
	select {
	case e := <-submitted:
		if e.DealID != 7 {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Error("deposit_submitted not published")
	}

	v, _ := d.View(context.Background(), 7)
	if v.Deposit.LastAttempt == nil {
		t.Error("last attempt missing from view")
	}
}

func TestDepositRules(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		d := newDesk(t, newStubAPI(waitingDeal(7)), lesseeID, nil, nil, nil, nil)
		if _, err := d.Deposit(context.Background(), 7); !errors.Is(err, ErrDepositsDisabled) {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("lessor cannot deposit", func(t *testing.T) {
		flow := escrow.NewFlow(okSigner{}, ton.Formatter{}, 0, nil, zap.NewNop())
		d := newDesk(t, newStubAPI(waitingDeal(7)), lessorID, flow, fixedWallet(lesseeRaw), nil, nil)
		if _, err := d.Deposit(context.Background(), 7); !errors.Is(err, escrow.ErrNotReady) {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("no wallet", func(t *testing.T) {
		flow := escrow.NewFlow(okSigner{}, ton.Formatter{}, 0, nil, zap.NewNop())
		d := newDesk(t, newStubAPI(waitingDeal(7)), lesseeID, flow, fixedWallet(""), nil, nil)
		if _, err := d.Deposit(context.Background(), 7); !errors.Is(err, escrow.ErrNoWallet) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestCreateDealStartsWatch(t *testing.T) {
	api := newStubAPI()
	d := newDesk(t, api, lesseeID, nil, nil, nil, nil)

	deal, err := d.CreateDeal(context.Background(), models.CreateDealRequest{ListingID: 50, Type: "24hr", Duration: 24, Price: 1})
	if err != nil {
		t.Fatal(err)
	}
	ids := d.Watched()
	if len(ids) != 1 || ids[0] != deal.ID {
		t.Errorf("watched = %v, want [%d]", ids, deal.ID)
	}
}

func TestDisconnectWalletWithoutWatches(t *testing.T) {
	api := newStubAPI()
	d := newDesk(t, api, lesseeID, nil, nil, nil, nil)
	if err := d.DisconnectWallet(context.Background()); err != nil {
		t.Fatal(err)
	}
	if api.clears != 1 {
		t.Errorf("clears = %d", api.clears)
	}
}

func TestBuildViewDeadlinePassed(t *testing.T) {
	deal := waitingDeal(7)
	deal.UpdatedAt = time.Now().Add(-2 * time.Hour)
	v := buildView(viewInput{
		State: dealsync.State{DealID: 7, Deal: deal},
		Rules: dealstate.Rules{DepositWindow: time.Hour},
		Now:   time.Now(),
	})
	if v.Deadline == nil || !v.Deadline.Passed || v.Deadline.TimeLeft != "0:00" {
		t.Errorf("deadline = %+v", v.Deadline)
	}
	if v.StatusLabel == "" {
		t.Error("status label missing")
	}
}

func TestCreateDealUsesFirstPrice(t *testing.T) {
	api := newStubAPI()
	api.listing = listing()
	d := newDesk(t, api, lesseeID, nil, nil, nil, nil)

	deal, err := d.CreateDeal(context.Background(), models.CreateDealRequest{ListingID: 50})
	if err != nil {
		t.Fatal(err)
	}
	if deal.Type != "12hr" || deal.Duration != 12 || deal.Price != 1 {
		t.Errorf("terms = %s %d %v", deal.Type, deal.Duration, deal.Price)
	}

	api.listing.Prices = json.RawMessage(`[]`)
	if _, err := d.CreateDeal(context.Background(), models.CreateDealRequest{ListingID: 50}); !errors.Is(err, ErrNoPrices) {
		t.Errorf("empty prices: %v", err)
	}
	if _, err := d.CreateDeal(context.Background(), models.CreateDealRequest{}); !errors.Is(err, ErrBadListingID) {
		t.Errorf("no listing: %v", err)
	}
}
