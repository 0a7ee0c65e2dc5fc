package desk

import (
	"strconv"
	"time"

	"github.com/ads-marketplace/dealdesk/internal/dealstate"
	"github.com/ads-marketplace/dealdesk/internal/dealsync"
	"github.com/ads-marketplace/dealdesk/internal/models"
	"github.com/ads-marketplace/dealdesk/internal/pricing"
	"github.com/ads-marketplace/dealdesk/internal/statsparser"
	"github.com/ads-marketplace/dealdesk/internal/ton"
)

const nanoPerTON = 1e9

type PriceOption struct {
	Index    int     `json:"index"`
	Label    string  `json:"label"`
	Duration int64   `json:"duration"`
	Price    float64 `json:"price"`
	Selected bool    `json:"selected"`
}

type DeadlineView struct {
	At       time.Time `json:"at"`
	TimeLeft string    `json:"time_left"`
	Passed   bool      `json:"passed"`
}

type DepositView struct {
	State         string                 `json:"state,omitempty"`
	Amount        string                 `json:"amount,omitempty"` // "1.5 TON"
	EscrowAddress string                 `json:"escrow_address,omitempty"`
	EscrowShort   string                 `json:"escrow_short,omitempty"`
	LastAttempt   *models.DepositAttempt `json:"last_attempt,omitempty"`
}

// View is everything the deal screen renders.
type View struct {
	DealID       int64                     `json:"deal_id"`
	Deal         *models.Deal              `json:"deal,omitempty"`
	StatusLabel  string                    `json:"status_label,omitempty"`
	Roadmap      *dealstate.RoadmapSegment `json:"roadmap,omitempty"`
	Permissions  dealstate.Permissions     `json:"permissions"`
	Deadline     *DeadlineView             `json:"deadline,omitempty"`
	Editor       dealsync.Editor           `json:"editor"`
	PriceOptions []PriceOption             `json:"price_options"`
	Terms        string                    `json:"terms,omitempty"`
	Deposit      DepositView               `json:"deposit"`
	Listing      *models.Listing           `json:"listing,omitempty"`
	Channel      *statsparser.Preview      `json:"channel,omitempty"`
	Wallet       string                    `json:"wallet,omitempty"`
	WalletShort  string                    `json:"wallet_short,omitempty"`
	WalletSynced bool                      `json:"wallet_synced"`
	PayoutSynced bool                      `json:"payout_synced"`
	Loading      bool                      `json:"loading"`
	Busy         string                    `json:"busy,omitempty"`
	Error        string                    `json:"error,omitempty"`
	UpdatedAt    time.Time                 `json:"updated_at"`
}

type viewInput struct {
	State        dealsync.State
	Permissions  dealstate.Permissions
	Rules        dealstate.Rules
	Formatter    ton.Formatter
	Now          time.Time
	DepositState string
	LastAttempt  *models.DepositAttempt
	Channel      *statsparser.Preview
}

func buildView(in viewInput) View {
	st := in.State
	v := View{
		DealID:       st.DealID,
		Deal:         st.Deal,
		Permissions:  in.Permissions,
		Editor:       st.Editor,
		PriceOptions: []PriceOption{},
		Listing:      st.Listing,
		Channel:      in.Channel,
		WalletSynced: st.WalletSynced,
		PayoutSynced: st.PayoutSynced,
		Loading:      st.Loading,
		Busy:         st.Busy,
		Error:        st.Error,
		UpdatedAt:    st.UpdatedAt,
	}
	if st.Wallet != "" {
		v.Wallet = in.Formatter.ToFriendly(st.Wallet, false)
		v.WalletShort = in.Formatter.Truncate(st.Wallet, 4, 4)
	}

	for i, r := range st.PriceRows {
		pair := pricing.PairFor(r)
		v.PriceOptions = append(v.PriceOptions, PriceOption{
			Index:    i,
			Label:    pricing.FormatEntry(r),
			Duration: pair.Duration,
			Price:    pair.Price,
			Selected: i == st.Editor.PriceIndex,
		})
	}

	deal := st.Deal
	if deal == nil {
		return v
	}

	v.StatusLabel = deal.Status.Label()
	rm := dealstate.Roadmap(deal.Status)
	v.Roadmap = &rm
	v.Terms = pricing.FormatEntry(pricing.Row{Duration: strconv.FormatInt(deal.Duration, 10), Price: deal.Price})

	if deal.Status == models.DealStatusWaitingEscrowDeposit {
		dl := dealstate.DepositDeadline(deal, in.Rules.DepositWindow, in.Now)
		if !dl.At.IsZero() {
			v.Deadline = &DeadlineView{
				At:       dl.At,
				TimeLeft: dealstate.FormatTimeLeft(dl.TimeLeft),
				Passed:   dl.Passed,
			}
		}
	}

	v.Deposit.State = in.DepositState
	v.Deposit.LastAttempt = in.LastAttempt
	if deal.HasEscrowAmount() {
		v.Deposit.Amount = pricing.FormatPrice(float64(*deal.EscrowAmount) / nanoPerTON)
	}
	if deal.EscrowAddress != nil {
		v.Deposit.EscrowAddress = in.Formatter.ToFriendly(*deal.EscrowAddress, false)
		v.Deposit.EscrowShort = in.Formatter.Truncate(*deal.EscrowAddress, 4, 4)
	}
	return v
}
