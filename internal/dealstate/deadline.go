package dealstate

import (
	"fmt"
	"time"

	"github.com/ads-marketplace/dealdesk/internal/models"
)

// DefaultDepositWindow is how long the lessee has to fund escrow, counted
// from the deal's last update. The server enforces the real expiry.
const DefaultDepositWindow = time.Hour

type Deadline struct {
	At       time.Time     `json:"at"`
	TimeLeft time.Duration `json:"time_left"`
	Passed   bool          `json:"passed"`
}

// DepositDeadline approximates the deposit cutoff as updated_at + window.
// Passed is only ever true while the deal waits for the deposit.
func DepositDeadline(deal *models.Deal, window time.Duration, now time.Time) Deadline {
	if deal == nil || deal.UpdatedAt.IsZero() {
		return Deadline{}
	}
	if window <= 0 {
		window = DefaultDepositWindow
	}
	at := deal.UpdatedAt.Add(window)
	left := at.Sub(now)
	if left < 0 {
		left = 0
	}
	return Deadline{
		At:       at,
		TimeLeft: left,
		Passed:   deal.Status == models.DealStatusWaitingEscrowDeposit && left == 0,
	}
}

// FormatTimeLeft renders M:SS; minutes do not roll over into hours.
func FormatTimeLeft(d time.Duration) string {
	if d <= 0 {
		return "0:00"
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
