// Package dealstate derives everything the deal screen shows from a deal
// snapshot and the viewer: roadmap window, allowed actions and the deposit
// countdown. Nothing here does I/O.
package dealstate

import "github.com/ads-marketplace/dealdesk/internal/models"

type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignMiddle Alignment = "middle"
	AlignRight  Alignment = "right"
)

// RoadmapSegment is the previous/current/next window around a status.
type RoadmapSegment struct {
	Current   models.DealStatus   `json:"current"`
	Segment   []models.DealStatus `json:"segment"`
	Alignment Alignment           `json:"alignment"`
}

var draftWindow = []models.DealStatus{
	models.DealStatusDraft,
	models.DealStatusApproved,
	models.DealStatusWaitingEscrowDeposit,
}

var roadmapWindows = map[models.DealStatus][]models.DealStatus{
	models.DealStatusDraft:    draftWindow,
	models.DealStatusApproved: draftWindow,
	models.DealStatusWaitingEscrowDeposit: {
		models.DealStatusApproved,
		models.DealStatusWaitingEscrowDeposit,
		models.DealStatusEscrowDepositConfirmed,
	},
	models.DealStatusEscrowDepositConfirmed: {
		models.DealStatusWaitingEscrowDeposit,
		models.DealStatusEscrowDepositConfirmed,
		models.DealStatusInProgress,
	},
	models.DealStatusInProgress: {
		models.DealStatusEscrowDepositConfirmed,
		models.DealStatusInProgress,
		models.DealStatusWaitingEscrowRelease,
	},
	models.DealStatusWaitingEscrowRelease: {
		models.DealStatusInProgress,
		models.DealStatusWaitingEscrowRelease,
		models.DealStatusEscrowReleaseConfirmed,
	},
	models.DealStatusEscrowReleaseConfirmed: {
		models.DealStatusWaitingEscrowRelease,
		models.DealStatusEscrowReleaseConfirmed,
		models.DealStatusCompleted,
	},
	models.DealStatusCompleted: {
		models.DealStatusWaitingEscrowRelease,
		models.DealStatusEscrowReleaseConfirmed,
		models.DealStatusCompleted,
	},
	models.DealStatusWaitingEscrowRefund: {
		models.DealStatusInProgress,
		models.DealStatusWaitingEscrowRefund,
		models.DealStatusEscrowRefundConfirmed,
	},
	models.DealStatusEscrowRefundConfirmed: {
		models.DealStatusWaitingEscrowRefund,
		models.DealStatusEscrowRefundConfirmed,
		models.DealStatusCompleted,
	},
	models.DealStatusExpired: {
		models.DealStatusApproved,
		models.DealStatusWaitingEscrowDeposit,
		models.DealStatusExpired,
	},
	models.DealStatusRejected: {
		models.DealStatusDraft,
		models.DealStatusRejected,
	},
}

// Roadmap returns the window for status. Unknown statuses are drawn as draft.
func Roadmap(status models.DealStatus) RoadmapSegment {
	window, ok := roadmapWindows[status]
	if !ok {
		status = models.DealStatusDraft
		window = draftWindow
	}
	segment := make([]models.DealStatus, len(window))
	copy(segment, window)

	idx := 0
	for i, s := range segment {
		if s == status {
			idx = i
			break
		}
	}

	align := AlignMiddle
	switch idx {
	case 0:
		align = AlignLeft
	case len(segment) - 1:
		align = AlignRight
	}

	return RoadmapSegment{Current: status, Segment: segment, Alignment: align}
}
