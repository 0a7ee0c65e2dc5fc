package models

import (
	"encoding/json"
	"time"
)

const (
	ListingTypeLessor = "lessor"
	ListingTypeLessee = "lessee"

	ListingStatusActive   = "active"
	ListingStatusInactive = "inactive"
)

type Listing struct {
	ID               int64           `json:"id"`
	Status           string          `json:"status"`
	UserID           int64           `json:"user_id"`
	ChannelID        *int64          `json:"channel_id,omitempty"`
	ChannelTitle     *string         `json:"channel_title,omitempty"`
	ChannelUsername  *string         `json:"channel_username,omitempty"`
	ChannelFollowers *int64          `json:"channel_followers,omitempty"`
	Type             string          `json:"type"`
	Prices           json.RawMessage `json:"prices"` // [["24hr", 100], ...] or {"24hr": 100}
	Categories       []string        `json:"categories,omitempty"`
	Description      *string         `json:"description,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
