package dto

type CreateDealRequest struct {
	ListingID int64   `json:"listing_id"`
	ChannelID *int64  `json:"channel_id,omitempty"`
	Type      string  `json:"type,omitempty"`
	Duration  int64   `json:"duration,omitempty"` // hours; 0 takes the listing's first price option
	Price     float64 `json:"price,omitempty"`
	Message   *string `json:"message,omitempty"`
	PostedAt  *string `json:"posted_at,omitempty"` // ISO 8601
}

type EditorRequest struct {
	Message    *string `json:"message,omitempty"`
	PostedAt   *string `json:"posted_at,omitempty"` // 2006-01-02T15:04
	PriceIndex *int    `json:"price_index,omitempty"`
}

type RejectRequest struct {
	Confirm bool `json:"confirm"`
}
