package dto

import "time"

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type SessionResponse struct {
	User          any        `json:"user,omitempty"`
	TokenValid    bool       `json:"token_valid"`
	TokenExpires  *time.Time `json:"token_expires_at,omitempty"`
	InitDataAge   string     `json:"init_data_age,omitempty"`
	WatchedDealID []int64    `json:"watched_deal_ids"`
}

type StatusInfo struct {
	Status   string `json:"status"`
	Label    string `json:"label"`
	Terminal bool   `json:"terminal"`
	Roadmap  any    `json:"roadmap"`
}

type ChatLinkResponse struct {
	ChatLink string `json:"chat_link"`
}
