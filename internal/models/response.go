package models

// Envelope is the market backend's response wrapper.
type Envelope[T any] struct {
	OK        bool   `json:"ok"`
	Data      *T     `json:"data,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}
