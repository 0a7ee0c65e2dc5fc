package models

import "time"

// ConnectedWallet describes the wallet the desk signs deposits with.
type ConnectedWallet struct {
	Address         string    `json:"address"`          // raw: 0:<hex>
	AddressFriendly string    `json:"address_friendly"` // UQ.../0Q...
	Network         string    `json:"network"`          // mainnet/testnet
	Version         string    `json:"version"`          // v3r2/v4r2
	ConnectedAt     time.Time `json:"connected_at"`
}
