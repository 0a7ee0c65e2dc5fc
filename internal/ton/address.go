package ton

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/xssnick/tonutils-go/address"
)

// Formatter converts account addresses between the raw ("0:abcd...") and
// user-friendly (base64, "EQ.../UQ...") forms. Testnet controls the testnet
// flag of friendly output.
type Formatter struct {
	Testnet bool
}

var mainnet = Formatter{}

// ParseAny parses a raw or user-friendly address.
func ParseAny(addr string) (*address.Address, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("empty address")
	}
	if strings.Contains(addr, ":") {
		if _, _, err := ParseRawAddress(addr); err != nil {
			return nil, err
		}
		return address.ParseRawAddr(addr)
	}
	return address.ParseAddr(addr)
}

// ParseRawAddress парсит строку вида "0:abcdef..." в workchain и address hash.
// Workchain: десятичное int8 без знака "+", hash: ровно 32 байта hex.
func ParseRawAddress(raw string) (workchain int32, addrHash []byte, err error) {
	if strings.IndexFunc(raw, unicode.IsSpace) >= 0 || strings.Count(raw, ":") != 1 {
		return 0, nil, fmt.Errorf("invalid raw address format: %q", raw)
	}
	wcStr, hashHex, _ := strings.Cut(raw, ":")
	if wcStr == "" || strings.HasPrefix(wcStr, "+") {
		return 0, nil, fmt.Errorf("invalid raw address workchain: %q", raw)
	}
	wc, err := strconv.ParseInt(wcStr, 10, 8)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid raw address workchain: %w", err)
	}
	if len(hashHex) != 64 {
		return 0, nil, fmt.Errorf("address hash must be 32 bytes, got %d hex chars", len(hashHex))
	}
	addrHash, err = hex.DecodeString(hashHex)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid address hash hex: %w", err)
	}
	return int32(wc), addrHash, nil
}

// RawString renders an address as "workchain:hex".
func RawString(a *address.Address) string {
	return fmt.Sprintf("%d:%s", a.Workchain(), hex.EncodeToString(a.Data()))
}

// ToFriendly re-encodes addr in user-friendly form. Input that does not
// parse is returned unchanged.
func (f Formatter) ToFriendly(addr string, bounceable bool) string {
	a, err := ParseAny(addr)
	if err != nil {
		return addr
	}
	a.SetBounce(bounceable)
	a.SetTestnetOnly(f.Testnet)
	return a.String()
}

// Truncate shortens the bounceable friendly form to "head...tail".
func (f Formatter) Truncate(addr string, head, tail int) string {
	friendly := f.ToFriendly(addr, true)
	if friendly == "" || len(friendly) <= head+tail {
		return friendly
	}
	return friendly[:head] + "..." + friendly[len(friendly)-tail:]
}

// Raw returns the "workchain:hex" form, or addr unchanged when it does not parse.
func (f Formatter) Raw(addr string) string {
	a, err := ParseAny(addr)
	if err != nil {
		return addr
	}
	return RawString(a)
}

// ToFriendly is Formatter.ToFriendly for mainnet.
func ToFriendly(addr string, bounceable bool) string {
	return mainnet.ToFriendly(addr, bounceable)
}

// Truncate is Formatter.Truncate for mainnet.
func Truncate(addr string, head, tail int) string {
	return mainnet.Truncate(addr, head, tail)
}

// Equal reports whether a and b name the same account regardless of
// representation. Anything that fails to parse never matches.
func Equal(a, b string) bool {
	pa, err := ParseAny(a)
	if err != nil {
		return false
	}
	pb, err := ParseAny(b)
	if err != nil {
		return false
	}
	return pa.Workchain() == pb.Workchain() && bytes.Equal(pa.Data(), pb.Data())
}
