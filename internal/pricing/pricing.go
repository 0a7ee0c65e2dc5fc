// Package pricing normalizes listing price tables.
//
// The backend stores prices as a list of [duration, price] pairs
// ([["24hr", 100], ["48hr", 180]]); older listings carry an object
// ({"24hr": 100}). Both decode to the same ordered []Row.
package pricing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Currency is the settlement currency unit shown next to prices.
const Currency = "TON"

// Row is one normalized price option: Duration is a bare number of hours
// ("24"), Price is in TON.
type Row struct {
	Duration string  `json:"duration"`
	Price    float64 `json:"price"`
}

var unitSuffixRE = regexp.MustCompile(`(?i)\s*(hours|hour|hrs|hr|h)$`)

// Parse decodes either representation. Malformed entries are dropped;
// anything that is neither an array nor an object yields nil.
func Parse(raw json.RawMessage) []Row {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	switch raw[0] {
	case '[':
		return parsePairs(raw)
	case '{':
		return parseObject(raw)
	default:
		return nil
	}
}

func parsePairs(raw json.RawMessage) []Row {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	var rows []Row
	for _, e := range entries {
		var pair []json.RawMessage
		if err := json.Unmarshal(e, &pair); err != nil || len(pair) < 2 {
			continue
		}
		if row, ok := newRow(pair[0], pair[1]); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

// parseObject walks tokens so that rows keep the object's key order.
func parseObject(raw json.RawMessage) []Row {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil
	}
	var rows []Row
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return rows
		}
		key, ok := tok.(string)
		if !ok {
			return rows
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return rows
		}
		keyJSON, _ := json.Marshal(key)
		if row, ok := newRow(keyJSON, val); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

func newRow(durRaw, priceRaw json.RawMessage) (Row, bool) {
	// null декодируется в нулевое значение без ошибки, такие строки отбрасываем
	if isNull(durRaw) || isNull(priceRaw) {
		return Row{}, false
	}
	dur, ok := parseDuration(durRaw)
	if !ok {
		return Row{}, false
	}
	price, ok := parsePrice(priceRaw)
	if !ok {
		return Row{}, false
	}
	return Row{Duration: dur, Price: price}, true
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func parseDuration(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", false
		}
		s = n.String()
	}
	s = strings.TrimSpace(unitSuffixRE.ReplaceAllString(strings.TrimSpace(s), ""))
	if s == "" {
		return "", false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return "", false
	}
	return s, true
}

func parsePrice(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Encode renders rows in the canonical pair-list form.
func Encode(rows []Row) (json.RawMessage, error) {
	pairs := make([][2]any, 0, len(rows))
	for _, r := range rows {
		pairs = append(pairs, [2]any{r.Duration + "hr", r.Price})
	}
	return json.Marshal(pairs)
}

// Hours returns the integer hour count of a duration label ("24hr" -> 24).
func Hours(duration string) (int64, bool) {
	s := strings.TrimSpace(unitSuffixRE.ReplaceAllString(strings.TrimSpace(duration), ""))
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0 {
		return int64(f), true
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	return n, err == nil
}

// FormatDuration renders "1 hour" or "N hours".
func FormatDuration(duration string) string {
	n, ok := Hours(duration)
	if !ok {
		trimmed := strings.TrimSpace(duration)
		if trimmed == "" {
			return "—"
		}
		return trimmed
	}
	if n == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", n)
}

// FormatPrice renders "<value> TON" without trailing zeros.
func FormatPrice(price float64) string {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return "—"
	}
	return strconv.FormatFloat(price, 'f', -1, 64) + " " + Currency
}

// FormatEntry renders a single option: "24 hours - 100 TON".
func FormatEntry(r Row) string {
	return FormatDuration(r.Duration) + " - " + FormatPrice(r.Price)
}

// Pair is what a new deal is created with.
type Pair struct {
	Type     string  // duration label as listed, e.g. "24hr"
	Duration int64   // hours
	Price    float64 // TON
}

// TypeFor builds the deal type label for a row.
func TypeFor(r Row) string {
	return r.Duration + "hr"
}

// PairFor converts a row into deal terms. A duration without digits
// falls back to 24 hours.
func PairFor(r Row) Pair {
	hours, ok := Hours(r.Duration)
	if !ok || hours == 0 {
		hours = 24
	}
	return Pair{Type: TypeFor(r), Duration: hours, Price: r.Price}
}

// FirstPair returns the first valid option of a price table.
func FirstPair(raw json.RawMessage) (Pair, bool) {
	rows := Parse(raw)
	if len(rows) == 0 {
		return Pair{}, false
	}
	return PairFor(rows[0]), true
}

// MatchIndex finds the row matching a deal's duration and price, or -1.
func MatchIndex(rows []Row, duration int64, price float64) int {
	for i, r := range rows {
		hours, ok := Hours(r.Duration)
		if ok && hours == duration && r.Price == price {
			return i
		}
	}
	return -1
}
