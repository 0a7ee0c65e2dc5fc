package pricing

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Row
	}{
		{
			name:     "pair list",
			input:    `[["24hr", 100], ["48hr", 180.5]]`,
			expected: []Row{{"24", 100}, {"48", 180.5}},
		},
		{
			name:     "object keeps key order",
			input:    `{"48hr": 180, "24hr": 100, "1hr": 10}`,
			expected: []Row{{"48", 180}, {"24", 100}, {"1", 10}},
		},
		{
			name:     "unit variants",
			input:    `[["12 hours", 5], ["6h", 3], ["2HR", 1], [3, 2]]`,
			expected: []Row{{"12", 5}, {"6", 3}, {"2", 1}, {"3", 2}},
		},
		{
			name:     "numeric string price",
			input:    `[["24hr", "100"]]`,
			expected: []Row{{"24", 100}},
		},
		{
			name:     "malformed rows dropped",
			input:    `[["24hr", 100], ["abc", 5], ["hr", 5], ["48hr", "cheap"], ["72hr"], "junk", ["96hr", null], ["12hr", 7]]`,
			expected: []Row{{"24", 100}, {"12", 7}},
		},
		{
			name:     "malformed object values dropped",
			input:    `{"24hr": 100, "week": 500, "48hr": "x", "96hr": null}`,
			expected: []Row{{"24", 100}},
		},
		{
			name:     "null price in either form",
			input:    `[["96hr", null], [null, 5], ["12hr", 7]]`,
			expected: []Row{{"12", 7}},
		},
		{name: "empty", input: ``, expected: nil},
		{name: "null", input: `null`, expected: nil},
		{name: "scalar", input: `42`, expected: nil},
		{name: "broken json", input: `[["24hr", 1`, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(json.RawMessage(tt.input))
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Parse(%s) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	rows := []Row{{"24", 100}, {"48", 180.25}, {"1", 0.5}, {"1.5", 3}}
	raw, err := Encode(rows)
	if err != nil {
		t.Fatal(err)
	}
	got := Parse(raw)
	if !reflect.DeepEqual(got, rows) {
		t.Errorf("round trip = %v, want %v (encoded %s)", got, rows, raw)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1", "1 hour"},
		{"1hr", "1 hour"},
		{"24", "24 hours"},
		{"48hr", "48 hours"},
		{"0", "0 hours"},
		{"", "—"},
		{"forever", "forever"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := FormatDuration(tt.input); got != tt.expected {
				t.Errorf("FormatDuration(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFormatPriceAndEntry(t *testing.T) {
	if got := FormatPrice(100); got != "100 TON" {
		t.Errorf("FormatPrice(100) = %q", got)
	}
	if got := FormatPrice(1.25); got != "1.25 TON" {
		t.Errorf("FormatPrice(1.25) = %q", got)
	}
	if got := FormatEntry(Row{Duration: "24", Price: 100}); got != "24 hours - 100 TON" {
		t.Errorf("FormatEntry = %q", got)
	}
	if got := FormatEntry(Row{Duration: "1", Price: 2.5}); got != "1 hour - 2.5 TON" {
		t.Errorf("FormatEntry = %q", got)
	}
}

func TestFirstPair(t *testing.T) {
	p, ok := FirstPair(json.RawMessage(`[["48hr", 180], ["24hr", 100]]`))
	if !ok {
		t.Fatal("expected a pair")
	}
	if p.Type != "48hr" || p.Duration != 48 || p.Price != 180 {
		t.Errorf("FirstPair = %+v", p)
	}

	if _, ok := FirstPair(json.RawMessage(`[]`)); ok {
		t.Error("empty table should have no first pair")
	}
}

func TestMatchIndex(t *testing.T) {
	rows := []Row{{"24", 100}, {"48", 180}}
	if got := MatchIndex(rows, 48, 180); got != 1 {
		t.Errorf("MatchIndex = %d, want 1", got)
	}
	if got := MatchIndex(rows, 48, 100); got != -1 {
		t.Errorf("MatchIndex = %d, want -1", got)
	}
}
