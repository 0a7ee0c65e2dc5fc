package statsparser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

func TestParseCount(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"1.2K", 1200},
		{"1.5M", 1500000},
		{"123", 123},
		{"12,345", 12345},
		{"1 234", 1234},
		{"5.6K views", 5600},
		{"100K", 100000},
		{"0", 0},
		{"", 0},
		{"no number", 0},
		{"42k", 42000},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseCount(tt.input)
			if result != tt.expected {
				t.Errorf("parseCount(%q) = %d, want %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestGuessLanguage(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Привет мир, это тестовый текст на русском языке", "ru"},
		{"Hello world, this is a test text in English", "en"},
		{"", "unknown"},
		{"مرحبا بالعالم", "ar"},
		{"12345 !!!", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := guessLanguage(tt.input)
			if result != tt.expected {
				t.Errorf("guessLanguage(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

const channelPage = `<html><body>
<div class="tgme_page_photo_image"><img src="https://cdn.example/photo.jpg"></div>
<div class="tgme_channel_info_header_title"><span>Crypto Daily</span><i class="verified-icon"></i></div>
<div class="tgme_channel_info_description">Market news every hour</div>
<div class="tgme_channel_info_counter"><span class="counter_value">12.5K</span><span class="counter_type">subscribers</span></div>
<div class="tgme_widget_message_wrap"><div class="tgme_widget_message" data-post="cryptodaily/10">
  <div class="tgme_widget_message_text">Old post</div>
  <span class="tgme_widget_message_views">1K</span>
  <a class="tgme_widget_message_date"><time datetime="2024-05-01T10:00:00+00:00"></time></a>
</div></div>
<div class="tgme_widget_message_wrap"><div class="tgme_widget_message" data-post="cryptodaily/11">
  <div class="tgme_widget_message_text">New post</div>
  <span class="tgme_widget_message_views">3K</span>
  <a class="tgme_widget_message_date"><time datetime="2024-05-02T10:00:00+00:00"></time></a>
</div></div>
</body></html>`

func TestParsePreview(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(channelPage))
	if err != nil {
		t.Fatal(err)
	}
	pv := parsePreview(doc, "cryptodaily")

	if !strings.Contains(pv.Title, "Crypto Daily") || !pv.Verified {
		t.Errorf("title = %q verified = %v", pv.Title, pv.Verified)
	}
	if pv.Description != "Market news every hour" || pv.PhotoURL != "https://cdn.example/photo.jpg" {
		t.Errorf("description = %q photo = %q", pv.Description, pv.PhotoURL)
	}
	if pv.Subscribers == nil || *pv.Subscribers != 12500 {
		t.Errorf("subscribers = %v", pv.Subscribers)
	}
	if len(pv.RecentPosts) != 2 || pv.RecentPosts[0].MessageID != 11 {
		t.Fatalf("posts = %+v", pv.RecentPosts)
	}
	if pv.RecentPosts[0].URL != "https://t.me/cryptodaily/11" {
		t.Errorf("url = %q", pv.RecentPosts[0].URL)
	}
	if pv.AvgViews == nil || *pv.AvgViews != 2000 {
		t.Errorf("avg views = %v", pv.AvgViews)
	}
}

func TestPreviewCachesAndRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.URL.Path != "/s/cryptodaily" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(channelPage))
	}))
	defer srv.Close()

	p := NewParser(2000, 1, time.Minute, zap.NewNop())
	p.baseURL = srv.URL

	pv, err := p.Preview(context.Background(), "@cryptodaily")
	if err != nil {
		t.Fatal(err)
	}
	if pv.Username != "cryptodaily" {
		t.Errorf("username = %q", pv.Username)
	}
	if _, err := p.Preview(context.Background(), "CryptoDaily"); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("hits = %d, want 2 (one retry, then cached)", got)
	}
}

func TestPreviewEmptyUsername(t *testing.T) {
	p := NewParser(1000, 0, time.Minute, zap.NewNop())
	if _, err := p.Preview(context.Background(), " @ "); err == nil {
		t.Error("expected error for empty username")
	}
}
