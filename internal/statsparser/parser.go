package statsparser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// recentPostsLimit is how many posts the deal view shows.
const recentPostsLimit = 5

type Post struct {
	MessageID   int64     `json:"message_id"`
	URL         string    `json:"url"`
	Date        time.Time `json:"date"`
	Views       *int      `json:"views,omitempty"`
	TextSnippet string    `json:"text_snippet,omitempty"`
}

// Preview is the public face of a channel shown next to a deal.
type Preview struct {
	Username    string    `json:"username"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	Subscribers *int      `json:"subscribers,omitempty"`
	Verified    bool      `json:"verified"`
	AvgViews    *int      `json:"avg_views,omitempty"`
	LangGuess   string    `json:"lang_guess"`
	RecentPosts []Post    `json:"recent_posts"`
	FetchedAt   time.Time `json:"fetched_at"`
}

type Parser struct {
	httpClient *http.Client
	baseURL    string
	log        *zap.Logger
	maxRetries int
	ttl        time.Duration

	mu    sync.Mutex
	cache map[string]*Preview
}

func NewParser(timeoutMS, maxRetries int, ttl time.Duration, log *zap.Logger) *Parser {
	return &Parser{
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutMS) * time.Millisecond,
		},
		baseURL:    "https://t.me",
		log:        log,
		maxRetries: maxRetries,
		ttl:        ttl,
		cache:      make(map[string]*Preview),
	}
}

// Preview returns the channel preview, served from cache while fresh.
func (p *Parser) Preview(ctx context.Context, username string) (*Preview, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, fmt.Errorf("empty channel username")
	}
	key := strings.ToLower(username)

	p.mu.Lock()
	cached := p.cache[key]
	p.mu.Unlock()
	if cached != nil && time.Since(cached.FetchedAt) < p.ttl {
		return cached, nil
	}

	pv, err := p.FetchPreview(ctx, username)
	if err != nil {
		if cached != nil {
			p.log.Debug("channel preview refresh failed, serving stale", zap.String("username", username), zap.Error(err))
			return cached, nil
		}
		return nil, err
	}

	p.mu.Lock()
	p.cache[key] = pv
	p.mu.Unlock()
	return pv, nil
}

func (p *Parser) FetchPreview(ctx context.Context, username string) (*Preview, error) {
	url := fmt.Sprintf("%s/s/%s", p.baseURL, username)

	var doc *goquery.Document
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		doc, lastErr = p.fetch(ctx, url)
		if lastErr == nil {
			break
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return parsePreview(doc, username), nil
}

func (p *Parser) fetch(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

func parsePreview(doc *goquery.Document, username string) *Preview {
	pv := &Preview{
		Username:  username,
		FetchedAt: time.Now(),
	}

	pv.Title = strings.TrimSpace(doc.Find(".tgme_channel_info_header_title").First().Text())
	pv.Description = strings.TrimSpace(doc.Find(".tgme_channel_info_description").First().Text())
	if src, ok := doc.Find(".tgme_page_photo_image img").First().Attr("src"); ok {
		pv.PhotoURL = src
	}

	// Subscribers
	doc.Find(".tgme_channel_info_counter").Each(func(_ int, s *goquery.Selection) {
		label := strings.ToLower(strings.TrimSpace(s.Find(".counter_type").Text()))
		if strings.Contains(label, "subscriber") || strings.Contains(label, "member") {
			if n := parseCount(s.Find(".counter_value").Text()); n > 0 {
				pv.Subscribers = &n
			}
		}
	})
	if pv.Subscribers == nil {
		doc.Find(".tgme_channel_info_header_counter").Each(func(_ int, s *goquery.Selection) {
			text := strings.ToLower(s.Text())
			if strings.Contains(text, "subscriber") || strings.Contains(text, "member") {
				if n := parseCount(text); n > 0 {
					pv.Subscribers = &n
				}
			}
		})
	}

	pv.Verified = doc.Find(".tgme_channel_info_header_title .verified-icon").Length() > 0

	var posts []Post
	var allText strings.Builder
	doc.Find(".tgme_widget_message_wrap").Each(func(_ int, s *goquery.Selection) {
		post := Post{}

		if dataPost, ok := s.Find(".tgme_widget_message").Attr("data-post"); ok {
			parts := strings.Split(dataPost, "/")
			if len(parts) == 2 {
				if id, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
					post.MessageID = id
					post.URL = fmt.Sprintf("https://t.me/%s/%d", username, id)
				}
			}
		}

		if dt, ok := s.Find(".tgme_widget_message_date time").Attr("datetime"); ok {
			if t, err := time.Parse(time.RFC3339, dt); err == nil {
				post.Date = t
			}
		}

		if n := parseCount(s.Find(".tgme_widget_message_views").Text()); n > 0 {
			post.Views = &n
		}

		text := strings.TrimSpace(s.Find(".tgme_widget_message_text").Text())
		allText.WriteString(text)
		allText.WriteString(" ")
		post.TextSnippet = snippet(text, 200)

		if post.MessageID > 0 {
			posts = append(posts, post)
		}
	})

	// страница отдаёт посты от старых к новым
	total, count := 0, 0
	for i := len(posts) - 1; i >= 0; i-- {
		if len(pv.RecentPosts) < recentPostsLimit {
			pv.RecentPosts = append(pv.RecentPosts, posts[i])
		}
		if posts[i].Views != nil {
			total += *posts[i].Views
			count++
		}
	}
	if count > 0 {
		avg := total / count
		pv.AvgViews = &avg
	}

	pv.LangGuess = guessLanguage(allText.String())
	return pv
}

// snippet cuts text to at most n runes.
func snippet(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n])
}

var viewCountRE = regexp.MustCompile(`[\d,.]+[KkMm]?`)

func parseCount(text string) int {
	text = strings.ReplaceAll(text, " ", "")
	text = strings.ReplaceAll(text, ",", "")

	match := viewCountRE.FindString(text)
	if match == "" {
		return 0
	}

	multiplier := 1
	if strings.HasSuffix(match, "K") || strings.HasSuffix(match, "k") {
		multiplier = 1000
		match = match[:len(match)-1]
	} else if strings.HasSuffix(match, "M") || strings.HasSuffix(match, "m") {
		multiplier = 1000000
		match = match[:len(match)-1]
	}

	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return int(f * float64(multiplier))
}

func guessLanguage(text string) string {
	if text == "" {
		return "unknown"
	}

	var cyrillic, latin, arabic, cjk, letters int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		case unicode.Is(unicode.Latin, r):
			latin++
		case unicode.Is(unicode.Arabic, r):
			arabic++
		case unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
			cjk++
		}
	}

	if letters == 0 {
		return "unknown"
	}

	share := func(n int) float64 { return float64(n) / float64(letters) }
	switch {
	case share(cyrillic) >= 0.3:
		return "ru"
	case share(arabic) >= 0.3:
		return "ar"
	case share(cjk) >= 0.3:
		return "zh"
	case share(latin) >= 0.3:
		return "en"
	default:
		return "other"
	}
}
