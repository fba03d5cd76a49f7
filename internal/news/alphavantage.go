package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"hightrade/internal/domain"
	"hightrade/internal/idhash"
)

const avTimeFormat = "20060102T150405"

// AlphaVantageSource fetches the NEWS_SENTIMENT feed.
type AlphaVantageSource struct {
	name       string
	endpoint   string
	apiKey     string
	limiterKey string
	client     *http.Client
	now        func() time.Time
}

// AlphaVantageOptions configures an AlphaVantageSource.
type AlphaVantageOptions struct {
	Name       string
	Endpoint   string
	APIKey     string
	LimiterKey string
	Timeout    time.Duration
}

// NewAlphaVantageSource builds the source. A zero timeout defaults to 5s.
func NewAlphaVantageSource(opts AlphaVantageOptions) *AlphaVantageSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AlphaVantageSource{
		name:       opts.Name,
		endpoint:   opts.Endpoint,
		apiKey:     opts.APIKey,
		limiterKey: opts.LimiterKey,
		client:     &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

var _ Source = (*AlphaVantageSource)(nil)

func (s *AlphaVantageSource) Name() string           { return s.name }
func (s *AlphaVantageSource) RateLimiterKey() string { return s.limiterKey }

type avFeedItem struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	TimePublished string `json:"time_published"`
	Summary       string `json:"summary"`
	Source        string `json:"source"`
}

type avResponse struct {
	Feed        []avFeedItem `json:"feed"`
	Note        string       `json:"Note"`
	Information string       `json:"Information"`
}

// Fetch pulls the latest financial-markets news batch.
func (s *AlphaVantageSource) Fetch(ctx context.Context) ([]domain.Article, error) {
	q := url.Values{}
	q.Set("function", "NEWS_SENTIMENT")
	q.Set("topics", "financial_markets")
	q.Set("sort", "LATEST")
	q.Set("limit", "50")
	q.Set("apikey", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", s.name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s body: %w", s.name, err)
	}

	var parsed avResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse %s payload: %w", s.name, err)
	}
	// Alpha Vantage signals throttling with a 200 plus a note.
	if len(parsed.Feed) == 0 && (parsed.Note != "" || parsed.Information != "") {
		return nil, ErrRateLimited
	}

	now := s.now()
	articles := make([]domain.Article, 0, len(parsed.Feed))
	for _, item := range parsed.Feed {
		if item.URL == "" || item.Title == "" {
			continue
		}
		published, err := time.Parse(avTimeFormat, item.TimePublished)
		if err != nil {
			published = now
		}
		articles = append(articles, domain.Article{
			ID:          idhash.ComputeArticleID(item.URL),
			Source:      s.name,
			Title:       item.Title,
			URL:         item.URL,
			PublishedAt: published,
			FetchedAt:   now,
			RawText:     item.Summary,
		})
	}
	return articles, nil
}
