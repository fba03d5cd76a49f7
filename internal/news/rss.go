package news

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"hightrade/internal/domain"
	"hightrade/internal/idhash"
)

// RSSSource fetches a single RSS 2.0 or Atom feed.
type RSSSource struct {
	name       string
	endpoint   string
	limiterKey string
	client     *http.Client
	now        func() time.Time
}

// RSSOptions configures an RSSSource.
type RSSOptions struct {
	Name       string
	Endpoint   string
	LimiterKey string
	Timeout    time.Duration
}

// NewRSSSource builds the source. A zero timeout defaults to 5s.
func NewRSSSource(opts RSSOptions) *RSSSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RSSSource{
		name:       opts.Name,
		endpoint:   opts.Endpoint,
		limiterKey: opts.LimiterKey,
		client:     &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

var _ Source = (*RSSSource)(nil)

func (s *RSSSource) Name() string           { return s.name }
func (s *RSSSource) RateLimiterKey() string { return s.limiterKey }

// rssDocument covers both RSS 2.0 (channel/item) and Atom (entry) layouts.
type rssDocument struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
	Entries []atomEntry `xml:"entry"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

type atomEntry struct {
	Title   string   `xml:"title"`
	Link    atomLink `xml:"link"`
	Summary string   `xml:"summary"`
	Updated string   `xml:"updated"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
}

func parsePubDate(s string, fallback time.Time) time.Time {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return fallback
}

// Fetch pulls and parses the feed.
func (s *RSSSource) Fetch(ctx context.Context) ([]domain.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "hightrade/1.0")

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

	var doc rssDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse %s feed: %w", s.name, err)
	}

	now := s.now()
	var articles []domain.Article
	for _, item := range doc.Channel.Items {
		if item.Link == "" || item.Title == "" {
			continue
		}
		articles = append(articles, domain.Article{
			ID:          idhash.ComputeArticleID(item.Link),
			Source:      s.name,
			Title:       item.Title,
			URL:         item.Link,
			PublishedAt: parsePubDate(item.PubDate, now),
			FetchedAt:   now,
			RawText:     item.Description,
		})
	}
	for _, entry := range doc.Entries {
		if entry.Link.Href == "" || entry.Title == "" {
			continue
		}
		articles = append(articles, domain.Article{
			ID:          idhash.ComputeArticleID(entry.Link.Href),
			Source:      s.name,
			Title:       entry.Title,
			URL:         entry.Link.Href,
			PublishedAt: parsePubDate(entry.Updated, now),
			FetchedAt:   now,
			RawText:     entry.Summary,
		})
	}
	return articles, nil
}
