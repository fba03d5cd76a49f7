package idhash

import (
	"testing"
)

func TestComputeArticleID(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantLen int // hash length should be 64
	}{
		{
			name:    "basic url",
			url:     "https://example.com/markets/fed-cuts-rates",
			wantLen: 64,
		},
		{
			name:    "url with query",
			url:     "https://news.example.org/article?id=991&src=rss",
			wantLen: 64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeArticleID(tt.url)

			if len(got) != tt.wantLen {
				t.Errorf("ComputeArticleID() length = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestComputeArticleID_Deterministic(t *testing.T) {
	url := "https://example.com/markets/vix-spikes"

	id1 := ComputeArticleID(url)
	id2 := ComputeArticleID(url)

	if id1 != id2 {
		t.Errorf("same URL produced different IDs: %s vs %s", id1, id2)
	}
}

func TestComputeArticleID_NormalizedVariants(t *testing.T) {
	base := ComputeArticleID("https://example.com/a/b")

	variants := []string{
		"http://example.com/a/b",
		"https://www.example.com/a/b",
		"HTTPS://EXAMPLE.COM/A/B",
		"https://example.com/a/b/",
		"  https://example.com/a/b  ",
	}

	for _, v := range variants {
		if got := ComputeArticleID(v); got != base {
			t.Errorf("variant %q hashed differently", v)
		}
	}
}

func TestComputeArticleID_DifferentURLsDiffer(t *testing.T) {
	a := ComputeArticleID("https://example.com/a")
	b := ComputeArticleID("https://example.com/b")

	if a == b {
		t.Error("different URLs produced the same ID")
	}
}
