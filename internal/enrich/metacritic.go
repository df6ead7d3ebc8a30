package enrich

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"gamehoard/internal/logging"
	"gamehoard/internal/sources"
)

const metacriticGameURL = "https://www.metacritic.com/game/%s/"

// MetacriticClient scrapes scores from a game page by slug. There is no
// public API; the page markup is the contract.
type MetacriticClient struct {
	http    *resty.Client
	baseURL string
}

// NewMetacriticClient builds the client. Metacritic blocks default
// library user agents, so a browser-like one is required.
func NewMetacriticClient() *MetacriticClient {
	return &MetacriticClient{
		http: resty.New().
			SetTimeout(10 * time.Second).
			SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36"),
	}
}

// Scores is one scrape result. Either score may be absent ("tbd").
type Scores struct {
	Critic *float64
	User   *float64
}

var (
	criticScoreRe = regexp.MustCompile(`"criticScoreSummary"\s*:\s*{[^}]*?"score"\s*:\s*(\d+)`)
	userScoreRe   = regexp.MustCompile(`"userScoreSummary"\s*:\s*{[^}]*?"score"\s*:\s*([\d.]+)`)

	// Older page markup fallback.
	metascoreSpanRe = regexp.MustCompile(`itemprop="ratingValue">(\d+)<`)
)

// SlugFromName derives the Metacritic URL slug from a title, the same
// way the site does: lowercase, punctuation dropped, spaces to dashes.
func SlugFromName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case r == ' ' || r == '-' || r == ':' || r == '_':
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Fetch scrapes the page for one slug. A 404 is ErrNotFound so callers
// can record a definitive miss.
func (c *MetacriticClient) Fetch(ctx context.Context, slug string) (*Scores, error) {
	if slug == "" {
		return nil, fmt.Errorf("metacritic: empty slug: %w", sources.ErrParse)
	}

	url := fmt.Sprintf(metacriticGameURL, slug)
	if c.baseURL != "" {
		url = fmt.Sprintf(c.baseURL+"/game/%s/", slug)
	}

	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("metacritic: %s: %w: %v", slug, sources.ErrNetwork, err)
	}
	switch {
	case resp.StatusCode() == 404:
		return nil, fmt.Errorf("metacritic: no page for %s: %w", slug, sources.ErrNotFound)
	case resp.StatusCode() == 429:
		return nil, fmt.Errorf("metacritic: %w", sources.ErrRateLimited)
	case resp.IsError():
		return nil, fmt.Errorf("metacritic: %s: status %d: %w", slug, resp.StatusCode(), sources.ErrNetwork)
	}

	scores := parseScores(resp.String())
	if scores.Critic == nil && scores.User == nil {
		return nil, fmt.Errorf("metacritic: no scores in page for %s: %w", slug, sources.ErrParse)
	}
	logging.EnrichDebug("Metacritic %s: critic=%v user=%v", slug, scores.Critic, scores.User)
	return scores, nil
}

func parseScores(page string) *Scores {
	scores := &Scores{}

	if m := criticScoreRe.FindStringSubmatch(page); len(m) > 1 {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			scores.Critic = &v
		}
	} else if m := metascoreSpanRe.FindStringSubmatch(page); len(m) > 1 {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			scores.Critic = &v
		}
	}

	if m := userScoreRe.FindStringSubmatch(page); len(m) > 1 {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			// User scores are 0-10; store on the same 0-100 scale as
			// every other source.
			v *= 10
			scores.User = &v
		}
	}
	return scores
}
