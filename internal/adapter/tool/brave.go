package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"fcfilter/internal/domain"
	"fcfilter/internal/infra/config"
	"fcfilter/internal/security"
)

const (
	braveKeyMissing = "Brave API Key not set, ask the user to set it up."
	pageAgeLayout   = "2006-01-02T15:04:05"
)

const rephrasePrompt = "You have this question from user: '%s'. Rephrase the question for a better web search " +
	"using a MAXIMUM of 5 words, do not use more than 5 words. Reply only with the rephrased question."

// BraveSearch provides the bravesearch tool: a Brave web search whose recent
// hits are read through a text-extraction proxy and condensed.
type BraveSearch struct {
	cfg       config.BraveConfig
	apiKey    string
	rephraser domain.TextGenerator
	limiter   *rate.Limiter
	api       *http.Client
	fetch     *http.Client
	checkURL  func(ctx context.Context, rawURL string) error
	now       func() time.Time
	logger    *slog.Logger
}

// NewBraveSearch creates the search tool. rephraser may be nil, in which case
// a malformed search response is not retried.
func NewBraveSearch(cfg config.BraveConfig, apiKey string, rephraser domain.TextGenerator, logger *slog.Logger) *BraveSearch {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &BraveSearch{
		cfg:       cfg,
		apiKey:    apiKey,
		rephraser: rephraser,
		limiter:   rate.NewLimiter(limit, 1),
		api:       &http.Client{Timeout: 15 * time.Second},
		fetch:     security.NewSafeClient(20 * time.Second),
		checkURL:  security.ValidateURL,
		now:       time.Now,
		logger:    logger,
	}
}

// Spec returns the builder for bravesearch.
func (b *BraveSearch) Spec() *SpecBuilder {
	return NewSpec("bravesearch", "Perform a web search with Brave search and scrape the websites founded in the search.").
		Param("query", domain.ParamString, "the user question.").
		Handler(b.handle)
}

type braveResult struct {
	URL     string `json:"url"`
	PageAge string `json:"page_age"`
}

type braveResponse struct {
	Web *struct {
		Results []braveResult `json:"results"`
	} `json:"web"`
}

func (b *BraveSearch) handle(ctx context.Context, args domain.ToolArgs) (string, error) {
	if b.apiKey == "" {
		return braveKeyMissing, nil
	}

	query := args.String("query")
	results, err := b.searchWithRetry(ctx, query)
	if err != nil {
		return "", err
	}

	cutoff := b.now().Add(-b.cfg.MaxAge)
	var pages []string
	for _, r := range results {
		if r.URL == "" || r.PageAge == "" {
			continue
		}
		age, err := time.Parse(pageAgeLayout, r.PageAge)
		if err != nil || !age.After(cutoff) {
			continue
		}
		pages = append(pages, r.URL)
		if len(pages) == b.cfg.MaxPages {
			break
		}
	}

	var sentences []string
	for _, page := range pages {
		s, err := b.scrape(ctx, page)
		if err != nil {
			b.logger.WarnContext(ctx, "scrape failed", "url", page, "error", err)
			continue
		}
		sentences = append(sentences, s...)
	}
	b.logger.DebugContext(ctx, "brave search done",
		"query", query, "results", len(results), "pages", len(pages), "sentences", len(sentences))
	return strings.Join(sentences, "\n"), nil
}

// searchWithRetry retries a response without web results using a rephrased
// query, at most cfg.MaxRetries times. Each rephrasing starts from query.
func (b *BraveSearch) searchWithRetry(ctx context.Context, query string) ([]braveResult, error) {
	current := query
	for attempt := 0; ; attempt++ {
		results, ok, err := b.search(ctx, current)
		if err != nil {
			return nil, err
		}
		if ok {
			return results, nil
		}
		if attempt >= b.cfg.MaxRetries || b.rephraser == nil {
			return nil, fmt.Errorf("search response has no web results after %d attempts", attempt+1)
		}

		rephrased, err := b.rephraser.Generate(ctx, fmt.Sprintf(rephrasePrompt, query))
		if err != nil {
			return nil, fmt.Errorf("rephrase query: %w", err)
		}
		b.logger.InfoContext(ctx, "retrying search with rephrased query", "query", query, "rephrased", rephrased)
		if strings.TrimSpace(rephrased) != "" {
			current = rephrased
		}
	}
}

// search returns ok=false when the response decodes but has no web.results.
func (b *BraveSearch) search(ctx context.Context, query string) ([]braveResult, bool, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}

	q := url.Values{}
	q.Set("q", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.api.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxBodySize))
	if err != nil {
		return nil, false, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, false, fmt.Errorf("%w: brave status %d", domain.ErrAuthInvalid, resp.StatusCode)
	}

	var data braveResponse
	if err := json.Unmarshal(body, &data); err != nil || data.Web == nil || data.Web.Results == nil {
		b.logger.DebugContext(ctx, "search response without web results", "status", resp.StatusCode)
		return nil, false, nil
	}
	return data.Web.Results, true, nil
}

func (b *BraveSearch) scrape(ctx context.Context, page string) ([]string, error) {
	if err := b.checkURL(ctx, page); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.ReaderURL+page, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := b.fetch.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reader request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reader status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return condense(string(body)), nil
}
