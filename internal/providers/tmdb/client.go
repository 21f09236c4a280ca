package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"btstrm/internal/cache"
)

const (
	defaultBaseURL   = "https://api.themoviedb.org/3"
	defaultPosterURL = "https://image.tmdb.org/t/p/w300"
	defaultLanguage  = "es-ES"
	maxResponseBytes = 512 * 1024
	requestTimeout   = 10 * time.Second
)

var ErrDisabled = errors.New("title lookup is disabled: no TMDB API key configured")

// Titles caches SearchMulti answers by query and language.
type Titles = cache.Store[[]SearchResult]

type Config struct {
	APIKey  string
	BaseURL string
	// PosterBaseURL is where poster_path values are resolved. Defaults to the w300 image CDN.
	PosterBaseURL string
	Client        *http.Client
	Cache         Titles
}

// Client resolves free text to movie and tv titles.
type Client struct {
	apiKey     string
	baseURL    string
	posterBase string
	http       *http.Client
	cache      Titles
}

func NewClient(cfg Config) *Client {
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   requestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    trimmedOr(cfg.BaseURL, defaultBaseURL),
		posterBase: trimmedOr(cfg.PosterBaseURL, defaultPosterURL),
		http:       httpClient,
		cache:      cfg.Cache,
	}
}

func trimmedOr(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		value = fallback
	}
	return strings.TrimRight(value, "/")
}

func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// SearchResult is one /search/multi hit.
type SearchResult struct {
	ID           int     `json:"id"`
	Title        string  `json:"title,omitempty"`
	Name         string  `json:"name,omitempty"`
	PosterPath   string  `json:"poster_path,omitempty"`
	VoteAverage  float64 `json:"vote_average,omitempty"`
	ReleaseDate  string  `json:"release_date,omitempty"`
	FirstAirDate string  `json:"first_air_date,omitempty"`
	MediaType    string  `json:"media_type,omitempty"`
}

// DisplayTitle is the movie title or, for tv, the show name.
func (r SearchResult) DisplayTitle() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Name
}

// Year is the release or first air year, zero when the date is missing or malformed.
func (r SearchResult) Year() int {
	date := r.ReleaseDate
	if date == "" {
		date = r.FirstAirDate
	}
	if len(date) < 4 {
		return 0
	}
	year := 0
	for _, c := range date[:4] {
		if c < '0' || c > '9' {
			return 0
		}
		year = year*10 + int(c-'0')
	}
	return year
}

func (r SearchResult) PosterURL() string {
	return posterURL(defaultPosterURL, r.PosterPath)
}

func (r SearchResult) playable() bool {
	return r.MediaType == "movie" || r.MediaType == "tv"
}

func posterURL(base, path string) string {
	if path == "" {
		return ""
	}
	return base + path
}

// SearchMulti returns the movie and tv matches for query in lang. People are
// dropped since they have nothing to stream.
func (c *Client) SearchMulti(ctx context.Context, query string, lang string) ([]SearchResult, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	query = strings.TrimSpace(query)
	if lang == "" {
		lang = defaultLanguage
	}

	key := "multi:" + lang + ":" + strings.ToLower(query)
	if c.cache != nil {
		if results, ok := c.cache.Get(ctx, key); ok {
			return results, nil
		}
	}

	var page struct {
		Results []SearchResult `json:"results"`
	}
	if err := c.getJSON(ctx, "/search/multi", url.Values{"query": {query}, "language": {lang}}, &page); err != nil {
		return nil, err
	}

	results := page.Results[:0]
	for _, r := range page.Results {
		if r.playable() {
			results = append(results, r)
		}
	}
	if c.cache != nil {
		c.cache.Set(ctx, key, results)
	}
	return results, nil
}

// getJSON calls an API path with the key attached and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("api_key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxResponseBytes)
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Message string `json:"status_message"`
		}
		raw, _ := io.ReadAll(body)
		if json.Unmarshal(raw, &apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return fmt.Errorf("tmdb HTTP %d: %s", resp.StatusCode, apiErr.Message)
	}
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decode tmdb %s: %w", path, err)
	}
	return nil
}
