package torznab

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"btstrm/internal/domain"
)

const (
	defaultUserAgent = "btstrm/1.0"
	maxPayloadBytes  = 8 * 1024 * 1024
	maxErrorBody     = 2048
)

var ErrNotConfigured = errors.New("jackett api key is not configured")

type Config struct {
	BaseURL   string
	APIKey    string
	UserAgent string
	Client    *http.Client
	// RatePerSecond caps outgoing requests across all indexers. Zero means unlimited.
	RatePerSecond float64
}

// Client talks to a Jackett instance through its per-indexer torznab endpoints.
type Client struct {
	baseURL   string
	apiKey    string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

func New(cfg Config) *Client {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		userAgent: userAgent,
		client:    client,
		limiter:   limiter,
	}
}

// ListIndexers returns the ids of the indexers configured in Jackett, in the
// order Jackett reports them.
func (c *Client) ListIndexers(ctx context.Context) ([]domain.IndexerID, error) {
	params := url.Values{}
	params.Set("t", "indexers")
	params.Set("configured", "true")

	payload, err := c.get(ctx, "all", params)
	if err != nil {
		return nil, err
	}
	return parseIndexers(payload)
}

func (c *Client) Search(ctx context.Context, indexer domain.IndexerID, query string) ([]domain.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query is required")
	}
	params := url.Values{}
	params.Set("t", "search")
	params.Set("q", query)

	payload, err := c.get(ctx, string(indexer), params)
	if err != nil {
		return nil, err
	}
	items, err := parseItems(payload)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Candidate, 0, len(items))
	for _, item := range items {
		out = append(out, item.toCandidate(indexer))
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, indexer string, params url.Values) ([]byte, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params.Set("apikey", c.apiKey)
	endpoint := fmt.Sprintf("%s/api/v2.0/indexers/%s/results/torznab/api?%s",
		c.baseURL, url.PathEscape(indexer), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/xml,text/xml,application/rss+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, statusError(resp.StatusCode, strings.TrimSpace(string(body)))
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, err
	}
	if err := apiError(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func statusError(code int, body string) error {
	kind := domain.FailureRejected
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		kind = domain.FailureTimeout
	case code == http.StatusTooManyRequests, code >= 500:
		kind = domain.FailureUnavailable
	}
	return &domain.IndexerError{
		Kind:    kind,
		Code:    code,
		Message: fmt.Sprintf("torznab HTTP %d: %s", code, body),
	}
}

// torznabError is the body Jackett sends, with status 200, when an indexer
// refuses a query.
type torznabError struct {
	XMLName     xml.Name `xml:"error"`
	Code        string   `xml:"code,attr"`
	Description string   `xml:"description,attr"`
}

// apiError returns the torznab <error> carried by payload, or nil when the
// root element is anything else.
func apiError(payload []byte) error {
	var body torznabError
	if err := xml.Unmarshal(payload, &body); err != nil {
		return nil
	}
	return &domain.IndexerError{
		Kind:    domain.FailureRejected,
		Code:    parseInt(body.Code),
		Message: fmt.Sprintf("torznab error %s: %s", strings.TrimSpace(body.Code), strings.TrimSpace(body.Description)),
	}
}

func payloadError(what string, err error) error {
	return &domain.IndexerError{Kind: domain.FailurePayload, Message: "invalid torznab " + what, Err: err}
}

type indexersResponse struct {
	Indexers []struct {
		ID string `xml:"id,attr"`
	} `xml:"indexer"`
}

func parseIndexers(payload []byte) ([]domain.IndexerID, error) {
	var resp indexersResponse
	if err := xml.Unmarshal(payload, &resp); err != nil {
		return nil, payloadError("indexers XML", err)
	}
	out := make([]domain.IndexerID, 0, len(resp.Indexers))
	for _, indexer := range resp.Indexers {
		if id := strings.TrimSpace(indexer.ID); id != "" {
			out = append(out, domain.IndexerID(id))
		}
	}
	return out, nil
}

type torznabResponse struct {
	Channel struct {
		Items []torznabItem `xml:"item"`
	} `xml:"channel"`
}

type torznabItem struct {
	Title *string `xml:"title"`
	Link  *string `xml:"link"`
	Size  *string `xml:"size"`
	// Every other child lands here; seeders is read from whichever carries name="seeders".
	Extra []torznabAttr `xml:",any"`
}

type torznabAttr struct {
	XMLName xml.Name
	Name    string `xml:"name,attr"`
	Value   string `xml:"value,attr"`
}

func parseItems(payload []byte) ([]torznabItem, error) {
	var rss torznabResponse
	if err := xml.Unmarshal(payload, &rss); err != nil {
		return nil, payloadError("XML", err)
	}
	return rss.Channel.Items, nil
}

func (item torznabItem) attr(name string) (string, bool) {
	for _, attr := range item.Extra {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return "", false
}

func (item torznabItem) toCandidate(indexer domain.IndexerID) domain.Candidate {
	seeders := 0
	if raw, ok := item.attr("seeders"); ok {
		seeders = parseInt(raw)
	}
	var size uint64
	switch {
	case item.Size != nil:
		size = parseUint(*item.Size)
	default:
		if raw, ok := item.attr("size"); ok {
			size = parseUint(raw)
		}
	}
	return domain.NewCandidate(indexer, deref(item.Title), deref(item.Link), seeders, size)
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func parseInt(raw string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return value
}

func parseUint(raw string) uint64 {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return value
}
