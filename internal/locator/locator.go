package locator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/gofrs/flock"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	bittorrentMIME  = "application/x-bittorrent"
	maxTorrentBytes = 16 * 1024 * 1024
)

var ErrUnsupported = errors.New("unsupported locator")

// Locator is what the mounter receives. InfoHash and Name are best effort and
// only used for display and history.
type Locator struct {
	URI      string `json:"uri" bson:"uri"`
	InfoHash string `json:"infoHash,omitempty" bson:"infoHash,omitempty"`
	Name     string `json:"name,omitempty" bson:"name,omitempty"`
}

func (l Locator) Display() string {
	if l.Name != "" {
		return l.Name
	}
	if l.InfoHash != "" {
		return l.InfoHash
	}
	return l.URI
}

// IsDirect reports whether raw can be mounted without a search: a magnet URI,
// a .torrent path, or a download link served by the Jackett instance.
func IsDirect(raw, jackettURL string) bool {
	value := strings.TrimSpace(raw)
	lower := strings.ToLower(value)
	if strings.HasPrefix(lower, "magnet:") || strings.HasSuffix(lower, ".torrent") {
		return true
	}
	base := strings.TrimRight(strings.TrimSpace(jackettURL), "/")
	return base != "" && strings.HasPrefix(value, base+"/")
}

type Config struct {
	TorrentDir string
	UserAgent  string
	Client     *http.Client
	Logger     *slog.Logger
}

type Resolver struct {
	torrentDir string
	userAgent  string
	client     *http.Client
	logger     *slog.Logger
}

func NewResolver(cfg Config) *Resolver {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	// Jackett answers download links with either the torrent body or a redirect
	// to a magnet; the redirect must be seen, not followed.
	noRedirect := *client
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		torrentDir: cfg.TorrentDir,
		userAgent:  cfg.UserAgent,
		client:     &noRedirect,
		logger:     logger,
	}
}

func (r *Resolver) Resolve(ctx context.Context, raw string) (Locator, error) {
	return r.resolve(ctx, strings.TrimSpace(raw), 1)
}

func (r *Resolver) resolve(ctx context.Context, raw string, hops int) (Locator, error) {
	lower := strings.ToLower(raw)
	switch {
	case raw == "":
		return Locator{}, fmt.Errorf("%w: empty input", ErrUnsupported)
	case strings.HasPrefix(lower, "magnet:"):
		return parseMagnet(raw)
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return r.fetch(ctx, raw, hops)
	case strings.HasSuffix(lower, ".torrent"):
		return loadTorrentFile(raw)
	default:
		return Locator{}, fmt.Errorf("%w: %q", ErrUnsupported, raw)
	}
}

func parseMagnet(raw string) (Locator, error) {
	magnet, err := metainfo.ParseMagnetUri(raw)
	if err != nil {
		return Locator{}, fmt.Errorf("parse magnet: %w", err)
	}
	return Locator{URI: raw, InfoHash: magnet.InfoHash.HexString(), Name: magnet.DisplayName}, nil
}

func loadTorrentFile(path string) (Locator, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Locator{}, err
	}
	mi, err := metainfo.LoadFromFile(abs)
	if err != nil {
		return Locator{}, fmt.Errorf("load torrent %s: %w", abs, err)
	}
	return fromMetaInfo(abs, mi), nil
}

func fromMetaInfo(uri string, mi *metainfo.MetaInfo) Locator {
	loc := Locator{URI: uri, InfoHash: mi.HashInfoBytes().HexString()}
	if info, err := mi.UnmarshalInfo(); err == nil {
		loc.Name = info.Name
	}
	return loc
}

func (r *Resolver) fetch(ctx context.Context, rawURL string, hops int) (Locator, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Locator{}, err
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return Locator{}, fmt.Errorf("fetch locator: %w", err)
	}
	defer resp.Body.Close()

	if location := strings.TrimSpace(resp.Header.Get("Location")); location != "" && isRedirect(resp.StatusCode) {
		if hops <= 0 {
			return Locator{}, fmt.Errorf("%w: too many redirects from %s", ErrUnsupported, rawURL)
		}
		r.logger.Debug("locator redirect", slog.String("location", location))
		return r.resolve(ctx, location, hops-1)
	}
	if resp.StatusCode != http.StatusOK {
		return Locator{}, fmt.Errorf("fetch locator: HTTP %d", resp.StatusCode)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != bittorrentMIME {
		return Locator{}, fmt.Errorf("%w: content type %q", ErrUnsupported, mediaType)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTorrentBytes))
	if err != nil {
		return Locator{}, fmt.Errorf("read torrent: %w", err)
	}
	mi, err := metainfo.Load(bytes.NewReader(body))
	if err != nil {
		return Locator{}, fmt.Errorf("decode torrent: %w", err)
	}

	loc := fromMetaInfo("", mi)
	path, err := r.store(loc.InfoHash, body)
	if err != nil {
		return Locator{}, err
	}
	loc.URI = path
	return loc, nil
}

func isRedirect(status int) bool {
	return status >= 300 && status < 400
}

// store writes the torrent under its info hash. Concurrent btstrm processes
// share the directory, so the write happens under a file lock and lands via
// rename.
func (r *Resolver) store(infoHash string, body []byte) (string, error) {
	if r.torrentDir == "" {
		return "", errors.New("torrent directory is not configured")
	}
	if err := os.MkdirAll(r.torrentDir, 0o755); err != nil {
		return "", err
	}

	lock := flock.New(filepath.Join(r.torrentDir, ".lock"))
	if err := lock.Lock(); err != nil {
		return "", fmt.Errorf("lock torrent dir: %w", err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Warn("unlock torrent dir", slog.String("error", err.Error()))
		}
	}()

	path := filepath.Join(r.torrentDir, infoHash+".torrent")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	tmp, err := os.CreateTemp(r.torrentDir, infoHash+"-*.part")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return path, nil
}
