// Package feeds lists syndication feed items and extracts readable article text.
package feeds

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

const (
	defaultTimeout       = 5 * time.Second
	defaultMaxContentLen = 20000
	defaultUserAgent     = "Mozilla/5.0 (compatible; Socrates/1.0)"
	maxBodySize          = 10 << 20

	escapedAmpersand = "&#038;"
)

// ErrExtractFailed is returned when every step of the extraction ladder fails.
var ErrExtractFailed = errors.New("extract content failed")

// Candidate is one feed item awaiting extraction.
type Candidate struct {
	Title string
	Link  string
	GUID  string
}

// Link is an article whose readable text was extracted successfully. Its
// position in a batch is the correlation key used when scoring.
type Link struct {
	URL     string
	Title   string
	Excerpt string
}

// Fetcher lists feed items and extracts article text.
type Fetcher struct {
	httpClient    *http.Client
	userAgent     string
	maxContentLen int
	readable      func(io.Reader, *url.URL) (readability.Article, error)
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.httpClient = c
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxContentLength caps the extracted text length in bytes.
func WithMaxContentLength(n int) Option {
	return func(f *Fetcher) {
		f.maxContentLen = n
	}
}

// NewFetcher creates a Fetcher. The default client skips TLS verification so
// that sources with self-signed or misconfigured certificates still load.
func NewFetcher(opts ...Option) *Fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	f := &Fetcher{
		httpClient:    &http.Client{Timeout: defaultTimeout, Transport: transport},
		userAgent:     defaultUserAgent,
		maxContentLen: defaultMaxContentLen,
		readable:      readability.FromReader,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type page struct {
	url         *url.URL
	body        []byte
	contentType string
}

// ExtractContent runs the fallback ladder for one candidate: the link, then
// the GUID, then the link with "&#038;" unescaped; readability on the first
// page that loads, then readability again after charset-aware re-encoding.
func (f *Fetcher) ExtractContent(ctx context.Context, c Candidate) (*Link, error) {
	p, err := f.fetchFirst(ctx, candidateURLs(c))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractFailed, err)
	}

	link, err := f.parse(bytes.NewReader(p.body), p.url)
	if err == nil {
		return withTitle(link, c), nil
	}
	slog.Debug("readability failed, retrying with re-encoded body", "url", p.url.String(), "error", err)

	reencoded, rerr := reencode(p.body, p.contentType)
	if rerr != nil {
		return nil, fmt.Errorf("%w: re-encode %s: %v", ErrExtractFailed, p.url, rerr)
	}
	link, err = f.parse(bytes.NewReader(reencoded), p.url)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrExtractFailed, p.url, err)
	}
	return withTitle(link, c), nil
}

func withTitle(link *Link, c Candidate) *Link {
	if link.Title == "" {
		link.Title = strings.TrimSpace(c.Title)
	}
	return link
}

func candidateURLs(c Candidate) []string {
	var urls []string
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" {
			return
		}
		for _, existing := range urls {
			if existing == u {
				return
			}
		}
		urls = append(urls, u)
	}

	add(c.Link)
	add(c.GUID)
	if strings.Contains(c.Link, escapedAmpersand) {
		add(strings.ReplaceAll(c.Link, escapedAmpersand, "&"))
	}
	if strings.Contains(c.GUID, escapedAmpersand) {
		add(strings.ReplaceAll(c.GUID, escapedAmpersand, "&"))
	}
	return urls
}

func (f *Fetcher) fetchFirst(ctx context.Context, urls []string) (*page, error) {
	if len(urls) == 0 {
		return nil, errors.New("no url to fetch")
	}

	var lastErr error
	for _, u := range urls {
		p, err := f.fetch(ctx, u)
		if err == nil {
			return p, nil
		}
		slog.Debug("article fetch attempt failed", "url", u, "error", err)
		lastErr = err
	}
	return nil, lastErr
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (*page, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %s", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty response body")
	}

	return &page{url: parsedURL, body: body, contentType: resp.Header.Get("Content-Type")}, nil
}

func (f *Fetcher) parse(r io.Reader, pageURL *url.URL) (*Link, error) {
	article, err := f.readable(r, pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}

	content := strings.TrimSpace(article.TextContent)
	if content == "" {
		return nil, errors.New("no readable content")
	}
	if f.maxContentLen > 0 && len(content) > f.maxContentLen {
		content = strings.ToValidUTF8(content[:f.maxContentLen], "")
	}

	return &Link{
		URL:     pageURL.String(),
		Title:   strings.TrimSpace(article.Title),
		Excerpt: content,
	}, nil
}

// reencode decodes body using the charset declared in contentType (or
// sniffed from the document) and re-serialises it as UTF-8 through the HTML
// tokenizer, which normalises entities and repairs malformed markup.
func reencode(body []byte, contentType string) ([]byte, error) {
	label := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		label = params["charset"]
	}

	var r io.Reader
	var err error
	if label != "" {
		r, err = charset.NewReaderLabel(label, bytes.NewReader(body))
	} else {
		r, err = charset.NewReader(bytes.NewReader(body), contentType)
	}
	if err != nil {
		return nil, fmt.Errorf("charset reader: %w", err)
	}

	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}
