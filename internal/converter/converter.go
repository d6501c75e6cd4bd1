// Package converter talks to the external affiliate backend that turns
// marketplace product links into tracked affiliate links.
package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"promolink/internal/linkx"
	"promolink/internal/retry"
)

const convertPath = "/api/shopee/convert"

var (
	// ErrRejected matches backend 4xx answers other than 429.
	ErrRejected = errors.New("conversion rejected")
	// ErrEmptyResult means the backend answered 2xx without a link.
	ErrEmptyResult = errors.New("backend returned no affiliate link")
)

// StatusError carries a non-2xx backend answer.
type StatusError struct {
	Code int
	Msg  string
}

func (e *StatusError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("convert: status %d", e.Code)
	}
	return fmt.Sprintf("convert: status %d: %s", e.Code, e.Msg)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrRejected && e.Code >= 400 && e.Code < 500 && e.Code != http.StatusTooManyRequests
}

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Cache      Cache
	CacheTTL   time.Duration
	Extractor  *linkx.Extractor
	Retry      *retry.Policy
	Logger     *zap.SugaredLogger
}

// Client is safe for concurrent use.
type Client struct {
	baseURL   string
	apiKey    string
	http      *http.Client
	cache     Cache
	ttl       time.Duration
	extractor *linkx.Extractor
	policy    retry.Policy
	log       *zap.SugaredLogger
}

func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	cache := opts.Cache
	if cache == nil {
		cache = NopCache{}
	}
	ext := opts.Extractor
	if ext == nil {
		ext = linkx.New()
	}
	policy := retry.Default
	if opts.Retry != nil {
		policy = *opts.Retry
	}
	policy.Retryable = isRetryable
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		apiKey:    opts.APIKey,
		http:      hc,
		cache:     cache,
		ttl:       opts.CacheTTL,
		extractor: ext,
		policy:    policy,
		log:       log,
	}
}

// Extractor exposes the link classifier the client converts with.
func (c *Client) Extractor() *linkx.Extractor { return c.extractor }

// Result of one link conversion.
type Result struct {
	Original    string `json:"original_url"`
	Affiliate   string `json:"affiliate_url,omitempty"`
	Marketplace string `json:"marketplace"`
	Cached      bool   `json:"cached"`
	Error       string `json:"error,omitempty"`
	Err         error  `json:"-"`
}

type convertRequest struct {
	URL string `json:"url"`
}

type convertResponse struct {
	AffiliateURL string `json:"affiliate_url"`
	ShortLink    string `json:"short_link"`
	Error        string `json:"error"`
}

// Convert returns the affiliate link for rawURL, consulting the cache first.
func (c *Client) Convert(ctx context.Context, rawURL string) (Result, error) {
	res := Result{Original: rawURL}
	res.Marketplace, _ = c.extractor.Marketplace(rawURL)

	if aff, ok, err := c.cache.Get(ctx, rawURL); err != nil {
		c.log.Warnw("conversion_cache_get_failed", "url", rawURL, "err", err)
	} else if ok {
		res.Affiliate = aff
		res.Cached = true
		return res, nil
	}

	var aff string
	attempts, err := c.policy.Do(ctx, func() error {
		var err error
		aff, err = c.call(ctx, rawURL)
		return err
	})
	if err != nil {
		c.log.Warnw("conversion_failed", "url", rawURL, "attempts", attempts, "err", err)
		res.Err = err
		res.Error = err.Error()
		return res, err
	}
	res.Affiliate = aff

	if err := c.cache.Set(ctx, rawURL, aff, c.ttl); err != nil {
		c.log.Warnw("conversion_cache_set_failed", "url", rawURL, "err", err)
	}
	c.log.Debugw("conversion_ok", "url", rawURL, "affiliate", aff, "attempts", attempts)
	return res, nil
}

func (c *Client) call(ctx context.Context, rawURL string) (string, error) {
	body, err := json.Marshal(convertRequest{URL: rawURL})
	if err != nil {
		return "", retry.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+convertPath, bytes.NewReader(body))
	if err != nil {
		return "", retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	var out convertResponse
	decodeErr := json.Unmarshal(raw, &out)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg := strings.TrimSpace(out.Error)
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(raw))
			if len(msg) > 200 {
				msg = msg[:200]
			}
		}
		return "", &StatusError{Code: res.StatusCode, Msg: msg}
	}
	if decodeErr != nil {
		return "", retry.Permanent(fmt.Errorf("decode response: %w", decodeErr))
	}
	aff := strings.TrimSpace(out.AffiliateURL)
	if aff == "" {
		aff = strings.TrimSpace(out.ShortLink)
	}
	if aff == "" {
		return "", retry.Permanent(ErrEmptyResult)
	}
	return aff, nil
}

func isRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || (se.Code >= 500 && se.Code <= 599)
	}
	return retry.IsTransient(err)
}

// TextResult is a message with its marketplace links swapped for affiliate links.
type TextResult struct {
	Text  string   `json:"text"`
	Links []Result `json:"links"`
}

// Converted returns the successful results in order.
func (r TextResult) Converted() []Result {
	var out []Result
	for _, l := range r.Links {
		if l.Err == nil && l.Affiliate != "" {
			out = append(out, l)
		}
	}
	return out
}

// ConvertText converts every marketplace link in text. Each occurrence is
// replaced in place; links that fail to convert stay as posted. Repeated
// links are converted once.
func (c *Client) ConvertText(ctx context.Context, text string) TextResult {
	return c.ConvertTextFunc(ctx, text, nil)
}

// ConvertTextFunc is ConvertText restricted to the links keep accepts. The
// others are neither converted nor reported and stay as posted. A nil keep
// accepts every link.
func (c *Client) ConvertTextFunc(ctx context.Context, text string, keep func(link string) bool) TextResult {
	found := c.extractor.Extract(text)
	out := TextResult{Text: text, Links: []Result{}}
	if len(found) == 0 {
		return out
	}

	done := make(map[string]Result, len(found))
	var b strings.Builder
	pos := 0
	for _, u := range found {
		replacement := u
		if keep == nil || keep(u) {
			r, ok := done[u]
			if !ok {
				r, _ = c.Convert(ctx, u)
				done[u] = r
				out.Links = append(out.Links, r)
			}
			if r.Err == nil && r.Affiliate != "" {
				replacement = r.Affiliate
			}
		}
		idx := strings.Index(text[pos:], u)
		if idx < 0 {
			continue
		}
		b.WriteString(text[pos : pos+idx])
		b.WriteString(replacement)
		pos += idx + len(u)
	}
	b.WriteString(text[pos:])
	out.Text = b.String()
	return out
}
