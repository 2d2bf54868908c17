// Package integration handles external service interactions
package integration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/abelzeko/alerts-sync/internal/entities"
)

// DefaultFeedURL is the alert history endpoint
const DefaultFeedURL = "https://alerts-history.oref.org.il/Shared/Ajax/GetAlarmsHistory.aspx"

// feedTimeLayout is the ISO-8601 layout the feed accepts, seconds precision, no zone suffix
const feedTimeLayout = "2006-01-02T15:04:05"

// AlertSource fetches candidate alerts for a time range. A zero bound is
// unbounded on that side.
type AlertSource interface {
	FetchAlerts(ctx context.Context, from, to time.Time) ([]entities.Alert, error)
}

// AlertFeedOptions configures an AlertFeed
type AlertFeedOptions struct {
	URL       string
	Lang      string
	Mode      string
	ProxyURL  string
	UserAgent string
	Timeout   time.Duration  // Zero leaves timeouts to the caller's context
	Location  *time.Location // Zone the feed's timestamps are expressed in
}

// AlertFeed provides functionality to fetch alerts from the alert history feed
type AlertFeed struct {
	opts   AlertFeedOptions
	client *http.Client
}

// NewAlertFeed creates a new alert feed client
func NewAlertFeed(opts AlertFeedOptions) (*AlertFeed, error) {
	if opts.URL == "" {
		opts.URL = DefaultFeedURL
	}
	if opts.Lang == "" {
		opts.Lang = "he"
	}
	if opts.Mode == "" {
		opts.Mode = "0"
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	proxy := http.ProxyFromEnvironment
	if opts.ProxyURL != "" {
		u, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %v", opts.ProxyURL, err)
		}
		proxy = http.ProxyURL(u)
	}

	tr := &http.Transport{
		Proxy:               proxy,
		DialContext:         (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &AlertFeed{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout, Transport: tr},
	}, nil
}

// Endpoint returns the feed URL without query parameters
func (f *AlertFeed) Endpoint() string {
	return f.opts.URL
}

// RequestURL builds the feed URL for the given bounds
func (f *AlertFeed) RequestURL(from, to time.Time) (string, error) {
	u, err := url.Parse(f.opts.URL)
	if err != nil {
		return "", fmt.Errorf("invalid feed URL %q: %v", f.opts.URL, err)
	}
	q := u.Query()
	q.Set("lang", f.opts.Lang)
	q.Set("mode", f.opts.Mode)
	q.Set("fromDate", f.formatBound(from))
	q.Set("toDate", f.formatBound(to))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (f *AlertFeed) formatBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(f.opts.Location).Format(feedTimeLayout)
}

// FetchAlerts retrieves the alerts published between from and to. An empty
// feed response is an empty result, not an error.
func (f *AlertFeed) FetchAlerts(ctx context.Context, from, to time.Time) ([]entities.Alert, error) {
	endpoint, err := f.RequestURL(from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrFetchFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	log.Printf("Sending HTTP request to alert feed: %s", endpoint)
	res, err := f.client.Do(req)
	if err != nil {
		log.Printf("Error fetching alerts: %v", err)
		return nil, fmt.Errorf("%w: %v", entities.ErrFetchFailed, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", entities.ErrFetchFailed, err)
	}

	if looksLikeHTML(body) {
		title := htmlTitle(body)
		log.Printf("Received HTML page instead of alerts: %q (status %s)", title, res.Status)
		return nil, fmt.Errorf("%w: feed returned an HTML page %q with status %s", entities.ErrFetchFailed, title, res.Status)
	}

	// Check for successful response
	if res.StatusCode < 200 || res.StatusCode > 299 {
		log.Printf("Received unexpected status code: %d %s", res.StatusCode, res.Status)
		return nil, fmt.Errorf("%w: unexpected status code: %d %s", entities.ErrFetchFailed, res.StatusCode, res.Status)
	}

	alerts, err := ParseAlerts(body)
	if err != nil {
		return nil, err
	}
	log.Printf("Parsed %d alerts from feed", len(alerts))
	return alerts, nil
}

// ParseAlerts decodes a feed response body. Field order of each object is
// preserved in the alert's extra fields.
func ParseAlerts(body []byte) ([]entities.Alert, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: response is not valid JSON", entities.ErrFetchFailed)
	}

	doc := gjson.ParseBytes(body)
	if !doc.IsArray() {
		return nil, fmt.Errorf("%w: expected a JSON array, got %s", entities.ErrFetchFailed, doc.Type)
	}

	var (
		alerts []entities.Alert
		bad    error
	)
	doc.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			bad = fmt.Errorf("%w: alert #%d is not an object", entities.ErrFetchFailed, len(alerts))
			return false
		}

		alert := entities.NewAlert("", "", "")
		present := map[string]bool{}
		item.ForEach(func(key, value gjson.Result) bool {
			v := value.String()
			if value.Type == gjson.Number {
				v = value.Raw
			}
			alert.Set(key.String(), v)
			present[key.String()] = true
			return true
		})

		for _, required := range []string{entities.ColumnID, entities.ColumnDate, entities.ColumnTime} {
			if !present[required] {
				bad = fmt.Errorf("%w: alert #%d has no %q field", entities.ErrFetchFailed, len(alerts), required)
				return false
			}
		}
		alerts = append(alerts, alert)
		return true
	})
	if bad != nil {
		return nil, bad
	}
	return alerts, nil
}

// looksLikeHTML inspects the body rather than Content-Type, which the feed does not set reliably
func looksLikeHTML(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '<'
}

// htmlTitle extracts a short description of an HTML page, typically a block or error page
func htmlTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	return title
}
