package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sony/gobreaker"
)

const (
	DefaultBaseURL = "https://api.pirateweather.net/forecast"
	DefaultLang    = "uk"
	DefaultUnits   = "uk2"
	DefaultTimeout = 15 * time.Second

	maxErrorBody = 512
	maxBody      = 4 << 20
)

// DefaultExclude drops every block except daily.
var DefaultExclude = []string{"currently", "minutely", "hourly", "alerts", "flags"}

// Config describes the provider request. Coordinates, language and units are
// fixed for the lifetime of the client.
type Config struct {
	BaseURL   string
	APIKey    string
	Latitude  float64
	Longitude float64
	Lang      string
	Units     string
	Exclude   []string
	Timeout   time.Duration
	// Location is used to interpret daily point timestamps as calendar dates.
	Location *time.Location
}

// Client performs one Dark Sky compatible forecast request per Fetch call.
// There is no internal retry; a circuit breaker short-circuits calls while
// the provider keeps failing.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

func New(cfg Config, hc *http.Client) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Lang == "" {
		cfg.Lang = DefaultLang
	}
	if cfg.Units == "" {
		cfg.Units = DefaultUnits
	}
	if cfg.Exclude == nil {
		cfg.Exclude = DefaultExclude
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "forecast",
		MaxRequests: 1,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
	})
	return &Client{cfg: cfg, http: hc, breaker: cb, now: time.Now}
}

// RequestURL builds the provider URL. The API key is part of the path.
func (c *Client) RequestURL() string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	coords := strconv.FormatFloat(c.cfg.Latitude, 'f', 4, 64) + "," + strconv.FormatFloat(c.cfg.Longitude, 'f', 4, 64)
	q := url.Values{}
	if len(c.cfg.Exclude) > 0 {
		q.Set("exclude", strings.Join(c.cfg.Exclude, ","))
	}
	q.Set("lang", c.cfg.Lang)
	q.Set("units", c.cfg.Units)
	return base + "/" + url.PathEscape(c.cfg.APIKey) + "/" + coords + "?" + q.Encode()
}

// Fetch performs exactly one outbound request and parses the daily block.
func (c *Client) Fetch(ctx context.Context) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	res, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.RequestURL(), http.NoBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, &NetworkError{Err: err}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return nil, &NetworkError{Err: err}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &StatusError{Code: resp.StatusCode, Body: truncateBody(body)}
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &NetworkError{Err: err}
		}
		return nil, err
	}
	body, ok := res.([]byte)
	if !ok {
		return nil, &ParseError{Err: fmt.Errorf("unexpected breaker result %T", res)}
	}
	return Parse(body, c.now(), c.cfg.Location)
}

type apiResponse struct {
	Daily *struct {
		Data []apiPoint `json:"data"`
	} `json:"daily"`
}

type apiPoint struct {
	Time              *int64   `json:"time"`
	TemperatureLow    *float64 `json:"temperatureLow"`
	TemperatureHigh   *float64 `json:"temperatureHigh"`
	PrecipType        *string  `json:"precipType"`
	PrecipProbability *float64 `json:"precipProbability"`
}

// Parse converts a provider payload into a Snapshot.
func Parse(body []byte, fetchedAt time.Time, loc *time.Location) (*Snapshot, error) {
	if loc == nil {
		loc = time.UTC
	}
	var r apiResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, &ParseError{Err: err}
	}
	if r.Daily == nil {
		return nil, &MissingFieldError{Name: "daily"}
	}
	snap := &Snapshot{FetchedAt: fetchedAt, Daily: make([]DailyPoint, 0, len(r.Daily.Data))}
	for i, p := range r.Daily.Data {
		if p.Time == nil {
			return nil, &MissingFieldError{Name: fmt.Sprintf("daily.data[%d].time", i)}
		}
		kind := PrecipNone
		if p.PrecipType != nil {
			k, err := ParsePrecipKind(*p.PrecipType)
			if err != nil {
				return nil, &ParseError{Err: err}
			}
			kind = k
		}
		if p.PrecipProbability != nil && (*p.PrecipProbability < 0 || *p.PrecipProbability > 1) {
			return nil, &ParseError{Err: fmt.Errorf("daily.data[%d].precipProbability out of range: %v", i, *p.PrecipProbability)}
		}
		snap.Daily = append(snap.Daily, DailyPoint{
			Date:        time.Unix(*p.Time, 0).In(loc),
			Low:         p.TemperatureLow,
			High:        p.TemperatureHigh,
			Precip:      kind,
			Probability: p.PrecipProbability,
		})
	}
	return snap, nil
}

// truncateBody trims b to at most maxErrorBody bytes without splitting a rune.
func truncateBody(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) > maxErrorBody {
		n := maxErrorBody
		for n > 0 && !utf8.RuneStart(b[n]) {
			n--
		}
		b = b[:n]
	}
	return string(b)
}
