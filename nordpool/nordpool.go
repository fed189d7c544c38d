package nordpool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	BaseURL = "https://dataportal-api.nordpoolgroup.com/api"
)

// ErrNoPrices is returned when the day-ahead auction for a date has not
// been published yet.
var ErrNoPrices = errors.New("nordpool: no prices published for date")

// Entry is one delivery window of the day-ahead auction. Prices are in the
// feed's native unit (currency per MWh).
type Entry struct {
	DeliveryStart time.Time          `json:"deliveryStart"`
	DeliveryEnd   time.Time          `json:"deliveryEnd"`
	PricePerArea  map[string]float64 `json:"entryPerArea"`
}

// Date is a calendar day in the price area's time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// AddDays returns the date n days later, normalising month and year.
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC))
}

// Start is local midnight of d in loc.
func (d Date) Start(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

type Client struct {
	BaseURL    string
	currency   string
	areas      []string
	HTTPClient *http.Client
}

func NewClient(currency string, areas []string) *Client {
	return &Client{
		BaseURL:  BaseURL,
		currency: currency,
		areas:    areas,
		HTTPClient: &http.Client{
			Timeout: time.Minute,
		},
	}
}

// FetchPrices returns the day-ahead entries delivered on date.
func (c *Client) FetchPrices(ctx context.Context, date Date) ([]Entry, error) {
	query := url.Values{}
	query.Set("date", date.String())
	query.Set("market", "DayAhead")
	query.Set("deliveryArea", strings.Join(c.areas, ","))
	query.Set("currency", c.currency)

	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/DayAheadPrices?%s", c.BaseURL, query.Encode()), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json; charset=utf-8")

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNoContent {
		return nil, fmt.Errorf("%s: %w", date, ErrNoPrices)
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("nordpool: unexpected status code %d for %s", res.StatusCode, date)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	entries, err := ParseEntries(body)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: %w", date, ErrNoPrices)
	}
	return entries, nil
}

// ParseEntries reads the multiAreaEntries of a DayAheadPrices response.
// Entries with unparsable delivery times are skipped.
func ParseEntries(body []byte) ([]Entry, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("nordpool: response is not valid JSON")
	}

	entries := []Entry{}
	gjson.GetBytes(body, "multiAreaEntries").ForEach(func(_, value gjson.Result) bool {
		start, err := time.Parse(time.RFC3339, value.Get("deliveryStart").String())
		if err != nil {
			return true
		}
		end, err := time.Parse(time.RFC3339, value.Get("deliveryEnd").String())
		if err != nil {
			return true
		}

		prices := make(map[string]float64)
		value.Get("entryPerArea").ForEach(func(area, price gjson.Result) bool {
			if price.Type == gjson.Number {
				prices[area.String()] = price.Float()
			}
			return true
		})

		entries = append(entries, Entry{
			DeliveryStart: start,
			DeliveryEnd:   end,
			PricePerArea:  prices,
		})
		return true
	})
	return entries, nil
}
