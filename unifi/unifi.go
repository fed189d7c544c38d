package unifi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	clientsLimit = 200
)

type Client struct {
	BaseURL    string
	apiKey     string
	HTTPClient *http.Client

	mu     sync.Mutex
	siteID string
}

type errorResponse struct {
	Message string `json:"message"`
}

type Response[T any] struct {
	Offset     int `json:"offset"`
	Limit      int `json:"limit"`
	Count      int `json:"count"`
	TotalCount int `json:"totalCount"`
	Data       []T `json:"data"`
}

type Site struct {
	Id                string `json:"id"`
	InternalReference string `json:"internalReference"`
	Name              string `json:"name"`
}

type AccessInfo struct {
	Type string `json:"type,omitempty"`
}

// ClientDevice is a client connected to the network, as reported by the
// integration API.
type ClientDevice struct {
	Id             string      `json:"id"`
	Name           string      `json:"name"`
	ConnectedAt    time.Time   `json:"connectedAt"`
	IpAddress      string      `json:"ipAddress,omitempty"`
	Access         *AccessInfo `json:"access,omitempty"`
	Type           string      `json:"type,omitempty"`
	MacAddress     string      `json:"macAddress,omitempty"`
	UplinkDeviceId string      `json:"uplinkDeviceId,omitempty"`
}

// Equal compares id, name, ip, type, mac and access type. Connection time
// and uplink are ignored.
func (d ClientDevice) Equal(other ClientDevice) bool {
	return d.Id == other.Id &&
		d.Name == other.Name &&
		d.IpAddress == other.IpAddress &&
		d.Type == other.Type &&
		d.MacAddress == other.MacAddress &&
		d.accessType() == other.accessType() &&
		(d.Access == nil) == (other.Access == nil)
}

func (d ClientDevice) accessType() string {
	if d.Access == nil {
		return ""
	}
	return d.Access.Type
}

// SameDevices reports whether both snapshots hold equal devices, regardless
// of order.
func SameDevices(a, b []ClientDevice) bool {
	if len(a) != len(b) {
		return false
	}
	sortedA := sortedById(a)
	sortedB := sortedById(b)
	for i := range sortedA {
		if !sortedA[i].Equal(sortedB[i]) {
			return false
		}
	}
	return true
}

// HasMac reports whether any device carries mac, ignoring case.
func HasMac(devices []ClientDevice, mac string) bool {
	for _, d := range devices {
		if strings.EqualFold(d.MacAddress, mac) {
			return true
		}
	}
	return false
}

func IPAddresses(devices []ClientDevice) []string {
	ips := make([]string, 0, len(devices))
	for _, d := range devices {
		ips = append(ips, d.IpAddress)
	}
	return ips
}

func sortedById(devices []ClientDevice) []ClientDevice {
	sorted := append([]ClientDevice(nil), devices...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Id != sorted[j].Id {
			return sorted[i].Id < sorted[j].Id
		}
		return sorted[i].MacAddress < sorted[j].MacAddress
	})
	return sorted
}

func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: time.Minute,
		},
	}
}

func (c *Client) GetSites(ctx context.Context) ([]Site, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/v1/sites", c.BaseURL), nil)
	if err != nil {
		return nil, err
	}

	res := Response[Site]{}
	if err := c.sendRequest(req, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

// GetClients returns the clients of the only site on the controller, one
// page of clientsLimit at a time until totalCount is reached. The site id is
// looked up once.
func (c *Client) GetClients(ctx context.Context) ([]ClientDevice, error) {
	siteID, err := c.site(ctx)
	if err != nil {
		return nil, err
	}

	var devices []ClientDevice
	for {
		url := fmt.Sprintf("%s/v1/sites/%s/clients?offset=%d&limit=%d", c.BaseURL, siteID, len(devices), clientsLimit)
		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return nil, err
		}

		res := Response[ClientDevice]{}
		if err := c.sendRequest(req, &res); err != nil {
			return nil, err
		}
		devices = append(devices, res.Data...)
		if len(res.Data) == 0 || len(devices) >= res.TotalCount {
			return devices, nil
		}
	}
}

func (c *Client) site(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.siteID != "" {
		return c.siteID, nil
	}
	sites, err := c.GetSites(ctx)
	if err != nil {
		return "", err
	}
	if len(sites) != 1 {
		return "", fmt.Errorf("unifi: expected exactly one site, got %d", len(sites))
	}
	c.siteID = sites[0].Id
	return c.siteID, nil
}

func (c *Client) sendRequest(req *http.Request, v interface{}) error {
	req.Header.Set("Accept", "application/json; charset=utf-8")
	req.Header.Set("X-API-KEY", c.apiKey)

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}

	defer res.Body.Close()

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusBadRequest {
		var errRes errorResponse
		if err = json.NewDecoder(res.Body).Decode(&errRes); err == nil && errRes.Message != "" {
			return errors.New(errRes.Message)
		}

		return fmt.Errorf("unknown error, status code: %d", res.StatusCode)
	}

	return json.NewDecoder(res.Body).Decode(v)
}
