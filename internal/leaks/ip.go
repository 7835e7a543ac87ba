package leaks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// AddressInfo is the geolocation record for one public address, as reported
// by the leak-test service.
type AddressInfo struct {
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`

	RegionCode string `json:"region_code"`
	RegionName string `json:"region_name"`

	ContinentCode string `json:"continent_code"`
	ContinentName string `json:"continent_name"`

	CityName         string `json:"city_name"`
	PostalCode       string `json:"postal_code,omitempty"`
	PostalConfidence string `json:"postal_confidence,omitempty"`

	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AccuracyRadius int     `json:"accuracy_radius"`

	TimeZone  string `json:"time_zone"`
	MetroCode string `json:"metro_code,omitempty"`

	IP string `json:"ip"`
}

// IPInfo looks up the public IPv4 and IPv6 addresses with their geolocation
// records, sequentially and over family-pinned connections. Both lookups are
// required: a host without a working IPv6 egress path fails the second call,
// and that failure is surfaced rather than silently tolerated.
func (d *Detector) IPInfo(ctx context.Context) (AddressInfo, AddressInfo, error) {
	var v4, v6 AddressInfo

	if err := d.getJSON(ctx, d.v4Client, d.endpoints.IPv4Info, &v4); err != nil {
		return v4, v6, fmt.Errorf("ipv4 address lookup: %w", err)
	}
	if err := d.getJSON(ctx, d.v6Client, d.endpoints.IPv6Info, &v6); err != nil {
		return v4, v6, fmt.Errorf("ipv6 address lookup: %w", err)
	}

	d.logger.Debug("public addresses resolved", "ipv4", v4.IP, "ipv6", v6.IP)
	return v4, v6, nil
}

func (d *Detector) getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	body, err := d.getBody(ctx, client, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return nil
}
