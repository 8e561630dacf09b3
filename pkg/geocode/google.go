package geocode

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results []googleResult `json:"results"`
	Status  string         `json:"status"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress  string            `json:"formatted_address"`
	AddressComponents []googleComponent `json:"address_components"`
}

type googleComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// geocodeGoogle geocodes a single address using the Google Geocoding API.
func (g *geocoder) geocodeGoogle(ctx context.Context, address string) (*Result, error) {
	if g.googleKey == "" {
		return nil, eris.New("geocode: google api key not configured")
	}

	params := url.Values{
		"address": {address},
		"key":     {g.googleKey},
	}
	body, err := g.get(ctx, googleGeocodeURL+"?"+params.Encode(), "google")
	if err != nil {
		return nil, err
	}

	var googleResp googleGeocodeResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return nil, eris.Wrap(err, "geocode: google parse response")
	}
	switch googleResp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return &Result{Source: "google"}, nil
	default:
		return nil, eris.Errorf("geocode: google status %s", googleResp.Status)
	}
	if len(googleResp.Results) == 0 {
		return &Result{Source: "google"}, nil
	}

	res := googleResp.Results[0]
	r := &Result{
		Success:          true,
		FormattedAddress: res.FormattedAddress,
		Latitude:         res.Geometry.Location.Lat,
		Longitude:        res.Geometry.Location.Lng,
		Source:           "google",
		Quality:          googleLocationTypeToQuality(res.Geometry.LocationType),
	}
	for _, c := range res.AddressComponents {
		switch {
		case hasType(c, "locality"):
			r.City = c.LongName
		case hasType(c, "administrative_area_level_2"):
			r.County = c.LongName
		case hasType(c, "administrative_area_level_1"):
			r.State = c.ShortName
		case hasType(c, "postal_code"):
			r.PostalCode = c.LongName
		}
	}
	return r, nil
}

func hasType(c googleComponent, t string) bool {
	for _, ct := range c.Types {
		if ct == t {
			return true
		}
	}
	return false
}

// googleLocationTypeToQuality maps Google's location_type to our quality taxonomy.
func googleLocationTypeToQuality(locType string) string {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return "rooftop"
	case "RANGE_INTERPOLATED":
		return "range"
	case "GEOMETRIC_CENTER":
		return "centroid"
	default:
		return "approximate"
	}
}
