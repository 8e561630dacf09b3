package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	censusGeographiesURL = "https://geocoding.geo.census.gov/geocoder/geographies/onelineaddress"
	censusBenchmark      = "Public_AR_Current"
	censusVintage        = "Current_Current"
)

// censusResponse is the JSON response from the Census geographies API.
type censusResponse struct {
	Result struct {
		AddressMatches []censusAddressMatch `json:"addressMatches"`
	} `json:"result"`
}

type censusAddressMatch struct {
	Coordinates struct {
		X float64 `json:"x"` // longitude
		Y float64 `json:"y"` // latitude
	} `json:"coordinates"`
	MatchedAddress    string `json:"matchedAddress"`
	AddressComponents struct {
		City  string `json:"city"`
		State string `json:"state"`
		Zip   string `json:"zip"`
	} `json:"addressComponents"`
	Geographies map[string][]censusGeography `json:"geographies"`
}

type censusGeography struct {
	Name     string `json:"NAME"`
	BaseName string `json:"BASENAME"`
}

// geocodeCensus geocodes a single address using the Census geographies API,
// which also returns the county and incorporated place.
func (g *geocoder) geocodeCensus(ctx context.Context, address string) (*Result, error) {
	params := url.Values{
		"address":   {address},
		"benchmark": {censusBenchmark},
		"vintage":   {censusVintage},
		"format":    {"json"},
	}
	body, err := g.get(ctx, censusGeographiesURL+"?"+params.Encode(), "census")
	if err != nil {
		return nil, err
	}

	var resp censusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "geocode: census parse response")
	}
	if len(resp.Result.AddressMatches) == 0 {
		return &Result{Source: "census"}, nil
	}

	m := resp.Result.AddressMatches[0]
	r := &Result{
		Success:          true,
		FormattedAddress: m.MatchedAddress,
		Latitude:         m.Coordinates.Y,
		Longitude:        m.Coordinates.X,
		City:             titleCase(m.AddressComponents.City),
		State:            m.AddressComponents.State,
		PostalCode:       m.AddressComponents.Zip,
		Source:           "census",
		Quality:          "rooftop",
	}
	if c := first(m.Geographies["Counties"]); c != nil {
		r.County = c.Name
	}
	// The incorporated place is authoritative for the city; the postal city
	// can differ for unincorporated addresses.
	if p := first(m.Geographies["Incorporated Places"]); p != nil && p.BaseName != "" {
		r.City = p.BaseName
	}
	return r, nil
}

func first(gs []censusGeography) *censusGeography {
	if len(gs) == 0 {
		return nil
	}
	return &gs[0]
}

var title = cases.Title(language.English)

// titleCase turns Census upper-case names into "Round Rock" form.
func titleCase(s string) string {
	return title.String(strings.Join(strings.Fields(s), " "))
}

func readBody(resp *http.Response) ([]byte, error) {
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}
