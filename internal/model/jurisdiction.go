package model

// JurisdictionLevel is the tier of government that issues permits.
type JurisdictionLevel string

const (
	LevelCity   JurisdictionLevel = "city"
	LevelCounty JurisdictionLevel = "county"
	LevelState  JurisdictionLevel = "state"
)

// Authority is the permit-issuing body for a location.
type Authority struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Level   JurisdictionLevel `json:"level"`
	Contact string            `json:"contact,omitempty"`
	FormURL string            `json:"form_url,omitempty"`
}

// Jurisdiction is a resolved address together with its permit authority.
type Jurisdiction struct {
	Address    string    `json:"address"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	City       string    `json:"city"`
	County     string    `json:"county"`
	State      string    `json:"state"`
	PostalCode string    `json:"zip"`
	Authority  Authority `json:"permit_authority"`
}

// Boundary is an authority together with its service-area geometry, stored
// as WKB (EPSG:4326, NDR). A nil Geometry marks an authority whose area is
// not yet loaded.
type Boundary struct {
	Authority Authority `json:"authority"`
	State     string    `json:"state"`
	Geometry  []byte    `json:"-"`
}
