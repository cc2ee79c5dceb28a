package pricing

import "strings"

// europeanCountries maps lowercase country names to the EUROPE bucket.
// Anything not listed here or under the UK names falls to ROW.
var europeanCountries = map[string]bool{
	"germany": true, "france": true, "spain": true, "italy": true,
	"portugal": true, "netherlands": true, "belgium": true, "austria": true,
	"switzerland": true, "ireland": true, "denmark": true, "sweden": true,
	"norway": true, "finland": true, "poland": true, "czech republic": true,
	"czechia": true, "hungary": true, "greece": true, "romania": true,
	"bulgaria": true, "croatia": true, "slovakia": true, "slovenia": true,
	"estonia": true, "latvia": true, "lithuania": true, "luxembourg": true,
	"malta": true, "cyprus": true, "iceland": true, "serbia": true,
	"ukraine": true,
}

var ukNames = map[string]bool{
	"united kingdom": true,
	"uk":             true,
	"england":        true,
	"scotland":       true,
	"wales":          true,
	"northern ireland": true,
	"great britain":    true,
	"britain":          true,
}

// RegionFor maps a country name to its pricing region bucket.
func RegionFor(country string) Region {
	c := strings.ToLower(strings.TrimSpace(country))
	if ukNames[c] {
		return RegionUK
	}
	if europeanCountries[c] {
		return RegionEurope
	}
	return RegionROW
}
