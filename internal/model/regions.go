package model

const OtherRegion = "Other"

type Region struct {
	Name  string
	Codes []string
}

// Regions is the fixed continent grouping used for regional totals and the
// continent filter, in display order.
var Regions = []Region{
	{Name: "Asia", Codes: []string{"CHN", "IND", "IDN", "PAK", "BGD", "JPN", "PHL", "VNM", "TUR", "IRN"}},
	{Name: "Europe", Codes: []string{"DEU", "FRA", "GBR", "ITA", "ESP", "POL", "ROU", "NLD", "BEL", "GRC"}},
	{Name: "North America", Codes: []string{"USA", "CAN", "MEX"}},
	{Name: "South America", Codes: []string{"BRA", "COL", "ARG", "PER", "VEN", "CHL", "ECU", "BOL", "PRY", "URY"}},
	{Name: "Africa", Codes: []string{"NGA", "ETH", "EGY", "COD", "TZA", "ZAF", "KEN", "UGA", "DZA", "SDN"}},
	{Name: "Oceania", Codes: []string{"AUS", "PNG", "NZL", "FJI", "SLB", "VUT", "NCL", "PYF", "WSM", "GUM"}},
}

var regionByCode = func() map[string]string {
	out := make(map[string]string)
	for _, region := range Regions {
		for _, code := range region.Codes {
			out[code] = region.Name
		}
	}
	return out
}()

// RegionOf returns the continent of a country code, or OtherRegion.
func RegionOf(code string) string {
	if name, ok := regionByCode[code]; ok {
		return name
	}
	return OtherRegion
}
