package domain

import "strings"

// A known seaport or air gateway.
type Port struct {
	Code string  `toml:"code" json:"code"`
	Name string  `toml:"name" json:"name"`
	Lat  float64 `toml:"lat" json:"lat"`
	Lon  float64 `toml:"lon" json:"lon"`
}

func (p Port) Waypoint() Waypoint {
	return Waypoint{Name: p.Name, Code: p.Code, Lat: p.Lat, Lon: p.Lon, Type: WaypointPort}
}

// PortCatalog resolves ports by code or case-insensitive name.
type PortCatalog struct {
	byKey map[string]Port
}

func NewPortCatalog(ports []Port) *PortCatalog {
	c := &PortCatalog{byKey: make(map[string]Port, len(ports)*2)}
	for _, p := range ports {
		if p.Code != "" {
			c.byKey[strings.ToUpper(p.Code)] = p
		}
		c.byKey[strings.ToUpper(p.Name)] = p
	}
	return c
}

func (c *PortCatalog) Lookup(key string) (Port, bool) {
	if c == nil {
		return Port{}, false
	}
	p, ok := c.byKey[strings.ToUpper(strings.TrimSpace(key))]
	return p, ok
}

// DefaultPorts is the built-in gateway table.
func DefaultPorts() []Port {
	return []Port{
		{Code: "CNSHA", Name: "Shanghai", Lat: 31.2304, Lon: 121.4737},
		{Code: "SGSIN", Name: "Singapore", Lat: 1.2966, Lon: 103.8060},
		{Code: "HKHKG", Name: "Hong Kong", Lat: 22.3069, Lon: 114.2293},
		{Code: "USLAX", Name: "Los Angeles", Lat: 33.7553, Lon: -118.2769},
		{Code: "NLRTM", Name: "Rotterdam", Lat: 51.9225, Lon: 4.4792},
		{Code: "DEHAM", Name: "Hamburg", Lat: 53.5459, Lon: 9.9681},
		{Code: "AEDXB", Name: "Dubai", Lat: 25.2769, Lon: 55.2962},
		{Code: "USNYC", Name: "New York", Lat: 40.6936, Lon: -74.0447},
		{Code: "CAVAN", Name: "Vancouver", Lat: 49.2827, Lon: -123.1207},
		{Code: "GBLON", Name: "London", Lat: 51.5074, Lon: -0.1278},
		{Code: "JPTYO", Name: "Tokyo", Lat: 35.6528, Lon: 139.8394},
		{Code: "INBOM", Name: "Mumbai", Lat: 19.0760, Lon: 72.8777},
		{Code: "AUSYD", Name: "Sydney", Lat: -33.8688, Lon: 151.2093},
	}
}
