package domain

import "testing"

func TestBoundingBoxIntersectsSegment(t *testing.T) {
	redSea := DefaultRiskZones()[0].Box

	tests := []struct {
		name string
		a, b Coordinates
		want bool
	}{
		{"endpoint inside", Coordinates{Lat: 15, Lon: 40}, Coordinates{Lat: 0, Lon: 0}, true},
		{"crosses without endpoints inside", Coordinates{Lat: 16, Lon: 30}, Coordinates{Lat: 16, Lon: 45}, true},
		{"passes north", Coordinates{Lat: 25, Lon: 30}, Coordinates{Lat: 25, Lon: 45}, false},
		{"parallel outside", Coordinates{Lat: 0, Lon: 35}, Coordinates{Lat: 5, Lon: 35}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := redSea.IntersectsSegment(tc.a, tc.b); got != tc.want {
				t.Fatalf("IntersectsSegment = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBoundingBoxIntersectsSegmentAcrossAntimeridian(t *testing.T) {
	shanghai := Coordinates{Lat: 31.23, Lon: 121.47}
	pacific := Coordinates{Lat: 40, Lon: -170}

	for _, z := range DefaultRiskZones() {
		if z.Box.IntersectsSegment(shanghai, pacific) {
			t.Fatalf("transpacific leg should not cross %s", z.ID)
		}
	}

	east := BoundingBox{MinLat: 0, MinLon: 175, MaxLat: 10, MaxLon: 180}
	west := BoundingBox{MinLat: 0, MinLon: -180, MaxLat: 10, MaxLon: -175}
	a, b := Coordinates{Lat: 5, Lon: 170}, Coordinates{Lat: 5, Lon: -170}
	if !east.IntersectsSegment(a, b) || !west.IntersectsSegment(b, a) {
		t.Fatalf("leg across the antimeridian should cross boxes on both sides")
	}
}

func TestRiskZoneTouches(t *testing.T) {
	hormuz := DefaultRiskZones()[2]

	via := []Waypoint{
		{Name: "Dubai", Lat: 25.2769, Lon: 55.2962},
		{Name: "Mumbai", Lat: 19.0760, Lon: 72.8777},
	}
	if !hormuz.Touches(via) {
		t.Fatalf("expected route starting in Dubai to touch %s", hormuz.Name)
	}

	away := []Waypoint{
		{Name: "Rotterdam", Lat: 51.9225, Lon: 4.4792},
		{Name: "Hamburg", Lat: 53.5459, Lon: 9.9681},
	}
	if hormuz.Touches(away) {
		t.Fatalf("North Sea route should not touch %s", hormuz.Name)
	}
}

func TestCorridorMatches(t *testing.T) {
	c := DefaultCorridors()[0]
	for _, name := range []string{"Suez Canal", "RED SEA transit", "Bab-el-Mandeb"} {
		if !c.Matches(name) {
			t.Fatalf("corridor should match %q", name)
		}
	}
	if c.Matches("Panama Canal") {
		t.Fatalf("corridor should not match Panama Canal")
	}
}

func TestHaversineKm(t *testing.T) {
	shanghai := Coordinates{Lat: 31.2304, Lon: 121.4737}
	la := Coordinates{Lat: 33.7553, Lon: -118.2769}

	d := HaversineKm(shanghai, la)
	if d < 10400 || d > 10600 {
		t.Fatalf("distance = %.0f km, want about 10500", d)
	}
}
