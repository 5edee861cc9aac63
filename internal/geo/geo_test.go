package geo

import (
	"math"
	"testing"
)

var (
	pachuca   = Point{Latitude: 20.1400, Longitude: -98.3390}
	queretaro = Point{Latitude: 20.5888, Longitude: -100.3899}
	cdmx      = Point{Latitude: 19.4326, Longitude: -99.1332}
)

func TestDistance_SamePointIsZero(t *testing.T) {
	if d := Distance(pachuca, pachuca); d != 0 {
		t.Fatalf("expected 0, got %v", d)
	}
}

func TestDistance_Symmetric(t *testing.T) {
	ab := Distance(pachuca, queretaro)
	ba := Distance(queretaro, pachuca)
	if math.Abs(ab-ba) > 1e-9 {
		t.Fatalf("asymmetric distance: %v vs %v", ab, ba)
	}
}

func TestDistance_TriangleInequality(t *testing.T) {
	ab := Distance(pachuca, queretaro)
	bc := Distance(queretaro, cdmx)
	ac := Distance(pachuca, cdmx)
	if ac > ab+bc+1e-9 {
		t.Fatalf("triangle inequality violated: %v > %v + %v", ac, ab, bc)
	}
}

func TestDistance_KnownValue(t *testing.T) {
	// Pachuca to Mexico City is roughly 83 km great-circle.
	d := Distance(pachuca, cdmx)
	if d < 80 || d > 90 {
		t.Fatalf("unexpected distance %v km", d)
	}
}

func TestDistance_Antipodal(t *testing.T) {
	d := Distance(Point{0, 0}, Point{0, 180})
	want := math.Pi * earthRadiusKm
	if math.Abs(d-want) > 1e-6 {
		t.Fatalf("expected %v, got %v", want, d)
	}
}

func TestFormatDistance(t *testing.T) {
	cases := []struct {
		km   float64
		want string
	}{
		{0.4, "400m"},
		{0.0004, "0m"},
		{0.9996, "1000m"},
		{1, "1.0km"},
		{12.345, "12.3km"},
	}
	for _, c := range cases {
		if got := FormatDistance(c.km); got != c.want {
			t.Errorf("FormatDistance(%v) = %q, want %q", c.km, got, c.want)
		}
	}
}

func TestPointValidate(t *testing.T) {
	if err := pachuca.Validate(); err != nil {
		t.Fatalf("valid point rejected: %v", err)
	}
	if err := (Point{Latitude: 91}).Validate(); err == nil {
		t.Fatal("expected latitude error")
	}
	if err := (Point{Longitude: -181}).Validate(); err == nil {
		t.Fatal("expected longitude error")
	}
	if err := (Point{Latitude: math.NaN()}).Validate(); err == nil {
		t.Fatal("expected NaN error")
	}
}
