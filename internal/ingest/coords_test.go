// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package ingest

import (
	"math"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"40.4461", 40.4461, true},
		{"-3,7038", -3.7038, true},
		{"40N2341.72", 40 + 23.0/60 + 41.72/3600, true},
		{"03W3950.913", -(3 + 39.0/60 + 50.913/3600), true},
		{"40N2341", 40 + 23.0/60 + 41.0/3600, true},
		{`40°23'41.72"N`, 40 + 23.0/60 + 41.72/3600, true},
		{`3º 42' 13" W`, -(3 + 42.0/60 + 13.0/3600), true},
		{"40.4461 N", 40.4461, true},
		{"79.8156W", -79.8156, true},
		{"33.5 s", -33.5, true},
		{"", 0, false},
		{"north", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCoordinate(tt.in)
			if ok != tt.ok {
				t.Fatalf("ParseCoordinate(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok && !approx(got, tt.want) {
				t.Errorf("ParseCoordinate(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		lat, lon float64
		ok       bool
	}{
		{"comma", "40.41,-3.70", 40.41, -3.70, true},
		{"comma and space", "40.41, -3.70", 40.41, -3.70, true},
		{"space", "40.41 -3.70", 40.41, -3.70, true},
		{"map link", "https://www.google.com/maps/place/x/@40.4168,-3.7038,17z", 40.4168, -3.7038, true},
		{"out of range", "95.0,10.0", 0, 0, false},
		{"garbage", "Main street", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lon, ok := ParseLocation(tt.in)
			if ok != tt.ok {
				t.Fatalf("ParseLocation(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok && (!approx(lat, tt.lat) || !approx(lon, tt.lon)) {
				t.Errorf("ParseLocation(%q) = %v,%v", tt.in, lat, lon)
			}
		})
	}
}

func TestResolveCoordinates(t *testing.T) {
	tests := []struct {
		name          string
		lat, lon, loc string
		wantNil       bool
		wantLat       float64
	}{
		{"axis columns", "40.1", "-3.2", "", false, 40.1},
		{"axis columns win over location", "40.1", "-3.2", "10,10", false, 40.1},
		{"location only", "", "", "41.5,2.1", false, 41.5},
		{"missing axis falls back to location", "40.1", "", "41.5,2.1", false, 41.5},
		{"missing axis without location", "40.1", "", "", true, 0},
		{"out of range", "91", "0", "", true, 0},
		{"unparseable", "abc", "def", "", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lon := ResolveCoordinates(tt.lat, tt.lon, tt.loc)
			if tt.wantNil {
				if lat != nil || lon != nil {
					t.Errorf("got %v,%v, want nil pair", lat, lon)
				}
				return
			}
			if lat == nil || lon == nil {
				t.Fatal("got nil coordinates")
			}
			if !approx(*lat, tt.wantLat) {
				t.Errorf("lat = %v, want %v", *lat, tt.wantLat)
			}
		})
	}
}
