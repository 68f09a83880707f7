// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package ingest

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	// 40N2341.72: degrees, hemisphere, then minutes and seconds run together.
	compactDMS = regexp.MustCompile(`^(\d+)([NSEW])(\d+(?:\.\d*)?)$`)

	// 40°23'41.72"N with any separators between the three numbers.
	classicDMS = regexp.MustCompile(`^(\d+(?:[.,]\d+)?)[^\d.,]+(\d+(?:[.,]\d+)?)[^\d.,]+(\d+(?:[.,]\d+)?)[^\dNSEW]*([NSEW])$`)

	// 40.4461 N
	decimalHemisphere = regexp.MustCompile(`^([-+]?\d+(?:[.,]\d+)?)\s*([NSEW])$`)

	latLonPair = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)\s*(?:,|\s)\s*(-?\d+(?:\.\d+)?)$`)
	mapLinkAt  = regexp.MustCompile(`@(-?\d+(?:\.\d+)?),(-?\d+(?:\.\d+)?)`)

	dmsStripper = strings.NewReplacer("°", "", "º", "", "'", "", `"`, "", " ", "")
)

func parseDecimal(s string) (float64, bool) {
	return parseNumber(strings.Replace(s, ",", ".", 1))
}

func hemisphereSign(h string) float64 {
	if h == "S" || h == "W" {
		return -1
	}
	return 1
}

// ParseCoordinate parses one axis value. It accepts decimal degrees (comma
// or dot), compact DMS, classic DMS with a trailing hemisphere letter, and
// decimal degrees with a hemisphere letter. S and W are negative.
func ParseCoordinate(v string) (float64, bool) {
	s := strings.ToUpper(strings.TrimSpace(v))
	if s == "" {
		return 0, false
	}
	if f, ok := parseDecimal(s); ok {
		return f, true
	}
	if f, ok := parseCompactDMS(s); ok {
		return f, true
	}
	if m := classicDMS.FindStringSubmatch(s); m != nil {
		deg, _ := parseDecimal(m[1])
		mins, _ := parseDecimal(m[2])
		secs, _ := parseDecimal(m[3])
		return (deg + mins/60 + secs/3600) * hemisphereSign(m[4]), true
	}
	if m := decimalHemisphere.FindStringSubmatch(s); m != nil {
		f, ok := parseDecimal(m[1])
		if !ok {
			return 0, false
		}
		return f * hemisphereSign(m[2]), true
	}
	return 0, false
}

func parseCompactDMS(s string) (float64, bool) {
	m := compactDMS.FindStringSubmatch(dmsStripper.Replace(s))
	if m == nil {
		return 0, false
	}
	deg, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}

	var mins, secs float64
	rest := m[3]
	switch {
	case strings.Contains(rest, "."):
		combined, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return 0, false
		}
		mins = math.Floor(combined / 100)
		secs = math.Mod(combined, 100)
	case len(rest) > 2:
		mins, _ = strconv.ParseFloat(rest[:len(rest)-2], 64)
		secs, _ = strconv.ParseFloat(rest[len(rest)-2:], 64)
	case len(rest) == 2:
		secs, _ = strconv.ParseFloat(rest, 64)
	default:
		mins, _ = strconv.ParseFloat(rest, 64)
	}
	return (deg + mins/60 + secs/3600) * hemisphereSign(m[2]), true
}

// ParseLocation parses a single location cell: "lat,lon", "lat lon", or
// any text with an embedded "@lat,lon" map-link fragment.
func ParseLocation(v string) (lat, lon float64, ok bool) {
	s := strings.TrimSpace(v)
	if s == "" {
		return 0, 0, false
	}
	m := latLonPair.FindStringSubmatch(s)
	if m == nil {
		m = mapLinkAt.FindStringSubmatch(s)
	}
	if m == nil {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(m[1], 64)
	lon, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil || !ValidCoordinates(lat, lon) {
		return 0, 0, false
	}
	return lat, lon, true
}

// ValidCoordinates reports whether lat and lon are within ±90 and ±180.
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// ResolveCoordinates combines the latitude, longitude and location cells of
// a row. Separate axis columns win. The result is either a valid pair or
// two nils.
func ResolveCoordinates(latCell, lonCell, locationCell string) (lat, lon *float64) {
	la, okLat := ParseCoordinate(latCell)
	lo, okLon := ParseCoordinate(lonCell)
	if okLat && okLon && ValidCoordinates(la, lo) {
		return &la, &lo
	}
	if la, lo, ok := ParseLocation(locationCell); ok {
		return &la, &lo
	}
	return nil, nil
}
