// Package geo holds coordinate helpers: geohash encoding for coarse,
// privacy-preserving location labels and great-circle distance.
package geo

import (
	"math"
	"strings"
)

// LogPrecision is the geohash length used wherever a search location is
// logged or labelled. Six characters is roughly a 1.2 km by 0.6 km cell.
const LogPrecision = 6

const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// Encode returns the geohash of lat/lng with the given number of characters.
// A precision below 1 uses LogPrecision.
func Encode(lat, lng float64, precision int) string {
	if precision < 1 {
		precision = LogPrecision
	}

	minLat, maxLat := -90.0, 90.0
	minLng, maxLng := -180.0, 180.0

	var sb strings.Builder
	sb.Grow(precision)

	var idx, bit int
	lngBit := true
	for sb.Len() < precision {
		idx <<= 1
		if lngBit {
			if mid := (minLng + maxLng) / 2; lng > mid {
				idx |= 1
				minLng = mid
			} else {
				maxLng = mid
			}
		} else {
			if mid := (minLat + maxLat) / 2; lat > mid {
				idx |= 1
				minLat = mid
			} else {
				maxLat = mid
			}
		}
		lngBit = !lngBit

		if bit++; bit == 5 {
			sb.WriteByte(base32[idx])
			idx, bit = 0, 0
		}
	}
	return sb.String()
}

// Coarse returns the LogPrecision geohash of lat/lng.
func Coarse(lat, lng float64) string {
	return Encode(lat, lng, LogPrecision)
}

// earthRadiusMeters is the mean Earth radius.
const earthRadiusMeters = 6371008.8

// DistanceMeters returns the haversine distance between two points.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}
