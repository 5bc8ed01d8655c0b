package geo

import (
	"math"

	"dispatchhub/internal/models"
)

const earthRadiusMeters = 6371008.8

// DistanceMeters is the great-circle distance between a and b.
func DistanceMeters(a, b models.GeoPoint) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := lat2 - lat1
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Box is a lat/lon rectangle. MinLon <= MaxLon always holds; a search area
// that crosses the antimeridian is split into two boxes.
type Box struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

func (b Box) Contains(p models.GeoPoint) bool {
	return p.Longitude >= b.MinLon && p.Longitude <= b.MaxLon &&
		p.Latitude >= b.MinLat && p.Latitude <= b.MaxLat
}

// BoundingBoxes returns one or two boxes that together cover every point
// within radiusMeters of center. Used to prefilter rows before the exact
// distance check.
func BoundingBoxes(center models.GeoPoint, radiusMeters float64) []Box {
	d := radiusMeters / earthRadiusMeters
	minLat := center.Latitude - degrees(d)
	maxLat := center.Latitude + degrees(d)

	// The circle reaches a pole, so every longitude is in play.
	if maxLat >= 90 || minLat <= -90 || d >= math.Pi/2 {
		return []Box{{MinLon: -180, MaxLon: 180, MinLat: math.Max(-90, minLat), MaxLat: math.Min(90, maxLat)}}
	}

	// Half-width at the circle's widest point, which sits poleward of the
	// centre latitude.
	ratio := math.Sin(d) / math.Cos(radians(center.Latitude))
	if ratio >= 1 {
		return []Box{{MinLon: -180, MaxLon: 180, MinLat: minLat, MaxLat: maxLat}}
	}
	dLon := degrees(math.Asin(ratio))
	minLon := center.Longitude - dLon
	maxLon := center.Longitude + dLon

	switch {
	case minLon < -180:
		return []Box{
			{MinLon: minLon + 360, MaxLon: 180, MinLat: minLat, MaxLat: maxLat},
			{MinLon: -180, MaxLon: maxLon, MinLat: minLat, MaxLat: maxLat},
		}
	case maxLon > 180:
		return []Box{
			{MinLon: minLon, MaxLon: 180, MinLat: minLat, MaxLat: maxLat},
			{MinLon: -180, MaxLon: maxLon - 360, MinLat: minLat, MaxLat: maxLat},
		}
	default:
		return []Box{{MinLon: minLon, MaxLon: maxLon, MinLat: minLat, MaxLat: maxLat}}
	}
}

func radians(d float64) float64 { return d * math.Pi / 180 }
func degrees(r float64) float64 { return r * 180 / math.Pi }
