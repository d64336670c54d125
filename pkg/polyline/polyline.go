// Package polyline handles route geometry in the encoded polyline format
// returned by Google Maps and OpenRouteService.
// See https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformed is returned for a polyline that ends mid-value or holds
// characters outside the encoding alphabet.
var ErrMalformed = errors.New("malformed polyline")

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Codec encodes at a fixed number of decimal places.
type Codec struct {
	factor float64
}

// Standard is the five-decimal codec used by Google Maps and OpenRouteService.
var Standard = NewCodec(5)

// NewCodec returns a codec for the given decimal precision (5 or 6 in practice).
func NewCodec(precision int) Codec {
	return Codec{factor: math.Pow10(precision)}
}

// Decode decodes with the standard precision.
func Decode(encoded string) ([]Coordinate, error) { return Standard.Decode(encoded) }

// Encode encodes with the standard precision.
func Encode(coords []Coordinate) string { return Standard.Encode(coords) }

// Decode parses an encoded polyline. An empty string decodes to nil.
func (c Codec) Decode(encoded string) ([]Coordinate, error) {
	if encoded == "" {
		return nil, nil
	}

	var (
		coords   []Coordinate
		lat, lon int
		pos      int
	)
	for pos < len(encoded) {
		dLat, next, err := readValue(encoded, pos)
		if err != nil {
			return nil, err
		}
		dLon, next, err := readValue(encoded, next)
		if err != nil {
			return nil, err
		}
		pos = next
		lat += dLat
		lon += dLon
		coords = append(coords, Coordinate{
			Lat: float64(lat) / c.factor,
			Lon: float64(lon) / c.factor,
		})
	}
	return coords, nil
}

// Encode writes coordinates as deltas from the previous point.
func (c Codec) Encode(coords []Coordinate) string {
	if len(coords) == 0 {
		return ""
	}

	out := make([]byte, 0, len(coords)*8)
	var prevLat, prevLon int
	for _, p := range coords {
		lat := int(math.Round(p.Lat * c.factor))
		lon := int(math.Round(p.Lon * c.factor))
		out = appendValue(out, lat-prevLat)
		out = appendValue(out, lon-prevLon)
		prevLat, prevLon = lat, lon
	}
	return string(out)
}

// readValue reads one zig-zag varint starting at pos.
func readValue(s string, pos int) (value, next int, err error) {
	var result, shift int
	for {
		if pos >= len(s) {
			return 0, pos, fmt.Errorf("%w: truncated at byte %d", ErrMalformed, pos)
		}
		b := int(s[pos]) - 63
		if b < 0 || b > 0x3f {
			return 0, pos, fmt.Errorf("%w: invalid byte %q at %d", ErrMalformed, s[pos], pos)
		}
		pos++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}
	if result&1 != 0 {
		return ^(result >> 1), pos, nil
	}
	return result >> 1, pos, nil
}

func appendValue(buf []byte, v int) []byte {
	u := v << 1
	if v < 0 {
		u = ^u
	}
	for u >= 0x20 {
		buf = append(buf, byte((u&0x1f)|0x20)+63)
		u >>= 5
	}
	return append(buf, byte(u)+63)
}

// Interpolate returns n+1 evenly spaced points from a to b, both ends
// included. Straight-line estimates use it to draw a leg without provider
// geometry.
func Interpolate(a, b Coordinate, n int) []Coordinate {
	if n < 1 {
		n = 1
	}
	points := make([]Coordinate, 0, n+1)
	for i := 0; i <= n; i++ {
		f := float64(i) / float64(n)
		points = append(points, Coordinate{
			Lat: a.Lat + f*(b.Lat-a.Lat),
			Lon: a.Lon + f*(b.Lon-a.Lon),
		})
	}
	return points
}
