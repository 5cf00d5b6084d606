package keys

import (
	"strconv"
	"strings"

	"github.com/mmcloughlin/geohash"
	"github.com/pkg/errors"
)

// geohashPrecision matches the location precision the service registry
// stores for indexers.
const geohashPrecision = 10

// Geohash encodes "lat lon" coordinates into the geohash submitted with
// the indexer's service registration.
func Geohash(coordinates string) (string, error) {
	fields := strings.Fields(coordinates)
	if len(fields) != 2 {
		return "", errors.Errorf("geo coordinates %q, want \"<latitude> <longitude>\"", coordinates)
	}
	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return "", errors.Wrap(err, "latitude")
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return "", errors.Wrap(err, "longitude")
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", errors.Errorf("geo coordinates %q out of range", coordinates)
	}
	return geohash.EncodeWithPrecision(lat, lon, geohashPrecision), nil
}
