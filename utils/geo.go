package utils

import (
	"errors"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

var ErrNoGeoIP = errors.New("geoip database not configured")

// TimezoneResolver maps an egress IP to its IANA timezone so an emulated
// page reports the zone its traffic would appear to come from.
type TimezoneResolver struct {
	db *geoip2.Reader
}

// OpenTimezoneResolver opens a GeoLite2-City database. An empty path gives a
// resolver that always returns ErrNoGeoIP.
func OpenTimezoneResolver(path string) (*TimezoneResolver, error) {
	if path == "" {
		return &TimezoneResolver{}, nil
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &TimezoneResolver{db: db}, nil
}

func (r *TimezoneResolver) Timezone(ipStr string) (string, error) {
	if r == nil || r.db == nil {
		return "", ErrNoGeoIP
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return "", fmt.Errorf("invalid ip %q", ipStr)
	}

	record, err := r.db.City(ip)
	if err != nil {
		return "", fmt.Errorf("geoip lookup: %w", err)
	}
	if record.Location.TimeZone == "" {
		return "", fmt.Errorf("no timezone for %s", ipStr)
	}
	return record.Location.TimeZone, nil
}

func (r *TimezoneResolver) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
