package utils

import (
	"net"
	"strings"
)

func IsValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// HasCoordinates reports whether a coordinate pair was actually supplied.
// 0,0 is treated as absent.
func HasCoordinates(lat, lng float64) bool {
	return IsValidCoordinates(lat, lng) && !(lat == 0 && lng == 0)
}

func IsLoopbackIP(ip string) bool {
	ip = strings.TrimSpace(ip)
	if ip == "localhost" {
		return true
	}
	parsed := net.ParseIP(stripIPv6Zone(ip))
	return parsed != nil && parsed.IsLoopback()
}

// IsPrivateIP reports RFC1918 and unique-local addresses.
func IsPrivateIP(ip string) bool {
	parsed := net.ParseIP(stripIPv6Zone(strings.TrimSpace(ip)))
	return parsed != nil && parsed.IsPrivate()
}

// IsPublicIP reports whether ip is worth sending to an external lookup.
func IsPublicIP(ip string) bool {
	ip = strings.TrimSpace(ip)
	if ip == "" || IsLoopbackIP(ip) || IsPrivateIP(ip) {
		return false
	}
	parsed := net.ParseIP(stripIPv6Zone(ip))
	return parsed != nil && !parsed.IsUnspecified() && !parsed.IsLinkLocalUnicast()
}

func stripIPv6Zone(ip string) string {
	if i := strings.IndexByte(ip, '%'); i >= 0 {
		return ip[:i]
	}
	return strings.TrimPrefix(ip, "::ffff:")
}
