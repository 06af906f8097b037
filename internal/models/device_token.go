package models

import "strings"

// Platform identifies the kind of device behind a registration id.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
	PlatformUnknown Platform = "unknown"
)

// DeviceTarget represents a user device that can receive push notifications.
type DeviceTarget struct {
	RegistrationID string   `json:"token"`
	Platform       Platform `json:"platform"`
}

// ParsePlatform normalizes a platform string to one of the supported values.
func ParsePlatform(platform string) Platform {
	switch strings.ToLower(strings.TrimSpace(platform)) {
	case "ios":
		return PlatformIOS
	case "android":
		return PlatformAndroid
	case "web":
		return PlatformWeb
	default:
		return PlatformUnknown
	}
}

// PlatformCategory groups a platform into mobile, web or unknown.
func PlatformCategory(platform Platform) string {
	switch platform {
	case PlatformAndroid, PlatformIOS:
		return "mobile"
	case PlatformWeb:
		return "web"
	default:
		return "unknown"
	}
}

// MaskToken shortens a registration id so it can be logged.
func MaskToken(token string) string {
	if len(token) <= 12 {
		return "***"
	}
	return token[:6] + "..." + token[len(token)-4:]
}
