package security

import (
	"strings"

	"github.com/adminkit/session-auth-service/internal/domain"
)

// DeviceInfo is the display metadata derived from a raw User-Agent string.
type DeviceInfo struct {
	DeviceName string
	DeviceType domain.DeviceType
	Browser    string
	OS         string
	UserAgent  string
}

// DeriveDeviceInfo classifies a User-Agent by substring matching. The order of
// checks matters: tablet keywords win over mobile ones, Chrome must be checked
// before Edge because Edge UAs also carry the Chrome token, and Safari must
// exclude Chrome for the same reason. An empty User-Agent becomes the literal
// "Unknown" and falls through every match.
func DeriveDeviceInfo(userAgent string) DeviceInfo {
	ua := userAgent
	if ua == "" {
		ua = "Unknown"
	}

	deviceType := domain.DeviceTypeUnknown
	switch {
	case containsAny(ua, "Mobile", "Android", "iPhone", "iPad"):
		if containsAny(ua, "iPad", "Tablet") {
			deviceType = domain.DeviceTypeTablet
		} else {
			deviceType = domain.DeviceTypeMobile
		}
	case containsAny(ua, "Windows", "Macintosh", "Linux"):
		deviceType = domain.DeviceTypeDesktop
	}

	browser := "Unknown"
	switch {
	case containsAny(ua, "Chrome") && !containsAny(ua, "Edge", "Edg"):
		browser = "Chrome"
	case containsAny(ua, "Firefox"):
		browser = "Firefox"
	case containsAny(ua, "Safari") && !containsAny(ua, "Chrome"):
		browser = "Safari"
	case containsAny(ua, "Edge", "Edg"):
		browser = "Edge"
	}

	os := "Unknown"
	switch {
	case containsAny(ua, "Windows NT 10"):
		os = "Windows 10/11"
	case containsAny(ua, "Windows"):
		os = "Windows"
	case containsAny(ua, "Mac OS X"):
		os = "macOS"
	case containsAny(ua, "Android"):
		os = "Android"
	case containsAny(ua, "iPhone", "iPad"):
		os = "iOS"
	case containsAny(ua, "Linux"):
		os = "Linux"
	}

	return DeviceInfo{
		DeviceName: browser + " on " + os,
		DeviceType: deviceType,
		Browser:    browser,
		OS:         os,
		UserAgent:  ua,
	}
}

func containsAny(ua string, needles ...string) bool {
	lower := strings.ToLower(ua)
	for _, needle := range needles {
		if strings.Contains(lower, strings.ToLower(needle)) {
			return true
		}
	}
	return false
}
