// Package validation checks values against the rules of the PAN-OS
// configuration schema before they are sent to a device.
package validation

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"
)

// MaxObjectNameLength is the longest address, group or service name
// PAN-OS accepts.
const MaxObjectNameLength = 63

var (
	// Object names start with an alphanumeric or underscore and may
	// contain alphanumerics, underscore, dash, dot and space.
	objectNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_. -]*$`)

	// Characters that break an xpath predicate or the API form encoding.
	dangerousChars = []string{"'", "\"", "[", "]", "<", ">", "&", "\n", "\r", "\x00"}
)

// ValidateObjectName validates a PAN-OS object name.
func ValidateObjectName(name string) error {
	if name == "" {
		return fmt.Errorf("object name cannot be empty")
	}
	if len(name) > MaxObjectNameLength {
		return fmt.Errorf("object name too long (max %d characters): %s", MaxObjectNameLength, name)
	}
	if !objectNameRegex.MatchString(name) {
		return fmt.Errorf("invalid object name: %q (must start with a letter, digit or _ and contain only letters, digits, _ - . and space)", name)
	}
	return nil
}

// ValidateXPath validates a configuration xpath.
func ValidateXPath(xpath string) error {
	if !strings.HasPrefix(xpath, "/config/") {
		return fmt.Errorf("xpath must start with /config/: %s", xpath)
	}
	if strings.HasSuffix(xpath, "/") {
		return fmt.Errorf("xpath must not end with /: %s", xpath)
	}
	for _, char := range []string{"\"", "<", ">", "&", "\n", "\r", "\x00"} {
		if strings.Contains(xpath, char) {
			return fmt.Errorf("xpath contains invalid character %q: %s", char, xpath)
		}
	}
	return nil
}

// ValidateIPOrCIDR validates an IPv4 address or CIDR range.
func ValidateIPOrCIDR(s string) error {
	if s == "" {
		return fmt.Errorf("IP/CIDR cannot be empty")
	}
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return fmt.Errorf("invalid CIDR: %w", err)
		}
		if !p.Addr().Is4() {
			return fmt.Errorf("not an IPv4 CIDR: %s", s)
		}
		return nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil || !a.Is4() {
		return fmt.Errorf("invalid IPv4 address: %s", s)
	}
	return nil
}

// SanitizeString removes characters that cannot appear in an xpath
// predicate (for display purposes).
func SanitizeString(s string) string {
	for _, char := range dangerousChars {
		s = strings.ReplaceAll(s, char, "")
	}
	return s
}
