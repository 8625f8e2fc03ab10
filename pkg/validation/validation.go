package validation

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"syscall"
)

var (
	phonePattern = regexp.MustCompile(`^[1-9][0-9]{5,15}$`)
	phoneNoise   = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
)

// ErrPrivateNetwork rejects outbound requests to local or private addresses.
var ErrPrivateNetwork = errors.New("private/local network URLs are not allowed")

// MaxTextLength caps outbound message bodies and captions.
const MaxTextLength = 4096

// ValidatePhone ensures international format (no leading 0, digits only, length 6-16).
func ValidatePhone(phone string) error {
	trimmed := phoneNoise.Replace(strings.TrimSpace(phone))
	if trimmed == "" {
		return errors.New("phone number cannot be empty")
	}
	if strings.HasSuffix(trimmed, "@s.whatsapp.net") {
		trimmed = strings.TrimSuffix(trimmed, "@s.whatsapp.net")
	}
	trimmed = strings.TrimPrefix(trimmed, "+")
	if strings.HasPrefix(trimmed, "0") {
		return errors.New("phone number must be in international format without leading 0")
	}
	if !phonePattern.MatchString(trimmed) {
		return errors.New("phone number must be digits only and at least 6 characters")
	}
	return nil
}

// ValidatePhones checks every entry and reports the first offender by position.
func ValidatePhones(field string, phones []string) error {
	if len(phones) == 0 {
		return fmt.Errorf("%s must contain at least one phone number", field)
	}
	for i, p := range phones {
		if err := ValidatePhone(p); err != nil {
			return fmt.Errorf("%s[%d]: %w", field, i, err)
		}
	}
	return nil
}

// ValidateRequired rejects blank values for the named field.
func ValidateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

// ValidateText requires a non-blank body no longer than MaxTextLength runes.
func ValidateText(field, value string) error {
	if err := ValidateRequired(field, value); err != nil {
		return err
	}
	if len([]rune(value)) > MaxTextLength {
		return fmt.Errorf("%s must be at most %d characters", field, MaxTextLength)
	}
	return nil
}

// ValidateURL ensures a non-empty absolute http(s) URL.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("url cannot be empty")
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Host == "" {
		return errors.New("url must be valid")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("url must use http or https")
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

// ValidateOutboundURL checks a URL the server itself will request. Unless
// allowPrivate is set, localhost and private address literals are refused,
// and requireHTTPS limits the scheme to https.
func ValidateOutboundURL(raw string, allowPrivate, requireHTTPS bool) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Hostname() == "" {
		return errors.New("missing host")
	}
	if allowPrivate {
		if u.Scheme != "https" && u.Scheme != "http" {
			return errors.New("only HTTP(S) URLs are allowed")
		}
		return nil
	}

	switch {
	case requireHTTPS && u.Scheme != "https":
		return errors.New("only HTTPS URLs are allowed")
	case u.Scheme != "https" && u.Scheme != "http":
		return errors.New("only HTTP(S) URLs are allowed")
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return ErrPrivateNetwork
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return ErrPrivateNetwork
	}
	return nil
}

// DenyPrivateDial is a net.Dialer Control hook refusing connections to
// private addresses. It catches host names that resolve to them.
func DenyPrivateDial(_ string, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return ErrPrivateNetwork
	}
	return nil
}
