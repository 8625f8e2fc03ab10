package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidatePhone(t *testing.T) {
	valid := []string{"6281234567890", "+6281234567890", "62 812-3456-7890", "(62)81234567", "6281234567890@s.whatsapp.net"}
	for _, p := range valid {
		if err := ValidatePhone(p); err != nil {
			t.Errorf("ValidatePhone(%q) = %v", p, err)
		}
	}

	invalid := []string{"", "   ", "081234567", "12345", "62abc4567890", "62812345678901234567"}
	for _, p := range invalid {
		if err := ValidatePhone(p); err == nil {
			t.Errorf("ValidatePhone(%q) accepted", p)
		}
	}
}

func TestValidatePhonesReportsIndex(t *testing.T) {
	if err := ValidatePhones("participants", nil); err == nil {
		t.Error("empty list accepted")
	}
	err := ValidatePhones("participants", []string{"6281234567890", "0812"})
	if err == nil || !strings.HasPrefix(err.Error(), "participants[1]") {
		t.Errorf("err = %v", err)
	}
}

func TestValidateText(t *testing.T) {
	if err := ValidateText("message", " "); err == nil || err.Error() != "message is required" {
		t.Errorf("blank: %v", err)
	}
	if err := ValidateText("message", strings.Repeat("é", MaxTextLength)); err != nil {
		t.Errorf("at limit: %v", err)
	}
	if err := ValidateText("message", strings.Repeat("a", MaxTextLength+1)); err == nil {
		t.Error("over limit accepted")
	}
}

func TestValidateURL(t *testing.T) {
	for _, u := range []string{"https://example.com/a.png", "http://10.0.0.1:8080/x"} {
		if err := ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q) = %v", u, err)
		}
	}
	for _, u := range []string{"", "not a url", "/relative/path", "ftp://example.com/a.png", "file:///etc/passwd"} {
		if err := ValidateURL(u); err == nil {
			t.Errorf("ValidateURL(%q) accepted", u)
		}
	}
}

func TestValidateOutboundURL(t *testing.T) {
	cases := []struct {
		url          string
		allowPrivate bool
		requireHTTPS bool
		ok           bool
	}{
		{"https://hooks.example.com/wa", false, true, true},
		{"http://hooks.example.com/wa", false, true, false},
		{"http://cdn.example.com/a.png", false, false, true},
		{"https://localhost/wa", false, true, false},
		{"http://LOCALHOST./a.png", false, false, false},
		{"http://api.localhost/a.png", false, false, false},
		{"https://127.0.0.1/wa", false, true, false},
		{"http://10.1.2.3/a.png", false, false, false},
		{"http://192.168.1.10/a.png", false, false, false},
		{"http://169.254.169.254/latest/meta-data", false, false, false},
		{"http://[::1]/a.png", false, false, false},
		{"http://0.0.0.0/a.png", false, false, false},
		{"http://127.0.0.1:8080/wa", true, true, true},
		{"ftp://hooks.example.com", true, false, false},
		{"file:///etc/passwd", false, false, false},
		{"", false, false, false},
	}
	for _, tc := range cases {
		err := ValidateOutboundURL(tc.url, tc.allowPrivate, tc.requireHTTPS)
		if (err == nil) != tc.ok {
			t.Errorf("ValidateOutboundURL(%q, %v, %v) = %v", tc.url, tc.allowPrivate, tc.requireHTTPS, err)
		}
	}
}

func TestDenyPrivateDial(t *testing.T) {
	for _, addr := range []string{"127.0.0.1:80", "10.0.0.7:443", "[::1]:8080", "169.254.169.254:80"} {
		if err := DenyPrivateDial("tcp", addr, nil); !errors.Is(err, ErrPrivateNetwork) {
			t.Errorf("DenyPrivateDial(%q) = %v, want ErrPrivateNetwork", addr, err)
		}
	}
	if err := DenyPrivateDial("tcp", "93.184.216.34:443", nil); err != nil {
		t.Errorf("public address rejected: %v", err)
	}
}
