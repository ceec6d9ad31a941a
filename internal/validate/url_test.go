package validate

import (
	"errors"
	"net"
	"strings"
	"testing"
)

func stubLookup(t *testing.T, table map[string][]net.IP) {
	t.Helper()
	orig := lookupIP
	lookupIP = func(host string) ([]net.IP, error) {
		if ips, ok := table[host]; ok {
			return ips, nil
		}
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	t.Cleanup(func() { lookupIP = orig })
}

func TestWebsiteURL(t *testing.T) {
	stubLookup(t, map[string][]net.IP{
		"elmsurgery.nhs.uk":      {net.ParseIP("203.0.113.10")},
		"intranet.example.com":   {net.ParseIP("10.1.2.3")},
		"dual.example.com":       {net.ParseIP("198.51.100.7"), net.ParseIP("192.168.0.4")},
		"ipv6-local.example.com": {net.ParseIP("fd00::1")},
	})

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"https site", "https://elmsurgery.nhs.uk/", nil},
		{"http site", "http://elmsurgery.nhs.uk/contact", nil},
		{"surrounding whitespace", "  https://elmsurgery.nhs.uk  ", nil},
		{"unresolvable host passes", "https://unknown.example.org", nil},
		{"public IP literal", "http://203.0.113.5/", nil},
		{"empty", "   ", ErrEmpty},
		{"too long", "https://elmsurgery.nhs.uk/" + strings.Repeat("a", 2048), ErrTooLong},
		{"ftp scheme", "ftp://elmsurgery.nhs.uk", ErrDisallowedScheme},
		{"javascript scheme", "javascript:alert(1)", ErrDisallowedScheme},
		{"missing host", "https:///path", ErrInvalidURL},
		{"localhost", "http://localhost:8080", ErrSSRFRisk},
		{"loopback literal", "http://127.0.0.1/", ErrSSRFRisk},
		{"private literal", "http://192.168.1.1/", ErrSSRFRisk},
		{"metadata address", "http://169.254.169.254/latest/meta-data", ErrSSRFRisk},
		{"ipv6 loopback", "http://[::1]/", ErrSSRFRisk},
		{"resolves private", "https://intranet.example.com", ErrSSRFRisk},
		{"any resolved address private", "https://dual.example.com", ErrSSRFRisk},
		{"resolves ipv6 unique local", "https://ipv6-local.example.com", ErrSSRFRisk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WebsiteURL(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("WebsiteURL(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("WebsiteURL(%q) unexpected error: %v", tt.input, err)
			}
			if got != strings.TrimSpace(tt.input) {
				t.Errorf("WebsiteURL(%q) = %q", tt.input, got)
			}
		})
	}
}

func TestEndpointURL_AllowsPrivateHosts(t *testing.T) {
	for _, in := range []string{"http://localhost:9000/api/check-website", "http://10.0.0.5/check"} {
		if _, err := EndpointURL(in); err != nil {
			t.Errorf("EndpointURL(%q) unexpected error: %v", in, err)
		}
	}
	if _, err := EndpointURL("gopher://example.com"); !errors.Is(err, ErrDisallowedScheme) {
		t.Errorf("expected ErrDisallowedScheme, got %v", err)
	}
}
