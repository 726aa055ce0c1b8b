package utils

import "testing"

func TestCanonicalHostName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"Example.COM", "example.com"},
		{"  www.google.com.  ", "www.google.com"},
		{"a.b..", "a.b"},
	}
	for _, tt := range tests {
		if got := CanonicalHostName(tt.in); got != tt.want {
			t.Errorf("CanonicalHostName(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestHostnameFromURL(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"https://www.googletagmanager.com/gtm.js?id=GTM-1", "www.googletagmanager.com", true},
		{"//static.hotjar.com/c/hotjar.js", "static.hotjar.com", true},
		{"HTTP://CDN.Example.com:8080/x.js", "cdn.example.com", true},
		{"/local/script.js", "", false},
		{"", "", false},
		{"http://[::1", "", false},
		{"not a url", "", false},
	}
	for _, tt := range tests {
		got, ok := HostnameFromURL(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("HostnameFromURL(%q) = (%q, %v); want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestGetApexDomain(t *testing.T) {
	tests := []struct{ in, want string }{
		{"www.google.com", "google.com"},
		{"a.b.example.co.uk", "example.co.uk"},
		{"com", "com"},
	}
	for _, tt := range tests {
		if got := GetApexDomain(tt.in); got != tt.want {
			t.Errorf("GetApexDomain(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsPublicSuffix(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"com", true},
		{"co.uk", true},
		{"google.com", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsPublicSuffix(tt.in); got != tt.want {
			t.Errorf("IsPublicSuffix(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}
