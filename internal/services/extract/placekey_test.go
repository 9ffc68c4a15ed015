package extract

import "testing"

func TestDerivePlaceKey(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			"cid query param wins",
			"https://www.google.com/maps/place/Acme+Plumbing/data=!3m1?cid=12345678901",
			"cid:12345678901",
		},
		{
			"ludocid query param",
			"https://www.google.com/maps/place/Acme+Plumbing?ludocid=98765432101",
			"cid:98765432101",
		},
		{
			"hex pair in path",
			"https://www.google.com/maps/place/Acme/@-33.8,151.2,15z/data=!4m6!3m5!1s0x6b12ae3:0x5045675218ccd90",
			"hex:0x6b12ae3:0x5045675218ccd90",
		},
		{
			"cid beats hex pair",
			"https://www.google.com/maps/place/Acme/data=!1s0x6b12ae3:0x5045675218ccd90?cid=12345678901",
			"cid:12345678901",
		},
		{
			"path fallback",
			"https://www.google.com/maps/place/Acme+Plumbing/",
			"/maps/place/Acme+Plumbing/",
		},
		{
			"short numeric id is still a cid",
			"https://www.google.com/maps/place/A?cid=111",
			"cid:111",
		},
		{
			"non-numeric cid falls through to path",
			"https://www.google.com/maps/place/Acme?cid=abc123",
			"/maps/place/Acme",
		},
		{"empty url", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DerivePlaceKey(tt.url); got != tt.want {
				t.Errorf("DerivePlaceKey(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestDerivePlaceKey_StableAcrossViewportChange(t *testing.T) {
	// The same listing reached from different pans of the map keeps the key.
	a := DerivePlaceKey("https://www.google.com/maps/place/Acme/@-33.8,151.2,15z/data=!1s0xABC:0xDEF?cid=12345678901")
	b := DerivePlaceKey("https://www.google.com/maps/place/Acme/@-33.9,151.1,12z/data=!1s0xABC:0xDEF?cid=12345678901")
	if a != b {
		t.Errorf("keys differ across viewports: %q vs %q", a, b)
	}
}

func TestIsListingURL(t *testing.T) {
	if !IsListingURL("https://www.google.com/maps/place/Acme") {
		t.Error("expected place URL to be a listing")
	}
	if IsListingURL("https://www.google.com/maps/search/plumbers") {
		t.Error("expected search URL to not be a listing")
	}
}
