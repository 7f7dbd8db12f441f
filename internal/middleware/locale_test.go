package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDetectLocale(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(r *http.Request)
		fallback string
		country  string
		want     string
	}{
		{
			name: "x-locale overrides",
			setup: func(r *http.Request) {
				r.Header.Set("X-Locale", "ID")
			},
			country: "US",
			want:    "id",
		},
		{
			name: "accept-language used",
			setup: func(r *http.Request) {
				r.Header.Set("Accept-Language", "en-US,en;q=0.9")
			},
			want: "en",
		},
		{
			name: "accept-language id preference",
			setup: func(r *http.Request) {
				r.Header.Set("Accept-Language", "id-ID,en;q=0.8")
			},
			want: "id",
		},
		{
			name:    "country id overrides",
			country: "ID",
			want:    "id",
		},
		{
			name:     "configured fallback",
			fallback: "id",
			want:     "id",
		},
		{
			name: "default to en",
			want: "en",
		},
		{
			name: "unsupported language falls back",
			setup: func(r *http.Request) {
				r.Header.Set("X-Locale", "xx-klingon")
			},
			want: "en",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.setup != nil {
				tc.setup(r)
			}
			if got := detectLocale(r, tc.fallback, tc.country); got != tc.want {
				t.Fatalf("detectLocale = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLocaleMiddlewareUsesCountryLookup(t *testing.T) {
	lookup := func(ip string) (string, error) { return "id", nil }

	var gotLocale, gotCountry string
	h := Locale("en", lookup)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLocale = LocaleFromContext(r.Context())
		gotCountry = CountryFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.1:4444"
	h.ServeHTTP(httptest.NewRecorder(), r)

	if gotCountry != "ID" {
		t.Fatalf("country = %q, want ID", gotCountry)
	}
	if gotLocale != "id" {
		t.Fatalf("locale = %q, want id", gotLocale)
	}
}
