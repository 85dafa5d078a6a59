package door

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"open", Open},
		{"OPEN", Open},
		{"  Offen\n", Open},
		{"closed", Closed},
		{"Geschlossen", Closed},
		{" CLOSED ", Closed},
		{"", Unknown},
		{"ajar", Unknown},
		{"unknown", Unknown},
		{"opened", Unknown},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Fatalf("Normalize(%q)=%q want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatusUpper(t *testing.T) {
	if Open.Upper() != "OPEN" || Status("").Upper() != "UNKNOWN" {
		t.Fatalf("unexpected upper forms")
	}
}

func TestStatusURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://door.example", "https://door.example/api/status"},
		{"https://door.example/", "https://door.example/api/status"},
		{"https://door.example///", "https://door.example/api/status"},
		{"https://door.example/api/status", "https://door.example/api/status"},
		{"http://x/sub", "http://x/sub/api/status"},
	}
	for _, tt := range tests {
		if got := StatusURL(tt.in); got != tt.want {
			t.Fatalf("StatusURL(%q)=%q want %q", tt.in, got, tt.want)
		}
	}
}

func TestFetch(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		body    string
		want    Status
		wantErr bool
	}{
		{name: "open", code: 200, body: `{"status":"open"}`, want: Open},
		{name: "german closed", code: 200, body: `{"status":" Geschlossen "}`, want: Closed},
		{name: "extra fields", code: 200, body: `{"status":"OPEN","since":"x"}`, want: Open},
		{name: "server error", code: 500, body: `{"status":"open"}`, want: Unknown, wantErr: true},
		{name: "not json", code: 200, body: `<html>`, want: Unknown, wantErr: true},
		{name: "array", code: 200, body: `["open"]`, want: Unknown, wantErr: true},
		{name: "missing field", code: 200, body: `{"state":"open"}`, want: Unknown, wantErr: true},
		{name: "non-string", code: 200, body: `{"status":1}`, want: Unknown, wantErr: true},
		{name: "unrecognized", code: 200, body: `{"status":"ajar"}`, want: Unknown, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			f := New(srv.URL + "/")
			st, err := f.FetchDetail(context.Background())
			if st != tt.want {
				t.Fatalf("status=%q want %q", st, tt.want)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if gotPath != "/api/status" {
				t.Fatalf("path=%q", gotPath)
			}
			if got := f.Fetch(context.Background()); got != tt.want {
				t.Fatalf("Fetch=%q want %q", got, tt.want)
			}
		})
	}
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := New(srv.URL, WithTimeout(50*time.Millisecond))
	start := time.Now()
	st, err := f.FetchDetail(context.Background())
	if st != Unknown || err == nil {
		t.Fatalf("expected Unknown with error, got %q %v", st, err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout not honored")
	}
}

func TestFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if got := New(url).Fetch(context.Background()); got != Unknown {
		t.Fatalf("got %q", got)
	}
}

func TestFetchBodyCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"open","pad":"` + strings.Repeat("x", maxResponseBodySize) + `"}`))
	}))
	defer srv.Close()

	st, err := New(srv.URL).FetchDetail(context.Background())
	if st != Unknown || err == nil {
		t.Fatalf("oversized body should not decode, got %q %v", st, err)
	}
}
