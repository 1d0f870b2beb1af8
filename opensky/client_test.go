package opensky

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchDecodesStates(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"time":1700000000,"states":[
		["abc123","DAL1    ","United States",1700000000,1700000000,-77.1,35.2,9000,false,200,0,0,null,9100,null,false,0],
		["def456",null,"Canada",null,1700000000,null,40,null,false,null,0,0,null,null,null,false,0]
	]}`)

	snap, err := NewClient(srv.URL, time.Second).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if snap.Time != 1700000000 {
		t.Fatalf("time = %d, want 1700000000", snap.Time)
	}
	if len(snap.States) != 2 {
		t.Fatalf("len(states) = %d, want 2", len(snap.States))
	}
}

func TestFetchEmptyListIsNotAnError(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"time":1,"states":[]}`)
	snap, err := NewClient(srv.URL, time.Second).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(snap.States) != 0 {
		t.Fatalf("len(states) = %d, want 0", len(snap.States))
	}
}

func TestFetchFailures(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{"server error", http.StatusInternalServerError, `oops`, http.StatusInternalServerError},
		{"rate limited", http.StatusTooManyRequests, `{}`, http.StatusTooManyRequests},
		{"missing states", http.StatusOK, `{"time":1}`, http.StatusOK},
		{"null states", http.StatusOK, `{"time":1,"states":null}`, http.StatusOK},
		{"not json", http.StatusOK, `<html>`, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := serve(t, tc.status, tc.body)
			_, err := NewClient(srv.URL, time.Second).Fetch(context.Background())
			if !errors.Is(err, ErrNetwork) {
				t.Fatalf("Fetch error = %v, want ErrNetwork", err)
			}
			var netErr *NetworkError
			if !errors.As(err, &netErr) {
				t.Fatalf("Fetch error %T is not *NetworkError", err)
			}
			if netErr.Status != tc.wantStatus {
				t.Fatalf("status = %d, want %d", netErr.Status, tc.wantStatus)
			}
		})
	}
}

func TestFetchTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := NewClient(srv.URL, 50*time.Millisecond).Fetch(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Fetch error = %v, want ErrNetwork", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Fetch took %v, timeout not enforced", elapsed)
	}
}

func TestFetchUnreachable(t *testing.T) {
	srv := serve(t, http.StatusOK, `{}`)
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second).Fetch(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Fetch error = %v, want ErrNetwork", err)
	}
}
