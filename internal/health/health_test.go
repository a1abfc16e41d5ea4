package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeReport(t *testing.T, rec *httptest.ResponseRecorder) report {
	t.Helper()
	var rep report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rep
}

func TestHealthz_AlwaysOK(t *testing.T) {
	t.Parallel()
	h := New()

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if rep := decodeReport(t, rec); rep.Status != "ok" {
		t.Errorf("status = %q, want ok", rep.Status)
	}
}

func TestReadyz_Verdicts(t *testing.T) {
	t.Parallel()

	pass := func(_ context.Context) error { return nil }
	fail := func(msg string) func(context.Context) error {
		return func(_ context.Context) error { return errors.New(msg) }
	}

	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "no probes registered",
			wantStatus: http.StatusOK,
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "providers", Check: pass},
				{Name: "artifacts", Check: pass},
			},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"providers": "ok", "artifacts": "ok"},
		},
		{
			name: "one probe fails",
			checkers: []Checker{
				{Name: "providers", Check: fail("stt provider not configured")},
				{Name: "artifacts", Check: pass},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{
				"providers": "fail: stt provider not configured",
				"artifacts": "ok",
			},
		},
		{
			name: "every probe fails",
			checkers: []Checker{
				{Name: "providers", Check: fail("unreachable")},
				{Name: "artifacts", Check: fail("data dir missing")},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{
				"providers": "fail: unreachable",
				"artifacts": "fail: data dir missing",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := New(tc.checkers...)

			rec := httptest.NewRecorder()
			h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			rep := decodeReport(t, rec)
			for name, want := range tc.wantChecks {
				if got := rep.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestAdd_RegistersProbeAfterConstruction(t *testing.T) {
	t.Parallel()
	h := New()
	h.Add(Checker{Name: "voice", Check: func(_ context.Context) error {
		return errors.New("not connected")
	}})

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if rep := decodeReport(t, rec); rep.Checks["voice"] != "fail: not connected" {
		t.Errorf("voice check = %q", rep.Checks["voice"])
	}
}

func TestRegister_MountsBothRoutes(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "providers", Check: func(_ context.Context) error { return nil }})

	mux := http.NewServeMux()
	h.Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
}

func TestReadyz_ProbeSeesRequestCancellation(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
