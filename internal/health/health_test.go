package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name       string
		probes     map[string]Probe
		wantCode   int
		wantStatus Status
	}{
		{
			name:       "no probes",
			probes:     nil,
			wantCode:   http.StatusOK,
			wantStatus: StatusHealthy,
		},
		{
			name: "all healthy",
			probes: map[string]Probe{
				"database": func(ctx context.Context) error { return nil },
				"storage":  func(ctx context.Context) error { return nil },
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusHealthy,
		},
		{
			name: "one unhealthy",
			probes: map[string]Probe{
				"database": func(ctx context.Context) error { return nil },
				"ffmpeg":   func(ctx context.Context) error { return errors.New("not found") },
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, p := range tt.probes {
				c.Register(name, p)
			}

			rec := httptest.NewRecorder()
			ReadinessHandler(c)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", resp.Status, tt.wantStatus)
			}
			if len(resp.Components) != len(tt.probes) {
				t.Errorf("components = %d, want %d", len(resp.Components), len(tt.probes))
			}
		})
	}
}

func TestCheckAll_SortedAndReportsError(t *testing.T) {
	c := NewChecker().
		Register("storage", func(ctx context.Context) error { return errors.New("bucket missing") }).
		Register("database", func(ctx context.Context) error { return nil })

	resp := c.CheckAll(context.Background())
	if resp.Components[0].Name != "database" || resp.Components[1].Name != "storage" {
		t.Errorf("components not sorted: %+v", resp.Components)
	}
	if resp.Components[1].Error != "bucket missing" {
		t.Errorf("error = %q", resp.Components[1].Error)
	}
}

func TestLivenessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", rec.Code)
	}
}
