package prometheus

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestExporterServesMetrics(t *testing.T) {
	exp, err := NewExporter(nil)
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}

	m := exp.Metrics()
	m.SessionsStarted.WithLabelValues("ava").Inc()
	m.ActiveSessions.Set(1)
	m.ToolCalls.WithLabelValues("highlightArea").Add(3)

	srv := httptest.NewServer(exp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`avachat_live_sessions_started_total{agent="ava"} 1`,
		`avachat_live_active_sessions 1`,
		`avachat_live_tool_calls_total{tool="highlightArea"} 3`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestNewExporterDoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewExporter(reg); err != nil {
		t.Fatalf("first NewExporter: %v", err)
	}
	if _, err := NewExporter(reg); err == nil {
		t.Error("second registration on the same registry succeeded")
	}
}
