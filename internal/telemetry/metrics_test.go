package telemetry

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// gatherMetric collects from the default registry and returns the family whose
// name matches, or nil. Only families with at least one observed series appear.
func gatherMetric(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("DefaultGatherer.Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Metric registration sanity checks: verify every exported metric is properly
// registered and carries the expected fully-qualified name.
//
// We check registration via Describe() rather than DefaultGatherer.Gather()
// because Gather() only returns series that have been observed at least once;
// *Vec metrics with no label combinations yet used are silently absent from
// Gather output even though they are correctly registered.
// ---------------------------------------------------------------------------

func TestMetrics_AllRegistered(t *testing.T) {
	type describer interface {
		Describe(chan<- *prometheus.Desc)
	}

	cases := []struct {
		name string
		c    describer
	}{
		{"http_requests_total", HTTPRequestsTotal},
		{"http_request_duration_seconds", HTTPRequestDuration},
		{"permission_denials_total", PermissionDenialsTotal},
		{"audit_records_total", AuditRecordsTotal},
		{"audit_write_failures_total", AuditWriteFailuresTotal},
		{"login_failures_total", LoginFailuresTotal},
		{"account_lockouts_total", AccountLockoutsTotal},
		{"audit_archived_rows_total", AuditArchivedRowsTotal},
		{"db_open_connections", DBOpenConnections},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ch := make(chan *prometheus.Desc, 10)
			tc.c.Describe(ch)
			close(ch)
			found := false
			for desc := range ch {
				if strings.Contains(desc.String(), `"`+tc.name+`"`) {
					found = true
				}
			}
			if !found {
				t.Errorf("metric %s not described under its expected name", tc.name)
			}
		})
	}
}

func TestPermissionDenialsTotal_Labels(t *testing.T) {
	PermissionDenialsTotal.WithLabelValues("tasks", "delete").Inc()

	mf := gatherMetric(t, "permission_denials_total")
	if mf == nil {
		t.Fatal("permission_denials_total not gathered after increment")
	}

	found := false
	for _, m := range mf.GetMetric() {
		labels := map[string]string{}
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		if labels["module"] == "tasks" && labels["action"] == "delete" {
			found = true
			if m.GetCounter().GetValue() < 1 {
				t.Errorf("counter value = %v, want >= 1", m.GetCounter().GetValue())
			}
		}
	}
	if !found {
		t.Error("no series with module=tasks action=delete")
	}
}

func TestAuditRecordsTotal_CountsByAction(t *testing.T) {
	AuditRecordsTotal.WithLabelValues("ACCESS").Add(2)

	mf := gatherMetric(t, "audit_records_total")
	if mf == nil {
		t.Fatal("audit_records_total not gathered after increment")
	}
	var got float64
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "action" && lp.GetValue() == "ACCESS" {
				got = m.GetCounter().GetValue()
			}
		}
	}
	if got < 2 {
		t.Errorf("ACCESS counter = %v, want >= 2", got)
	}
}
