package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRegistered(t *testing.T) {
	tests := []struct {
		name   string
		metric prometheus.Collector
	}{
		{"SendOutcomesTotal", SendOutcomesTotal},
		{"SendDuration", SendDuration},
		{"StatusWriteFailuresTotal", StatusWriteFailuresTotal},
		{"WebhookEventsTotal", WebhookEventsTotal},
		{"ArchiveWritesTotal", ArchiveWritesTotal},
		{"TriggerEventsTotal", TriggerEventsTotal},
		{"APIRequestsTotal", APIRequestsTotal},
		{"APIRequestDuration", APIRequestDuration},
		{"DBQueryDuration", DBQueryDuration},
		{"DBErrorsTotal", DBErrorsTotal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("%s is nil", tt.name)
			}
		})
	}
}

func TestMetricNamesUseNamespace(t *testing.T) {
	SendOutcomesTotal.WithLabelValues("accepted").Inc()
	WebhookEventsTotal.WithLabelValues("updated").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	want := map[string]bool{
		"mailbridge_send_outcomes_total":  false,
		"mailbridge_webhook_events_total": false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected metric %s to be gathered", name)
		}
	}
}

func TestLabelCardinality(t *testing.T) {
	SendOutcomesTotal.WithLabelValues("rejected").Inc()
	TriggerEventsTotal.WithLabelValues("notify", "processed").Inc()
	ArchiveWritesTotal.WithLabelValues("local", "ok").Inc()
	APIRequestsTotal.WithLabelValues("POST", "/webhooks/mailersend", "200").Inc()
	APIRequestDuration.WithLabelValues("POST", "/webhooks/mailersend").Observe(0.01)
	DBQueryDuration.WithLabelValues("get").Observe(0.003)
	DBErrorsTotal.WithLabelValues("get").Inc()

	desc := make(chan *prometheus.Desc, 1)
	SendDuration.Describe(desc)
	if d := <-desc; !strings.Contains(d.String(), "mailbridge_send_duration_seconds") {
		t.Errorf("unexpected descriptor %s", d)
	}
}
