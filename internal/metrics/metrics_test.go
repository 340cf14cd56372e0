package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordStepSubmittedIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(stepsSubmitted.With(prometheus.Labels{"app": "Homology"}))
	RecordStepSubmitted("Homology")
	after := testutil.ToFloat64(stepsSubmitted.With(prometheus.Labels{"app": "Homology"}))

	if after != before+1 {
		t.Errorf("expected count to increment by 1, got before=%f, after=%f", before, after)
	}
}

func TestRecordStepCompletedTracksAppAndStatus(t *testing.T) {
	before := testutil.ToFloat64(stepsCompleted.With(prometheus.Labels{"app": "ComprehensiveGenomeAnalysis", "status": "failed"}))
	RecordStepCompleted("ComprehensiveGenomeAnalysis", "failed")
	after := testutil.ToFloat64(stepsCompleted.With(prometheus.Labels{"app": "ComprehensiveGenomeAnalysis", "status": "failed"}))

	if after != before+1 {
		t.Errorf("expected count to increment by 1, got before=%f, after=%f", before, after)
	}
}

func TestRecordWorkflowCompletedTracksStatus(t *testing.T) {
	before := testutil.ToFloat64(workflowsCompleted.With(prometheus.Labels{"status": "cancelled"}))
	RecordWorkflowCompleted("cancelled")
	after := testutil.ToFloat64(workflowsCompleted.With(prometheus.Labels{"status": "cancelled"}))

	if after != before+1 {
		t.Errorf("expected count to increment by 1, got before=%f, after=%f", before, after)
	}
}

func TestUpdateActiveWorkflowsSetsGauge(t *testing.T) {
	UpdateActiveWorkflows(3)
	if got := testutil.ToFloat64(activeWorkflows); got != 3 {
		t.Errorf("expected gauge to be 3, got %f", got)
	}
	UpdateActiveWorkflows(0)
	if got := testutil.ToFloat64(activeWorkflows); got != 0 {
		t.Errorf("expected gauge to be 0, got %f", got)
	}
}

func TestRecordPollCycleIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(pollCycles)
	RecordPollCycle()
	after := testutil.ToFloat64(pollCycles)
	if after != before+1 {
		t.Errorf("expected count to increment by 1, got before=%f, after=%f", before, after)
	}
}
