package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordOperation(t *testing.T) {
	OperationsTotal.Reset()

	RecordOperation("submit", "ok", 3*time.Millisecond)
	RecordOperation("submit", "ok", 5*time.Millisecond)
	RecordOperation("submit", "overlap", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(OperationsTotal.WithLabelValues("submit", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(OperationsTotal.WithLabelValues("submit", "overlap")))
}

func TestRecordLedgerDays(t *testing.T) {
	LedgerDaysTotal.Reset()

	RecordLedgerDays("reserve", 5)
	RecordLedgerDays("reserve", 0.5)

	assert.Equal(t, 5.5, testutil.ToFloat64(LedgerDaysTotal.WithLabelValues("reserve")))
}

func TestHandler_ServesRegistry(t *testing.T) {
	RecordTransition("approved")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "leave_request_transitions_total")
}
