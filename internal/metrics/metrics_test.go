package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint", "2xx")
		ObserveLockWait("equipment", 3*time.Millisecond)
	})
}

func TestIncBooking(t *testing.T) {
	before := testutil.ToFloat64(bookingOperations.WithLabelValues("reserve", "conflict"))
	IncBooking("reserve", "conflict")
	IncBooking("reserve", "conflict")
	assert.Equal(t, before+2, testutil.ToFloat64(bookingOperations.WithLabelValues("reserve", "conflict")))
}
