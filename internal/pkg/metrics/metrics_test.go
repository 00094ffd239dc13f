package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeLabel(t *testing.T) {
	assert.Equal(t, "unknown", sanitizeLabel(""))
	assert.Equal(t, "custom_webhook_x", sanitizeLabel("custom webhook x"))
	assert.Len(t, sanitizeLabel(strings.Repeat("a", 100)), maxLabelLen)
}

func TestRecordAuthorization(t *testing.T) {
	m := Get()
	beforeAllowed := testutil.ToFloat64(m.authorizations.WithLabelValues("image_gen", "allowed"))
	beforeDebited := testutil.ToFloat64(m.creditsDebited.WithLabelValues("image_gen"))
	beforeDenied := testutil.ToFloat64(m.authorizations.WithLabelValues("image_gen", "Overdue"))

	m.RecordAuthorization("image_gen", "allowed", 5)
	m.RecordAuthorization("image_gen", "Overdue", 5)

	assert.Equal(t, beforeAllowed+1, testutil.ToFloat64(m.authorizations.WithLabelValues("image_gen", "allowed")))
	assert.Equal(t, beforeDebited+5, testutil.ToFloat64(m.creditsDebited.WithLabelValues("image_gen")))
	assert.Equal(t, beforeDenied+1, testutil.ToFloat64(m.authorizations.WithLabelValues("image_gen", "Overdue")))
}

func TestRecordDispatchAttempt(t *testing.T) {
	m := Get()
	before := testutil.ToFloat64(m.dispatchAttempts.WithLabelValues("slack", "failure"))
	m.RecordDispatchAttempt("slack", false, 20*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(m.dispatchAttempts.WithLabelValues("slack", "failure")))
}

func TestGetReturnsSingleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}
