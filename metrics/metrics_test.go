package metrics

import (
	"strings"
	"testing"
	"time"

	"bitbucket.org/vservices/ms-vservices-ussd/ussd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)
	var o ussd.Observer = c

	req, err := ussd.NewRequest(0, "*100#")
	require.NoError(t, err)

	o.Completed(req, ussd.OutcomePermissionMissing, 0)
	o.Completed(req, ussd.OutcomeNoTelephony, 0)
	o.Dispatched(req)
	o.Dispatched(req)
	o.Dispatched(req)
	assert.Equal(t, float64(3), testutil.ToFloat64(c.pending))

	o.Completed(req, ussd.OutcomeSuccess, 200*time.Millisecond)
	o.Completed(req, "USSD_RETURN_FAILURE", time.Second)
	assert.Equal(t, float64(1), testutil.ToFloat64(c.pending))

	expected := `
# HELP ussd_requests_total USSD requests by outcome
# TYPE ussd_requests_total counter
ussd_requests_total{outcome="USSD_RETURN_FAILURE"} 1
ussd_requests_total{outcome="no_telephony"} 1
ussd_requests_total{outcome="permission_missing"} 1
ussd_requests_total{outcome="success"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "ussd_requests_total"))
	assert.Equal(t, 2, testutil.CollectAndCount(c.duration))
}

func TestNewRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}
