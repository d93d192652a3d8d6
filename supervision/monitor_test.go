package supervision

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeProber struct {
	mu        sync.Mutex
	instances []string
	down      map[string]error
	calls     map[string]int
}

func newFakeProber(instances ...string) *fakeProber {
	return &fakeProber{
		instances: instances,
		down:      map[string]error{},
		calls:     map[string]int{},
	}
}

func (f *fakeProber) Instances() []string { return f.instances }

func (f *fakeProber) Health(ctx context.Context, instance string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[instance]++
	return f.down[instance]
}

func (f *fakeProber) setDown(instance string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down[instance] = err
}

func (f *fakeProber) callsTo(instance string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[instance]
}

func TestProbeRecordsStatuses(t *testing.T) {
	p := newFakeProber("http://a", "http://b", "http://c")
	p.setDown("http://b", errors.New("connection refused"))
	m := NewMonitor(p, nil)

	snap := m.Snapshot()
	require.Len(t, snap.Instances, 3)
	assert.True(t, snap.Instances[0].CheckedAt.IsZero())
	assert.Equal(t, 0, snap.Healthy())

	m.Probe(context.Background())

	snap = m.Snapshot()
	require.Len(t, snap.Instances, 3)
	assert.Equal(t, "http://a", snap.Instances[0].Instance)
	assert.True(t, snap.Instances[0].Up)
	assert.False(t, snap.Instances[1].Up)
	assert.Equal(t, "connection refused", snap.Instances[1].Error)
	assert.True(t, snap.Instances[2].Up)
	assert.False(t, snap.Instances[2].CheckedAt.IsZero())
	assert.Equal(t, 2, snap.Healthy())

	p.setDown("http://b", nil)
	m.Probe(context.Background())
	assert.Equal(t, 3, m.Snapshot().Healthy())
}

func TestPageData(t *testing.T) {
	p := newFakeProber("http://a")
	p.setDown("http://a", errors.New("timeout"))
	m := NewMonitor(p, nil)
	m.Probe(context.Background())

	data, err := m.PageData(httptest.NewRequest("GET", "/supervision", nil))
	require.NoError(t, err)
	assert.Equal(t, 0, data["healthy"])

	instances := data["instances"].([]map[string]interface{})
	require.Len(t, instances, 1)
	assert.Equal(t, "http://a", instances[0]["instance"])
	assert.Equal(t, false, instances[0]["up"])
	assert.Equal(t, "timeout", instances[0]["error"])
	assert.NotEqual(t, "-", instances[0]["checked"])
}

func TestStartSchedulesProbes(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newFakeProber("http://a")
	m := NewMonitor(p, nil)
	require.NoError(t, m.Start("@every 1s"))
	assert.Equal(t, 1, p.callsTo("http://a"), "first probe runs on start")

	assert.Eventually(t, func() bool {
		return p.callsTo("http://a") >= 2
	}, 5*time.Second, 50*time.Millisecond)

	m.Stop()
}

func TestStartRejectsBadSchedule(t *testing.T) {
	m := NewMonitor(newFakeProber(), nil)
	assert.Error(t, m.Start("not a schedule"))
	m.Stop()
}
