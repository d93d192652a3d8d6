// Package supervision keeps track of the health of the files service
// instances the portal talks to.
package supervision

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSchedule = "@every 30s"
	probeTimeout    = 5 * time.Second
	maxConcurrent   = 4
)

// Prober is what the monitor needs from the gateway client.
type Prober interface {
	Instances() []string
	Health(ctx context.Context, instance string) error
}

type Status struct {
	Instance  string
	Up        bool
	Latency   time.Duration
	CheckedAt time.Time
	Error     string
}

type Snapshot struct {
	Uptime    time.Duration
	Instances []Status
}

func (s Snapshot) Healthy() int {
	n := 0
	for _, st := range s.Instances {
		if st.Up {
			n++
		}
	}
	return n
}

type Monitor struct {
	prober  Prober
	log     *zap.Logger
	started time.Time
	now     func() time.Time

	mu       sync.RWMutex
	statuses map[string]Status

	cron *cron.Cron
}

func NewMonitor(p Prober, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		prober:   p,
		log:      logger,
		started:  time.Now(),
		now:      time.Now,
		statuses: map[string]Status{},
	}
}

// Probe checks every instance once.
func (m *Monitor) Probe(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for _, instance := range m.prober.Instances() {
		g.Go(func() error {
			m.probe(ctx, instance)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Monitor) probe(ctx context.Context, instance string) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := m.now()
	err := m.prober.Health(ctx, instance)
	st := Status{
		Instance:  instance,
		Up:        err == nil,
		Latency:   m.now().Sub(start),
		CheckedAt: m.now(),
	}
	if err != nil {
		st.Error = err.Error()
	}

	m.mu.Lock()
	prev, seen := m.statuses[instance]
	m.statuses[instance] = st
	m.mu.Unlock()

	if !seen || prev.Up != st.Up {
		if st.Up {
			m.log.Info("instance up", zap.String("instance", instance), zap.Duration("latency", st.Latency))
		} else {
			m.log.Warn("instance down", zap.String("instance", instance), zap.Error(err))
		}
	}
}

// Start probes once, then on schedule.
func (m *Monitor) Start(schedule string) error {
	if len(schedule) == 0 {
		schedule = DefaultSchedule
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { m.Probe(context.Background()) }); err != nil {
		return err
	}
	m.Probe(context.Background())
	c.Start()
	m.cron = c
	m.log.Info("supervision started", zap.String("schedule", schedule), zap.Strings("instances", m.prober.Instances()))
	return nil
}

// Stop halts the schedule and waits for a running probe to finish.
func (m *Monitor) Stop() {
	if m.cron == nil {
		return
	}
	<-m.cron.Stop().Done()
}

func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{Uptime: m.now().Sub(m.started)}
	for _, instance := range m.prober.Instances() {
		st, ok := m.statuses[instance]
		if !ok {
			st = Status{Instance: instance}
		}
		snap.Instances = append(snap.Instances, st)
	}
	return snap
}

// PageData feeds the supervision page.
func (m *Monitor) PageData(r *http.Request) (map[string]interface{}, error) {
	snap := m.Snapshot()
	var instances []map[string]interface{}
	for _, st := range snap.Instances {
		checked := "-"
		if !st.CheckedAt.IsZero() {
			checked = st.CheckedAt.Format("2006-01-02 15:04:05")
		}
		instances = append(instances, map[string]interface{}{
			"instance": st.Instance,
			"up":       st.Up,
			"latency":  st.Latency.Round(time.Millisecond).String(),
			"checked":  checked,
			"error":    st.Error,
		})
	}
	return map[string]interface{}{
		"uptime":    snap.Uptime.Round(time.Second).String(),
		"healthy":   snap.Healthy(),
		"instances": instances,
	}, nil
}
