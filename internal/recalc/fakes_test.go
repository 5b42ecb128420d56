package recalc

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Devdesai111/RevUp-sub000/internal/alignment"
	"github.com/Devdesai111/RevUp-sub000/internal/notify"
	"github.com/Devdesai111/RevUp-sub000/internal/store"
)

// fakeStore is an in-memory ExecutionReader, MetricStore and ReflectionReader.
type fakeStore struct {
	mu          sync.Mutex
	executions  map[string]*store.ExecutionRecord
	metrics     map[string]*store.Metric
	reflections map[string]float64

	getExecErr error
	recentErr  error
	upsertErr  error
	panicOnGet bool

	// When set, GetExecution signals entered then waits on release.
	entered chan struct{}
	release chan struct{}

	reads   int
	upserts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		executions:  map[string]*store.ExecutionRecord{},
		metrics:     map[string]*store.Metric{},
		reflections: map[string]float64{},
	}
}

func key(userID string, day time.Time) string {
	return userID + "/" + alignment.DayKey(day)
}

func (f *fakeStore) putExecution(rec *store.ExecutionRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions[key(rec.UserID, rec.Date)] = rec
}

func (f *fakeStore) putMetric(m *store.Metric) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	cp.Date = alignment.Day(m.Date)
	f.metrics[key(m.UserID, m.Date)] = &cp
}

func (f *fakeStore) metric(userID string, day time.Time) *store.Metric {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.metrics[key(userID, day)]
	if !ok {
		return nil
	}
	cp := *m
	return &cp
}

func (f *fakeStore) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *fakeStore) GetExecution(_ context.Context, userID string, day time.Time) (*store.ExecutionRecord, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	if f.panicOnGet {
		panic("corrupt row")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.getExecErr != nil {
		return nil, f.getExecErr
	}
	rec, ok := f.executions[key(userID, day)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) ListExecutions(_ context.Context, userID string, onOrBefore time.Time, limit int) ([]*store.ExecutionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++

	var out []*store.ExecutionRecord
	for _, r := range f.executions {
		if r.UserID == userID && !r.Date.After(onOrBefore) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) RecentMetrics(_ context.Context, userID string, before time.Time, limit int) ([]*store.Metric, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.recentErr != nil {
		return nil, f.recentErr
	}

	var out []*store.Metric
	for _, m := range f.metrics {
		if m.UserID == userID && m.Date.Before(before) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) UpsertMetric(_ context.Context, m *store.Metric) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts++

	k := key(m.UserID, m.Date)
	if existing, ok := f.metrics[k]; ok {
		m.ID = existing.ID
		m.CreatedAt = existing.CreatedAt
	} else {
		m.ID = uuid.New()
		m.CreatedAt = time.Now().UTC()
	}
	cp := *m
	f.metrics[k] = &cp
	return nil
}

func (f *fakeStore) ReflectionQuality(_ context.Context, userID string, day time.Time) (float64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	q, ok := f.reflections[key(userID, day)]
	return q, ok, nil
}

type sent struct {
	userID  string
	tmpl    notify.Template
	payload map[string]any
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, userID string, tmpl notify.Template, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{userID, tmpl, payload})
	return n.err
}

func (n *fakeNotifier) count(tmpl notify.Template) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.tmpl == tmpl {
			c++
		}
	}
	return c
}
