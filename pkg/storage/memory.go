package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/greenops/greenops-advisor/pkg/models"
)

// MemoryStore is an in-memory Store for runs without a database and
// for tests. Semantics mirror PostgresStore, including the
// (workload, type, window) idempotency key.
type MemoryStore struct {
	mu            sync.Mutex
	workloads     map[string]*models.Workload
	workloadIDs   map[string]string // identity key -> id
	opportunities map[string]*models.Opportunity
	oppKeys       map[string]string // idempotency key -> id
	summaries     []*models.UtilizationSummary
	runs          []*RunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workloads:     make(map[string]*models.Workload),
		workloadIDs:   make(map[string]string),
		opportunities: make(map[string]*models.Opportunity),
		oppKeys:       make(map[string]string),
	}
}

func workloadKey(w *models.Workload) string {
	return w.ClusterID + "/" + w.Namespace + "/" + w.Kind + "/" + w.Name
}

func oppKey(o *models.Opportunity) string {
	return fmt.Sprintf("%s/%s/%d/%d", o.WorkloadID, o.Type, o.WindowStart.UnixNano(), o.WindowEnd.UnixNano())
}

func (m *MemoryStore) GetOrCreateWorkload(ctx context.Context, w *models.Workload) (*models.Workload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := workloadKey(w)
	if id, ok := m.workloadIDs[key]; ok {
		existing := *m.workloads[id]
		existing.Replicas = w.Replicas
		m.workloads[id] = &existing
		dup := existing
		return &dup, nil
	}

	stored := *w
	stored.ID = uuid.New().String()
	m.workloads[stored.ID] = &stored
	m.workloadIDs[key] = stored.ID
	dup := stored
	return &dup, nil
}

func (m *MemoryStore) GetWorkload(ctx context.Context, id string) (*models.Workload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workloads[id]
	if !ok {
		return nil, fmt.Errorf("workload %s: %w", id, ErrNotFound)
	}
	dup := *w
	return &dup, nil
}

func (m *MemoryStore) SaveOpportunity(ctx context.Context, opp *models.Opportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if opp.Status == "" {
		opp.Status = models.StatusPending
	}

	key := oppKey(opp)
	if id, ok := m.oppKeys[key]; ok {
		existing := m.opportunities[id]
		updated := *opp
		updated.ID = existing.ID
		updated.Status = existing.Status
		updated.CreatedAt = existing.CreatedAt
		m.opportunities[id] = &updated
		*opp = updated
		return nil
	}

	if opp.ID == "" {
		opp.ID = uuid.New().String()
	}
	if opp.CreatedAt.IsZero() {
		opp.CreatedAt = time.Now()
	}
	stored := *opp
	m.opportunities[stored.ID] = &stored
	m.oppKeys[key] = stored.ID
	return nil
}

func (m *MemoryStore) GetOpportunity(ctx context.Context, id string) (*models.Opportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	opp, ok := m.opportunities[id]
	if !ok {
		return nil, fmt.Errorf("opportunity %s: %w", id, ErrNotFound)
	}
	dup := *opp
	return &dup, nil
}

func (m *MemoryStore) ListOpportunities(ctx context.Context, filter ListFilter) ([]*models.Opportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Opportunity
	for _, opp := range m.opportunities {
		if filter.Status != "" && opp.Status != filter.Status {
			continue
		}
		if filter.Type != "" && opp.Type != filter.Type {
			continue
		}
		dup := *opp
		out = append(out, &dup)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) TransitionOpportunity(ctx context.Context, id string, to models.OpportunityStatus) (*models.Opportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	opp, ok := m.opportunities[id]
	if !ok {
		return nil, fmt.Errorf("opportunity %s: %w", id, ErrNotFound)
	}
	if err := opp.Transition(to); err != nil {
		return nil, err
	}
	dup := *opp
	return &dup, nil
}

func (m *MemoryStore) SaveSummary(ctx context.Context, summary *models.UtilizationSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dup := *summary
	m.summaries = append(m.summaries, &dup)
	return nil
}

func (m *MemoryStore) SaveRun(ctx context.Context, run *RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	dup := *run
	m.runs = append(m.runs, &dup)
	return nil
}

func (m *MemoryStore) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*RunRecord, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0; i-- {
		dup := *m.runs[i]
		out = append(out, &dup)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
