package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-case-trainer/internal/cache"
	"github.com/clinical-case-trainer/internal/domain"
	"github.com/clinical-case-trainer/internal/metrics"
)

type memCaseStore struct {
	cases    map[string]*domain.Case
	reads    int
	filters  []domain.CaseFilter
	failWith error
}

func newMemCaseStore() *memCaseStore {
	return &memCaseStore{cases: make(map[string]*domain.Case)}
}

func (m *memCaseStore) ListCases(_ context.Context, filter domain.CaseFilter) ([]*domain.Case, error) {
	m.filters = append(m.filters, filter)
	var out []*domain.Case
	for _, c := range m.cases {
		if filter.Department != "" && c.Department != filter.Department {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *memCaseStore) GetCase(_ context.Context, caseID string) (*domain.Case, error) {
	m.reads++
	c, ok := m.cases[caseID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (m *memCaseStore) ListDepartments(_ context.Context) ([]string, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	seen := make(map[string]bool)
	var out []string
	for _, c := range m.cases {
		if !seen[c.Department] {
			seen[c.Department] = true
			out = append(out, c.Department)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memCaseStore) UpsertCase(_ context.Context, c *domain.Case) error {
	m.cases[c.CaseID] = c
	return nil
}

type brokenCache struct{}

func (brokenCache) GetCase(context.Context, string) (*domain.Case, bool, error) {
	return nil, false, errors.New("redis down")
}

func (brokenCache) SetCase(context.Context, *domain.Case) error { return errors.New("redis down") }

func (brokenCache) Invalidate(context.Context, string) error { return errors.New("redis down") }

func TestNormalizeCaseFilter(t *testing.T) {
	got := NormalizeCaseFilter(domain.CaseFilter{Department: "all", Search: "  pneu ", SKDILevel: "ALL"})
	assert.Equal(t, domain.CaseFilter{Search: "pneu"}, got)

	got = NormalizeCaseFilter(domain.CaseFilter{Department: "obgyn", SKDILevel: "4A"})
	assert.Equal(t, domain.CaseFilter{Department: "obgyn", SKDILevel: "4A"}, got)
}

func TestCaseService_ListCasesNormalizesFilter(t *testing.T) {
	store := newMemCaseStore()
	store.cases["A"] = &domain.Case{CaseID: "A", Department: "surgery"}
	store.cases["B"] = &domain.Case{CaseID: "B", Department: "obgyn"}
	svc := NewCaseService(store, nil, newTestLogger(), nil)

	all, err := svc.ListCases(context.Background(), domain.CaseFilter{Department: "all"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	surgery, err := svc.ListCases(context.Background(), domain.CaseFilter{Department: "surgery"})
	require.NoError(t, err)
	require.Len(t, surgery, 1)
	assert.Equal(t, "A", surgery[0].CaseID)
	assert.Equal(t, "", store.filters[0].Department)
}

func TestCaseService_ListDepartments(t *testing.T) {
	store := newMemCaseStore()
	store.cases["A"] = &domain.Case{CaseID: "A", Department: "surgery"}
	store.cases["B"] = &domain.Case{CaseID: "B", Department: "obgyn"}
	store.cases["C"] = &domain.Case{CaseID: "C", Department: "surgery"}
	svc := NewCaseService(store, nil, newTestLogger(), nil)

	departments, err := svc.ListDepartments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"all", "obgyn", "surgery"}, departments)

	empty, err := NewCaseService(newMemCaseStore(), nil, newTestLogger(), nil).ListDepartments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"all"}, empty)

	store.failWith = errors.New("connection reset")
	_, err = svc.ListDepartments(context.Background())
	assert.EqualError(t, err, "failed to fetch departments")
}

func TestCaseService_GetCaseReadsThroughCache(t *testing.T) {
	store := newMemCaseStore()
	store.cases["A"] = &domain.Case{CaseID: "A", Department: "surgery"}
	m := metrics.NewManager()
	svc := NewCaseService(store, cache.NewMemoryCache(8, 0), newTestLogger(), m)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c, err := svc.GetCase(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, "surgery", c.Department)
	}

	assert.Equal(t, 1, store.reads)

	expected := `
# HELP case_trainer_cases_cache_lookups_total Case cache lookups by result (hit, miss, error)
# TYPE case_trainer_cases_cache_lookups_total counter
case_trainer_cases_cache_lookups_total{result="hit"} 2
case_trainer_cases_cache_lookups_total{result="miss"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "case_trainer_cases_cache_lookups_total"))
}

func TestCaseService_GetCaseSurvivesCacheFailure(t *testing.T) {
	store := newMemCaseStore()
	store.cases["A"] = &domain.Case{CaseID: "A"}
	svc := NewCaseService(store, brokenCache{}, newTestLogger(), nil)

	c, err := svc.GetCase(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, "A", c.CaseID)
}

func TestCaseService_GetCaseNotFound(t *testing.T) {
	svc := NewCaseService(newMemCaseStore(), nil, newTestLogger(), nil)

	_, err := svc.GetCase(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, "failed to fetch case", err.Error())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCaseService_ImportCases(t *testing.T) {
	dir := t.TempDir()
	batch := `[
	  {"case_id": "IPD-001", "department": "internal_medicine", "skdi_diagnosis": "Pneumonia", "skdi_level": "4A", "patient": {"age": 45}},
	  {"case_id": "OBG-002", "department": "obgyn", "skdi_diagnosis": "Preeclampsia", "icd10": "O14.1"}
	]`
	single := `{"case_id": "SRG-003", "department": "surgery", "skdi_diagnosis": "Appendicitis", "difficulty": "hard"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "batch.json"), []byte(batch), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "single.json"), []byte(single), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	store := newMemCaseStore()
	memCache := cache.NewMemoryCache(8, 0)
	require.NoError(t, memCache.SetCase(context.Background(), &domain.Case{CaseID: "IPD-001", Department: "stale"}))
	svc := NewCaseService(store, memCache, newTestLogger(), nil)

	n, err := svc.ImportCases(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, "O14.1", store.cases["OBG-002"].ICD10)
	assert.Equal(t, "hard", store.cases["SRG-003"].Difficulty)
	assert.Contains(t, string(store.cases["IPD-001"].Data), `"patient"`)
	assert.Equal(t, 0, memCache.Len())

	// Re-importing overwrites rather than duplicating
	n, err = svc.ImportCases(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, store.cases, 3)
}

func TestReadCaseFile_RejectsIncompleteCase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"case_id": "X"}]`), 0o644))

	_, err := ReadCaseFile(path)
	require.Error(t, err)

	var verr *domain.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.True(t, strings.Contains(err.Error(), "bad.json"))
}
