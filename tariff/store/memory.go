// Package store provides in-memory implementations of the tariff
// storage interfaces, for tests and development.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/linehaul/tariff-engine/tariff"
)

// =============================================================================
// MEMORY STORE - implements tariff.TxStore, tariff.PriceStore,
// tariff.SettingsStore
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	assignments map[tariff.AssignmentID]tariff.Assignment
	entries     []tariff.HistoryEntry
	runs        map[tariff.Month]tariff.AdjustmentRun
	prices      []tariff.DieselPrice
	settings    *tariff.ControlSettings
}

func NewMemory() *Memory {
	return &Memory{
		assignments: make(map[tariff.AssignmentID]tariff.Assignment),
		runs:        make(map[tariff.Month]tariff.AdjustmentRun),
	}
}

// -----------------------------------------------------------------------------
// AssignmentStore
// -----------------------------------------------------------------------------

func (m *Memory) SaveAssignment(_ context.Context, a tariff.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[a.ID] = a
	return nil
}

func (m *Memory) GetAssignment(_ context.Context, id tariff.AssignmentID) (*tariff.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assignments[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) GetByClientRoute(_ context.Context, clientID tariff.ClientID, routeID tariff.RouteID) (*tariff.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.assignments {
		if a.ClientID == clientID && a.RouteID == routeID {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListActive(_ context.Context) ([]tariff.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []tariff.Assignment
	for _, a := range m.assignments {
		if a.Active {
			out = append(out, a)
		}
	}
	sortAssignments(out)
	return out, nil
}

func (m *Memory) ListByClient(_ context.Context, clientID tariff.ClientID, activeOnly bool) ([]tariff.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []tariff.Assignment
	for _, a := range m.assignments {
		if a.ClientID != clientID {
			continue
		}
		if activeOnly && !a.Active {
			continue
		}
		out = append(out, a)
	}
	sortAssignments(out)
	return out, nil
}

func sortAssignments(as []tariff.Assignment) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].ClientID != as[j].ClientID {
			return as[i].ClientID < as[j].ClientID
		}
		return as[i].RouteID < as[j].RouteID
	})
}

// -----------------------------------------------------------------------------
// HistoryStore (append-only)
// -----------------------------------------------------------------------------

func (m *Memory) AppendEntry(_ context.Context, e tariff.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) EntriesByAssignment(_ context.Context, id tariff.AssignmentID) ([]tariff.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterEntries(func(e tariff.HistoryEntry) bool { return e.AssignmentID == id }), nil
}

func (m *Memory) EntriesByClient(_ context.Context, id tariff.ClientID) ([]tariff.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterEntries(func(e tariff.HistoryEntry) bool { return e.ClientID == id }), nil
}

func (m *Memory) EntriesByPeriod(_ context.Context, month tariff.Month) ([]tariff.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterEntries(func(e tariff.HistoryEntry) bool { return e.PeriodMonth == month }), nil
}

func (m *Memory) filterEntries(keep func(tariff.HistoryEntry) bool) []tariff.HistoryEntry {
	var out []tariff.HistoryEntry
	for _, e := range m.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// RunStore
// -----------------------------------------------------------------------------

func (m *Memory) RecordRun(_ context.Context, run tariff.AdjustmentRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[run.Month]; exists {
		return tariff.ErrAlreadyApplied
	}
	m.runs[run.Month] = run
	return nil
}

func (m *Memory) GetRun(_ context.Context, month tariff.Month) (*tariff.AdjustmentRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[month]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (m *Memory) ListRuns(_ context.Context) ([]tariff.AdjustmentRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]tariff.AdjustmentRun, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out, nil
}

// -----------------------------------------------------------------------------
// PriceStore (append-only)
// -----------------------------------------------------------------------------

func (m *Memory) Append(_ context.Context, p tariff.DieselPrice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.prices {
		if existing.EffectiveDate.Equal(p.EffectiveDate) {
			return &tariff.ValidationError{Field: "effective_date", Message: "a price sample already exists for this date"}
		}
	}
	m.prices = append(m.prices, p)
	sort.Slice(m.prices, func(i, j int) bool {
		return m.prices[i].EffectiveDate.Before(m.prices[j].EffectiveDate)
	})
	return nil
}

func (m *Memory) Latest(_ context.Context) (*tariff.DieselPrice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.prices) == 0 {
		return nil, nil
	}
	p := m.prices[len(m.prices)-1]
	return &p, nil
}

func (m *Memory) List(_ context.Context) ([]tariff.DieselPrice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]tariff.DieselPrice, len(m.prices))
	copy(out, m.prices)
	return out, nil
}

// -----------------------------------------------------------------------------
// SettingsStore
// -----------------------------------------------------------------------------

func (m *Memory) Load(_ context.Context) (tariff.ControlSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return tariff.DefaultSettings(), nil
	}
	return m.settings.Normalize(), nil
}

func (m *Memory) Save(_ context.Context, s tariff.ControlSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE - snapshot + rollback on error
// =============================================================================

func (m *Memory) WithTx(_ context.Context, fn func(tariff.Store) error) error {
	m.mu.Lock()
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	if err := fn(&txMemoryView{parent: m}); err != nil {
		m.mu.Lock()
		m.restoreLocked(snapshot)
		m.mu.Unlock()
		return err
	}
	return nil
}

type memorySnapshot struct {
	assignments map[tariff.AssignmentID]tariff.Assignment
	entries     []tariff.HistoryEntry
	runs        map[tariff.Month]tariff.AdjustmentRun
}

func (m *Memory) snapshotLocked() memorySnapshot {
	as := make(map[tariff.AssignmentID]tariff.Assignment, len(m.assignments))
	for k, v := range m.assignments {
		as[k] = v
	}
	runs := make(map[tariff.Month]tariff.AdjustmentRun, len(m.runs))
	for k, v := range m.runs {
		runs[k] = v
	}
	return memorySnapshot{
		assignments: as,
		entries:     append([]tariff.HistoryEntry{}, m.entries...),
		runs:        runs,
	}
}

func (m *Memory) restoreLocked(s memorySnapshot) {
	m.assignments = s.assignments
	m.entries = s.entries
	m.runs = s.runs
}

// txMemoryView delegates to the parent; rollback is handled by the
// snapshot in WithTx. Nested WithTx reuses the outer unit.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) SaveAssignment(ctx context.Context, a tariff.Assignment) error {
	return tv.parent.SaveAssignment(ctx, a)
}

func (tv *txMemoryView) GetAssignment(ctx context.Context, id tariff.AssignmentID) (*tariff.Assignment, error) {
	return tv.parent.GetAssignment(ctx, id)
}

func (tv *txMemoryView) GetByClientRoute(ctx context.Context, clientID tariff.ClientID, routeID tariff.RouteID) (*tariff.Assignment, error) {
	return tv.parent.GetByClientRoute(ctx, clientID, routeID)
}

func (tv *txMemoryView) ListActive(ctx context.Context) ([]tariff.Assignment, error) {
	return tv.parent.ListActive(ctx)
}

func (tv *txMemoryView) ListByClient(ctx context.Context, clientID tariff.ClientID, activeOnly bool) ([]tariff.Assignment, error) {
	return tv.parent.ListByClient(ctx, clientID, activeOnly)
}

func (tv *txMemoryView) AppendEntry(ctx context.Context, e tariff.HistoryEntry) error {
	return tv.parent.AppendEntry(ctx, e)
}

func (tv *txMemoryView) EntriesByAssignment(ctx context.Context, id tariff.AssignmentID) ([]tariff.HistoryEntry, error) {
	return tv.parent.EntriesByAssignment(ctx, id)
}

func (tv *txMemoryView) EntriesByClient(ctx context.Context, id tariff.ClientID) ([]tariff.HistoryEntry, error) {
	return tv.parent.EntriesByClient(ctx, id)
}

func (tv *txMemoryView) EntriesByPeriod(ctx context.Context, month tariff.Month) ([]tariff.HistoryEntry, error) {
	return tv.parent.EntriesByPeriod(ctx, month)
}

func (tv *txMemoryView) RecordRun(ctx context.Context, run tariff.AdjustmentRun) error {
	return tv.parent.RecordRun(ctx, run)
}

func (tv *txMemoryView) GetRun(ctx context.Context, month tariff.Month) (*tariff.AdjustmentRun, error) {
	return tv.parent.GetRun(ctx, month)
}

func (tv *txMemoryView) ListRuns(ctx context.Context) ([]tariff.AdjustmentRun, error) {
	return tv.parent.ListRuns(ctx)
}
