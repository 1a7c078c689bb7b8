package storage

import (
	"context"
	"sort"
	"sync"

	"delivery-impact-service/models"
)

type memData struct {
	tasks      map[string]models.DeliveryTask
	ledger     map[string]models.CreditLedgerEntry // by task id
	volunteers map[string]models.VolunteerProfile
	donations  map[string]models.Donation
	snapshots  map[string]models.ImpactSnapshot
	awards     map[string]map[string]models.UserAward // user id -> code
}

func newMemData() *memData {
	return &memData{
		tasks:      map[string]models.DeliveryTask{},
		ledger:     map[string]models.CreditLedgerEntry{},
		volunteers: map[string]models.VolunteerProfile{},
		donations:  map[string]models.Donation{},
		snapshots:  map[string]models.ImpactSnapshot{},
		awards:     map[string]map[string]models.UserAward{},
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for k, v := range d.tasks {
		c.tasks[k] = v
	}
	for k, v := range d.ledger {
		c.ledger[k] = v
	}
	for k, v := range d.volunteers {
		c.volunteers[k] = v
	}
	for k, v := range d.donations {
		c.donations[k] = v
	}
	for k, v := range d.snapshots {
		c.snapshots[k] = copySnapshot(v)
	}
	for u, held := range d.awards {
		m := make(map[string]models.UserAward, len(held))
		for k, v := range held {
			m[k] = v
		}
		c.awards[u] = m
	}
	return c
}

func copySnapshot(s models.ImpactSnapshot) models.ImpactSnapshot {
	if s.TopCategories != nil {
		s.TopCategories = append([]models.CategoryShare(nil), s.TopCategories...)
	}
	return s
}

// Memory is a Store kept in process memory. A single mutex serialises every
// call, and InTx rolls the whole state back when fn fails.
type Memory struct {
	*memRepo
	mu   sync.Mutex
	data *memData
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	m := &Memory{data: newMemData()}
	m.memRepo = &memRepo{m: m}
	return m
}

func (m *Memory) InTx(ctx context.Context, fn func(repo Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	backup := m.data.clone()
	if err := fn(&memRepo{m: m, inTx: true}); err != nil {
		m.data = backup
		return err
	}
	return nil
}

type memRepo struct {
	m    *Memory
	inTx bool
}

// lock takes the store mutex unless the caller already holds it through InTx.
func (r *memRepo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.m.mu.Lock()
	return r.m.mu.Unlock
}

func (r *memRepo) CreateTask(ctx context.Context, task *models.DeliveryTask) error {
	defer r.lock()()
	if _, ok := r.m.data.tasks[task.ID]; ok {
		return ErrDuplicate
	}
	r.m.data.tasks[task.ID] = *task
	return nil
}

func (r *memRepo) GetTask(ctx context.Context, id string) (*models.DeliveryTask, error) {
	defer r.lock()()
	t, ok := r.m.data.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (r *memRepo) UpdateTask(ctx context.Context, id string, from []models.TaskStatus, apply func(*models.DeliveryTask) error) (*models.DeliveryTask, error) {
	defer r.lock()()
	t, ok := r.m.data.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !statusIn(t.Status, from) {
		return &t, ErrStale
	}
	next := t
	if err := apply(&next); err != nil {
		return nil, err
	}
	next.ID = t.ID
	r.m.data.tasks[id] = next
	return &next, nil
}

func (r *memRepo) CompletedTasksWithoutEntry(ctx context.Context) ([]models.DeliveryTask, error) {
	defer r.lock()()
	var out []models.DeliveryTask
	for _, t := range r.m.data.tasks {
		if t.Status != models.TaskCompleted {
			continue
		}
		if _, ok := r.m.data.ledger[t.ID]; ok {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) InsertLedgerEntry(ctx context.Context, entry *models.CreditLedgerEntry) error {
	defer r.lock()()
	if _, ok := r.m.data.ledger[entry.TaskID]; ok {
		return ErrDuplicate
	}
	r.m.data.ledger[entry.TaskID] = *entry
	return nil
}

func (r *memRepo) LedgerEntryForTask(ctx context.Context, taskID string) (*models.CreditLedgerEntry, error) {
	defer r.lock()()
	e, ok := r.m.data.ledger[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (r *memRepo) LedgerEntries(ctx context.Context, volunteerID string) ([]models.CreditLedgerEntry, error) {
	defer r.lock()()
	var out []models.CreditLedgerEntry
	for _, e := range r.m.data.ledger {
		if e.VolunteerID == volunteerID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AwardedAt.Equal(out[j].AwardedAt) {
			return out[i].TaskID < out[j].TaskID
		}
		return out[i].AwardedAt.Before(out[j].AwardedAt)
	})
	return out, nil
}

func (r *memRepo) GetVolunteer(ctx context.Context, userID string) (*models.VolunteerProfile, error) {
	defer r.lock()()
	v, ok := r.m.data.volunteers[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (r *memRepo) UpsertVolunteer(ctx context.Context, v *models.VolunteerProfile) error {
	defer r.lock()()
	cur, ok := r.m.data.volunteers[v.UserID]
	if !ok {
		cur = models.VolunteerProfile{UserID: v.UserID}
	}
	cur.IsActive = v.IsActive
	cur.AvgRating = v.AvgRating
	r.m.data.volunteers[v.UserID] = cur
	return nil
}

func (r *memRepo) ApplyVolunteerDelta(ctx context.Context, userID string, delta models.VolunteerDelta) error {
	defer r.lock()()
	v, ok := r.m.data.volunteers[userID]
	if !ok {
		return ErrNotFound
	}
	v.Credits += delta.Credits
	v.TotalRides += delta.TotalRides
	v.CompletedRides += delta.CompletedRides
	v.ActiveRides = max(v.ActiveRides+delta.ActiveRides, 0)
	v.TotalDistance += delta.TotalDistance
	r.m.data.volunteers[userID] = v
	return nil
}

func (r *memRepo) GetDonation(ctx context.Context, id string) (*models.Donation, error) {
	defer r.lock()()
	d, ok := r.m.data.donations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (r *memRepo) UpsertDonations(ctx context.Context, donations []models.Donation) error {
	defer r.lock()()
	for _, d := range donations {
		if cur, ok := r.m.data.donations[d.ID]; ok {
			d.DeliveryStatus = cur.DeliveryStatus
			d.AssignedVolunteerID = cur.AssignedVolunteerID
		}
		r.m.data.donations[d.ID] = d
	}
	return nil
}

func (r *memRepo) DonationsByDonor(ctx context.Context, donorID string) ([]models.Donation, error) {
	defer r.lock()()
	var out []models.Donation
	for _, d := range r.m.data.donations {
		if d.DonorID == donorID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) SetDonationDelivery(ctx context.Context, donationID, status, volunteerID string) error {
	defer r.lock()()
	d, ok := r.m.data.donations[donationID]
	if !ok {
		return ErrNotFound
	}
	d.DeliveryStatus = status
	d.AssignedVolunteerID = volunteerID
	r.m.data.donations[donationID] = d
	return nil
}

func (r *memRepo) SaveSnapshot(ctx context.Context, snap *models.ImpactSnapshot) error {
	defer r.lock()()
	r.m.data.snapshots[snap.UserID] = copySnapshot(*snap)
	return nil
}

func (r *memRepo) GetSnapshot(ctx context.Context, userID string) (*models.ImpactSnapshot, error) {
	defer r.lock()()
	s, ok := r.m.data.snapshots[userID]
	if !ok {
		return nil, ErrNotFound
	}
	s = copySnapshot(s)
	return &s, nil
}

func (r *memRepo) ListSnapshots(ctx context.Context) ([]models.ImpactSnapshot, error) {
	defer r.lock()()
	out := make([]models.ImpactSnapshot, 0, len(r.m.data.snapshots))
	for _, s := range r.m.data.snapshots {
		out = append(out, copySnapshot(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *memRepo) UpdateRanks(ctx context.Context, ranks []RankUpdate) error {
	defer r.lock()()
	for _, u := range ranks {
		s, ok := r.m.data.snapshots[u.UserID]
		if !ok {
			continue
		}
		s.GlobalRank = u.GlobalRank
		s.LocalRank = u.LocalRank
		r.m.data.snapshots[u.UserID] = s
	}
	return nil
}

func (r *memRepo) ListAwards(ctx context.Context, userID string) ([]models.UserAward, error) {
	defer r.lock()()
	held := r.m.data.awards[userID]
	out := make([]models.UserAward, 0, len(held))
	for _, a := range held {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EarnedAt.Equal(out[j].EarnedAt) {
			return out[i].Code < out[j].Code
		}
		return out[i].EarnedAt.Before(out[j].EarnedAt)
	})
	return out, nil
}

func (r *memRepo) InsertAward(ctx context.Context, award *models.UserAward) error {
	defer r.lock()()
	held, ok := r.m.data.awards[award.UserID]
	if !ok {
		held = map[string]models.UserAward{}
		r.m.data.awards[award.UserID] = held
	}
	if _, ok := held[award.Code]; ok {
		return ErrDuplicate
	}
	held[award.Code] = *award
	return nil
}
