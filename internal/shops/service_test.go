package shops

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentdesk/rentdesk/internal/shared"
)

type memoryRepo struct {
	mu       sync.Mutex
	shops    map[int64]Shop
	leases   map[int64]Lease
	active   map[int64]ActiveLease
	tenants  map[int64]string
	nextShop int64
	nextCtr  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		shops:   map[int64]Shop{},
		leases:  map[int64]Lease{},
		active:  map[int64]ActiveLease{},
		tenants: map[int64]string{1: "Boulangerie Dupont", 2: "Pharmacie Centrale"},
	}
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]Shop, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	term := shared.FoldSearch(filter.Search)
	var out []Shop
	for _, s := range m.shops {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if term != "" && !strings.Contains(shared.FoldSearch(s.ShopNumber+" "+s.Name+" "+s.Location+" "+s.ActivityCategory), term) {
			continue
		}
		out = append(out, m.decorate(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShopNumber < out[j].ShopNumber })
	return out, len(out), nil
}

func (m *memoryRepo) decorate(s Shop) Shop {
	if lease, ok := m.active[s.ID]; ok {
		s.ContractID = lease.ContractID
		s.TenantID = lease.TenantID
		s.TenantName = m.tenants[lease.TenantID]
	}
	return s
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Shop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shops[id]
	if !ok {
		return Shop{}, shared.ErrNotFound
	}
	return m.decorate(s), nil
}

func (m *memoryRepo) Options(context.Context) ([]shared.Option, error) {
	return nil, nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.leases {
		if l.ShopID == id {
			return ErrShopInUse
		}
	}
	delete(m.shops, id)
	return nil
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	snapshotShops := cloneMap(m.shops)
	snapshotLeases := cloneMap(m.leases)
	snapshotActive := cloneMap(m.active)
	m.mu.Unlock()
	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.shops, m.leases, m.active = snapshotShops, snapshotLeases, snapshotActive
		m.mu.Unlock()
		return err
	}
	return nil
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *memoryRepo) Insert(_ context.Context, s Shop) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.shops {
		if existing.ShopNumber == s.ShopNumber {
			return 0, shared.NewValidationError("ShopNumber", "Ce numéro de local existe déjà.")
		}
	}
	m.nextShop++
	s.ID = m.nextShop
	m.shops[s.ID] = s
	return s.ID, nil
}

func (m *memoryRepo) Update(_ context.Context, s Shop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shops[s.ID]; !ok {
		return shared.ErrNotFound
	}
	m.shops[s.ID] = s
	return nil
}

func (m *memoryRepo) LockActiveLease(_ context.Context, shopID int64) (*ActiveLease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.active[shopID]; ok {
		return &l, nil
	}
	return nil, nil
}

func (m *memoryRepo) TenantName(_ context.Context, tenantID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.tenants[tenantID]
	if !ok {
		return "", shared.ErrNotFound
	}
	return name, nil
}

func (m *memoryRepo) InsertLease(_ context.Context, l Lease) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCtr++
	m.leases[m.nextCtr] = l
	m.active[l.ShopID] = ActiveLease{ContractID: m.nextCtr, TenantID: l.TenantID}
	return m.nextCtr, nil
}

func newTestService(repo *memoryRepo) *Service {
	svc := NewService(repo, nil, Options{DefaultCurrency: "XAF"})
	svc.now = func() time.Time { return time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC) }
	return svc
}

func validInput() Input {
	return Input{
		ShopNumber:  "A-12",
		Name:        "Boutique Soleil",
		Status:      StatusVacant,
		SurfaceArea: decimal.RequireFromString("42.5"),
		Floor:       "1",
		Location:    "Aile nord",
		MonthlyRent: decimal.NewNullDecimal(decimal.NewFromInt(150000)),
	}
}

func TestCreateOccupiedShopCreatesLease(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	in := validInput()
	in.Status = StatusOccupied
	in.TenantID = 1
	shop, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, repo.leases, 1)
	lease := repo.leases[1]
	assert.Equal(t, shop.ID, lease.ShopID)
	assert.Equal(t, "Bail A-12 - Boulangerie Dupont", lease.Title)
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), lease.StartDate)
	assert.Equal(t, time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC), lease.EndDate)
	assert.True(t, lease.Deposit.Equal(decimal.NewFromInt(300000)))
	assert.Equal(t, "XAF", lease.Currency)
	assert.Equal(t, 1, lease.PaymentDay)
	assert.Equal(t, int64(1), shop.TenantID)
}

func TestUpdateRejectsDoubleBooking(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	in := validInput()
	in.Status = StatusOccupied
	in.TenantID = 1
	shop, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	in.TenantID = 2
	_, err = svc.Update(context.Background(), shop.ID, in)
	assert.ErrorIs(t, err, ErrShopDoubleBooked)
	assert.Len(t, repo.leases, 1)

	in.TenantID = 1
	in.Name = "Boutique Soleil 2"
	updated, err := svc.Update(context.Background(), shop.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Boutique Soleil 2", updated.Name)
	assert.Len(t, repo.leases, 1)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	in := validInput()
	in.ShopNumber = ""
	in.SurfaceArea = decimal.Zero
	in.MonthlyRent = decimal.NewNullDecimal(decimal.NewFromInt(-1))
	in.Status = StatusOccupied
	_, err := svc.Create(context.Background(), in)
	fields := shared.FieldErrors(err)
	assert.Contains(t, fields, "ShopNumber")
	assert.Contains(t, fields, "SurfaceArea")
	assert.Contains(t, fields, "MonthlyRent")
	assert.Contains(t, fields, "TenantID")
}

func TestCreateUnknownTenantRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	in := validInput()
	in.Status = StatusOccupied
	in.TenantID = 99
	_, err := svc.Create(context.Background(), in)
	assert.Contains(t, shared.FieldErrors(err), "TenantID")
	assert.Empty(t, repo.shops)
}

func TestDeleteShopInUse(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	in := validInput()
	in.Status = StatusOccupied
	in.TenantID = 1
	shop, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Delete(context.Background(), shop.ID), ErrShopInUse)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "A-12 - Boutique Soleil (Étage 1, Aile nord)", Label("A-12", "Boutique Soleil", "1", "Aile nord"))
}
