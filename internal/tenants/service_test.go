package tenants

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentdesk/rentdesk/internal/shared"
)

type memoryRepo struct {
	mu        sync.Mutex
	tenants   map[int64]Tenant
	contracts map[int64][]ContractSummary
	balances  map[int64][]Balance
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{tenants: map[int64]Tenant{}, contracts: map[int64][]ContractSummary{}, balances: map[int64][]Balance{}}
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]Tenant, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	term := shared.FoldSearch(filter.Search)
	var out []Tenant
	for id := int64(1); id <= m.nextID; id++ {
		t, ok := m.tenants[id]
		if !ok {
			continue
		}
		if filter.Active == "active" && !t.Active || filter.Active == "inactive" && t.Active {
			continue
		}
		if term != "" && !strings.Contains(shared.FoldSearch(t.CompanyName+" "+t.ContactName+" "+t.Email+" "+t.Phone), term) {
			continue
		}
		out = append(out, t)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return Tenant{}, shared.ErrNotFound
	}
	return t, nil
}

func (m *memoryRepo) Options(ctx context.Context) ([]Tenant, error) {
	items, _, err := m.List(ctx, ListFilter{Active: "active"})
	return items, err
}

func (m *memoryRepo) Create(_ context.Context, t Tenant) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = m.nextID
	m.tenants[t.ID] = t
	return t.ID, nil
}

func (m *memoryRepo) Update(_ context.Context, t Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[t.ID]; !ok {
		return shared.ErrNotFound
	}
	m.tenants[t.ID] = t
	return nil
}

func (m *memoryRepo) SetActive(_ context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return shared.ErrNotFound
	}
	t.Active = active
	m.tenants[id] = t
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.contracts[id]) > 0 {
		return ErrTenantInUse
	}
	delete(m.tenants, id)
	return nil
}

func (m *memoryRepo) Contracts(_ context.Context, id int64) ([]ContractSummary, error) {
	return m.contracts[id], nil
}

func (m *memoryRepo) Balances(_ context.Context, id int64) ([]Balance, error) {
	return m.balances[id], nil
}

type captured struct {
	entries []shared.Activity
}

func (c *captured) Record(_ context.Context, a shared.Activity) {
	c.entries = append(c.entries, a)
}

func validInput() Input {
	return Input{CompanyName: "Café Léon", ContactName: "Léon Martin", Email: " Leon@Cafe.FR ", Phone: "0600000000", Active: true}
}

func TestCreateNormalisesEmailAndRecords(t *testing.T) {
	log := &captured{}
	svc := NewService(newMemoryRepo(), log)
	tenant, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, "leon@cafe.fr", tenant.Email)
	require.Len(t, log.entries, 1)
	assert.Equal(t, shared.ActionCreate, log.entries[0].Action)
	assert.Equal(t, "tenant", log.entries[0].Entity)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	_, err := svc.Create(context.Background(), Input{Email: "nope"})
	fields := shared.FieldErrors(err)
	assert.Contains(t, fields, "CompanyName")
	assert.Contains(t, fields, "ContactName")
	assert.Contains(t, fields, "Phone")
	assert.Equal(t, "Adresse email invalide.", fields["Email"])
}

func TestToggleAndOptions(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	tenant, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	opts, err := svc.Options(context.Background())
	require.NoError(t, err)
	require.Len(t, opts, 1)
	assert.Equal(t, "Café Léon (Léon Martin)", opts[0].Label)

	active, err := svc.ToggleActive(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.False(t, active)
	opts, err = svc.Options(context.Background())
	require.NoError(t, err)
	assert.Empty(t, opts)
}

func TestDeleteInUse(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	tenant, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	repo.contracts[tenant.ID] = []ContractSummary{{ID: 1}}
	assert.ErrorIs(t, svc.Delete(context.Background(), tenant.ID), ErrTenantInUse)
}
