package contracts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/shops"
)

type memoryRepo struct {
	mu         sync.Mutex
	contracts  map[int64]Contract
	shopStatus map[int64]shops.Status
	invoiced   map[int64]bool
	nextID     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		contracts:  map[int64]Contract{},
		shopStatus: map[int64]shops.Status{1: shops.StatusVacant, 2: shops.StatusVacant},
		invoiced:   map[int64]bool{},
	}
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]Contract, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Contract
	for id := int64(1); id <= m.nextID; id++ {
		c, ok := m.contracts[id]
		if !ok || filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contracts[id]
	if !ok {
		return Contract{}, shared.ErrNotFound
	}
	c.TenantName = "Boulangerie Dupont"
	return c, nil
}

func (m *memoryRepo) Options(ctx context.Context) ([]Contract, error) {
	items, _, err := m.List(ctx, ListFilter{})
	return items, err
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.invoiced[id] {
		return ErrContractInUse
	}
	delete(m.contracts, id)
	return nil
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	contracts := cloneMap(m.contracts)
	statuses := cloneMap(m.shopStatus)
	m.mu.Unlock()
	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.contracts, m.shopStatus = contracts, statuses
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

func (m *memoryRepo) Lock(ctx context.Context, id int64) (Contract, error) {
	return m.Get(ctx, id)
}

func (m *memoryRepo) Insert(_ context.Context, c Contract) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c.ID = m.nextID
	m.contracts[c.ID] = c
	return c.ID, nil
}

func (m *memoryRepo) Update(_ context.Context, c Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contracts[c.ID]; !ok {
		return shared.ErrNotFound
	}
	m.contracts[c.ID] = c
	return nil
}

func (m *memoryRepo) SetStatus(_ context.Context, id int64, status Status, end *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.contracts[id]
	c.Status, c.EndDate = status, end
	m.contracts[id] = c
	return nil
}

func (m *memoryRepo) OtherActiveOnShop(_ context.Context, shopID, excludeID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.contracts {
		if id != excludeID && c.ShopID == shopID && c.Status == StatusActive {
			return id, nil
		}
	}
	return 0, nil
}

func (m *memoryRepo) SetShopStatus(_ context.Context, shopID int64, status shops.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shopStatus[shopID] = status
	return nil
}

var today = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func newTestService(repo *memoryRepo) *Service {
	svc := NewService(repo, nil, Options{DefaultCurrency: "XAF"})
	svc.now = func() time.Time { return today.Add(10 * time.Hour) }
	return svc
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func validInput() Input {
	return Input{
		ShopID:     1,
		TenantID:   1,
		Title:      "Bail A-12",
		StartDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    date(2024, 12, 31),
		RentAmount: decimal.NewFromInt(150000),
		Charges:    decimal.NewFromInt(10000),
		Status:     StatusActive,
	}
}

func TestCreateActiveOccupiesShop(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	c, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, "XAF", c.Currency)
	assert.Equal(t, TypeCommercial, c.ContractType)
	assert.Equal(t, DefaultRenewalMonths, c.RenewalMonths)
	assert.Equal(t, shops.StatusOccupied, repo.shopStatus[1])
	assert.True(t, c.MonthlyDue().Equal(decimal.NewFromInt(160000)))

	_, err = svc.Create(context.Background(), validInput())
	assert.ErrorIs(t, err, shops.ErrShopDoubleBooked)
	assert.Len(t, repo.contracts, 1)

	pending := validInput()
	pending.Status = StatusPending
	_, err = svc.Create(context.Background(), pending)
	require.NoError(t, err)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	in := validInput()
	in.ShopID = 0
	in.Title = ""
	in.StartDate = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	in.Deposit = decimal.NewFromInt(-5)
	in.PaymentDay = 32
	in.Currency = "GBP"
	_, err := svc.Create(context.Background(), in)
	fields := shared.FieldErrors(err)
	assert.Equal(t, "Champ obligatoire.", fields["ShopID"])
	assert.Contains(t, fields, "Title")
	assert.Contains(t, fields, "EndDate")
	assert.Contains(t, fields, "Deposit")
	assert.Contains(t, fields, "PaymentDay")
	assert.Contains(t, fields, "Currency")
}

func TestUpdateToInactiveVacatesShop(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	c, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	in := validInput()
	in.Status = StatusPending
	_, err = svc.Update(context.Background(), c.ID, in)
	require.NoError(t, err)
	assert.Equal(t, shops.StatusVacant, repo.shopStatus[1])
}

func TestTerminateAndRenew(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	c, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	renewed, err := svc.Renew(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, *date(2025, 12, 31), *renewed.EndDate)

	terminated, err := svc.Terminate(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusTerminated, terminated.Status)
	assert.Equal(t, today, *terminated.EndDate)
	assert.Equal(t, shops.StatusVacant, repo.shopStatus[1])

	_, err = svc.Terminate(context.Background(), c.ID)
	assert.ErrorIs(t, err, ErrContractClosed)
	_, err = svc.Renew(context.Background(), c.ID)
	assert.ErrorIs(t, err, ErrContractTerminated)
}

func TestRenewKeepsMonthEnd(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	in := validInput()
	in.EndDate = date(2024, 8, 31)
	in.RenewalMonths = 6
	c, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	renewed, err := svc.Renew(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, *date(2025, 2, 28), *renewed.EndDate)
}

func TestRenewExpiredChecksDoubleBooking(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	in := validInput()
	in.Status = StatusExpired
	expired, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	_, err = svc.Renew(context.Background(), expired.ID)
	assert.ErrorIs(t, err, shops.ErrShopDoubleBooked)
	assert.Equal(t, StatusExpired, repo.contracts[expired.ID].Status)
}

func TestExpiryOn(t *testing.T) {
	cases := []struct {
		name  string
		end   *time.Time
		level string
	}{
		{"open ended", nil, ExpiryNone},
		{"past", date(2024, 3, 14), ExpiryExpired},
		{"today", date(2024, 3, 15), ExpiryDanger},
		{"within 30 days", date(2024, 4, 14), ExpiryDanger},
		{"within 90 days", date(2024, 6, 13), ExpiryWarning},
		{"far", date(2024, 6, 14), ExpiryNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Contract{Status: StatusActive, EndDate: tc.end}
			assert.Equal(t, tc.level, c.ExpiryOn(today).Level)
		})
	}
	assert.Equal(t, "Expiré depuis 1 j", Contract{Status: StatusActive, EndDate: date(2024, 3, 14)}.ExpiryOn(today).Text())
}

func TestDeleteInUse(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	c, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	repo.invoiced[c.ID] = true
	assert.ErrorIs(t, svc.Delete(context.Background(), c.ID), ErrContractInUse)
}
