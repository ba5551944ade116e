//go:build integration

package billing

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentdesk/rentdesk/internal/testing/pgtest"
)

func seedLease(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()
	_, err := pool.Exec(ctx, `
INSERT INTO shops (shop_number, name, status, surface_area, floor, location) VALUES
	('A-12', 'Boutique', 'occupied', 40, 'RDC', 'Aile nord'),
	('B-01', 'Atelier', 'occupied', 25, '1', 'Aile sud');
INSERT INTO tenants (company_name, contact_name, email, phone) VALUES
	('Dupont SARL', 'Jean Dupont', 'jean@dupont.test', '+237 600 000 001'),
	('Martin & Fils', 'Luc Martin', '', '+237 600 000 002');
INSERT INTO contracts (shop_id, tenant_id, title, start_date, end_date, rent_amount, charges, currency, payment_day, auto_renewal, status) VALUES
	(1, 1, 'Bail A-12', '2023-01-01', '2024-03-05', 150000, 10000, 'XAF', 31, TRUE, 'active'),
	(2, 2, 'Bail B-01', '2023-06-01', '2024-03-10', 900, 0, 'EUR', 5, FALSE, 'active');`)
	require.NoError(t, err)
}

func TestRepositoryRulesAgainstPostgres(t *testing.T) {
	pool := pgtest.Pool(t)
	seedLease(t, pool)
	ctx := context.Background()

	svc := NewService(NewRepository(pool), &fakeMailer{}, nil, nil, Options{ReminderLeadDays: 3})
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC) }

	created, err := svc.GenerateMonthlyInvoices(ctx, svc.Today())
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	var number, description string
	var due time.Time
	var amount decimal.Decimal
	require.NoError(t, pool.QueryRow(ctx, `SELECT invoice_number, description, due_date, amount_total FROM invoices WHERE contract_id = 1`).
		Scan(&number, &description, &due, &amount))
	assert.Equal(t, "FAC-202403-0001", number)
	assert.Equal(t, "Loyer 03/2024 - A-12 - Boutique (Étage RDC, Aile nord)", description)
	assert.Equal(t, "2024-03-31", due.Format("2006-01-02"))
	assert.True(t, decimal.NewFromInt(160000).Equal(amount))

	created, err = svc.GenerateMonthlyInvoices(ctx, svc.Today())
	require.NoError(t, err)
	assert.Zero(t, created, "second run is a no-op")

	svc.now = func() time.Time { return time.Date(2024, 3, 12, 5, 0, 0, 0, time.UTC) }
	renewed, expired, err := svc.AutoRenewContracts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, renewed)
	assert.Equal(t, 1, expired)

	var shopStatus string
	require.NoError(t, pool.QueryRow(ctx, `SELECT status FROM shops WHERE id = 2`).Scan(&shopStatus))
	assert.Equal(t, "vacant", shopStatus)
	var end time.Time
	require.NoError(t, pool.QueryRow(ctx, `SELECT end_date FROM contracts WHERE id = 1`).Scan(&end))
	assert.Equal(t, "2025-03-05", end.Format("2006-01-02"))

	marked, err := svc.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, marked, "B-01 invoice was due on the 5th")

	candidates, err := NewRepository(pool).ReminderCandidates(ctx, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), time.Now())
	require.NoError(t, err)
	require.Len(t, candidates, 1, "tenants without email are skipped")
	assert.Equal(t, "jean@dupont.test", candidates[0].Email)
	assert.True(t, candidates[0].Balance().Equal(decimal.NewFromInt(160000)))
	assert.Nil(t, candidates[0].RemindedAt)

	repo := NewRepository(pool)
	at := time.Date(2024, 3, 12, 5, 0, 0, 0, time.UTC)
	claimed, err := repo.ClaimReminder(ctx, candidates[0].InvoiceID, nil, at)
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = repo.ClaimReminder(ctx, candidates[0].InvoiceID, nil, at.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, claimed, "a second claim from the same snapshot loses")

	require.NoError(t, repo.ReleaseReminder(ctx, candidates[0].InvoiceID, at, nil))
	claimed, err = repo.ClaimReminder(ctx, candidates[0].InvoiceID, nil, at)
	require.NoError(t, err)
	assert.True(t, claimed, "released invoices can be claimed again")
}
