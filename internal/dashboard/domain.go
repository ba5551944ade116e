package dashboard

import (
	"time"

	"github.com/shopspring/decimal"
)

// Dashboard list sizes and horizons.
const (
	ListSize       = 5
	ExpiryHorizon  = 90
	requestTimeout = 5 * time.Second
)

// Counts are the headline figures.
type Counts struct {
	TotalShops      int `json:"total_shops"`
	OccupiedShops   int `json:"occupied_shops"`
	ActiveTenants   int `json:"active_tenants"`
	ActiveContracts int `json:"active_contracts"`
	OverdueInvoices int `json:"overdue_invoices"`
}

// Amount is a sum in one currency.
type Amount struct {
	Currency string          `json:"currency"`
	Value    decimal.Decimal `json:"value"`
}

// ExpiringContract is an active contract ending soon.
type ExpiringContract struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	TenantName string    `json:"tenant_name"`
	ShopNumber string    `json:"shop_number"`
	EndDate    time.Time `json:"end_date"`
	DaysLeft   int       `json:"days_left"`
}

// OverdueInvoice is an open invoice past its due date.
type OverdueInvoice struct {
	ID         int64           `json:"id"`
	Number     string          `json:"number"`
	TenantName string          `json:"tenant_name"`
	DueDate    time.Time       `json:"due_date"`
	Balance    decimal.Decimal `json:"balance"`
	Currency   string          `json:"currency"`
	DaysLate   int             `json:"days_late"`
}

// RecentContract is one of the latest contracts created.
type RecentContract struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	TenantName string    `json:"tenant_name"`
	ShopNumber string    `json:"shop_number"`
	Status     string    `json:"status"`
	StartDate  time.Time `json:"start_date"`
	CreatedAt  time.Time `json:"created_at"`
}

// Stats is the cached dashboard snapshot.
type Stats struct {
	AsOf           time.Time          `json:"as_of"`
	Counts         Counts             `json:"counts"`
	MonthlyRevenue []Amount           `json:"monthly_revenue"`
	Pending        []Amount           `json:"pending"`
	Expiring       []ExpiringContract `json:"expiring"`
	Overdue        []OverdueInvoice   `json:"overdue"`
	Recent         []RecentContract   `json:"recent"`
}

// OccupancyRate is the share of occupied shops, in percent.
func (s Stats) OccupancyRate() int {
	if s.Counts.TotalShops == 0 {
		return 0
	}
	return s.Counts.OccupiedShops * 100 / s.Counts.TotalShops
}
