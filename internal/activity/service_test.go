package activity

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentdesk/rentdesk/internal/rbac"
	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/testing/webtest"
)

type stubRepo struct {
	rows       []Entry
	lastOffset int
	lastLimit  int
	lastFilter TimelineFilters
}

func (s *stubRepo) Window(_ context.Context, filters TimelineFilters, offset, limit int) ([]Entry, error) {
	s.lastFilter, s.lastOffset, s.lastLimit = filters, offset, limit
	rows := s.rows
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func sampleEntries() []Entry {
	return []Entry{
		{
			ID:         2,
			At:         time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC),
			ActorID:    4,
			ActorName:  "Awa Ndiaye",
			ActorEmail: "awa@rentdesk.test",
			Action:     shared.ActionUpdate,
			Entity:     "invoice",
			EntityID:   "12",
			ShopID:     3,
			Details:    map[string]any{"status": "paid", "invoice_number": "FAC-1"},
		},
		{
			ID:      1,
			At:      time.Date(2024, 3, 9, 5, 0, 0, 0, time.UTC),
			Action:  shared.ActionSystem,
			Entity:  "billing",
			Details: map[string]any{"marked_overdue": 2},
		},
	}
}

func TestTimelinePaging(t *testing.T) {
	repo := &stubRepo{rows: sampleEntries()}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 1})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Equal(t, 2, repo.lastLimit)
	assert.Equal(t, 0, repo.lastOffset)

	result, err = svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 1})
	require.NoError(t, err)
	assert.False(t, result.Paging.HasNext)
	assert.Equal(t, 1, result.Paging.PrevPage)
	assert.Equal(t, 1, repo.lastOffset)

	_, err = svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize+1, repo.lastLimit)

	result, err = svc.Timeline(context.Background(), TimelineFilters{Page: 1 << 62, PageSize: MaxPageSize})
	require.NoError(t, err)
	assert.Equal(t, shared.MaxPage, result.Paging.Page)
	assert.Equal(t, (shared.MaxPage-1)*MaxPageSize, repo.lastOffset)
}

func TestExportIsCapped(t *testing.T) {
	repo := &stubRepo{}
	_, err := NewService(repo).Export(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	assert.Equal(t, ExportLimit, repo.lastLimit)
}

func TestEntryActorAndDetails(t *testing.T) {
	entries := sampleEntries()
	assert.Equal(t, "Awa Ndiaye", entries[0].Actor())
	assert.Equal(t, "Système", entries[1].Actor())
	assert.Equal(t, "invoice_number=FAC-1, status=paid", entries[0].DetailsText())
	assert.Equal(t, "", Entry{}.DetailsText())
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleEntries()))
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "activity_export", buf.Bytes())
}

func newTestHandler(t *testing.T, repo *stubRepo) *Handler {
	t.Helper()
	h := NewHandler(nil, NewService(repo), webtest.Engine(t), shared.NewCSRFManager("secret"), rbac.Middleware{}, time.FixedZone("CET", 3600))
	h.now = func() time.Time { return time.Date(2024, 3, 15, 23, 30, 0, 0, time.UTC) }
	return h
}
