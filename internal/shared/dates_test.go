package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAddMonths(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	cases := []struct {
		from time.Time
		n    int
		want time.Time
	}{
		{day(2024, 1, 31), 1, day(2024, 2, 29)},
		{day(2023, 1, 31), 1, day(2023, 2, 28)},
		{day(2024, 3, 31), -1, day(2024, 2, 29)},
		{day(2024, 8, 31), 6, day(2025, 2, 28)},
		{day(2024, 5, 15), 12, day(2025, 5, 15)},
		{day(2024, 12, 31), 2, day(2025, 2, 28)},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, AddMonths(tc.from, tc.n), "%s %+d", tc.from.Format(DateLayout), tc.n)
	}
}
