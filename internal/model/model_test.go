package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateRange(t *testing.T) {
	tests := []struct {
		name    string
		start   string
		end     string
		wantErr error
		nights  int64
	}{
		{name: "three nights", start: "2025-06-01", end: "2025-06-04", nights: 3},
		{name: "partial day rounds up", start: "2025-06-01T14:00:00Z", end: "2025-06-03T11:00:00Z", nights: 2},
		{name: "one hour is one night", start: "2025-06-01T10:00:00Z", end: "2025-06-01T11:00:00Z", nights: 1},
		{name: "end equals start", start: "2025-06-01", end: "2025-06-01", wantErr: ErrEndBeforeStart},
		{name: "end before start", start: "2025-06-04", end: "2025-06-01", wantErr: ErrEndBeforeStart},
		{name: "garbage", start: "tomorrow", end: "2025-06-01", wantErr: ErrInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseDateRange(tt.start, tt.end)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.nights, r.Nights())
		})
	}
}

func TestDateRangeOverlaps(t *testing.T) {
	base := mustRange(t, "2025-06-01", "2025-06-04")
	tests := []struct {
		name  string
		other DateRange
		want  bool
	}{
		{"identical", mustRange(t, "2025-06-01", "2025-06-04"), true},
		{"inside", mustRange(t, "2025-06-02", "2025-06-03"), true},
		{"covers", mustRange(t, "2025-05-30", "2025-06-10"), true},
		{"straddles start", mustRange(t, "2025-05-30", "2025-06-02"), true},
		{"straddles end", mustRange(t, "2025-06-03", "2025-06-06"), true},
		{"touches end", mustRange(t, "2025-06-04", "2025-06-06"), false},
		{"touches start", mustRange(t, "2025-05-29", "2025-06-01"), false},
		{"disjoint", mustRange(t, "2025-07-01", "2025-07-02"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(base))
		})
	}
}

func TestListingPriceFor(t *testing.T) {
	l := Listing{BasePrice: 100}
	assert.Equal(t, int64(300), l.PriceFor(mustRange(t, "2025-06-01", "2025-06-04")))
}

func TestCouponStatusForRemaining(t *testing.T) {
	active := Coupon{Status: CouponActive}
	exhausted := Coupon{Status: CouponExhausted}
	inactive := Coupon{Status: CouponInactive}

	assert.Equal(t, CouponExhausted, active.StatusForRemaining(0))
	assert.Equal(t, CouponActive, active.StatusForRemaining(10))
	assert.Equal(t, CouponActive, exhausted.StatusForRemaining(10))
	assert.Equal(t, CouponInactive, inactive.StatusForRemaining(10))
}

func TestCouponExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, Coupon{}.Expired(now))
	assert.True(t, Coupon{ExpiresAt: &past}.Expired(now))
	assert.False(t, Coupon{ExpiresAt: &future}.Expired(now))
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SUMMER25", NormalizeCode("  summer25 "))
}

func TestCouponFilterNormalize(t *testing.T) {
	f := CouponFilter{Page: 0, Limit: 500}.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, 100, f.Limit)
	assert.Equal(t, 0, f.Offset())

	f = CouponFilter{Page: 3}.Normalize()
	assert.Equal(t, 40, f.Offset())
}

func mustRange(t *testing.T, start, end string) DateRange {
	t.Helper()
	r, err := ParseDateRange(start, end)
	require.NoError(t, err)
	return r
}
