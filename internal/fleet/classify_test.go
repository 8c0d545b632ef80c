package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	th := DefaultThresholds()
	cases := []struct {
		name string
		fill int
		days int
		want Status
	}{
		{"empty", 0, 0, StatusOK},
		{"below nearly full", 59, 7, StatusOK},
		{"nearly full boundary", 60, 0, StatusNearlyFull},
		{"full boundary", 80, 3, StatusFull},
		{"brim", 100, 0, StatusFull},
		{"old and empty", 0, 8, StatusInactive},
		{"old beats full", 100, 30, StatusInactive},
		{"inactive is strict", 90, 7, StatusFull},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := Bin{ID: 1, Fill: tc.fill, LastEmptiedDaysAgo: tc.days}
			assert.Equal(t, tc.want, Classify(b, th))
		})
	}
}

func TestClassifyAlwaysOneOfFour(t *testing.T) {
	valid := map[Status]bool{StatusOK: true, StatusNearlyFull: true, StatusFull: true, StatusInactive: true}
	for full := 0; full <= 100; full += 20 {
		for nearly := 0; nearly <= 100; nearly += 20 {
			for inactive := 0; inactive <= 10; inactive += 5 {
				th := Thresholds{Full: full, NearlyFull: nearly, Inactive: inactive}
				for fill := 0; fill <= 100; fill += 10 {
					for days := 0; days <= 12; days += 3 {
						got := Classify(Bin{Fill: fill, LastEmptiedDaysAgo: days}, th)
						assert.True(t, valid[got], "unexpected status %q", got)
					}
				}
			}
		}
	}
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.ErrorIs(t, Thresholds{Full: -1, NearlyFull: 60, Inactive: 7}.Validate(), ErrInvalidRequest)
	assert.ErrorIs(t, Thresholds{Full: 80, NearlyFull: 60, Inactive: -7}.Validate(), ErrInvalidRequest)
}

func TestNeedsServiceSkipsHub(t *testing.T) {
	bins := []Bin{
		{ID: HubID, Type: HubType, LastEmptiedDaysAgo: 99},
		{ID: 1, Fill: 85},
		{ID: 2, Fill: 65},
		{ID: 3, Fill: 10, LastEmptiedDaysAgo: 9},
		{ID: 4, Fill: 10},
	}
	due := NeedsService(bins, DefaultThresholds())
	if assert.Len(t, due, 2) {
		assert.Equal(t, 1, due[0].ID)
		assert.Equal(t, StatusFull, due[0].Status)
		assert.Equal(t, 3, due[1].ID)
		assert.Equal(t, StatusInactive, due[1].Status)
	}
}
