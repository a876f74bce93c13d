package walkforward

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratval/domain/validation"
)

func TestScheduleSingleWindow(t *testing.T) {
	windows, err := Schedule(1)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, validation.WindowSpec{ID: 1, Start: "2012-01-01", End: "2023-12-31"}, windows[0])
}

func TestScheduleTwoWindows(t *testing.T) {
	windows, err := Schedule(2)
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, "2012-01-01", windows[0].Start)
	assert.Equal(t, "2017-12-31", windows[0].End)
	assert.Equal(t, "2018-01-01", windows[1].Start)
	assert.Equal(t, "2023-12-31", windows[1].End)
}

func TestScheduleFiveRollingWindows(t *testing.T) {
	windows, err := Schedule(5)
	require.NoError(t, err)
	require.Len(t, windows, 5)

	want := []validation.WindowSpec{
		{ID: 1, Start: "2012-01-01", End: "2015-12-31"},
		{ID: 2, Start: "2014-01-01", End: "2017-12-31"},
		{ID: 3, Start: "2016-01-01", End: "2019-12-31"},
		{ID: 4, Start: "2018-01-01", End: "2021-12-31"},
		{ID: 5, Start: "2020-01-01", End: "2023-12-31"},
	}
	assert.Equal(t, want, windows)
}

func TestScheduleAnnualWindows(t *testing.T) {
	windows, err := Schedule(12)
	require.NoError(t, err)
	require.Len(t, windows, 12)
	assert.Equal(t, "2012-01-01", windows[0].Start)
	assert.Equal(t, "2012-12-31", windows[0].End)
	assert.Equal(t, "2023-01-01", windows[11].Start)
	assert.Equal(t, "2023-12-31", windows[11].End)
}

func TestScheduleRejectsUnknownCount(t *testing.T) {
	_, err := Schedule(3)
	assert.Error(t, err)
}
