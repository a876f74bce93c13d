package walkforward

import (
	"fmt"

	"stratval/domain/validation"
)

// Schedule builds the window schedule for the configured window count.
// All schedules cover 2012 through 2023.
func Schedule(windows int) ([]validation.WindowSpec, error) {
	switch windows {
	case 1:
		return []validation.WindowSpec{
			{ID: 1, Start: "2012-01-01", End: "2023-12-31"},
		}, nil
	case 2:
		return []validation.WindowSpec{
			{ID: 1, Start: "2012-01-01", End: "2017-12-31"},
			{ID: 2, Start: "2018-01-01", End: "2023-12-31"},
		}, nil
	case 5:
		// Rolling four-year windows stepped by two years.
		specs := make([]validation.WindowSpec, 0, 5)
		for i, startYear := range []int{2012, 2014, 2016, 2018, 2020} {
			specs = append(specs, validation.WindowSpec{
				ID:    i + 1,
				Start: fmt.Sprintf("%d-01-01", startYear),
				End:   fmt.Sprintf("%d-12-31", startYear+3),
			})
		}
		return specs, nil
	case 12:
		// One window per calendar year.
		specs := make([]validation.WindowSpec, 0, 12)
		for year := 2012; year <= 2023; year++ {
			specs = append(specs, validation.WindowSpec{
				ID:    year - 2011,
				Start: fmt.Sprintf("%d-01-01", year),
				End:   fmt.Sprintf("%d-12-31", year),
			})
		}
		return specs, nil
	default:
		return nil, fmt.Errorf("unsupported window count %d", windows)
	}
}
