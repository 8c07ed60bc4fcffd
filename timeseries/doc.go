// Package timeseries provides the validated price series every analysis runs on.
//
// A Series is built once from raw provider points and never changes
// afterwards; every derived computation returns new values.
//
// # Building a Series
//
//	points := []timeseries.TimePoint{
//	    {Time: day(0), Price: 64210.5},
//	    {Time: day(1), Price: 65102.0},
//	    {Time: day(2), Price: 63988.1},
//	}
//	series, err := timeseries.Build(points, timeseries.WithName("bitcoin/usd"))
//	if errors.Is(err, timeseries.ErrValidation) {
//	    // fewer than two points, a non-positive price or a duplicate timestamp
//	}
//
// Points out of order are sorted; duplicate timestamps are an error.
//
// # Spacing and Gaps
//
//	step := series.Step()  // median spacing
//	gaps := series.Gaps()  // intervals longer than 1.5x the step
//	daily, _ := series.Resample(24 * time.Hour) // forward-filled grid
//
// # Windows
//
//	train, err := series.Window(180) // trailing 180 points
//
// # Missing Values
//
// Aligned outputs use Sample, whose Valid flag marks undefined positions.
// Samples encode missing values as null in JSON and YAML.
//
// # Loading from CSV
//
//	points, err := timeseries.LoadCSV("btc.csv", timeseries.DefaultCSVOptions())
//	series, err := timeseries.Build(points)
//
// # Errors
//
// ErrValidation, ErrInsufficientData, ErrInvalidParameter, ErrInvalidDomain,
// ErrModelFit and ErrTimeout are shared by all analysis packages.
package timeseries
