package pipeline

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"polaroid-extractor/internal/debug/timing"
	"polaroid-extractor/internal/models"
)

// Report summarises one run for logging and the CLI.
type Report struct {
	WorkingWidth    int
	WorkingHeight   int
	WidthRatio      float64
	HeightRatio     float64
	SeedComponents  int
	ContoursFound   int
	RegionsAccepted int
	RegionsFailed   int
	MeanArea        float64 // contour area of accepted regions, working pixels
	AreaStdDev      float64
	StageTimings    map[string]time.Duration
	StageOrder      []string
	MatsAllocated   int64
	MatsLeaked      int
}

// AreaSpread returns the mean and sample standard deviation of the accepted
// contour areas. The deviation is zero for fewer than two regions.
func AreaSpread(regions []models.DetectedRegion) (mean, stdDev float64) {
	if len(regions) == 0 {
		return 0, 0
	}

	areas := make([]float64, len(regions))
	for i, r := range regions {
		areas[i] = r.ContourArea
	}
	if len(areas) == 1 {
		return areas[0], 0
	}
	return stat.MeanStdDev(areas, nil)
}

func (r *Report) addTimings(tracker *timing.Tracker) {
	r.StageTimings = tracker.Totals()
	r.StageOrder = tracker.Operations()
}

func (r Report) fields() map[string]interface{} {
	fields := map[string]interface{}{
		"working_size":     []int{r.WorkingWidth, r.WorkingHeight},
		"seed_components":  r.SeedComponents,
		"contours":         r.ContoursFound,
		"regions_accepted": r.RegionsAccepted,
		"regions_failed":   r.RegionsFailed,
		"mean_area":        r.MeanArea,
		"area_std_dev":     r.AreaStdDev,
		"mats_allocated":   r.MatsAllocated,
		"mats_leaked":      r.MatsLeaked,
	}
	for _, stage := range r.StageOrder {
		fields["t_"+stage] = r.StageTimings[stage].String()
	}
	return fields
}
