package projections

import (
	"sort"
	"time"

	"github.com/ternarybob/corrudash/internal/models"
)

// DefaultTrendBucket is the bucket width used by ToTrendSeries
const DefaultTrendBucket = time.Hour

// TrendPoint is one bucket of the waste trend chart
type TrendPoint struct {
	Time      time.Time `json:"time"` // bucket start, UTC
	Actual    float64   `json:"actual"`
	Predicted float64   `json:"predicted"`
	Jobs      int       `json:"jobs"`
}

// ToTrendSeries buckets jobs into hourly waste totals
func ToTrendSeries(jobs []models.ReconciledJob) []TrendPoint {
	return ToTrendSeriesWithBucket(jobs, DefaultTrendBucket)
}

// ToTrendSeriesWithBucket sums generated (actual) and predicted waste per
// bucket of the job's start time, ascending by time. Jobs with no known start
// time are left out. A non-positive bucket falls back to DefaultTrendBucket.
func ToTrendSeriesWithBucket(jobs []models.ReconciledJob, bucket time.Duration) []TrendPoint {
	if bucket <= 0 {
		bucket = DefaultTrendBucket
	}

	byBucket := make(map[int64]*TrendPoint)
	for _, job := range jobs {
		start := job.StartTime()
		if start == nil {
			continue
		}
		at := start.UTC().Truncate(bucket)
		key := at.UnixNano()

		point, ok := byBucket[key]
		if !ok {
			point = &TrendPoint{Time: at}
			byBucket[key] = point
		}
		point.Actual += job.Live.GeneratedWaste
		point.Predicted += job.Profile.PredictedWaste
		point.Jobs++
	}

	series := make([]TrendPoint, 0, len(byBucket))
	for _, point := range byBucket {
		series = append(series, *point)
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].Time.Before(series[j].Time)
	})
	return series
}
