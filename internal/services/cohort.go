package services

import (
	"fmt"
	"math"
	"time"

	"visitrack/internal/models"
	"visitrack/internal/repositories/interfaces"
	"visitrack/internal/utils"
)

const (
	CohortGranularityMonth = "month"
	CohortGranularityWeek  = "week"

	CohortModelObserved  = "observed"
	CohortModelGeometric = "geometric_estimate"

	geometricRetentionDecay = 0.8
	maxCohortPeriods        = 24
)

// cohortPeriods returns the start of each of the trailing n periods, oldest
// first, ending with the period containing now.
func cohortPeriods(granularity string, n int, now time.Time) []time.Time {
	now = now.UTC()
	current := utils.StartOfMonth(now)
	if granularity == CohortGranularityWeek {
		current = utils.StartOfWeek(now)
	}

	starts := make([]time.Time, n)
	for i := 0; i < n; i++ {
		starts[i] = shiftPeriod(granularity, current, i-(n-1))
	}
	return starts
}

func shiftPeriod(granularity string, start time.Time, k int) time.Time {
	if granularity == CohortGranularityWeek {
		return start.AddDate(0, 0, 7*k)
	}
	return start.AddDate(0, k, 0)
}

func periodLabel(granularity string, start time.Time) string {
	if granularity == CohortGranularityWeek {
		year, week := start.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	}
	return start.Format("2006-01")
}

// computeCohorts buckets members by first-seen period. For the observed
// model active[i] holds the users with a session in period i; it is ignored
// by the geometric model.
func computeCohorts(granularity, model string, starts []time.Time, members []*interfaces.VisitorFirstSeen, active []map[string]bool) []models.Cohort {
	n := len(starts)
	buckets := make([][]string, n)
	for _, m := range members {
		idx := periodIndex(starts, granularity, m.FirstSeenAt)
		if idx >= 0 {
			buckets[idx] = append(buckets[idx], m.UserID)
		}
	}

	cohorts := make([]models.Cohort, 0, n)
	for c, users := range buckets {
		size := int64(len(users))
		cohort := models.Cohort{
			Period:    periodLabel(granularity, starts[c]),
			Start:     starts[c],
			Size:      size,
			Retention: []models.CohortRetention{},
		}

		for k := 0; c+k < n; k++ {
			var retained float64
			switch {
			case k == 0:
				retained = float64(size)
			case model == CohortModelGeometric:
				retained = math.Round(float64(size)*math.Pow(geometricRetentionDecay, float64(k))*100) / 100
			default:
				for _, id := range users {
					if active[c+k][id] {
						retained++
					}
				}
			}
			cohort.Retention = append(cohort.Retention, models.CohortRetention{
				Offset: k,
				Users:  retained,
				Rate:   utils.Round2(utils.Percentage(retained, float64(size))),
			})
		}
		cohorts = append(cohorts, cohort)
	}
	return cohorts
}

func periodIndex(starts []time.Time, granularity string, t time.Time) int {
	t = t.UTC()
	for i, start := range starts {
		end := shiftPeriod(granularity, start, 1)
		if !t.Before(start) && t.Before(end) {
			return i
		}
	}
	return -1
}
