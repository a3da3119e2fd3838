package fastmixer

import (
	"math"
	"time"
)

// loadAlpha weights the newest sample of the load moving average.
const loadAlpha = 0.05

// cycleStats accumulates cycle period statistics on the render goroutine.
// Mean and variance use Welford's online algorithm.
type cycleStats struct {
	p50   pSquareQuantile
	p99   pSquareQuantile
	mean  float64
	m2    float64
	load  float64
	count uint64
	min   time.Duration
	max   time.Duration
}

func makeCycleStats() cycleStats {
	return cycleStats{
		p50: makePSquareQuantile(0.50),
		p99: makePSquareQuantile(0.99),
	}
}

// add records one cycle, where busy is the part of it spent mixing and
// writing, and period is the nominal cycle duration.
func (s *cycleStats) add(cycle, busy, period time.Duration) {
	s.count++
	x := float64(cycle)
	delta := x - s.mean
	s.mean += delta / float64(s.count)
	s.m2 += delta * (x - s.mean)
	if s.count == 1 || cycle < s.min {
		s.min = cycle
	}
	if s.count == 1 || cycle > s.max {
		s.max = cycle
	}
	// float rounding must not push the mean outside the observed range
	s.mean = math.Min(math.Max(s.mean, float64(s.min)), float64(s.max))
	s.p50.Update(x)
	s.p99.Update(x)
	if period > 0 {
		l := float64(busy) / float64(period)
		if s.count == 1 {
			s.load = l
		} else {
			s.load += loadAlpha * (l - s.load)
		}
	}
}

// stddev returns the population standard deviation.
func (s *cycleStats) stddev() time.Duration {
	if s.count < 2 {
		return 0
	}
	return time.Duration(math.Sqrt(s.m2 / float64(s.count)))
}
