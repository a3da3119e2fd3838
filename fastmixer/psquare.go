package fastmixer

// pSquareQuantile is a streaming estimate of one quantile of the cycle
// period, using the P² algorithm of Jain and Chlamtac (CACM, 1985). It keeps
// five markers whose heights approximate the minimum, the p/2, p and (1+p)/2
// quantiles, and the maximum, so updates are constant time and never
// allocate. The zero value is not usable; see makePSquareQuantile.
type pSquareQuantile struct {
	heights  [5]float64 // marker heights; the first five samples until full
	desired  [5]float64 // ideal marker positions
	step     [5]float64 // per sample change of desired
	position [5]int     // actual marker positions
	p        float64
	count    int
}

func makePSquareQuantile(p float64) pSquareQuantile {
	p = min(max(p, 0), 1)
	return pSquareQuantile{
		p:       p,
		step:    [5]float64{0, p / 2, p, (1 + p) / 2, 1},
		desired: [5]float64{0, 2 * p, 4 * p, 2 + 2*p, 4},
	}
}

// Update records one sample.
func (ps *pSquareQuantile) Update(x float64) {
	if ps.count < 5 {
		ps.heights[ps.count] = x
		ps.count++
		if ps.count == 5 {
			insertionSort(ps.heights[:])
			ps.position = [5]int{0, 1, 2, 3, 4}
		}
		return
	}
	ps.count++

	h := &ps.heights
	var cell int
	switch {
	case x < h[0]:
		h[0] = x
	case x >= h[4]:
		h[4] = x
		cell = 3
	default:
		for cell < 3 && x >= h[cell+1] {
			cell++
		}
	}
	for i := cell + 1; i < 5; i++ {
		ps.position[i]++
	}
	for i := range ps.desired {
		ps.desired[i] += ps.step[i]
	}

	for i := 1; i <= 3; i++ {
		off := ps.desired[i] - float64(ps.position[i])
		var d int
		switch {
		case off >= 1 && ps.position[i+1]-ps.position[i] > 1:
			d = 1
		case off <= -1 && ps.position[i-1]-ps.position[i] < -1:
			d = -1
		default:
			continue
		}
		if v := ps.parabolic(i, d); h[i-1] < v && v < h[i+1] {
			h[i] = v
		} else {
			h[i] = ps.linear(i, d)
		}
		ps.position[i] += d
	}
}

// parabolic is the piecewise-parabolic prediction of marker i moved by d.
func (ps *pSquareQuantile) parabolic(i, d int) float64 {
	h, n := &ps.heights, &ps.position
	fd := float64(d)
	lo, mid, hi := float64(n[i-1]), float64(n[i]), float64(n[i+1])
	return h[i] + fd/(hi-lo)*((mid-lo+fd)*(h[i+1]-h[i])/(hi-mid)+(hi-mid-fd)*(h[i]-h[i-1])/(mid-lo))
}

func (ps *pSquareQuantile) linear(i, d int) float64 {
	return ps.heights[i] + float64(d)*(ps.heights[i+d]-ps.heights[i])/float64(ps.position[i+d]-ps.position[i])
}

// Quantile returns the estimate, which is exact for fewer than five samples.
func (ps *pSquareQuantile) Quantile() float64 {
	switch {
	case ps.count == 0:
		return 0
	case ps.count < 5:
		var sorted [5]float64
		copy(sorted[:], ps.heights[:ps.count])
		insertionSort(sorted[:ps.count])
		return sorted[int(float64(ps.count-1)*ps.p)]
	default:
		return ps.heights[2]
	}
}

// Count returns the number of samples recorded.
func (ps *pSquareQuantile) Count() int { return ps.count }

func insertionSort(s []float64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
