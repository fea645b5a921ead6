// Package sample draws token ids from model logits for stochastic
// generation: temperature scaling, top-k shortlisting and nucleus
// (top-p) truncation over a seeded source of randomness.
package sample

import (
	"math"
	"math/rand"
)

// Config configures the behaviour of a Sampler.
type Config struct {
	Seed        int64
	Temperature float32
	TopK        int
	TopP        float32
}

type Sampler struct {
	rng    *rand.Rand
	cfg    Config
	greedy bool
	topIdx []int
	topVal []float32
	prob   []float64
}

// New returns a sampler with the provided configuration. A
// non-positive temperature makes the sampler greedy.
func New(cfg Config) *Sampler {
	greedy := cfg.Temperature <= 0
	if cfg.Temperature <= 0 {
		cfg.Temperature = 1
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 40
	}
	if cfg.TopP <= 0 || cfg.TopP > 1 {
		cfg.TopP = 1
	}
	return &Sampler{
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		cfg:    cfg,
		greedy: greedy,
	}
}

// Greedy reports whether the sampler always returns the argmax.
func (s *Sampler) Greedy() bool { return s.greedy }

// Sample draws a single index from the provided logits vector:
//
//  1. If the sampler is greedy, the argmax is returned.
//  2. The logits are scaled by the inverse temperature and the indices
//     of the top k values are shortlisted.
//  3. A softmax over the shortlisted values is computed.
//  4. If TopP<1, the shortlist is truncated when the cumulative
//     probability reaches TopP.
//  5. A random value in [0,1) selects an index from the truncated
//     distribution.
func (s *Sampler) Sample(logits []float32) int {
	if s.greedy || (s.cfg.TopK == 1 && s.cfg.TopP >= 1 && s.cfg.Temperature == 1) {
		return argmax(logits)
	}

	invTemp := float32(1.0) / s.cfg.Temperature
	k := min(s.cfg.TopK, len(logits))

	topIdx, topVal := s.topK(logits, k, invTemp)
	if len(topVal) == 0 {
		return 0
	}

	maxv := topVal[0]
	if cap(s.prob) < len(topVal) {
		s.prob = make([]float64, len(topVal))
	}
	prob := s.prob[:len(topVal)]
	var sum float64
	for i := range topVal {
		e := math.Exp(float64(topVal[i] - maxv))
		prob[i] = e
		sum += e
	}
	if sum == 0 {
		return topIdx[0]
	}
	invSum := 1.0 / sum
	for i := range prob {
		prob[i] *= invSum
	}

	cut := len(prob)
	if s.cfg.TopP < 1 {
		var c float64
		for i := range prob {
			c += prob[i]
			if float32(c) >= s.cfg.TopP {
				cut = i + 1
				break
			}
		}
	}

	r := s.rng.Float64()
	var c float64
	for i := 0; i < cut; i++ {
		c += prob[i]
		if r <= c {
			return topIdx[i]
		}
	}
	return topIdx[cut-1]
}

// argmax returns the index of the maximum value. Ties resolve to the
// lowest index. It panics on an empty slice.
func argmax(x []float32) int {
	if len(x) == 0 {
		panic("argmax: empty slice")
	}
	bestI := 0
	bestV := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > bestV {
			bestV = x[i]
			bestI = i
		}
	}
	return bestI
}

// topK returns the indices and values of the k largest elements of
// logits, scaled by invTemp and ordered from largest to smallest.
// O(V*K), suitable for small k.
func (s *Sampler) topK(logits []float32, k int, invTemp float32) ([]int, []float32) {
	if k <= 0 {
		return nil, nil
	}
	if cap(s.topIdx) < k+1 {
		s.topIdx = make([]int, 0, k+1)
		s.topVal = make([]float32, 0, k+1)
	}
	topIdx := s.topIdx[:0]
	topVal := s.topVal[:0]

	for i, l := range logits {
		v := l * invTemp

		pos := len(topVal)
		for pos > 0 && topVal[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}

		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)
		copy(topIdx[pos+1:], topIdx[pos:])
		copy(topVal[pos+1:], topVal[pos:])
		topIdx[pos] = i
		topVal[pos] = v

		if len(topVal) > k {
			topIdx = topIdx[:k]
			topVal = topVal[:k]
		}
	}
	s.topIdx = topIdx
	s.topVal = topVal
	return topIdx, topVal
}
