// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package confidence scores an extraction by which signals were found.
// The weights and band thresholds are policy and live here, apart from
// the extractor mechanics.
package confidence

const (
	// Min and Max bound every score.
	Min = 0
	Max = 100

	// HighThreshold and MediumThreshold split scores into bands.
	HighThreshold   = 70
	MediumThreshold = 40
)

// Weights is the additive contribution of each extraction signal.
type Weights struct {
	Name    int
	Cost    int
	Cycle   int
	Keyword int
}

// DefaultWeights are the production weights.
var DefaultWeights = Weights{
	Name:    40,
	Cost:    30,
	Cycle:   20,
	Keyword: 10,
}

// Score sums the weights of the signals present and clamps to [Min, Max].
func (w Weights) Score(hasName, hasCost, hasCycle, hasKeyword bool) int {
	score := 0
	if hasName {
		score += w.Name
	}
	if hasCost {
		score += w.Cost
	}
	if hasCycle {
		score += w.Cycle
	}
	if hasKeyword {
		score += w.Keyword
	}
	return Clamp(score)
}

// Score scores the signals with DefaultWeights.
func Score(hasName, hasCost, hasCycle, hasKeyword bool) int {
	return DefaultWeights.Score(hasName, hasCost, hasCycle, hasKeyword)
}

// Clamp limits a score to [Min, Max].
func Clamp(score int) int {
	if score < Min {
		return Min
	}
	if score > Max {
		return Max
	}
	return score
}

// Band is the coarse label callers show next to a score.
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// BandOf returns the band for a score. With the default weights and the
// extractor's name and keyword gates, every result scores at least 50, so
// BandLow is never produced by a real extraction.
func BandOf(score int) Band {
	switch {
	case score >= HighThreshold:
		return BandHigh
	case score >= MediumThreshold:
		return BandMedium
	default:
		return BandLow
	}
}
