// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package payout

import (
	"math"
	"sort"

	"github.com/AccelByte/extend-payplay-rewards/pkg/stats"
)

// Pool split ratios.
const (
	VolumeRatio   = 0.70
	PeakRatio     = 0.25
	TreasuryRatio = 0.05
)

// peakTiers maps the number of peak qualifiers (capped at 3) to the share
// of the peak pool each rank receives.
var peakTiers = [][]float64{
	1: {1.0},
	2: {0.70, 0.30},
	3: {0.60, 0.25, 0.15},
}

// Award is what one player receives in a cycle.
type Award struct {
	Player      string  `json:"player"`
	DailyTotal  int64   `json:"dailyTotal"`
	DailyHigh   int64   `json:"dailyHigh"`
	Volume      float64 `json:"volume"`
	Peak        float64 `json:"peak"`
	Total       float64 `json:"total"`
	Units       int64   `json:"units"`
	PeakRank    int     `json:"peakRank,omitempty"`
}

// Allocation is the computed payout of one cycle. Awards are ordered by
// player identity.
type Allocation struct {
	Pool          float64 `json:"pool"`
	VolumePool    float64 `json:"volumePool"`
	PeakPool      float64 `json:"peakPool"`
	Treasury      float64 `json:"treasury"`
	TreasuryUnits int64   `json:"treasuryUnits"`
	Awards        []Award `json:"awards"`
}

// Split divides pool into its volume, peak and treasury parts.
func Split(pool float64) (volume, peak, treasury float64) {
	return pool * VolumeRatio, pool * PeakRatio, pool * TreasuryRatio
}

// ToUnits converts an amount to the ledger's fixed-point unit, rounding to
// the nearest unit.
func ToUnits(amount float64, decimals int) int64 {
	return int64(math.Round(amount * math.Pow10(decimals)))
}

// Compute allocates pool over the daily rows.
//
// Every player with a positive daily total gets a pro-rata slice of the
// volume pool. The top three daily highs (positive only) split the peak
// pool by tier; equal highs keep the order of daily, which callers pass
// sorted by player identity.
func Compute(pool float64, daily []stats.PlayerStats, decimals int) *Allocation {
	volumePool, peakPool, treasury := Split(pool)
	alloc := &Allocation{
		Pool:          pool,
		VolumePool:    volumePool,
		PeakPool:      peakPool,
		Treasury:      treasury,
		TreasuryUnits: ToUnits(treasury, decimals),
	}
	if pool <= 0 {
		return alloc
	}

	awards := make(map[string]*Award)
	award := func(row stats.PlayerStats) *Award {
		a, ok := awards[row.Player]
		if !ok {
			a = &Award{Player: row.Player, DailyTotal: row.TotalScore, DailyHigh: row.HighScore}
			awards[row.Player] = a
		}
		return a
	}

	var sumTotal int64
	for _, row := range daily {
		if row.TotalScore > 0 {
			sumTotal += row.TotalScore
		}
	}
	if sumTotal > 0 && volumePool > 0 {
		for _, row := range daily {
			if row.TotalScore <= 0 {
				continue
			}
			award(row).Volume = volumePool * float64(row.TotalScore) / float64(sumTotal)
		}
	}

	if peakPool > 0 {
		var qualifiers []stats.PlayerStats
		for _, row := range daily {
			if row.HighScore > 0 {
				qualifiers = append(qualifiers, row)
			}
		}
		sort.SliceStable(qualifiers, func(i, j int) bool {
			return qualifiers[i].HighScore > qualifiers[j].HighScore
		})
		if len(qualifiers) > 3 {
			qualifiers = qualifiers[:3]
		}
		if n := len(qualifiers); n > 0 {
			for rank, row := range qualifiers {
				a := award(row)
				a.Peak = peakPool * peakTiers[n][rank]
				a.PeakRank = rank + 1
			}
		}
	}

	alloc.Awards = make([]Award, 0, len(awards))
	for _, a := range awards {
		a.Total = a.Volume + a.Peak
		a.Units = ToUnits(a.Total, decimals)
		alloc.Awards = append(alloc.Awards, *a)
	}
	sort.Slice(alloc.Awards, func(i, j int) bool { return alloc.Awards[i].Player < alloc.Awards[j].Player })
	return alloc
}

// Payable returns the recipients and unit amounts of every award worth at
// least one unit, in award order.
func (a *Allocation) Payable() (recipients []string, units []int64) {
	for _, aw := range a.Awards {
		if aw.Units <= 0 {
			continue
		}
		recipients = append(recipients, aw.Player)
		units = append(units, aw.Units)
	}
	return recipients, units
}

// Award returns the award of player, if any.
func (a *Allocation) Award(player string) (Award, bool) {
	for _, aw := range a.Awards {
		if aw.Player == player {
			return aw, true
		}
	}
	return Award{}, false
}
