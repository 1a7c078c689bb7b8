package services

import "math"

// LevelThresholds is the points floor of each level, strictly increasing.
// Level n (1-based) starts at LevelThresholds[n-1]; the last level is open-ended.
var LevelThresholds = [10]int{0, 100, 250, 500, 1000, 2000, 3500, 5500, 8000, 12000}

var LevelNames = [10]string{
	"Seedling",
	"Sprout",
	"Helper",
	"Neighbor",
	"Provider",
	"Champion",
	"Guardian",
	"Hero",
	"Legend",
	"Luminary",
}

// LevelInfo is the position of a points total on the level curve.
type LevelInfo struct {
	Level       int
	Name        string
	Progress    float64 // percent through the current level, 2 decimals
	NextLevelAt int     // zero on the top level
}

// LevelFor places points on the curve. Progress saturates at 100 on the top level.
func LevelFor(points int) LevelInfo {
	idx := 0
	for i, floor := range LevelThresholds {
		if points >= floor {
			idx = i
		}
	}
	info := LevelInfo{Level: idx + 1, Name: LevelNames[idx]}
	if idx == len(LevelThresholds)-1 {
		info.Progress = 100
		return info
	}
	lo, hi := LevelThresholds[idx], LevelThresholds[idx+1]
	p := float64(max(points, lo)-lo) / float64(hi-lo) * 100
	info.Progress = math.Round(p*100) / 100
	info.NextLevelAt = hi
	return info
}
