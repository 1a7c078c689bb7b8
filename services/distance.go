package services

import (
	"context"
	"strings"
)

// DistanceProvider resolves the road distance in km between two locations.
type DistanceProvider interface {
	Distance(ctx context.Context, from, to string) (float64, error)
}

// StaticDistanceProvider answers from a fixed route table. Lookups ignore case
// and direction; unknown routes get Default.
type StaticDistanceProvider struct {
	Routes  map[[2]string]float64
	Default float64
}

func (p StaticDistanceProvider) Distance(ctx context.Context, from, to string) (float64, error) {
	a, b := strings.ToLower(strings.TrimSpace(from)), strings.ToLower(strings.TrimSpace(to))
	if a == b {
		return 0, nil
	}
	for k, km := range p.Routes {
		x, y := strings.ToLower(k[0]), strings.ToLower(k[1])
		if (x == a && y == b) || (x == b && y == a) {
			return km, nil
		}
	}
	return p.Default, nil
}
