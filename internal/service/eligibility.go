package service

import (
	"github.com/spec-kit/dispatch-service/internal/directory"
	"github.com/spec-kit/dispatch-service/internal/domain"
)

// RoundWindow is the maximum number of partners offered in one round.
const RoundWindow = 3

// Selector picks the partners offered in a given round.
type Selector struct {
	dir    *directory.Directory
	window int
}

// NewSelector builds a selector over dir.
func NewSelector(dir *directory.Directory) *Selector {
	return &Selector{dir: dir, window: RoundWindow}
}

// SelectForRound returns the round's slice of the hub roster: partners with
// capacity left, in priority order, window (round-1)*3 .. round*3. Successive
// rounds over an unchanged roster are disjoint. An empty result means the
// roster is exhausted.
func (s *Selector) SelectForRound(hubCode string, round int) []domain.Partner {
	if round < 1 {
		return nil
	}

	roster := s.dir.PartnersForHub(hubCode)
	eligible := roster[:0]
	for _, p := range roster {
		if p.Remaining() > 0 {
			eligible = append(eligible, p)
		}
	}

	start := (round - 1) * s.window
	if start >= len(eligible) {
		return nil
	}
	end := start + s.window
	if end > len(eligible) {
		end = len(eligible)
	}

	out := make([]domain.Partner, end-start)
	copy(out, eligible[start:end])
	return out
}

func partnerNames(partners []domain.Partner) []string {
	names := make([]string, len(partners))
	for i, p := range partners {
		names[i] = p.Name
	}
	return names
}
