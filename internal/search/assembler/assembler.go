// Package assembler turns provider route fragments into candidate itineraries.
package assembler

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"itinera/pkg/model"
)

// frontierFactor bounds partial paths kept per depth relative to the candidate cap.
const frontierFactor = 20

type Query struct {
	Origin       string
	Destination  string
	DepartAfter  time.Time
	ArriveBefore time.Time
	MaxLayovers  int
	Passengers   int
}

type Options struct {
	MinConnection time.Duration
	MaxCandidates int
}

// Assemble enumerates simple paths from Origin to Destination. Legs chain when the next
// departure leaves at least MinConnection after the previous arrival. Shorter paths are
// found first; within a length, earlier arrival wins. The result is capped at MaxCandidates.
func Assemble(q Query, fragments []model.RouteFragment, opts Options) []model.Plan {
	plans := []model.Plan{}
	if q.Origin == q.Destination || len(fragments) == 0 || opts.MaxCandidates <= 0 {
		return plans
	}

	byOrigin := indexByOrigin(q, fragments)
	maxLegs := q.MaxLayovers + 1

	var complete [][]model.RouteFragment
	var frontier [][]model.RouteFragment
	for _, f := range byOrigin[q.Origin] {
		if f.DepartAt.Before(q.DepartAfter) || f.Destination == q.Origin {
			continue
		}
		path := []model.RouteFragment{f}
		if f.Destination == q.Destination {
			complete = append(complete, path)
		} else if maxLegs > 1 {
			frontier = append(frontier, path)
		}
	}

	for depth := 2; depth <= maxLegs && len(frontier) > 0 && len(complete) < opts.MaxCandidates; depth++ {
		sortByArrival(frontier)
		if limit := opts.MaxCandidates * frontierFactor; len(frontier) > limit {
			frontier = frontier[:limit]
		}

		var next [][]model.RouteFragment
		for _, path := range frontier {
			last := path[len(path)-1]
			for _, f := range byOrigin[last.Destination] {
				if f.DepartAt.Before(last.ArriveAt.Add(opts.MinConnection)) || visits(q, path, f.Destination) {
					continue
				}
				extended := make([]model.RouteFragment, len(path), len(path)+1)
				copy(extended, path)
				extended = append(extended, f)

				if f.Destination == q.Destination {
					complete = append(complete, extended)
				} else if depth < maxLegs {
					next = append(next, extended)
				}
			}
		}
		frontier = next
	}

	sort.SliceStable(complete, func(i, j int) bool {
		a, b := complete[i], complete[j]
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		if aa, ba := a[len(a)-1].ArriveAt, b[len(b)-1].ArriveAt; !aa.Equal(ba) {
			return aa.Before(ba)
		}
		if ad, bd := a[0].DepartAt, b[0].DepartAt; !ad.Equal(bd) {
			return ad.After(bd)
		}
		return pathKey(a) < pathKey(b)
	})
	if len(complete) > opts.MaxCandidates {
		complete = complete[:opts.MaxCandidates]
	}

	passengers := max(q.Passengers, 1)
	for _, path := range complete {
		legs := make([]model.Leg, len(path))
		for i, f := range path {
			legs[i] = model.Leg{RouteFragment: f}
		}
		plans = append(plans, model.Plan{
			ID:         PlanID(path),
			Legs:       legs,
			Passengers: passengers,
		})
	}
	return plans
}

// PlanID is stable for the same sequence of fragments.
func PlanID(path []model.RouteFragment) string {
	sum := sha256.Sum256([]byte(pathKey(path)))
	return "plan_" + hex.EncodeToString(sum[:8])
}

func indexByOrigin(q Query, fragments []model.RouteFragment) map[string][]model.RouteFragment {
	byOrigin := make(map[string][]model.RouteFragment)
	for _, f := range fragments {
		if !f.ArriveAt.After(f.DepartAt) {
			continue
		}
		if !q.ArriveBefore.IsZero() && f.ArriveAt.After(q.ArriveBefore) {
			continue
		}
		if f.DepartAt.Before(q.DepartAfter) {
			continue
		}
		byOrigin[f.Origin] = append(byOrigin[f.Origin], f)
	}
	for origin := range byOrigin {
		list := byOrigin[origin]
		sort.SliceStable(list, func(i, j int) bool {
			if !list[i].DepartAt.Equal(list[j].DepartAt) {
				return list[i].DepartAt.Before(list[j].DepartAt)
			}
			return list[i].ID < list[j].ID
		})
	}
	return byOrigin
}

// visits reports whether airport already appears on path, origin included.
func visits(q Query, path []model.RouteFragment, airport string) bool {
	if airport == q.Origin {
		return true
	}
	for _, f := range path {
		if f.Destination == airport {
			return true
		}
	}
	return false
}

func sortByArrival(paths [][]model.RouteFragment) {
	sort.SliceStable(paths, func(i, j int) bool {
		a, b := paths[i][len(paths[i])-1].ArriveAt, paths[j][len(paths[j])-1].ArriveAt
		if !a.Equal(b) {
			return a.Before(b)
		}
		return pathKey(paths[i]) < pathKey(paths[j])
	})
}

func pathKey(path []model.RouteFragment) string {
	ids := make([]string, len(path))
	for i, f := range path {
		ids[i] = f.ID
	}
	return strings.Join(ids, ">")
}
