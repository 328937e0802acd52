package assembler

import (
	"fmt"
	"testing"
	"time"

	"itinera/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)

func frag(id, from, to string, departHour, minutes int) model.RouteFragment {
	depart := day.Add(time.Duration(departHour) * time.Hour)
	return model.RouteFragment{
		ID:              id,
		Origin:          from,
		Destination:     to,
		Provider:        "earth-air",
		Mode:            model.ModeFlight,
		DepartAt:        depart,
		ArriveAt:        depart.Add(time.Duration(minutes) * time.Minute),
		DurationMinutes: minutes,
	}
}

func defaultQuery() Query {
	return Query{
		Origin:       "LON",
		Destination:  "NYC",
		DepartAfter:  day,
		ArriveBefore: day.Add(48 * time.Hour),
		MaxLayovers:  2,
		Passengers:   1,
	}
}

var defaultOpts = Options{MinConnection: 45 * time.Minute, MaxCandidates: 50}

func legIDs(p model.Plan) []string {
	ids := make([]string, len(p.Legs))
	for i, l := range p.Legs {
		ids[i] = l.ID
	}
	return ids
}

func TestAssemble(t *testing.T) {
	tests := []struct {
		name      string
		query     func() Query
		fragments []model.RouteFragment
		opts      Options
		want      [][]string
	}{
		{
			name:      "direct hop",
			query:     defaultQuery,
			fragments: []model.RouteFragment{frag("d1", "LON", "NYC", 6, 450)},
			opts:      defaultOpts,
			want:      [][]string{{"d1"}},
		},
		{
			name:  "connection must respect minimum layover",
			query: defaultQuery,
			fragments: []model.RouteFragment{
				frag("a", "LON", "KEF", 6, 180), // arrives 09:00
				frag("tight", "KEF", "NYC", 9, 360),
				frag("ok", "KEF", "NYC", 10, 360),
			},
			opts: defaultOpts,
			want: [][]string{{"a", "ok"}},
		},
		{
			name:  "negative layover is never chained",
			query: defaultQuery,
			fragments: []model.RouteFragment{
				frag("a", "LON", "KEF", 10, 180),
				frag("early", "KEF", "NYC", 8, 360),
			},
			opts: defaultOpts,
			want: [][]string{},
		},
		{
			name: "max layovers bounds path length",
			query: func() Query {
				q := defaultQuery()
				q.MaxLayovers = 0
				return q
			},
			fragments: []model.RouteFragment{
				frag("a", "LON", "KEF", 6, 180),
				frag("b", "KEF", "NYC", 12, 360),
				frag("d", "LON", "NYC", 7, 450),
			},
			opts: defaultOpts,
			want: [][]string{{"d"}},
		},
		{
			name: "fragments outside the window are ignored",
			query: func() Query {
				q := defaultQuery()
				q.DepartAfter = day.Add(7 * time.Hour)
				q.ArriveBefore = day.Add(20 * time.Hour)
				return q
			},
			fragments: []model.RouteFragment{
				frag("too-early", "LON", "NYC", 6, 300),
				frag("fits", "LON", "NYC", 8, 300),
				frag("too-late", "LON", "NYC", 16, 450),
			},
			opts: defaultOpts,
			want: [][]string{{"fits"}},
		},
		{
			name:  "no cycles through the origin",
			query: defaultQuery,
			fragments: []model.RouteFragment{
				frag("out", "LON", "AMS", 6, 60),
				frag("back", "AMS", "LON", 8, 60),
				frag("again", "LON", "NYC", 11, 450),
			},
			opts: defaultOpts,
			want: [][]string{},
		},
		{
			name:  "shorter paths rank first, then earlier arrival",
			query: defaultQuery,
			fragments: []model.RouteFragment{
				frag("a", "LON", "KEF", 6, 180),
				frag("b", "KEF", "NYC", 10, 300), // arrives 15:00
				frag("late", "LON", "NYC", 14, 450),
				frag("early", "LON", "NYC", 6, 450),
			},
			opts: defaultOpts,
			want: [][]string{{"early"}, {"late"}, {"a", "b"}},
		},
		{
			name:  "cap truncates deterministically",
			query: defaultQuery,
			fragments: []model.RouteFragment{
				frag("d3", "LON", "NYC", 12, 450),
				frag("d1", "LON", "NYC", 6, 450),
				frag("d2", "LON", "NYC", 9, 450),
			},
			opts: Options{MinConnection: 45 * time.Minute, MaxCandidates: 2},
			want: [][]string{{"d1"}, {"d2"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plans := Assemble(tt.query(), tt.fragments, tt.opts)

			got := make([][]string, len(plans))
			for i, p := range plans {
				got[i] = legIDs(p)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAssemble_EdgeCases(t *testing.T) {
	t.Run("origin equals destination", func(t *testing.T) {
		q := defaultQuery()
		q.Destination = q.Origin

		plans := Assemble(q, []model.RouteFragment{frag("x", "LON", "NYC", 6, 60)}, defaultOpts)

		require.NotNil(t, plans)
		assert.Empty(t, plans)
	})

	t.Run("self-loop at the origin never seeds a path", func(t *testing.T) {
		plans := Assemble(defaultQuery(), []model.RouteFragment{
			frag("loop", "LON", "LON", 6, 60),
			frag("onward", "LON", "NYC", 8, 450),
		}, defaultOpts)

		got := make([][]string, len(plans))
		for i, p := range plans {
			got[i] = legIDs(p)
		}
		assert.Equal(t, [][]string{{"onward"}}, got)
	})

	t.Run("no fragments", func(t *testing.T) {
		plans := Assemble(defaultQuery(), nil, defaultOpts)

		require.NotNil(t, plans)
		assert.Empty(t, plans)
	})
}

func TestAssemble_PlanShape(t *testing.T) {
	q := defaultQuery()
	q.Passengers = 3
	fragments := []model.RouteFragment{
		frag("a", "LON", "KEF", 6, 180),
		frag("b", "KEF", "NYC", 12, 360),
	}

	plans := Assemble(q, fragments, defaultOpts)

	require.Len(t, plans, 1)
	assert.Equal(t, 3, plans[0].Passengers)
	assert.Equal(t, PlanID(fragments), plans[0].ID)
	assert.Equal(t, PlanID(fragments), Assemble(q, fragments, defaultOpts)[0].ID)
}

func TestAssemble_CombinatorialInputStaysBounded(t *testing.T) {
	var fragments []model.RouteFragment
	hubs := []string{"AMS", "KEF", "CDG", "FRA", "MAD"}
	for h, hub := range hubs {
		for slot := 0; slot < 6; slot++ {
			fragments = append(fragments, frag(fmt.Sprintf("out-%s-%d", hub, slot), "LON", hub, slot, 60+h))
			fragments = append(fragments, frag(fmt.Sprintf("in-%s-%d", hub, slot), hub, "NYC", 3+slot*2, 400))
			for _, other := range hubs {
				if other != hub {
					fragments = append(fragments, frag(fmt.Sprintf("x-%s-%s-%d", hub, other, slot), hub, other, 2+slot, 90))
				}
			}
		}
	}

	plans := Assemble(defaultQuery(), fragments, Options{MinConnection: 45 * time.Minute, MaxCandidates: 10})

	require.Len(t, plans, 10)
	for i := 1; i < len(plans); i++ {
		assert.LessOrEqual(t, len(plans[i-1].Legs), len(plans[i].Legs))
	}
}
