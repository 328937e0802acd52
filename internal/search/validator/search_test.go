package validator

import (
	"errors"
	"testing"
	"time"

	"itinera/pkg/logger"
	"itinera/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validQuery() *Query {
	depart := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)
	return &Query{
		Origin:       "LON",
		Destination:  "NYC",
		DepartAfter:  depart,
		ArriveBefore: depart.Add(48 * time.Hour),
		MaxLayovers:  2,
		Passengers:   1,
		OptimizeFor:  model.OptimizeCheapest,
	}
}

func TestSearchValidator_Validate(t *testing.T) {
	v := NewSearchValidator(logger.Discard())

	tests := []struct {
		name      string
		mutate    func(q *Query)
		wantField string
	}{
		{name: "valid query", mutate: func(q *Query) {}},
		{name: "missing origin", mutate: func(q *Query) { q.Origin = "" }, wantField: "origin"},
		{name: "long origin code", mutate: func(q *Query) { q.Origin = "LOND" }, wantField: "origin"},
		{name: "numeric destination", mutate: func(q *Query) { q.Destination = "N1C" }, wantField: "destination"},
		{name: "same airports", mutate: func(q *Query) { q.Destination = "lon" }, wantField: "destination"},
		{name: "window reversed", mutate: func(q *Query) { q.ArriveBefore = q.DepartAfter.Add(-time.Hour) }, wantField: "arrive_before"},
		{name: "window too wide", mutate: func(q *Query) { q.ArriveBefore = q.DepartAfter.Add(30 * 24 * time.Hour) }, wantField: "arrive_before"},
		{name: "too many layovers", mutate: func(q *Query) { q.MaxLayovers = 4 }, wantField: "max_layovers"},
		{name: "negative layovers", mutate: func(q *Query) { q.MaxLayovers = -1 }, wantField: "max_layovers"},
		{name: "zero passengers", mutate: func(q *Query) { q.Passengers = 0 }, wantField: "passengers"},
		{name: "unknown mode", mutate: func(q *Query) { q.OptimizeFor = "scenic" }, wantField: "optimize_for"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validQuery()
			tt.mutate(q)

			err := v.Validate(q)

			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs), "expected ValidationErrors, got %v", err)
			require.NotEmpty(t, verrs)
			assert.Equal(t, tt.wantField, verrs[0].Field)
		})
	}
}
