// Package metric holds the time series that rules are evaluated against.
package metric

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/flowpanel/internal/event"
)

// Point is one sample of a series.
type Point struct {
	At    time.Time `yaml:"at"`
	Value float64   `yaml:"value"`
}

// Series is a named sequence of samples, oldest first.
type Series struct {
	UID    string  `yaml:"uid"`
	Name   string  `yaml:"name"`
	Points []Point `yaml:"points"`
}

// Kind implements event.Entity.
func (Series) Kind() event.Kind { return event.KindMetric }

// Last returns the most recent sample. ok is false for an empty series.
func (s Series) Last() (p Point, ok bool) {
	if len(s.Points) == 0 {
		return Point{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// Values returns the sample values in order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Source supplies the current series set.
type Source interface {
	Series() []Series
}

// Static is an in-memory Source whose contents are replaced wholesale.
type Static struct {
	mu     sync.RWMutex
	series []Series
}

// NewStatic returns a source holding series.
func NewStatic(series ...Series) *Static {
	s := &Static{}
	s.Set(series)
	return s
}

// Series implements Source. The returned slice is a copy.
func (s *Static) Series() []Series {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Series, len(s.series))
	copy(out, s.series)
	return out
}

// Set replaces the held series. Series without a UID get one.
func (s *Static) Set(series []Series) {
	cp := make([]Series, len(series))
	copy(cp, series)
	for i := range cp {
		if cp[i].UID == "" {
			cp[i].UID = uuid.NewString()
		}
	}
	s.mu.Lock()
	s.series = cp
	s.mu.Unlock()
}

// Append adds a sample to the named series, creating it if needed.
func (s *Static) Append(name string, p Point) Series {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.series {
		if s.series[i].Name == name {
			s.series[i].Points = append(s.series[i].Points, p)
			return s.series[i]
		}
	}
	ser := Series{UID: uuid.NewString(), Name: name, Points: []Point{p}}
	s.series = append(s.series, ser)
	return ser
}
