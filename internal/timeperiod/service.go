package timeperiod

import (
	"sync"
	"time"
)

// Default meal pivots.
var (
	DefaultLunch  = MustParseClock("12:00")
	DefaultDinner = MustParseClock("18:00")
)

// DefaultMealMargin is the window on either side of a meal pivot.
const DefaultMealMargin = time.Hour

// Config holds configuration for the time-period service.
type Config struct {
	// Lunch is the lunch pivot (default: 12:00).
	Lunch *Clock

	// Dinner is the dinner pivot (default: 18:00).
	Dinner *Clock

	// MealMargin is the half-width of each meal window (default: 1 hour).
	MealMargin time.Duration
}

// Service maps timestamps to day-parts for one planning run.
//
// Within a run the reported day-part never moves backwards and a meal
// already marked as visited is never reported again. Create one Service per
// run, or call Reset between runs.
type Service struct {
	lunch  Clock
	dinner Clock
	margin Clock

	mu         sync.Mutex
	lunchDone  bool
	dinnerDone bool
	last       DayPart
}

// NewService creates a time-period service.
func NewService(cfg Config) *Service {
	lunch := DefaultLunch
	if cfg.Lunch != nil {
		lunch = *cfg.Lunch
	}

	dinner := DefaultDinner
	if cfg.Dinner != nil {
		dinner = *cfg.Dinner
	}

	margin := cfg.MealMargin
	if margin == 0 {
		margin = DefaultMealMargin
	}

	return &Service{
		lunch:  lunch,
		dinner: dinner,
		margin: Clock(margin / time.Minute),
	}
}

// DayPartAt returns the day-part for the wall-clock time of t.
func (s *Service) DayPartAt(t time.Time) DayPart {
	s.mu.Lock()
	defer s.mu.Unlock()

	part := s.classify(ClockOf(t))
	if s.last != "" && part.Ordinal() < s.last.Ordinal() {
		part = s.last
	}
	if (part == Lunch && s.lunchDone) || (part == Dinner && s.dinnerDone) {
		part = DayParts[part.Ordinal()+1]
	}
	s.last = part
	return part
}

func (s *Service) classify(m Clock) DayPart {
	switch {
	case m < s.lunch-s.margin:
		return Morning
	case m <= s.lunch+s.margin && !s.lunchDone:
		return Lunch
	case m < s.dinner-s.margin:
		return Afternoon
	case m <= s.dinner+s.margin && !s.dinnerDone:
		return Dinner
	default:
		return Night
	}
}

// MarkMealVisited records that a meal has been taken. Non-meal day-parts are ignored.
func (s *Service) MarkMealVisited(part DayPart) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch part {
	case Lunch:
		s.lunchDone = true
	case Dinner:
		s.dinnerDone = true
	}
}

// LunchCompleted reports whether lunch has been marked as visited.
func (s *Service) LunchCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lunchDone
}

// DinnerCompleted reports whether dinner has been marked as visited.
func (s *Service) DinnerCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dinnerDone
}

// Reset clears meal flags and the day-part ratchet.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lunchDone = false
	s.dinnerDone = false
	s.last = ""
}
