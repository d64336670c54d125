package planner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/daytrip/daytrip/internal/geo"
	"github.com/daytrip/daytrip/internal/place"
	"github.com/daytrip/daytrip/internal/timeperiod"
)

// Selection defaults.
const (
	DefaultTopK = 5

	// ProxyMinutesPerKm converts straight-line distance into the travel
	// estimate used for ranking and for unroutable closing legs.
	ProxyMinutesPerKm = 2.0

	slotGranularity = 5 * time.Minute
)

// ErrStrategyUsed is returned when Run is called on a strategy that has
// already run and was not Reset.
var ErrStrategyUsed = errors.New("strategy already run")

// State is the lifecycle state of a Strategy.
type State int

const (
	StateInitialized State = iota
	StateRunning
	StateFinalizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Router provides distances and routed travel estimates.
type Router interface {
	Distance(a, b geo.Coordinate) float64
	Route(ctx context.Context, origin, destination geo.Coordinate, mode geo.TravelMode, departAt time.Time) (*geo.RouteEstimate, error)
}

// Scorer rates a candidate for the next step.
type Scorer interface {
	Score(p *place.Place, from geo.Coordinate, at time.Time, travelMinutes float64) float64
}

// DayPartTracker is the run-scoped day-part state.
type DayPartTracker interface {
	DayPartAt(t time.Time) timeperiod.DayPart
	MarkMealVisited(part timeperiod.DayPart)
	Reset()
}

// RandomSource picks among near-equal candidates. *rand.Rand satisfies it.
type RandomSource interface {
	Intn(n int) int
}

// Options tune candidate selection.
type Options struct {
	// TopK is how many of the best-scored candidates are eligible for the
	// random pick. Default: 5.
	TopK int `json:"topK"`

	// RetryNextCandidate keeps searching the ranked list when the picked
	// candidate fails the feasibility gate, instead of ending the day.
	RetryNextCandidate bool `json:"retryNextCandidate"`

	// DisableGeocoding skips resolving named start and end points.
	DisableGeocoding bool `json:"disableGeocoding"`
}

// StrategyConfig holds the collaborators of a Strategy.
type StrategyConfig struct {
	Context  *PlanContext
	Router   Router
	Scorer   Scorer
	DayParts DayPartTracker
	Random   RandomSource
	Options  Options
	Logger   zerolog.Logger
}

// Strategy runs the greedy selection loop for one planning call. It carries
// run-scoped state and must not be shared between concurrent calls.
type Strategy struct {
	pc       *PlanContext
	router   Router
	scorer   Scorer
	dayParts DayPartTracker
	random   RandomSource
	opts     Options
	logger   zerolog.Logger

	state   State
	visited map[string]bool
	entries []Entry
}

// NewStrategy creates a strategy in the initialized state.
func NewStrategy(cfg StrategyConfig) (*Strategy, error) {
	switch {
	case cfg.Context == nil:
		return nil, errors.New("planner: plan context is required")
	case cfg.Router == nil:
		return nil, errors.New("planner: router is required")
	case cfg.Scorer == nil:
		return nil, errors.New("planner: scorer is required")
	case cfg.DayParts == nil:
		return nil, errors.New("planner: day-part tracker is required")
	case cfg.Random == nil:
		return nil, errors.New("planner: random source is required")
	}

	opts := cfg.Options
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}

	return &Strategy{
		pc:       cfg.Context,
		router:   cfg.Router,
		scorer:   cfg.Scorer,
		dayParts: cfg.DayParts,
		random:   cfg.Random,
		opts:     opts,
		logger:   cfg.Logger,
		state:    StateInitialized,
		visited:  make(map[string]bool),
	}, nil
}

// State returns the current lifecycle state.
func (s *Strategy) State() State {
	return s.state
}

// Reset returns the strategy to the initialized state so it can run again.
func (s *Strategy) Reset() {
	s.state = StateInitialized
	s.visited = make(map[string]bool)
	s.entries = nil
	s.dayParts.Reset()
}

// Run builds the itinerary. When previous is non-empty the run extends that
// itinerary instead of starting at the start location.
func (s *Strategy) Run(ctx context.Context, candidates []*place.Place, previous []Entry) ([]Entry, error) {
	if s.state != StateInitialized {
		return nil, ErrStrategyUsed
	}
	s.state = StateRunning
	s.dayParts.Reset()

	current, at := s.begin(previous)

	remaining := make([]*place.Place, 0, len(candidates))
	for _, p := range candidates {
		if !s.visited[p.Name] {
			remaining = append(remaining, p)
		}
	}

	for len(remaining) > 0 && at.Before(s.pc.EndTime) {
		entry, ok := s.step(ctx, remaining, current, at)
		if !ok {
			break
		}

		s.commit(entry)
		remaining = removeByName(remaining, entry.Name)
		current = entry.Coordinate()
		at = entry.EndTime
	}

	// Routing errors end selection; a cancelled run must not be reported as a short day.
	if err := ctx.Err(); err != nil {
		s.state = StateDone
		return nil, fmt.Errorf("planning interrupted: %w", err)
	}

	s.state = StateFinalizing
	s.finish(ctx, current, at)
	s.state = StateDone

	s.logger.Debug().
		Int("entries", len(s.entries)).
		Int("stops", TotalsOf(s.entries).Stops).
		Msg("itinerary planned")

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// begin seeds the itinerary and returns where and when selection starts.
func (s *Strategy) begin(previous []Entry) (geo.Coordinate, time.Time) {
	if n := len(previous); n > 0 && previous[n-1].Kind == KindEnd {
		previous = previous[:n-1]
	}

	if len(previous) == 0 {
		start := s.pc.StartLocation
		s.visited[start.Name] = true
		s.entries = append(s.entries, Entry{
			Step:    0,
			Kind:    KindStart,
			PlaceID: start.ID,
			Name:    start.Name,
			Label:   LabelStart,
			Hours:   slotPtr(start.SlotAt(s.pc.StartTime)),
			Lat:     start.Lat,
			Lon:     start.Lon,
			// The start is never rounded so the day begins exactly on time.
			StartTime: s.pc.StartTime,
			EndTime:   s.pc.StartTime,
			Travel: Leg{
				Mode:      s.pc.TravelMode,
				ModeLabel: s.pc.TravelMode.Label(),
				Window:    TimeWindow{Start: s.pc.StartTime, End: s.pc.StartTime},
			},
			RouteURL: start.RouteURL,
			DayPart:  s.dayParts.DayPartAt(s.pc.StartTime),
		})
		return start.Coordinate(), s.pc.StartTime
	}

	for i := range previous {
		e := previous[i]
		s.visited[e.Name] = true
		if e.Kind == KindStop && e.DayPart.IsMeal() {
			s.dayParts.MarkMealVisited(e.DayPart)
			if e.DayPart == timeperiod.Dinner {
				s.dayParts.MarkMealVisited(timeperiod.Lunch)
			}
		}
		s.entries = append(s.entries, e)
	}

	last := previous[len(previous)-1]
	s.logger.Debug().
		Int("previous_entries", len(previous)).
		Str("resume_from", last.Name).
		Msg("extending previous itinerary")
	return last.Coordinate(), last.EndTime
}

type rankedCandidate struct {
	place      *place.Place
	distanceKm float64
	score      float64
}

// rank filters candidates for the day-part and orders them by score.
func (s *Strategy) rank(candidates []*place.Place, part timeperiod.DayPart, from geo.Coordinate, at time.Time) []rankedCandidate {
	var ranked []rankedCandidate
	for _, p := range candidates {
		if p.DayPart != part || s.visited[p.Name] {
			continue
		}

		d := s.router.Distance(from, p.Coordinate())
		if d > s.pc.DistanceThresholdKm {
			continue
		}

		score := s.scorer.Score(p, from, at, d*ProxyMinutesPerKm)
		if math.IsInf(score, -1) {
			continue
		}
		ranked = append(ranked, rankedCandidate{place: p, distanceKm: d, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	return ranked
}

// pick draws uniformly among the top-ranked candidates.
func (s *Strategy) pick(ranked []rankedCandidate) int {
	n := len(ranked)
	if n > s.opts.TopK {
		n = s.opts.TopK
	}
	if n <= 1 {
		return 0
	}
	return s.random.Intn(n)
}

// step selects and schedules the next stop. It reports false when the day
// should end.
func (s *Strategy) step(ctx context.Context, candidates []*place.Place, from geo.Coordinate, at time.Time) (Entry, bool) {
	part := s.dayParts.DayPartAt(at)
	ranked := s.rank(candidates, part, from, at)
	if len(ranked) == 0 {
		s.logger.Debug().
			Str("day_part", string(part)).
			Time("at", at).
			Msg("no feasible candidate")
		return Entry{}, false
	}

	for len(ranked) > 0 {
		i := s.pick(ranked)
		chosen := ranked[i].place

		est, err := s.router.Route(ctx, from, chosen.Coordinate(), s.pc.TravelMode, at)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("place", chosen.Name).
				Msg("routing failed, ending selection")
			return Entry{}, false
		}

		travelEnd, arrival, departure := schedule(at, est.Minutes, chosen.DurationMinutes)
		slot, open := chosen.SlotAt(arrival)

		if departure.After(s.pc.EndTime) || !open {
			s.logger.Debug().
				Str("place", chosen.Name).
				Time("arrival", arrival).
				Time("departure", departure).
				Bool("open_at_arrival", open).
				Msg("candidate failed feasibility gate")

			if !s.opts.RetryNextCandidate {
				return Entry{}, false
			}
			ranked = append(ranked[:i:i], ranked[i+1:]...)
			continue
		}

		return Entry{
			Kind:        KindStop,
			PlaceID:     chosen.ID,
			Name:        chosen.Name,
			Label:       chosen.Category,
			Hours:       &slot,
			Lat:         chosen.Lat,
			Lon:         chosen.Lon,
			StartTime:   arrival,
			EndTime:     departure,
			StayMinutes: chosen.DurationMinutes,
			Travel:      s.leg(est, at, travelEnd),
			RouteInfo:   est.Info,
			RouteURL:    chosen.RouteURL,
			DayPart:     chosen.DayPart,
		}, true
	}
	return Entry{}, false
}

// commit appends a stop and updates run state.
func (s *Strategy) commit(e Entry) {
	e.Step = len(s.entries)
	s.entries = append(s.entries, e)
	s.visited[e.Name] = true
	if e.DayPart.IsMeal() {
		s.dayParts.MarkMealVisited(e.DayPart)
	}
}

// finish appends the closing leg to the end location unless the last stop
// already is the end location. The closing leg ignores EndTime.
func (s *Strategy) finish(ctx context.Context, from geo.Coordinate, at time.Time) {
	end := s.pc.EndLocation
	last := s.entries[len(s.entries)-1]
	if last.Kind == KindStop && (last.Name == end.Name || last.Coordinate() == end.Coordinate()) {
		return
	}

	est, err := s.router.Route(ctx, from, end.Coordinate(), s.pc.TravelMode, at)
	estimated := false
	if err != nil {
		d := s.router.Distance(from, end.Coordinate())
		s.logger.Warn().
			Err(err).
			Float64("distance_km", d).
			Msg("routing to end location failed, using straight-line estimate")
		est = &geo.RouteEstimate{
			Minutes:    d * ProxyMinutesPerKm,
			DistanceKm: d,
			Mode:       s.pc.TravelMode,
		}
		estimated = true
	}

	travelEnd, arrival, _ := schedule(at, est.Minutes, 0)
	leg := s.leg(est, at, travelEnd)
	leg.Estimated = estimated

	s.entries = append(s.entries, Entry{
		Step:      len(s.entries),
		Kind:      KindEnd,
		PlaceID:   end.ID,
		Name:      end.Name,
		Label:     LabelEnd,
		Hours:     slotPtr(end.SlotAt(arrival)),
		Lat:       end.Lat,
		Lon:       end.Lon,
		StartTime: arrival,
		EndTime:   arrival,
		Travel:    leg,
		RouteInfo: est.Info,
		RouteURL:  end.RouteURL,
		DayPart:   s.dayParts.DayPartAt(arrival),
	})
}

func (s *Strategy) leg(est *geo.RouteEstimate, depart, arrive time.Time) Leg {
	mode := est.Mode
	if mode == "" {
		mode = s.pc.TravelMode
	}
	return Leg{
		Mode:       mode,
		ModeLabel:  mode.Label(),
		DistanceKm: est.DistanceKm,
		Minutes:    est.Minutes,
		Window:     TimeWindow{Start: depart, End: arrive},
	}
}

// schedule computes the unrounded end of travel, and the arrival and
// departure shifted forward together onto the next 5-minute mark.
func schedule(at time.Time, travelMinutes float64, stayMinutes int) (travelEnd, arrival, departure time.Time) {
	travelEnd = at.Add(time.Duration(math.Floor(travelMinutes)) * time.Minute)
	arrival = roundUp(travelEnd, slotGranularity)
	departure = arrival.Add(time.Duration(stayMinutes) * time.Minute)
	return travelEnd, arrival, departure
}

// roundUp rounds t up to the next multiple of d within its wall-clock hour.
// It works on local minutes so zones with odd offsets round correctly.
func roundUp(t time.Time, d time.Duration) time.Time {
	sub := time.Duration(t.Second())*time.Second + time.Duration(t.Nanosecond())
	base := t.Add(-sub)
	step := int(d / time.Minute)
	rem := base.Minute() % step
	if rem == 0 && sub == 0 {
		return t
	}
	return base.Add(time.Duration(step-rem) * time.Minute)
}

func removeByName(places []*place.Place, name string) []*place.Place {
	out := places[:0]
	for _, p := range places {
		if p.Name != name {
			out = append(out, p)
		}
	}
	return out
}

func slotPtr(s place.Slot, ok bool) *place.Slot {
	if !ok {
		return nil
	}
	return &s
}
