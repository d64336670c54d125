package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/daytrip/daytrip/internal/bootstrap"
	"github.com/daytrip/daytrip/internal/planner"
)

type planFlags struct {
	places   string
	provider string
	timeout  time.Duration
	compact  bool

	date        string
	startTime   string
	endTime     string
	startPoint  string
	endPoint    string
	mode        string
	threshold   float64
	lunchTime   string
	dinnerTime  string
	seed        int64
	topK        int
	retryNext   bool
	noGeocoding bool
}

// staticOptions serves fixed planner options from command-line flags.
type staticOptions planner.Options

func (o staticOptions) PlannerOptions(context.Context) planner.Options { return planner.Options(o) }

func newPlanCmd(verbose *bool) *cobra.Command {
	var f planFlags

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan a day trip from a place pool file",
		Long: `Plan a one-day itinerary from a YAML or JSON pool of candidate places
and print the result as JSON.

Requirement flags override any requirement block in the pool file.

Examples:
  # Plan with straight-line travel estimates
  dayplan plan --places taipei.yaml --date 2026-03-02

  # Reproducible plan routed through Google Maps
  GOOGLE_MAPS_API_KEY=... dayplan plan --places taipei.yaml --provider googlemaps --seed 42
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlan(cmd, f, *verbose)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.places, "places", "p", "", "Place pool file (.yaml, .yml or .json)")
	flags.StringVar(&f.provider, "provider", "", "Geo provider: straightline, openrouteservice or googlemaps (default from GEO_PROVIDER)")
	flags.DurationVar(&f.timeout, "timeout", 60*time.Second, "Planning timeout")
	flags.BoolVar(&f.compact, "compact", false, "Print compact JSON")

	flags.StringVar(&f.date, "date", "", "Trip date YYYY-MM-DD (default today)")
	flags.StringVar(&f.startTime, "start-time", "", "Day start HH:MM (default 09:00)")
	flags.StringVar(&f.endTime, "end-time", "", "Day end HH:MM (default 21:00)")
	flags.StringVar(&f.startPoint, "start", "", "Start point name")
	flags.StringVar(&f.endPoint, "end", "", "End point name (default: the start point)")
	flags.StringVar(&f.mode, "mode", "", "Travel mode: driving, walking, bicycling or transit")
	flags.Float64Var(&f.threshold, "distance-threshold", 0, "Radius in km beyond which candidates are excluded")
	flags.StringVar(&f.lunchTime, "lunch", "", "Lunch time HH:MM")
	flags.StringVar(&f.dinnerTime, "dinner", "", "Dinner time HH:MM")
	flags.Int64Var(&f.seed, "seed", 0, "Random seed for a reproducible plan")
	flags.IntVar(&f.topK, "top-k", 0, "Number of top candidates to pick from")
	flags.BoolVar(&f.retryNext, "retry-next", false, "Try the next candidate when the pick is infeasible")
	flags.BoolVar(&f.noGeocoding, "no-geocoding", false, "Do not resolve start and end point names")

	_ = cmd.MarkFlagRequired("places")
	return cmd
}

func runPlan(cmd *cobra.Command, f planFlags, verbose bool) error {
	log := newLogger(cmd, verbose)

	pool, err := loadPool(f.places)
	if err != nil {
		return err
	}
	req := applyFlags(cmd, pool.Requirement, f)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	geoCfg := bootstrap.GeoConfigFromEnv()
	if f.provider != "" {
		geoCfg.Provider = f.provider
	}
	geoDeps, err := bootstrap.NewGeo(ctx, geoCfg, log)
	if err != nil {
		return err
	}
	defer geoDeps.Close()

	system, err := planner.NewSystem(planner.SystemConfig{
		Geo: geoDeps.Service,
		Options: staticOptions{
			TopK:               f.topK,
			RetryNextCandidate: f.retryNext,
			DisableGeocoding:   f.noGeocoding,
		},
		Logger: log,
	})
	if err != nil {
		return err
	}

	res, err := system.PlanTrip(ctx, pool.Places, req)
	if err != nil {
		return fmt.Errorf("plan trip: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	if !f.compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(res)
}

// applyFlags overrides requirement fields with the flags the user set.
func applyFlags(cmd *cobra.Command, req planner.Requirement, f planFlags) planner.Requirement {
	changed := cmd.Flags().Changed
	if changed("date") {
		req.Date = f.date
	}
	if changed("start-time") {
		req.StartTime = f.startTime
	}
	if changed("end-time") {
		req.EndTime = f.endTime
	}
	if changed("start") {
		req.StartPoint = f.startPoint
	}
	if changed("end") {
		req.EndPoint = f.endPoint
	}
	if changed("mode") {
		req.TravelMode = f.mode
	}
	if changed("distance-threshold") {
		req.DistanceThresholdKm = f.threshold
	}
	if changed("lunch") {
		req.LunchTime = f.lunchTime
	}
	if changed("dinner") {
		req.DinnerTime = f.dinnerTime
	}
	if changed("seed") {
		seed := f.seed
		req.Seed = &seed
	}
	return req
}
