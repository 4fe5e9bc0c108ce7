// Sweep driver — varies r over a range, averaging repeated runs per point.
package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/talgya/evosim/internal/config"
)

// Point is the averaged outcome at one value of r.
type Point struct {
	R        float64 `json:"r" db:"r"`
	Eta      float64 `json:"eta" db:"eta"` // r/(z+1)
	MeanCoop float64 `json:"mean_coop" db:"mean_coop"`
	MeanInsp float64 `json:"mean_insp" db:"mean_insp"`
	StdCoop  float64 `json:"std_coop" db:"std_coop"` // Spread across realizations
	StdInsp  float64 `json:"std_insp" db:"std_insp"`
	Runs     int     `json:"runs" db:"runs"`
}

// SweepResult is a finished sweep.
type SweepResult struct {
	ID           string    `json:"id"`
	Variant      string    `json:"variant"`
	Seed         int64     `json:"seed"`
	Agents       int       `json:"agents"`
	Degree       float64   `json:"degree"`
	Realizations int       `json:"realizations"`
	Runs         int       `json:"runs"`
	Points       []Point   `json:"points"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Returns lists the r values of a sweep: rMin, rMin+step, ... strictly below rMax.
func Returns(sw config.SweepConfig) []float64 {
	var rs []float64
	for i := 0; ; i++ {
		r := sw.RMin + float64(i)*sw.RStep
		if r >= sw.RMax-sw.RStep*1e-9 {
			break
		}
		rs = append(rs, r)
	}
	return rs
}

// Sweep runs realizations x runs games at every r of sw, reusing the
// topology of s. Run means are averaged into realization means and those
// into the point. ctx is checked between runs; a cancelled sweep returns
// the points finished so far together with the context error. onPoint, if
// set, is called as each point completes.
func Sweep(ctx context.Context, s *Setup, sw config.SweepConfig, onPoint func(Point)) (*SweepResult, error) {
	if err := sw.Validate(); err != nil {
		return nil, err
	}

	res := &SweepResult{
		ID:           uuid.New().String(),
		Variant:      s.Game.Name(),
		Seed:         s.Seed,
		Agents:       s.Population.Len(),
		Degree:       s.Degree(),
		Realizations: sw.Realizations,
		Runs:         sw.Runs,
		StartedAt:    time.Now().UTC(),
	}
	defer func() { res.FinishedAt = time.Now().UTC() }()

	origR := s.Game.Return()
	defer s.Game.SetReturn(origR)

	for _, r := range Returns(sw) {
		s.Game.SetReturn(r)
		start := time.Now()
		slog.Info("sweep point started", "r", r)

		pt, err := sweepPoint(ctx, s, sw)
		if err != nil {
			return res, fmt.Errorf("r=%g: %w", r, err)
		}
		pt.R = r
		pt.Eta = r / (res.Degree + 1)
		res.Points = append(res.Points, pt)

		slog.Info("sweep point finished", "r", r, "eta", pt.Eta, "mean_coop", pt.MeanCoop,
			"mean_insp", pt.MeanInsp, "elapsed", time.Since(start))
		if onPoint != nil {
			onPoint(pt)
		}
	}
	return res, nil
}

func sweepPoint(ctx context.Context, s *Setup, sw config.SweepConfig) (Point, error) {
	realCoop := make([]float64, sw.Realizations)
	realInsp := make([]float64, sw.Realizations)
	runCoop := make([]float64, sw.Runs)
	runInsp := make([]float64, sw.Runs)

	for rz := 0; rz < sw.Realizations; rz++ {
		for run := 0; run < sw.Runs; run++ {
			if err := ctx.Err(); err != nil {
				return Point{}, err
			}
			if err := runGame(s); err != nil {
				return Point{}, fmt.Errorf("realization %d run %d: %w", rz, run, err)
			}
			runCoop[run] = stat.Mean(s.Game.CoopLevel(), nil)
			runInsp[run] = stat.Mean(s.Game.InspLevel(), nil)
			slog.Debug("sweep run", "realization", rz, "run", run, "mean_coop", runCoop[run])
		}
		realCoop[rz] = stat.Mean(runCoop, nil)
		realInsp[rz] = stat.Mean(runInsp, nil)
	}

	return Point{
		MeanCoop: stat.Mean(realCoop, nil),
		MeanInsp: stat.Mean(realInsp, nil),
		StdCoop:  spread(realCoop),
		StdInsp:  spread(realInsp),
		Runs:     sw.Realizations * sw.Runs,
	}, nil
}

// spread is the sample standard deviation, zero for a single sample.
func spread(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sd := stat.StdDev(xs, nil)
	if math.IsNaN(sd) {
		return 0
	}
	return sd
}
