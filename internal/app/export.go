package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"voting-escrow/internal/escrow"
	"voting-escrow/internal/service"
)

// Export renders a voting power curve as CSV and/or PNG. Without bounds the
// curve runs from the current period to the longest possible lock end.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	entity := escrow.Global
	if opts.Account != "" {
		addr, err := ParseAddress(opts.Account)
		if err != nil {
			return err
		}
		entity = escrow.AccountEntity(addr)
	}

	svc, closeSvc, err := a.newService(ctx, serviceOptions{readOnly: true})
	if err != nil {
		return err
	}
	defer closeSvc()

	clock := svc.Ledger().Clock()
	from := clock.Period(svc.Now())
	if opts.From != nil {
		from = clock.Period(opts.From.UTC())
	}
	to := from + svc.Ledger().Params().MaxLockPeriods
	if opts.To != nil {
		to = clock.Period(opts.To.UTC())
	}
	if to < from {
		return errors.New("from must be before to")
	}

	curve, err := svc.Curve(ctx, entity, from, to)
	if err != nil {
		return err
	}

	downsampled := downsampleCurve(curve, opts.MaxPoints)
	a.Logger.Info().Str("entity", entity.String()).Int("total", len(curve)).Int("exported", len(downsampled)).Msg("exporting curve")

	if opts.CSVPath != "" {
		if err := writeCurveCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeCurvePNG(opts.PNGPath, entity.String(), downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleCurve(points []service.CurvePoint, max int) []service.CurvePoint {
	if max <= 1 || len(points) <= max {
		return points
	}

	result := make([]service.CurvePoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeCurveCSV(path string, points []service.CurvePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"period", "period_start", "voting_power", "voting_power_exact"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, pt := range points {
		record := []string{
			strconv.FormatUint(uint64(pt.Period), 10),
			pt.Start.Format(time.RFC3339),
			pt.Power.String(),
			pt.Exact.RatString(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeCurvePNG(path, name string, points []service.CurvePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if len(points) < 2 {
		return errors.New("need at least two points to draw a curve")
	}

	x := make([]time.Time, len(points))
	power := make([]float64, len(points))
	for i, pt := range points {
		x[i] = pt.Start
		power[i], _ = pt.Exact.Float64()
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Voting power",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    name,
				XValues: x,
				YValues: power,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
