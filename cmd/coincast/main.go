package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sartorproj/coincast/analysis"
	"github.com/sartorproj/coincast/config"
	"github.com/sartorproj/coincast/forecast"
	"github.com/sartorproj/coincast/marketdata"
	"github.com/sartorproj/coincast/stats"
	"github.com/sartorproj/coincast/timeseries"
)

const (
	appName = "coincast"
	version = "v0.1.0"
)

// options holds the flags shared by every subcommand.
type options struct {
	configPath string
	dataDir    string
	csvPath    string
	coin       string
	currency   string
	days       int
	resample   time.Duration
	format     string
	logLevel   string
	stepBudget time.Duration
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		log.Error().Err(err).Msg("coincast failed")
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Crypto price analytics and forecasting",
		Version: version,
		Long: `coincast analyses a cryptocurrency price history: returns and volatility,
moving averages, stationarity tests, seasonal decomposition, autocorrelation
and short-horizon forecasts with prediction intervals.

Price history comes from CoinGecko market_chart payloads saved as
<data-dir>/<coin>_<currency>.json, or from a CSV file with --csv.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "coincast.yaml", "Path to the YAML config file")
	flags.StringVar(&opts.dataDir, "data-dir", "", "Directory of market_chart JSON files")
	flags.StringVar(&opts.csvPath, "csv", "", "Read prices from a CSV file with timestamp,price columns")
	flags.StringVar(&opts.coin, "coin", "", "Coin symbol or CoinGecko ID")
	flags.StringVar(&opts.currency, "currency", "", "Quote currency")
	flags.IntVar(&opts.days, "days", -1, "Trailing days of history, 0 for all")
	flags.DurationVar(&opts.resample, "resample", 0, "Resample to a regular grid of this step, e.g. 24h; 0 keeps the raw spacing")
	flags.StringVar(&opts.format, "format", "yaml", "Output format: yaml or json")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.DurationVar(&opts.stepBudget, "step-budget", 0, "Wall-clock budget per analysis step")

	rootCmd.AddCommand(
		newAnalyzeCmd(opts, out),
		newForecastCmd(opts, out),
		newBacktestCmd(opts, out),
		newDecomposeCmd(opts, out),
		newStationarityCmd(opts, out),
		newAutocorrelationCmd(opts, out),
	)
	return rootCmd
}

func newAnalyzeCmd(opts *options, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Run every analysis step and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), opts, out, nil, nil)
		},
	}
}

func newForecastCmd(opts *options, out io.Writer) *cobra.Command {
	var (
		strategy    string
		horizon     int
		trainWindow int
		period      int
		alpha       float64
		arOrder     int
	)
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast prices with prediction intervals",
		Long: `Forecast prices with one of two strategies:

  trend_seasonal   linear trend plus a repeating seasonal pattern
  autoregressive   AR model on the price, differenced once if non-stationary`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), opts, out, []analysis.Step{analysis.StepForecast}, func(req *analysis.Request) {
				f := cmd.Flags()
				if f.Changed("strategy") {
					req.Forecast.Strategy = forecast.Strategy(strategy)
				}
				if f.Changed("horizon") {
					req.Forecast.Horizon = horizon
				}
				if f.Changed("train-window") {
					req.Forecast.TrainWindow = trainWindow
				}
				if f.Changed("period") {
					req.Forecast.Period = period
				}
				if f.Changed("alpha") {
					req.Forecast.Alpha = alpha
				}
				if f.Changed("ar-order") {
					req.Forecast.AROrder = arOrder
				}
			})
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", string(forecast.Autoregressive), "Forecast strategy: trend_seasonal or autoregressive")
	cmd.Flags().IntVar(&horizon, "horizon", 30, "Steps to forecast")
	cmd.Flags().IntVar(&trainWindow, "train-window", 0, "Trailing points to train on, 0 for all")
	cmd.Flags().IntVar(&period, "period", forecast.DefaultPeriod, "Seasonal period for trend_seasonal")
	cmd.Flags().Float64Var(&alpha, "alpha", forecast.DefaultAlpha, "Intervals cover 1-alpha")
	cmd.Flags().IntVar(&arOrder, "ar-order", forecast.DefaultAROrder, "Autoregressive order")
	return cmd
}

func newBacktestCmd(opts *options, out io.Writer) *cobra.Command {
	var holdout int
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Score both forecast strategies on held-out prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, s, err := prepare(cmd.Context(), opts)
			if err != nil {
				return err
			}

			evals := make(map[forecast.Strategy]*forecast.Evaluation)
			errs := make(map[forecast.Strategy]string)
			for _, strategy := range []forecast.Strategy{forecast.TrendSeasonal, forecast.Autoregressive} {
				fr := req.Forecast
				fr.Strategy = strategy
				ev, err := forecast.Backtest(cmd.Context(), s, fr, holdout)
				if err != nil {
					log.Warn().Err(err).Str("strategy", string(strategy)).Msg("backtest failed")
					errs[strategy] = err.Error()
					continue
				}
				log.Info().
					Str("strategy", string(strategy)).
					Float64("rmse", ev.RMSE).
					Float64("mape", ev.MAPE).
					Float64("coverage", ev.Coverage).
					Msg("backtest finished")
				evals[strategy] = ev
			}

			return render(out, opts.format, struct {
				Series      string                                     `json:"series" yaml:"series"`
				Evaluations map[forecast.Strategy]*forecast.Evaluation `json:"evaluations" yaml:"evaluations"`
				Errors      map[forecast.Strategy]string               `json:"errors,omitempty" yaml:"errors,omitempty"`
			}{s.Name(), evals, errs})
		},
	}
	cmd.Flags().IntVar(&holdout, "holdout", 0, "Points to hold out, 0 to choose automatically")
	return cmd
}

func newDecomposeCmd(opts *options, out io.Writer) *cobra.Command {
	var (
		model  string
		period int
	)
	cmd := &cobra.Command{
		Use:   "decompose",
		Short: "Split prices into trend, seasonal and residual components",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), opts, out, []analysis.Step{analysis.StepDecomposition}, func(req *analysis.Request) {
				if cmd.Flags().Changed("model") {
					req.DecompositionModel = stats.DecompositionModel(model)
				}
				if cmd.Flags().Changed("period") {
					req.DecompositionPeriod = period
				}
			})
		},
	}
	cmd.Flags().StringVar(&model, "model", string(stats.Additive), "additive or multiplicative")
	cmd.Flags().IntVar(&period, "period", 7, "Seasonal period in observations")
	return cmd
}

func newStationarityCmd(opts *options, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "stationarity",
		Short: "Run the augmented Dickey-Fuller test, differencing once if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), opts, out, []analysis.Step{analysis.StepStationarity}, nil)
		},
	}
}

func newAutocorrelationCmd(opts *options, out io.Writer) *cobra.Command {
	var (
		target string
		maxLag int
		alpha  float64
	)
	cmd := &cobra.Command{
		Use:     "autocorrelation",
		Aliases: []string{"acf"},
		Short:   "Compute ACF and PACF with confidence bounds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), opts, out, []analysis.Step{analysis.StepAutocorrelation}, func(req *analysis.Request) {
				if cmd.Flags().Changed("target") {
					req.ACFTarget = stats.Target(target)
				}
				if cmd.Flags().Changed("max-lag") {
					req.MaxLag = maxLag
				}
				if cmd.Flags().Changed("alpha") {
					req.ACFAlpha = alpha
				}
			})
		},
	}
	cmd.Flags().StringVar(&target, "target", string(stats.PriceTarget), "price or returns")
	cmd.Flags().IntVar(&maxLag, "max-lag", 40, "Largest lag")
	cmd.Flags().Float64Var(&alpha, "alpha", 0.05, "Significance level of the bounds")
	return cmd
}

// runReport loads config and data, runs the selected steps and renders the
// report. A report with failed sections is still printed before the error.
func runReport(ctx context.Context, opts *options, out io.Writer, steps []analysis.Step, customize func(*analysis.Request)) error {
	req, s, err := prepare(ctx, opts)
	if err != nil {
		return err
	}
	req.Steps = steps
	if customize != nil {
		customize(&req)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	report, err := analysis.New(log.Logger).Run(ctx, s, req)
	if err != nil {
		return err
	}
	if err := render(out, opts.format, report); err != nil {
		return err
	}
	if report.Failed() {
		return fmt.Errorf("%d analysis steps failed", len(report.Errors))
	}
	return nil
}

// prepare resolves the request from config and flags and loads the series.
func prepare(ctx context.Context, opts *options) (analysis.Request, *timeseries.Series, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return analysis.Request{}, nil, err
	}
	if opts.dataDir != "" {
		cfg.Data.Dir = opts.dataDir
	}
	if opts.coin != "" {
		cfg.Data.Coin = opts.coin
	}
	if opts.currency != "" {
		cfg.Data.Currency = opts.currency
	}
	if opts.days >= 0 {
		cfg.Data.Days = opts.days
	}
	if opts.resample > 0 {
		cfg.Data.Resample = opts.resample
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.stepBudget > 0 {
		cfg.StepBudget = opts.stepBudget
	}
	if err := cfg.Validate(); err != nil {
		return analysis.Request{}, nil, fmt.Errorf("invalid config: %w", err)
	}

	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	zerolog.SetGlobalLevel(level)

	req := cfg.Request()
	s, err := loadSeries(ctx, cfg, opts.csvPath, req)
	if err != nil {
		return analysis.Request{}, nil, err
	}
	log.Debug().
		Str("series", s.Name()).
		Int("points", s.Len()).
		Time("start", s.First().Time).
		Time("end", s.Last().Time).
		Msg("series loaded")
	return req, s, nil
}

func loadSeries(ctx context.Context, cfg *config.Config, csvPath string, req analysis.Request) (*timeseries.Series, error) {
	if csvPath == "" {
		return analysis.LoadSeries(ctx, marketdata.NewFileProvider(cfg.Data.Dir), req)
	}

	opts := timeseries.DefaultCSVOptions()
	opts.SkipMissing = true
	points, err := timeseries.LoadCSV(csvPath, opts)
	if err != nil {
		return nil, err
	}
	s, err := timeseries.Build(points, timeseries.WithName(marketdata.CoinID(req.Coin)+"/"+req.Currency))
	if err != nil {
		return nil, err
	}
	return analysis.Regularize(s, req)
}

// render writes v as YAML or JSON. Infinite test statistics of degenerate
// series are written as .inf in YAML and null in JSON.
func render(w io.Writer, format string, v interface{}) error {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding json (try --format yaml): %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown output format %q", format)
}
