// Command robustness runs a robustness report on a candles JSON file and
// writes the report to stdout.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"RegimeLab/internal/domain/models"
	"RegimeLab/internal/usecase"
	apphttp "RegimeLab/pkg/http"
	applogger "RegimeLab/pkg/logger"
)

type options struct {
	candlesPath string
	strategy    models.StrategyRequest
	bucketSize  float64
	shuffles    int
	seed        int64
	monteCarlo  bool
	simulations int
	bins        int
	workers     int
	pretty      bool
	logLevel    string
}

func parseFlags(args []string) (*options, error) {
	var o options
	fs := flag.NewFlagSet("robustness", flag.ContinueOnError)
	fs.StringVar(&o.candlesPath, "candles", "-", "candles JSON file ([{date,open,high,low,close}]), - for stdin")
	fs.StringVar(&o.strategy.IndicatorType, "indicator", "ema", "ema|ma|dema|rsi|cci|zscore")
	fs.IntVar(&o.strategy.Fast, "fast", 0, "fast period (crossover kinds)")
	fs.IntVar(&o.strategy.Slow, "slow", 0, "slow period (crossover kinds)")
	fs.IntVar(&o.strategy.Length, "length", 0, "oscillator length")
	fs.StringVar(&o.strategy.Mode, "mode", "mean_reversion", "oscillator mode: mean_reversion|momentum")
	fs.StringVar(&o.strategy.PositionType, "position", "both", "long_only|short_only|both")
	fs.Float64Var(&o.strategy.InitialCapital, "capital", 10000, "initial capital")
	fs.Float64Var(&o.bucketSize, "bucket", 20, "regime bucket size in percent")
	fs.IntVar(&o.shuffles, "shuffles", 20, "number of synthetic series")
	fs.Int64Var(&o.seed, "seed", 12345, "base seed")
	fs.BoolVar(&o.monteCarlo, "montecarlo", false, "also run trade-order monte carlo on the original trades")
	fs.IntVar(&o.simulations, "sims", 1000, "monte carlo simulations")
	fs.IntVar(&o.bins, "bins", 25, "histogram bins")
	fs.IntVar(&o.workers, "workers", 4, "parallel simulations")
	fs.BoolVar(&o.pretty, "pretty", false, "indent output")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level (logs go to stderr)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return &o, nil
}

func readCandles(path string, stdin io.Reader) ([]models.Candle, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var candles []models.Candle
	if err := json.NewDecoder(r).Decode(&candles); err != nil {
		return nil, fmt.Errorf("decode candles: %w", err)
	}
	return candles, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}
	l, err := applogger.New(&applogger.Config{Level: o.logLevel, Format: "console", Output: "stderr"})
	if err != nil {
		return err
	}
	candles, err := readCandles(o.candlesPath, stdin)
	if err != nil {
		return err
	}

	req := models.RobustnessRequest{
		CandleSourceRequest: models.CandleSourceRequest{Candles: candles},
		Strategy:            o.strategy,
		BucketSize:          &o.bucketSize,
		NumShuffles:         &o.shuffles,
		Seed:                &o.seed,
		MonteCarlo:          o.monteCarlo,
		NumSimulations:      &o.simulations,
		Bins:                &o.bins,
	}
	if verr := apphttp.ApplyDefaultsAndValidate(ctx, &req); verr != nil {
		return errors.New(apphttp.ValidationErrorsString(verr))
	}

	uc := usecase.NewRobustnessUseCase(usecase.NewCandlesUseCase(nil), usecase.EngineConfig{Workers: o.workers}, nil, nil, nil, l)
	rep, err := uc.Run(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	if o.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(rep)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "robustness: %v\n", err)
		os.Exit(1)
	}
}
