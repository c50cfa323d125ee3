package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"bitonicpixelsort/pkg/config"
	"bitonicpixelsort/pkg/logutil"
	"bitonicpixelsort/pkg/pipeline"
	"bitonicpixelsort/pkg/pixelsort"
)

// Flags left unset keep the value from the configuration file
var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to a YAML or TOML configuration file",
	}
	outputFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Output image for a single input, otherwise the output directory",
		Value:   "sorted",
	}
	directionFlag = &cli.StringFlag{
		Name:  "direction",
		Usage: "Sort along rows (horizontal) or columns (vertical)",
	}
	descendingFlag = &cli.BoolFlag{
		Name:  "descending",
		Usage: "Order every run from high to low key",
	}
	thresholdMinFlag = &cli.Float64Flag{
		Name:  "tmin",
		Usage: "Lower bound of the key window (inclusive)",
	}
	thresholdMaxFlag = &cli.Float64Flag{
		Name:  "tmax",
		Usage: "Upper bound of the key window (inclusive)",
	}
	keyFlag = &cli.StringFlag{
		Name:  "key",
		Usage: "Sort key: luminance, luma601, average, lightness, value, red, green or blue",
	}
	strategyFlag = &cli.StringFlag{
		Name:  "strategy",
		Usage: "Network schedule: single (one worker per line) or rounds (barrier per round)",
	}
	maxSizeFlag = &cli.IntFlag{
		Name:  "max-size",
		Usage: "Exclusive cap on the sortable dimension",
	}
	coresFlag = &cli.IntFlag{
		Name:  "cores",
		Usage: "Number of CPU cores to use",
	}
	fitFlag = &cli.BoolFlag{
		Name:  "fit",
		Usage: "Downscale images whose sortable dimension reaches the cap",
	}
	bypassFlag = &cli.BoolFlag{
		Name:  "bypass",
		Usage: "Copy inputs unchanged",
	}
	saveIntermediaryFlag = &cli.BoolFlag{
		Name:  "save-intermediary",
		Usage: "Save the source, run map and sorted stages of every input",
	}
	intermediaryDirFlag = &cli.StringFlag{
		Name:  "intermediary-dir",
		Usage: "Directory to save intermediary results",
	}
	extractLineFlag = &cli.IntFlag{
		Name:  "extract-line",
		Usage: "Save the pixels of this line before and after sorting with the intermediary results",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn or error",
	}
	logFormatFlag = &cli.StringFlag{
		Name:  "log-format",
		Usage: "Log format: console or json",
	}
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "pixelsort",
		Usage: "Sort pixels within threshold runs using a segmented bitonic network",
		Commands: []*cli.Command{
			{
				Name:      "sort",
				Usage:     "Sort one or more images",
				ArgsUsage: "<image>...",
				Flags: []cli.Flag{
					// Configuration
					configFlag,
					// Effect
					directionFlag,
					descendingFlag,
					thresholdMinFlag,
					thresholdMaxFlag,
					keyFlag,
					strategyFlag,
					maxSizeFlag,
					bypassFlag,
					// Processing
					coresFlag,
					fitFlag,
					// Output
					outputFlag,
					saveIntermediaryFlag,
					intermediaryDirFlag,
					extractLineFlag,
					// Logging
					logLevelFlag,
					logFormatFlag,
				},
				Action: handleSortCommand,
			},
			{
				Name:      "init-config",
				Usage:     "Write the default configuration (.yaml or .toml)",
				ArgsUsage: "<path>",
				Action:    handleInitConfigCommand,
			},
		},
	}
}

// loadConfig reads the configuration file, if any, and applies the flags set on the command line
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return nil, err
		}
	}

	if c.IsSet("direction") {
		cfg.Sort.Direction = c.String("direction")
	}
	if c.IsSet("descending") {
		cfg.Sort.Ascending = !c.Bool("descending")
	}
	if c.IsSet("tmin") {
		cfg.Sort.ThresholdMin = float32(c.Float64("tmin"))
	}
	if c.IsSet("tmax") {
		cfg.Sort.ThresholdMax = float32(c.Float64("tmax"))
	}
	if c.IsSet("key") {
		cfg.Sort.Key = c.String("key")
	}
	if c.IsSet("strategy") {
		cfg.Sort.Strategy = c.String("strategy")
	}
	if c.IsSet("max-size") {
		cfg.Sort.MaxSize = c.Int("max-size")
	}
	if c.IsSet("bypass") {
		cfg.Sort.Enabled = !c.Bool("bypass")
	}
	if c.IsSet("cores") {
		cfg.Processing.NumCores = c.Int("cores")
	}
	if c.IsSet("fit") {
		cfg.Processing.FitToMaxSize = c.Bool("fit")
	}
	if c.IsSet("save-intermediary") {
		cfg.Output.SaveIntermediaryResults = c.Bool("save-intermediary")
	}
	if c.IsSet("intermediary-dir") {
		cfg.Output.IntermediaryDir = c.String("intermediary-dir")
	}
	if c.IsSet("extract-line") {
		cfg.Output.ExtractLine = c.Int("extract-line")
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Logging.Format = c.String("log-format")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func handleSortCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one input image is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	direction, err := cfg.Direction()
	if err != nil {
		return err
	}

	logger, err := logutil.New(logutil.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	sorter := pixelsort.New(pixelsort.Options{
		KeyName:  cfg.Sort.Key,
		Strategy: cfg.Sort.Strategy,
		MaxSize:  cfg.Sort.MaxSize,
		Workers:  cfg.Processing.NumCores,
		Logger:   logger.Named("sorter"),
	})
	if err := sorter.Initialize(); err != nil {
		return err
	}
	defer sorter.Close()

	params := &pipeline.Params{
		Output: c.String("output"),
		Sort: pixelsort.Params{
			Direction:    direction,
			Ascending:    cfg.Sort.Ascending,
			ThresholdMin: cfg.Sort.ThresholdMin,
			ThresholdMax: cfg.Sort.ThresholdMax,
			Bypass:       !cfg.Sort.Enabled,
		},
		MaxSize:                 cfg.Sort.MaxSize,
		FitToMaxSize:            cfg.Processing.FitToMaxSize,
		Concurrency:             cfg.Processing.NumCores,
		SaveIntermediaryResults: cfg.Output.SaveIntermediaryResults,
		IntermediaryDir:         cfg.Output.IntermediaryDir,
		ExtractLine:             cfg.Output.ExtractLine,
		JPEGQuality:             cfg.Output.JPEGQuality,
	}

	logger.Info("sorting images",
		zap.Int("inputs", c.NArg()),
		zap.String("direction", direction.String()),
		zap.Float32("thresholdMin", cfg.Sort.ThresholdMin),
		zap.Float32("thresholdMax", cfg.Sort.ThresholdMax),
		zap.String("key", cfg.Sort.Key),
		zap.String("strategy", cfg.Sort.Strategy))

	startTime := time.Now()
	results, err := pipeline.New(params, sorter, logger.Named("pipeline")).Run(c.Args().Slice())
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Sorted %d image(s) in %.2f seconds\n", len(results), time.Since(startTime).Seconds())
	for _, res := range results {
		status := fmt.Sprintf("%d runs, %d pixels sorted", res.Report.Classification.Runs, res.Report.Classification.SortablePixels)
		switch {
		case res.Skipped:
			status = "left unsorted, exceeds the size cap"
		case params.Sort.Bypass:
			status = "copied, effect disabled"
		case res.Resized:
			status += ", downscaled"
		}
		fmt.Fprintf(w, "- %s -> %s (%s)\n", res.Input, res.Output, status)
	}
	if params.SaveIntermediaryResults {
		fmt.Fprintf(w, "Intermediary results saved to: %s\n", params.IntermediaryDir)
	}
	return nil
}

func handleInitConfigCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one configuration path is required")
	}

	path := c.Args().First()
	if err := config.CreateDefaultConfigFile(path); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Default configuration written to %s\n", filepath.Clean(path))
	return nil
}
