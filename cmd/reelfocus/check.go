package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	json "github.com/goccy/go-json"
	"github.com/goodtune/reelfocus/internal/clock"
	"github.com/goodtune/reelfocus/internal/config"
	"github.com/goodtune/reelfocus/internal/detect"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	checkPackage string
	checkWidth   int
	checkHeight  int
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check detection decisions interactively",
	Long:  `Check how ReelFocus would classify a UI snapshot or the current foreground app.`,
}

var checkTreeCmd = &cobra.Command{
	Use:   "tree [flags] FILE",
	Short: "Score a UI tree snapshot",
	Long:  `Score an accessibility tree, saved as JSON, against the short-form video patterns of an app.`,
	Example: `  reelfocus check tree --package com.instagram.android snapshot.json
  reelfocus check tree --package com.google.android.youtube --width 1440 --height 3120 shorts.json`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckTree,
}

var checkDetectCmd = &cobra.Command{
	Use:   "detect [flags] PACKAGE...",
	Short: "Run the foreground detector once",
	Long: `Query the configured usage command and report which of the given packages
is in the foreground. Requires detector.source to be "command".`,
	Example: `  reelfocus -c config.yaml check detect com.zhiliaoapp.musically com.instagram.android`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runCheckDetect,
}

func init() {
	checkTreeCmd.Flags().StringVar(&checkPackage, "package", "", "Package the tree was captured from (required)")
	checkTreeCmd.Flags().IntVar(&checkWidth, "width", detect.DefaultScreen.Width, "Screen width in pixels")
	checkTreeCmd.Flags().IntVar(&checkHeight, "height", detect.DefaultScreen.Height, "Screen height in pixels")
	_ = checkTreeCmd.MarkFlagRequired("package")

	checkCmd.AddCommand(checkTreeCmd)
	checkCmd.AddCommand(checkDetectCmd)
	rootCmd.AddCommand(checkCmd)
}

func runCheckTree(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read tree: %w", err)
	}

	var root detect.Node
	if err := json.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("invalid tree JSON: %w", err)
	}

	matcher := detect.NewPatternMatcher(detect.Screen{Width: checkWidth, Height: checkHeight})
	analysis := matcher.Analyze(&root, checkPackage)

	printTreeResult(args[0], checkPackage, analysis)
	return nil
}

func runCheckDetect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Detector.Source != "command" {
		return fmt.Errorf("detector.source is %q; only the command source can be checked offline", cfg.Detector.Source)
	}

	// Create a quiet logger for check mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	clk := clock.Real{}
	source, _ := usageSource(cfg.Detector, clk)
	detector, err := detect.NewDetector(source, clk, detect.DetectorOptions{
		QueryWindow:  config.ParseDuration(cfg.Detector.QueryWindow, 10*time.Second),
		Freshness:    config.ParseDuration(cfg.Detector.Freshness, 2*time.Second),
		CacheSize:    cfg.Detector.CacheSize,
		QueryTimeout: config.ParseDuration(cfg.Detector.QueryTimeout, 500*time.Millisecond),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize detector: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	permission := detector.HasPermission(ctx)
	pkg, found := detector.Detect(ctx, args)

	printDetectResult(args, permission, pkg, found)
	return nil
}

// printTreeResult prints the pattern analysis with colors
func printTreeResult(file, packageID string, analysis detect.Analysis) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("UI PATTERN CHECK")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Snapshot:   %s\n", file)
	fmt.Printf("Package:    %s\n", packageID)
	fmt.Printf("Confidence: %.2f\n", analysis.Confidence)
	if len(analysis.Patterns) > 0 {
		fmt.Printf("Patterns:   %s\n", strings.Join(analysis.Patterns, ", "))
	} else {
		fmt.Printf("Patterns:   (none matched)\n")
	}
	fmt.Println()

	cyan.Print("Decision:   ")
	if analysis.Engaged() {
		yellow.Println("ENGAGED")
		fmt.Println("            → Time on this screen counts against the session quota")
	} else {
		green.Println("NOT ENGAGED")
		fmt.Printf("            → Score is below %.2f, the foreground fallback decides\n", detect.EngagedConfidence)
	}
	fmt.Println()
}

// printDetectResult prints the foreground detection with colors
func printDetectResult(candidates []string, permission bool, pkg string, found bool) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("FOREGROUND CHECK")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Candidates: %s\n", strings.Join(candidates, ", "))
	fmt.Print("Permission: ")
	if permission {
		green.Println("GRANTED")
	} else {
		red.Println("DENIED")
	}
	fmt.Println()

	cyan.Print("Foreground: ")
	if found {
		yellow.Println(pkg)
	} else {
		green.Println("(none of the candidates)")
	}
	fmt.Println()
}
