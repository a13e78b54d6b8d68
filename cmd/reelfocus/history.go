package main

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/goodtune/reelfocus/internal/api"
	"github.com/goodtune/reelfocus/internal/storage"
	"github.com/spf13/cobra"
)

var (
	historyDate  string
	historyApp   string
	historyLimit int
	historyClear bool

	statsWeekly bool
	statsDays   int
	statsApp    string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded sessions",
	Long:  `List recorded sessions, most recent first.`,
	Example: `  reelfocus history --date 2024-03-04
  reelfocus history --app com.instagram.android --limit 5
  reelfocus history --clear`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var statsCmd = &cobra.Command{
	Use:   "stats [DATE]",
	Short: "Show usage statistics",
	Long: `Show usage statistics for one day (YYYY-MM-DD, default today), for the
trailing week, or for a single app across the whole history.`,
	Example: `  reelfocus stats
  reelfocus stats 2024-03-04
  reelfocus stats --weekly --days 14
  reelfocus stats --app com.zhiliaoapp.musically`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStats,
}

func init() {
	historyCmd.Flags().StringVar(&historyDate, "date", "", "Only sessions ending on this day (YYYY-MM-DD)")
	historyCmd.Flags().StringVar(&historyApp, "app", "", "Only sessions of this package")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of sessions to list (0 for all)")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "Delete all recorded sessions")

	statsCmd.Flags().BoolVar(&statsWeekly, "weekly", false, "Show one line per day for the trailing week")
	statsCmd.Flags().IntVar(&statsDays, "days", 7, "Number of days for --weekly")
	statsCmd.Flags().StringVar(&statsApp, "app", "", "Show totals for one package")

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statsCmd)
}

type historyResponse struct {
	Entries []storage.HistoryEntry `json:"entries"`
	Count   int                    `json:"count"`
}

type weeklyResponse struct {
	Days  []storage.DailyStats `json:"days"`
	Count int                  `json:"count"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if historyClear {
		var resp api.SuccessResponse
		if err := client.delete(ctx, "/api/history", &resp); err != nil {
			return err
		}
		color.New(color.FgGreen, color.Bold).Printf("✓ %s\n", resp.Message)
		return nil
	}

	query := url.Values{}
	if historyDate != "" {
		query.Set("date", historyDate)
	}
	if historyApp != "" {
		query.Set("app", historyApp)
	}
	if historyLimit > 0 {
		query.Set("limit", strconv.Itoa(historyLimit))
	}

	var resp historyResponse
	if err := client.get(ctx, "/api/history", query, &resp); err != nil {
		return err
	}

	if len(resp.Entries) == 0 {
		fmt.Println("No sessions recorded")
		return nil
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	now := time.Now()

	for _, e := range resp.Entries {
		status := green.Sprint("completed")
		if !e.Completed {
			status = yellow.Sprint("partial  ")
		}
		extended := ""
		if e.ExtensionsUsed > 0 {
			extended = " +ext"
		}
		fmt.Printf("%-16s %s  %-10s of %-10s %s%s  %s\n",
			e.AppName,
			status,
			formatSeconds(e.DurationSeconds),
			limitLabel(e.LimitType, e.LimitValue),
			e.EndTime.Local().Format("2006-01-02 15:04"),
			extended,
			humanize.RelTime(e.EndTime, now, "ago", "from now"),
		)
	}
	fmt.Printf("\n%s session(s)\n", humanize.Comma(int64(resp.Count)))
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case statsApp != "":
		var stats storage.AppDayStats
		if err := client.get(ctx, "/api/stats/apps/"+url.PathEscape(statsApp), nil, &stats); err != nil {
			return err
		}
		printAppStats(statsApp, stats)

	case statsWeekly:
		var resp weeklyResponse
		query := url.Values{"days": []string{strconv.Itoa(statsDays)}}
		if err := client.get(ctx, "/api/stats/weekly", query, &resp); err != nil {
			return err
		}
		for _, day := range resp.Days {
			fmt.Printf("%s  %2d session(s)  %2d completed  %-10s  %d extension(s)\n",
				day.Date, day.TotalSessions, day.CompletedSessions,
				formatSeconds(day.TotalTimeSeconds), day.TotalExtensions)
		}

	default:
		date := "today"
		if len(args) == 1 {
			date = args[0]
		}
		var stats storage.DailyStats
		if err := client.get(ctx, "/api/stats/daily/"+url.PathEscape(date), nil, &stats); err != nil {
			return err
		}
		printDailyStats(stats)
	}

	return nil
}

// printDailyStats prints one day with its per-app breakdown
func printDailyStats(stats storage.DailyStats) {
	cyan := color.New(color.FgCyan, color.Bold)

	cyan.Printf("%s\n", stats.Date)
	fmt.Printf("Sessions:   %d (%d completed)\n", stats.TotalSessions, stats.CompletedSessions)
	fmt.Printf("Watched:    %s\n", formatSeconds(stats.TotalTimeSeconds))
	fmt.Printf("Extensions: %d\n", stats.TotalExtensions)

	if len(stats.AppBreakdown) == 0 {
		return
	}

	packages := make([]string, 0, len(stats.AppBreakdown))
	for pkg := range stats.AppBreakdown {
		packages = append(packages, pkg)
	}
	// Most watched first
	sort.Slice(packages, func(i, j int) bool {
		a, b := stats.AppBreakdown[packages[i]], stats.AppBreakdown[packages[j]]
		if a.TotalTimeSeconds != b.TotalTimeSeconds {
			return a.TotalTimeSeconds > b.TotalTimeSeconds
		}
		return packages[i] < packages[j]
	})

	fmt.Println()
	for _, pkg := range packages {
		app := stats.AppBreakdown[pkg]
		fmt.Printf("  %-16s %2d session(s)  %s\n", app.AppName, app.Sessions, formatSeconds(app.TotalTimeSeconds))
	}
}

func printAppStats(packageID string, stats storage.AppDayStats) {
	color.New(color.FgCyan, color.Bold).Printf("%s (%s)\n", stats.AppName, packageID)
	fmt.Printf("Sessions:   %s\n", humanize.Comma(int64(stats.Sessions)))
	fmt.Printf("Watched:    %s\n", formatSeconds(stats.TotalTimeSeconds))
	fmt.Printf("Extensions: %d\n", stats.Extensions)
}
