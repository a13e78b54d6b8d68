package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/goodtune/reelfocus/internal/api"
	"github.com/goodtune/reelfocus/internal/session"
	"github.com/goodtune/reelfocus/internal/storage"
	"github.com/spf13/cobra"
)

var ctlMinutes int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	Long:  `Show the session state of a running ReelFocus server.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var ctlCmd = &cobra.Command{
	Use:   "ctl COMMAND",
	Short: "Send a command to the session engine",
	Long: `Send a command to a running ReelFocus server. Commands are start, stop,
extend, next-session and take-break.`,
	Example: `  reelfocus ctl extend
  reelfocus ctl take-break --minutes 15`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"start", "stop", "extend", "next-session", "take-break"},
	RunE:      runCtl,
}

func init() {
	ctlCmd.Flags().IntVar(&ctlMinutes, "minutes", 0, "Break length for take-break (default from engine.break_duration)")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(ctlCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var status session.Status
	if err := client.get(ctx, "/api/status", nil, &status); err != nil {
		return err
	}

	printStatus(status, time.Now())
	return nil
}

func runCtl(cmd *cobra.Command, args []string) error {
	name, err := session.ParseCommandName(args[0])
	if err != nil {
		return err
	}
	if ctlMinutes < 0 {
		return fmt.Errorf("--minutes must not be negative")
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var ack session.Ack
	if err := client.post(ctx, "/api/commands/"+string(name), api.CommandRequest{Minutes: ctlMinutes}, &ack); err != nil {
		return err
	}

	if !ack.Accepted {
		color.New(color.FgRed, color.Bold).Printf("✗ %s rejected: %s\n", name, ack.Reason)
		return fmt.Errorf("command %s was rejected", name)
	}
	color.New(color.FgGreen, color.Bold).Printf("✓ %s accepted\n", name)
	return nil
}

// printStatus prints the session snapshot with colors
func printStatus(status session.Status, now time.Time) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	state := status.State

	cyan.Print("Phase:      ")
	switch status.Phase {
	case session.PhaseActive:
		yellow.Println("ACTIVE")
	case session.PhaseCompleted, session.PhaseBlocked:
		red.Println(string(status.Phase))
	default:
		green.Println(string(status.Phase))
	}

	if status.Monitoring {
		fmt.Println("Monitoring: on")
	} else {
		fmt.Println("Monitoring: off")
	}
	fmt.Printf("Session:    %s\n", status.SessionLabel)
	fmt.Printf("Limit:      %s\n", status.LimitDescription)
	if status.AppName != "" {
		fmt.Printf("App:        %s\n", status.AppName)
	}
	fmt.Printf("Watched:    %s\n", formatSeconds(state.SecondsElapsed))

	if status.RemainingUnit == "items" {
		fmt.Printf("Remaining:  %s items\n", humanize.Comma(int64(status.Remaining)))
	} else {
		fmt.Printf("Remaining:  %s\n", formatSeconds(status.Remaining))
	}

	if state.ExtensionUsed {
		fmt.Println("Extension:  used")
	}
	if !state.SessionStartTime.IsZero() {
		fmt.Printf("Started:    %s\n", humanize.RelTime(state.SessionStartTime, now, "ago", "from now"))
	}
	if state.BreakUntil.After(now) {
		fmt.Printf("Break ends: %s\n", humanize.RelTime(state.BreakUntil, now, "ago", "from now"))
	}
	if !status.LastTick.IsZero() {
		fmt.Printf("Last tick:  %s\n", humanize.Time(status.LastTick))
	}
}

// formatSeconds renders a second count as 1h2m3s
func formatSeconds(seconds int) string {
	return (time.Duration(seconds) * time.Second).String()
}

// limitLabel renders a history entry's quota
func limitLabel(limitType storage.LimitType, value int) string {
	return fmt.Sprintf("%d %s", value, limitType.Unit())
}
