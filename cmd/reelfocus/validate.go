package main

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/reelfocus/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the ReelFocus configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	// Check for unknown keys (always, not just with --dump)
	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", configPath)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(os.Stdout)
		red.Fprintf(os.Stdout, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			red.Fprintf(os.Stdout, "   - %s\n", key)
		}
		fmt.Fprintln(os.Stdout, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	if validateDump {
		_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(os.Stdout, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(os.Stdout, strings.Repeat("=", 80))

		dumpConfig(cfg, config.Default(), unknownKeys)
	}

	return nil
}

// findUnknownKeys loads the config file and checks for unknown keys
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	validKeys := getValidKeys()

	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !validKeys[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)

	return unknown, nil
}

// getValidKeys returns the set of all valid configuration keys, taken from
// the mapstructure tags of config.Config
func getValidKeys() map[string]bool {
	keys := map[string]bool{}
	collectKeys(reflect.TypeOf(config.Config{}), "", keys)
	return keys
}

func collectKeys(t reflect.Type, prefix string, keys map[string]bool) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			collectKeys(field.Type, key, keys)
			continue
		}
		keys[key] = true
	}
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(cfg, defaultCfg *config.Config, unknownKeys []string) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	_, _ = cyan.Println("\n[server]")
	dumpField("  bind_address", cfg.Server.BindAddress, defaultCfg.Server.BindAddress, yellow, green)
	dumpField("  api_port", cfg.Server.APIPort, defaultCfg.Server.APIPort, yellow, green)
	dumpField("  metrics_port", cfg.Server.MetricsPort, defaultCfg.Server.MetricsPort, yellow, green)

	_, _ = cyan.Println("\n[engine]")
	dumpField("  tick_interval", cfg.Engine.TickInterval, defaultCfg.Engine.TickInterval, yellow, green)
	dumpField("  grace_ticks", cfg.Engine.GraceTicks, defaultCfg.Engine.GraceTicks, yellow, green)
	dumpField("  persist_every", cfg.Engine.PersistEvery, defaultCfg.Engine.PersistEvery, yellow, green)
	dumpField("  extension_minutes", cfg.Engine.ExtensionMinutes, defaultCfg.Engine.ExtensionMinutes, yellow, green)
	dumpField("  break_duration", cfg.Engine.BreakDuration, defaultCfg.Engine.BreakDuration, yellow, green)
	dumpField("  min_history_seconds", cfg.Engine.MinHistorySeconds, defaultCfg.Engine.MinHistorySeconds, yellow, green)
	dumpField("  seconds_per_item", cfg.Engine.SecondsPerItem, defaultCfg.Engine.SecondsPerItem, yellow, green)
	dumpField("  classify_timeout", cfg.Engine.ClassifyTimeout, defaultCfg.Engine.ClassifyTimeout, yellow, green)
	dumpField("  auto_start", cfg.Engine.AutoStart, defaultCfg.Engine.AutoStart, yellow, green)

	_, _ = cyan.Println("\n[detector]")
	dumpField("  source", cfg.Detector.Source, defaultCfg.Detector.Source, yellow, green)
	dumpField("  command", cfg.Detector.Command, defaultCfg.Detector.Command, yellow, green)
	dumpField("  args", cfg.Detector.Args, defaultCfg.Detector.Args, yellow, green)
	dumpField("  permission_command", cfg.Detector.PermissionCommand, defaultCfg.Detector.PermissionCommand, yellow, green)
	dumpField("  permission_args", cfg.Detector.PermissionArgs, defaultCfg.Detector.PermissionArgs, yellow, green)
	dumpField("  query_window", cfg.Detector.QueryWindow, defaultCfg.Detector.QueryWindow, yellow, green)
	dumpField("  freshness", cfg.Detector.Freshness, defaultCfg.Detector.Freshness, yellow, green)
	dumpField("  cache_ttl", cfg.Detector.CacheTTL, defaultCfg.Detector.CacheTTL, yellow, green)
	dumpField("  cache_size", cfg.Detector.CacheSize, defaultCfg.Detector.CacheSize, yellow, green)
	dumpField("  query_timeout", cfg.Detector.QueryTimeout, defaultCfg.Detector.QueryTimeout, yellow, green)
	dumpField("  screen_width", cfg.Detector.ScreenWidth, defaultCfg.Detector.ScreenWidth, yellow, green)
	dumpField("  screen_height", cfg.Detector.ScreenHeight, defaultCfg.Detector.ScreenHeight, yellow, green)

	_, _ = cyan.Println("\n[classifier]")
	dumpField("  pattern_min_confidence", cfg.Classifier.PatternMinConfidence, defaultCfg.Classifier.PatternMinConfidence, yellow, green)
	dumpField("  fallback_confidence", cfg.Classifier.FallbackConfidence, defaultCfg.Classifier.FallbackConfidence, yellow, green)

	_, _ = cyan.Println("\n[storage]")
	dumpField("  type", cfg.Storage.Type, defaultCfg.Storage.Type, yellow, green)
	dumpField("  path", cfg.Storage.Path, defaultCfg.Storage.Path, yellow, green)
	_, _ = cyan.Println("  [storage.redis]")
	dumpField("    host", cfg.Storage.Redis.Host, defaultCfg.Storage.Redis.Host, yellow, green)
	dumpField("    port", cfg.Storage.Redis.Port, defaultCfg.Storage.Redis.Port, yellow, green)
	dumpField("    password", redactPassword(cfg.Storage.Redis.Password), redactPassword(defaultCfg.Storage.Redis.Password), yellow, green)
	dumpField("    db", cfg.Storage.Redis.DB, defaultCfg.Storage.Redis.DB, yellow, green)
	dumpField("    pool_size", cfg.Storage.Redis.PoolSize, defaultCfg.Storage.Redis.PoolSize, yellow, green)
	dumpField("    min_idle_conns", cfg.Storage.Redis.MinIdleConns, defaultCfg.Storage.Redis.MinIdleConns, yellow, green)
	dumpField("    dial_timeout", cfg.Storage.Redis.DialTimeout, defaultCfg.Storage.Redis.DialTimeout, yellow, green)
	dumpField("    read_timeout", cfg.Storage.Redis.ReadTimeout, defaultCfg.Storage.Redis.ReadTimeout, yellow, green)
	dumpField("    write_timeout", cfg.Storage.Redis.WriteTimeout, defaultCfg.Storage.Redis.WriteTimeout, yellow, green)

	_, _ = cyan.Println("\n[history]")
	dumpField("  retention_days", cfg.History.RetentionDays, defaultCfg.History.RetentionDays, yellow, green)
	dumpField("  daily_reset_time", cfg.History.DailyResetTime, defaultCfg.History.DailyResetTime, yellow, green)

	_, _ = cyan.Println("\n[logging]")
	dumpField("  level", cfg.Logging.Level, defaultCfg.Logging.Level, yellow, green)
	dumpField("  format", cfg.Logging.Format, defaultCfg.Logging.Format, yellow, green)

	_, _ = cyan.Println("\n[api]")
	dumpField("  enabled", cfg.API.Enabled, defaultCfg.API.Enabled, yellow, green)
	dumpField("  rate_limit", cfg.API.RateLimit, defaultCfg.API.RateLimit, yellow, green)
	dumpField("  burst", cfg.API.Burst, defaultCfg.API.Burst, yellow, green)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)

		_, _ = cyan.Println("\n[UNKNOWN KEYS - These will be ignored!]")
		for _, key := range unknownKeys {
			_, _ = red.Printf("  %s = (unknown key - check for typos)\n", key)
		}
	}

	_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
}

// dumpField prints a field with color if it differs from default
func dumpField(name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	isDefault := reflect.DeepEqual(value, defaultValue)

	valueStr := fmt.Sprintf("%v", value)

	if isDefault {
		_, _ = defaultColor.Printf("%s = %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Printf("%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

// redactPassword redacts password if not empty
func redactPassword(password string) string {
	if password == "" {
		return ""
	}
	return "***REDACTED***"
}
