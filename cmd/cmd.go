package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/frahmantamala/membership-portal/internal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configPath     string
	dumpMetrics    bool
	commandTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "membership-portal",
	Short:         "Membership Portal",
	Long:          `Operator tooling for the membership portal: schema migrations and role, permission and affiliation assignments.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*internal.Config, error) {
	// Check if we're running in Docker environment
	if os.Getenv("APP_ENV") == "production" || os.Getenv("DOCKER_ENV") == "true" {
		cfg, err := internal.LoadConfigFromEnv()
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("error validating config from environment: %w", err)
		}
		return cfg, nil
	}

	// Load configuration from file (development)
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix("ENV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("env", "development")
	v.SetDefault("database.driver", internal.DriverSQLite)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "5m")
	v.SetDefault("logging.level", "debug")
	v.SetDefault("logging.format", "text")
	v.SetDefault("events.channel", "membership-portal.authz")
	v.SetDefault("metrics.namespace", "membership_portal")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	var cfg internal.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error validating config: %w", err)
	}

	return &cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "directory containing config.yml")
	rootCmd.PersistentFlags().DurationVar(&commandTimeout, "timeout", 30*time.Second, "deadline for a command's database and redis calls")
	rootCmd.PersistentFlags().BoolVar(&dumpMetrics, "dump-metrics", false, "print authorization counters on exit")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(rolesCmd)
	rootCmd.AddCommand(permissionsCmd)
	rootCmd.AddCommand(affiliationsCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(membersCmd)
	rootCmd.AddCommand(eventCmd)
}
