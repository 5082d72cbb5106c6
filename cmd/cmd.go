package cmd

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/frahmantamala/vip-checkout/internal"
	"github.com/frahmantamala/vip-checkout/internal/ui"
	"github.com/frahmantamala/vip-checkout/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configDir     string
	profileOption string
)

var rootCmd = &cobra.Command{
	Use:           "vip-checkout",
	Short:         "VIP upgrade checkout",
	Long:          `Buy the VIP upgrade through a hosted payment page or an in-terminal card form, and reconcile what the provider sends back.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if ui.IsAbort(err) {
			os.Exit(130)
		}
		ui.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*internal.Config, error) {
	// Check if we're running in Docker environment
	if os.Getenv("APP_ENV") == "production" || os.Getenv("DOCKER_ENV") == "true" {
		cfg := internal.LoadConfigFromEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("error validating config from environment: %w", err)
		}
		return cfg, nil
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix("ENV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range internal.Defaults() {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
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

func initLogger(cfg *internal.Config) {
	logging := cfg.Observability.Logging
	logger.Init(logging.Env, logger.WithLevel(logging.Level), logger.WithFormat(logging.Format))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "directory holding config.yml")
	rootCmd.PersistentFlags().StringVar(&profileOption, "profile", "", "checkout profile (defaults to checkout.profile)")

	rootCmd.AddCommand(httpServerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(payCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(settleCmd)
}
