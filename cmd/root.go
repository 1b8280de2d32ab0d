// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formsurge/internal/config"
	"github.com/xkilldash9x/formsurge/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// ErrUsage marks malformed command-line arguments.
var ErrUsage = errors.New("usage error")

// flagBindings maps flags onto config keys so they override file and env values.
var flagBindings = map[string]string{
	"log-level": "logger.level",
	"headless":  "browser.headless",
	"store":     "store.backend",
	"cache-dir": "store.cache_dir",
	"seed":      "submit.seed",
	"min-delay": "submit.min_delay",
	"max-delay": "submit.max_delay",
	"max-rate":  "submit.max_rate",
	"proxy":     "network.proxy",
}

// NewRootCommand builds a fresh command tree. Tests and main both use it, so
// no flag state leaks between executions.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "formsurge <FORM_URL> <M>",
		Short: "Extract a web form's structure once, then submit M randomized responses.",
		Long: `formsurge renders a form page in headless Chrome, infers every question's type
and answer domain, caches that structure, and then posts M independent randomized
responses directly over HTTP.`,
		Version:       Version,
		Args:          validateSubmitArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "formsurge"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting formsurge", zap.String("version", Version))

			config.Set(cfg)
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			formURL, count, err := parseSubmitArgs(args)
			if err != nil {
				return err
			}
			opts, err := submitOptionsFromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			return runSubmit(cmd.Context(), cmd, configFrom(cmd.Context()), formURL, count, opts)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.Bool("headless", true, "run Chrome without a window")
	pf.String("store", config.StoreBackendFile, "schema cache backend (file or postgres)")
	pf.String("cache-dir", ".", "directory for cached schemas (file backend)")
	pf.String("proxy", "", "outbound proxy URL for fetching and submitting")
	pf.Bool("refresh", false, "ignore any cached schema and extract again")
	pf.Bool("static", false, "extract from the raw HTML without launching Chrome")

	f := rootCmd.Flags()
	f.Bool("dry-run", false, "print the payloads instead of submitting them")
	f.Bool("confirm", false, "ask for confirmation before submitting")
	f.Uint64("seed", 0, "random seed for answers and pacing (0 picks one)")
	f.Duration("min-delay", 0, "minimum pause between submissions")
	f.Duration("max-delay", 0, "maximum pause between submissions")
	f.Float64("max-rate", 0, "cap on submissions per second (0 disables)")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	rootCmd.AddCommand(newInspectCmd(), newVersionCmd())
	return rootCmd
}

// Execute runs the command tree with the signal-aware context from main.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	defer observability.Sync()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(rootCmd.ErrOrStderr(), "Aborted.")
			return err
		}
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		if errors.Is(err, ErrUsage) {
			fmt.Fprintln(rootCmd.ErrOrStderr(), rootCmd.UseLine())
		}
	}
	return err
}

// initializeConfig reads the config file and environment, then binds flags on top.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("FORMSURGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return bindFlags(v, cmd.Flags())
}

// bindFlags binds whichever of flagBindings the command actually carries.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagBindings {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}
	return nil
}

func configFrom(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok && cfg != nil {
		return cfg
	}
	return config.Get()
}

func validateSubmitArgs(_ *cobra.Command, args []string) error {
	_, _, err := parseSubmitArgs(args)
	return err
}

// parseSubmitArgs checks <FORM_URL> <M>.
func parseSubmitArgs(args []string) (string, int, error) {
	if len(args) != 2 {
		return "", 0, fmt.Errorf("%w: expected <FORM_URL> <M>, got %d argument(s)", ErrUsage, len(args))
	}
	formURL, err := validateFormURL(args[0])
	if err != nil {
		return "", 0, err
	}
	count, err := strconv.Atoi(args[1])
	if err != nil {
		return "", 0, fmt.Errorf("%w: M must be an integer, got %q", ErrUsage, args[1])
	}
	if count < 0 {
		return "", 0, fmt.Errorf("%w: M must not be negative, got %d", ErrUsage, count)
	}
	return formURL, count, nil
}

func validateFormURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: FORM_URL must be an absolute http(s) URL, got %q", ErrUsage, raw)
	}
	return u.String(), nil
}

// ExitCode maps an Execute error onto the process status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}
