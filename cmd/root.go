package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tryxpath-cli/internal/config"
	"github.com/xkilldash9x/tryxpath-cli/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// newRootCmd builds the command tree. Each invocation gets its own viper
// instance so tests can run commands side by side.
func newRootCmd() *cobra.Command {
	var cfgFile string
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "tryxpath",
		Short:         "Run XPath and CSS queries against the frames of a browser tab.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.SetDefaults(v)
			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "tryxpath"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting tryxpath", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	pf.String("remote-url", "", "DevTools URL of a running browser (ws:// or http://)")
	pf.String("tab", "", "target id of the tab to use (default: first page)")
	pf.String("url", "", "load this URL into the tab first")
	pf.Bool("headless", true, "run a launched browser headless")
	pf.String("store", "", "session store backend: file, postgres or redis")
	pf.Duration("timeout", 0, "how long to wait for a frame to answer")
	pf.Bool("json", false, "print the popup as JSON")

	rootCmd.AddCommand(
		newExecCmd(),
		newShowCmd(),
		newPageCmd(),
		newFocusCmd(),
		newFramesCmd(),
		newStyleCmd(),
		newStateCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// flagKeys maps persistent flags onto config keys.
var flagKeys = map[string]string{
	"remote-url": "browser.remote_url",
	"tab":        "browser.tab_id",
	"url":        "browser.start_url",
	"headless":   "browser.headless",
	"store":      "store.backend",
	"timeout":    "popup.response_timeout",
}

// initializeConfig reads the config file and environment into v and binds
// the flags that override them.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("TRYXPATH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}

// getConfig returns the configuration loaded by the root command.
func getConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, ok := cmd.Context().Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}

// Execute runs the command line.
func Execute(ctx context.Context) error {
	rootCmd := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		rootCmd.PrintErrln("Error:", err)
	}
	observability.Sync()
	return err
}
