// Package cmd provides the CLI commands for comfyone.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inercia/comfyone/client"
	"github.com/inercia/comfyone/internal/config"
	"github.com/inercia/comfyone/internal/logging"
	"github.com/inercia/comfyone/internal/secrets"
)

var (
	// Global flags
	configPath    string // --config overrides the config directory lookup
	apiKeyFlag    string
	domainFlag    string
	debug         bool
	logLevel      string // --log-level flag (debug, info, warn, error)
	logFile       string
	logComponents string
	jsonOutput    bool

	// Loaded configuration
	cfg *config.Config

	// secretStore holds the API key saved by login. Tests swap it.
	secretStore = secrets.Default()

	// getenv is os.Getenv outside of tests.
	getenv = os.Getenv
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "comfyone",
	Short: "comfyone - A CLI for the ComfyOne workflow service",
	Long: `comfyone manages backends, workflows and prompts on the ComfyOne
workflow-execution service, and follows prompt progress over its
WebSocket event stream.

The API key is read from --api-key, COMFYONE_API_KEY, the system keychain
(see 'comfyone login') or the config file, in that order.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for help and completion commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		var err error
		if configPath != "" {
			cfg, err = config.Load(configPath)
		} else {
			cfg, err = config.LoadDefault()
		}
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg.ApplyEnv(getenv)
		if domainFlag != "" {
			cfg.Domain = domainFlag
		}

		// Priority: --log-level flag > --debug flag > config file > default (info)
		effectiveLogLevel := cfg.Log.Level
		if logLevel != "" {
			effectiveLogLevel = logLevel
		} else if debug {
			effectiveLogLevel = "debug"
		}
		components := cfg.Log.Components
		if logComponents != "" {
			components = splitList(logComponents)
		}
		lc := logging.Config{
			Level:      effectiveLogLevel,
			JSON:       cfg.Log.JSON,
			Components: components,
			Console:    cmd.ErrOrStderr(),
		}
		path := cfg.Log.File
		if logFile != "" {
			path = logFile
		}
		if path != "" {
			lc.File = &logging.FileConfig{Path: path}
		}
		if err := logging.Initialize(lc); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		// Clean up logging resources
		return logging.Close()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && client.IsAuthentication(err) {
		return fmt.Errorf("%w\nrun 'comfyone login' to store a valid API key", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file path (YAML, TOML or JSON)")
	rootCmd.PersistentFlags().StringVar(&apiKeyFlag, "api-key", "", "API key (overrides environment, keychain and config file)")
	rootCmd.PersistentFlags().StringVar(&domainFlag, "domain", "", "Service domain (default: "+client.DefaultDomain+")")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (shorthand for --log-level=debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: info)")
	rootCmd.PersistentFlags().StringVarP(&logFile, "logfile", "l", "", "Log file path (logs are also written to console)")
	rootCmd.PersistentFlags().StringVar(&logComponents, "log-components", "", "Comma-separated list of components to log (e.g., 'api,ws'). Empty means all components.")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print raw JSON responses and events")
}

// newClient builds a client from the loaded configuration.
func newClient() (*client.Client, error) {
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	key, source, err := cfg.ResolveAPIKey(apiKeyFlag, getenv, secretStore)
	if err != nil {
		return nil, err
	}
	logging.API().Debug("Using API key", "source", source)

	opts := append(cfg.ClientOptions(), client.WithSessionLogger(logging.WS()))
	c, err := client.New(cfg.ClientConfig(key, logging.API()), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return c, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
