package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"pointd/internal/backend"
	"pointd/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// buildRootCmd wires the command tree. lookup reads the environment.
func buildRootCmd(lookup func(string) (string, bool)) *cobra.Command {
	root := &cobra.Command{
		Use:           "pointd",
		Short:         "Serve a 2-D point binary classifier over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd.Flags(), lookup)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	addConfigFlags(root.PersistentFlags())

	check := &cobra.Command{
		Use:   "check",
		Short: "Load and warm up the model from disk, then exit",
		Example: "  pointd check --model-dir ./model\n" +
			"  pointd check --model-url https://example.com/model/model.json",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd.Flags(), lookup)
			if err != nil {
				return err
			}
			return runCheck(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version and compiled backends",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pointd %s (backends: %s)\n", version, strings.Join(backend.Names(), ", "))
		},
	}
	root.AddCommand(check, versionCmd)
	return root
}

func addConfigFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Config file (.yaml, .yml, .json, .toml)")
	fs.String("addr", "", "HTTP listen address, e.g. :3000 (overrides --port)")
	fs.Int("port", config.DefaultPort, "HTTP port (defaults PORT or 3000)")
	fs.String("model-dir", config.DefaultModelDir, "Directory served under /model/")
	fs.String("model-url", "", "Artifact entry URL or path; defaults to this server's /model/<entry>")
	fs.String("model-entry", "", "Entry file name inside the model dir (backend default when empty)")
	fs.String("backend", config.DefaultBackend, "Execution backend: "+strings.Join(backend.Names(), "|"))
	fs.String("onnx-lib", "", "Path to the onnxruntime shared library")
	fs.String("log-level", config.DefaultLogLevel, "Log level: debug|info|warn|error")
	fs.String("log-format", config.DefaultLogFormat, "Log format: json|console")
	fs.Int64("max-body-bytes", 0, "Maximum /predict body size in bytes (0 = 1MiB)")
	fs.Int64("predict-timeout", 0, "Per-request /predict timeout in seconds (0 disables)")
	fs.String("cors-origins", "", "Comma-separated allowed CORS origins; enables CORS when set")
}

// resolveConfig layers defaults, the config file, the environment and the
// flags the user set explicitly, in that order.
func resolveConfig(fs *pflag.FlagSet, lookup func(string) (string, bool)) (config.Config, error) {
	cfg := config.Default()
	if path, _ := fs.GetString("config"); path != "" {
		fileCfg, err := config.Load(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = cfg.Merge(fileCfg)
	}
	envCfg, err := config.FromEnv(lookup)
	if err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}
	cfg = cfg.Merge(envCfg)
	cfg = cfg.Merge(flagConfig(fs))
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// flagConfig returns only the flags that were set on the command line.
func flagConfig(fs *pflag.FlagSet) config.Config {
	var c config.Config
	str := func(name string, dst *string) {
		if fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	str("addr", &c.Addr)
	str("model-dir", &c.ModelDir)
	str("model-url", &c.ModelURL)
	str("model-entry", &c.ModelEntry)
	str("backend", &c.Backend)
	str("onnx-lib", &c.ONNXLibraryPath)
	str("log-level", &c.LogLevel)
	str("log-format", &c.LogFormat)
	if fs.Changed("port") {
		c.Port, _ = fs.GetInt("port")
	}
	if fs.Changed("max-body-bytes") {
		c.MaxBodyBytes, _ = fs.GetInt64("max-body-bytes")
	}
	if fs.Changed("predict-timeout") {
		c.PredictTimeoutSeconds, _ = fs.GetInt64("predict-timeout")
	}
	if fs.Changed("cors-origins") {
		v, _ := fs.GetString("cors-origins")
		c.CORSOrigins = config.SplitCSV(v)
		c.CORSEnabled = len(c.CORSOrigins) > 0
	}
	return c
}
