package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/openslide/buildindex/pkg/config"
	"github.com/openslide/buildindex/pkg/engine"
	"github.com/openslide/buildindex/pkg/engine/github"
	"github.com/openslide/buildindex/pkg/engine/release"
	"github.com/openslide/buildindex/pkg/storage"
	"github.com/openslide/buildindex/pkg/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "buildindex",
	Short: "Maintain the index of nightly builds",
	Long: `buildindex - Nightly Build Index

Record a build. Delete what falls out of the window. Publish the page.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          runUpdate,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("[ERROR]"), err)
		os.Exit(1)
	}
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FF99")).
			MarginBottom(1)
	flagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))
	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF5555"))
	okStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#00FF99"))
)

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent Flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default $HOME/.buildindex.yaml)")
	pf.String("site", ".", "Site directory or s3://bucket/prefix holding the index")
	pf.String("profile", config.DefaultProfile, "Builtin profile ("+strings.Join(config.BuiltinProfileNames(), ", ")+")")
	pf.String("profile-file", "", "YAML profile overriding --profile")
	pf.String("tombstones", "", "Directory or s3://bucket/prefix receiving purged records")
	pf.String("slack-webhook", "", "Slack Webhook URL")
	pf.String("slack-channel", "", "Slack channel override")
	pf.String("otel-endpoint", "", "OTLP/HTTP endpoint for traces")
	pf.Bool("json-logs", false, "Always log JSON")
	pf.BoolP("verbose", "v", false, "Debug logging")

	// Hidden Flags
	pf.Bool("mock", false, "Use an in-memory release store")
	_ = pf.MarkHidden("mock")

	_ = viper.BindPFlags(pf)

	addUpdateFlags(rootCmd.Flags())
	rootCmd.SetGlobalNormalizationFunc(normalizeIDFlag)

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		renderHelp(cmd)
	})

	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(tombstonesCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.SetConfigFile(filepath.Join(home, ".buildindex.yaml"))
			viper.SetConfigType("yaml")
		}
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.SetEnvPrefix("BUILDINDEX")
	viper.AutomaticEnv()
	_ = viper.BindEnv("github_token", "GITHUB_TOKEN")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" && !errors.As(err, &notFound) {
			fmt.Fprintln(os.Stderr, errorStyle.Render("[WARN]"), "Failed to read config:", err)
		}
	}
}

// loadProfile resolves --profile-file or --profile.
func loadProfile() (config.Profile, error) {
	if path := viper.GetString("profile-file"); path != "" {
		return config.LoadProfile(path)
	}
	name := viper.GetString("profile")
	p, ok := config.BuiltinProfile(name)
	if !ok {
		return config.Profile{}, fmt.Errorf("unknown profile %q (expected one of: %s)",
			name, strings.Join(config.BuiltinProfileNames(), ", "))
	}
	return p, nil
}

// openStore opens a directory or an S3 location.
func openStore(ctx context.Context, location string) (storage.BlobStore, error) {
	if !strings.HasPrefix(location, "s3://") {
		return storage.NewLocalStore(location), nil
	}
	bucket, prefix, err := storage.ParseS3URL(location)
	if err != nil {
		return nil, err
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return storage.NewS3Store(cfg, bucket, prefix), nil
}

// releaseStore returns the hosting service for profile p.
func releaseStore(p config.Profile) (release.Store, error) {
	if viper.GetBool("mock") {
		return release.NewMockStore(), nil
	}
	token := viper.GetString("github_token")
	if token == "" {
		return nil, errors.New("GITHUB_TOKEN is not set")
	}
	return github.NewClient(p.Repo, token), nil
}

// newEngine builds an engine from flags and config. Commands that only
// read the site pass remote=false and skip the hosting service.
func newEngine(ctx context.Context, remote bool) (*engine.Engine, error) {
	p, err := loadProfile()
	if err != nil {
		return nil, err
	}
	site, err := openStore(ctx, viper.GetString("site"))
	if err != nil {
		return nil, err
	}

	cfg := engine.Config{
		Profile:       p,
		Site:          site,
		SlackWebhook:  viper.GetString("slack-webhook"),
		SlackChannel:  viper.GetString("slack-channel"),
		OtelEndpoint:  viper.GetString("otel-endpoint"),
		JsonLogs:      viper.GetBool("json-logs"),
		Verbose:       viper.GetBool("verbose"),
		SkipTelemetry: !remote,
	}
	if remote {
		if cfg.Releases, err = releaseStore(p); err != nil {
			return nil, err
		}
		if loc := viper.GetString("tombstones"); loc != "" {
			if cfg.Tombstones, err = openStore(ctx, loc); err != nil {
				return nil, err
			}
		}
	}
	return engine.New(ctx, engine.WithConfig(cfg))
}

func renderHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("BUILDINDEX %s", version.Current)))
	fmt.Fprintln(out, "Nightly build index maintenance.")

	fmt.Fprintln(out, titleStyle.Render("USAGE"))
	fmt.Fprintf(out, "  %s\n\n", cmd.UseLine())

	if cmd.HasAvailableSubCommands() {
		fmt.Fprintln(out, titleStyle.Render("COMMANDS"))
		for _, c := range cmd.Commands() {
			if c.IsAvailableCommand() {
				fmt.Fprintf(out, "  %-12s %s\n", c.Name(), c.Short)
			}
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, titleStyle.Render("EXAMPLES"))
	fmt.Fprintln(out, "  buildindex --site site --version 4.0.0+20231015.1a2b3c --files out \\")
	fmt.Fprintln(out, "      --rev openslide=1a2b3c4d --builder linux-builder=ghcr.io/...")
	fmt.Fprintln(out, "  buildindex --site site               # Purge and re-render only")
	fmt.Fprintln(out, "  buildindex list --profile winbuild")
	fmt.Fprintln(out)

	fmt.Fprintln(out, titleStyle.Render("FLAGS"))
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		output := fmt.Sprintf("  --%-15s %s", f.Name, f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "[]" {
			output += fmt.Sprintf(" (default %s)", f.DefValue)
		}
		fmt.Fprintln(out, flagStyle.Render(output))
	})
	fmt.Fprintln(out)
}
