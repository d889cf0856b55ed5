// finpb migrates a personal-finance dataset into PocketBase: CSV import,
// legacy-reference rewriting, deduplication, and verification, driven by a
// declarative migration plan.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dharwin/finpb/internal/plan"
	"github.com/dharwin/finpb/internal/pocketbase"
)

var (
	storeURL   string
	planPath   string
	adminEmail string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "finpb",
	Short: "Migrate finance data into PocketBase",
	Long: `finpb moves a Supabase-era finance dataset into PocketBase.

The pipeline has four stages, each its own subcommand:

  import        load CSV exports into collections, parents first
  analyze       classify foreign-key fields before (or after) migrating
  migrate-refs  rewrite legacy UUID references to current record IDs
  dedupe        remove records sharing a natural key
  verify        compare a CSV export against a live collection

Admin credentials come from FINPB_EMAIL / FINPB_PASSWORD, a config
file, or an interactive prompt. They are never stored in the plan.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeURL, "url", "", "PocketBase base URL (default: $FINPB_URL or http://127.0.0.1:8090)")
	rootCmd.PersistentFlags().StringVar(&planPath, "plan", "", "Migration plan YAML (default: built-in plan)")
	rootCmd.PersistentFlags().StringVar(&adminEmail, "email", "", "Admin email (default: $FINPB_EMAIL)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./finpb.yaml if present)")
}

// loadSettings builds the effective configuration: flags over environment
// over config file over defaults. Credentials live here and nowhere else.
func loadSettings() (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("FINPB")
	v.AutomaticEnv()
	v.SetDefault("url", "http://127.0.0.1:8090")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configPath, err)
		}
	} else {
		v.SetConfigName("finpb")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		// Optional when not named explicitly.
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading finpb.yaml: %w", err)
			}
		}
	}

	if storeURL != "" {
		v.Set("url", storeURL)
	}
	if adminEmail != "" {
		v.Set("email", adminEmail)
	}
	return v, nil
}

// loadPlan returns the plan named by --plan, or the built-in default.
func loadPlan() (*plan.Plan, error) {
	if planPath == "" {
		return plan.Default(), nil
	}
	return plan.Load(planPath)
}

// connect checks the store is reachable and authenticates as an admin.
// Both failures are fatal per the pipeline's exit-code contract; nothing
// downstream can run without an authenticated client.
func connect(ctx context.Context) (*pocketbase.Client, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}

	client := pocketbase.NewClient(strings.TrimRight(settings.GetString("url"), "/"))
	if err := client.Health(ctx); err != nil {
		return nil, err
	}

	email := settings.GetString("email")
	if email == "" {
		return nil, fmt.Errorf("no admin email configured (set FINPB_EMAIL or pass --email)")
	}
	password, err := resolvePassword(settings)
	if err != nil {
		return nil, err
	}

	if err := client.Authenticate(ctx, email, password); err != nil {
		return nil, fmt.Errorf("authentication failed for %s: %w", email, err)
	}
	return client, nil
}

// resolvePassword reads the admin password from configuration, falling
// back to a hidden terminal prompt when stdin is interactive.
func resolvePassword(settings *viper.Viper) (string, error) {
	if pw := settings.GetString("password"); pw != "" {
		return pw, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no admin password configured (set FINPB_PASSWORD)")
	}

	fmt.Fprint(os.Stderr, "Admin password: ")
	pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pwBytes), nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
