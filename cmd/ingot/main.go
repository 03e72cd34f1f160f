package main

import (
	"fmt"
	"os"
	"time"

	"ingot/internal/app"
	"ingot/internal/config"
	"ingot/internal/loader"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
func newApp(cmd *cobra.Command) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// promptPassphrase reads a passphrase from the terminal without echo.
func promptPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pass), nil
}

var rootCmd = &cobra.Command{
	Use:   "ingot",
	Short: "Archive software origins into a content-addressed object graph",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Archive:    %s\n", cfg.Archive.Type)
		fmt.Printf("ObjStorage: %s\n", cfg.ObjStorage.Type)
		fmt.Printf("Scheduler:  %s\n", cfg.Scheduler.Type)
		fmt.Printf("Encrypted:  %v\n", cfg.ObjStorage.Encryption.Enabled)
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage payload encryption keys",
}

var configKeysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the age key pair for payload encryption",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.EncryptionEnabled() {
			return fmt.Errorf("payload encryption is not enabled in the config")
		}
		if a.EncryptionConfigured() {
			return fmt.Errorf("encryption keys already exist")
		}

		pass, err := promptPassphrase("Passphrase for the new key: ")
		if err != nil {
			return err
		}
		confirm, err := promptPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.SetupEncryption(pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Println("Encryption keys generated.")
		return nil
	},
}

// load command
var loadCmd = &cobra.Command{
	Use:   "load ORIGIN_URL",
	Short: "Ingest an origin's artifacts into the archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manifestPath, _ := cmd.Flags().GetString("manifest")
		visitType, _ := cmd.Flags().GetString("type")
		visitDateStr, _ := cmd.Flags().GetString("visit-date")
		appendBranches, _ := cmd.Flags().GetBool("append")
		check, _ := cmd.Flags().GetBool("check")

		artifacts, err := loader.ReadManifest(manifestPath)
		if err != nil {
			return err
		}

		var visitDate time.Time
		if visitDateStr != "" {
			visitDate, err = time.Parse(time.RFC3339, visitDateStr)
			if err != nil {
				return fmt.Errorf("parsing visit date: %w", err)
			}
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Load(cmd.Context(), args[0], artifacts, app.LoadOptions{
			VisitType:      visitType,
			VisitDate:      visitDate,
			AppendBranches: appendBranches,
			CheckSnapshot:  check,
		})
		if err != nil {
			return fmt.Errorf("load failed: %w", err)
		}

		fmt.Printf("Load:   %s\n", result.Status)
		fmt.Printf("Visit:  %s\n", result.VisitStatus)
		if result.SnapshotID != nil {
			fmt.Printf("Snapshot: %s\n", *result.SnapshotID)
		}
		for objType, count := range result.Written {
			fmt.Printf("  %s: %d written\n", objType, count)
		}
		return nil
	},
}

// check command
var checkCmd = &cobra.Command{
	Use:   "check SNAPSHOT_ID",
	Short: "Verify the full closure of a stored snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.CheckSnapshot(args[0]); err != nil {
			return fmt.Errorf("snapshot check failed: %w", err)
		}
		fmt.Println("Snapshot closure is complete.")
		return nil
	},
}

// visits command
var visitsCmd = &cobra.Command{
	Use:   "visits ORIGIN_URL",
	Short: "View the visit history of an origin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		statuses, err := a.Visits(args[0])
		if err != nil {
			return err
		}

		if len(statuses) == 0 {
			fmt.Println("No visits recorded.")
			return nil
		}

		for _, s := range statuses {
			snapshot := "-"
			if s.Snapshot != nil {
				snapshot = string(*s.Snapshot)
			}
			fmt.Printf("#%d  %s  %-9s  %s\n",
				s.Visit,
				s.Date.UTC().Format("2006-01-02 15:04:05"),
				s.Status,
				snapshot,
			)
		}
		return nil
	},
}

// cat command
var catCmd = &cobra.Command{
	Use:   "cat CONTENT_ID",
	Short: "Write a content payload to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.EncryptionEnabled() {
			pass, err := promptPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
			if err := a.UnlockPayloads(pass); err != nil {
				return fmt.Errorf("unlocking payload storage: %w", err)
			}
		}

		return a.ContentCat(args[0], os.Stdout)
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeysCmd)
	configKeysCmd.AddCommand(configKeysInitCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(loadCmd)
	loadCmd.Flags().StringP("manifest", "m", "artifacts.toml", "TOML manifest declaring the artifacts to ingest")
	loadCmd.Flags().String("type", "tar", "Visit type recorded for the origin")
	loadCmd.Flags().String("visit-date", "", "Visit timestamp (RFC 3339); defaults to now")
	loadCmd.Flags().Bool("append", false, "Carry branches of the previous snapshot forward")
	loadCmd.Flags().Bool("check", false, "Verify the snapshot closure after loading")
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(visitsCmd)
	rootCmd.AddCommand(catCmd)
}
