package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"nd-go/internal/app"
	"nd-go/internal/config"
	"nd-go/internal/model"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an NDApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Deploy", "Rollback").
func newApp(operation string) (*app.NDApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewNDApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// promptPassphrase reads a passphrase from the terminal without echo.
func promptPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(raw), nil
}

var rootCmd = &cobra.Command{
	Use:   "nd",
	Short: "Nucleus deployment tool",
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
		fmt.Printf("Database:   %s\n", cfg.Database.Type)
		fmt.Printf("Vault:      %s\n", cfg.Vault.Type)
		fmt.Printf("Encryption: %s\n", cfg.Encryption.Type)
		if len(cfg.Nuclei) == 0 {
			fmt.Println("\nNo nuclei configured.")
			return nil
		}
		fmt.Println("\nNuclei:")
		for _, n := range cfg.Nuclei {
			fmt.Printf("  %-20s  %-8s  %s\n", n.ID, n.Category, n.BaseURL)
		}
		return nil
	},
}

var configKeysInitCmd = &cobra.Command{
	Use:   "keys-init",
	Short: "Generate encryption keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("SetupEncryption")
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.EncryptionEnabled() {
			return fmt.Errorf("encryption is not enabled in config")
		}

		passphrase, err := promptPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := promptPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.SetupEncryption(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Println("Encryption keys generated.")
		return nil
	},
}

// nucleus command
var nucleusCmd = &cobra.Command{
	Use:   "nucleus",
	Short: "Manage nucleus connections",
}

var nucleusConnectCmd = &cobra.Command{
	Use:   "connect NUCLEUS_ID",
	Short: "Connect to a configured nucleus",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ConnectNucleus")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ConnectNucleus(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("connecting: %w", err)
		}
		fmt.Printf("Connected to %s\n", args[0])
		return nil
	},
}

var nucleusDisconnectCmd = &cobra.Command{
	Use:   "disconnect NUCLEUS_ID",
	Short: "Remove a tracked nucleus connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("DisconnectNucleus")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DisconnectNucleus(args[0]); err != nil {
			return fmt.Errorf("disconnecting: %w", err)
		}
		fmt.Printf("Disconnected from %s\n", args[0])
		return nil
	},
}

var nucleusListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured nuclei and their connection state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListNuclei")
		if err != nil {
			return err
		}
		defer a.Close()

		errs := a.ConnectAll(cmd.Context())
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "warning: %v\n", e)
		}

		conns := a.Connections()
		if len(conns) == 0 {
			fmt.Println("No nuclei configured.")
			return nil
		}
		printConnections(conns)
		return nil
	},
}

var nucleusHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Ping all configured nuclei",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("HealthCheckAll")
		if err != nil {
			return err
		}
		defer a.Close()

		errs := a.ConnectAll(cmd.Context())
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "warning: %v\n", e)
		}

		conns := a.HealthCheckAll(cmd.Context())
		printConnections(conns)
		return nil
	},
}

func printConnections(conns []model.NucleusConnection) {
	for _, c := range conns {
		ping := ""
		if !c.LastPing.IsZero() {
			ping = c.LastPing.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-20s  %-8s  %-12s  %-30s  %s\n", c.ID, c.Category, c.Status, c.BaseURL, ping)
	}
}

// deploy command
var deployCmd = &cobra.Command{
	Use:   "deploy REQUEST_FILE",
	Short: "Run a deployment from a JSON request file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		strategy, _ := cmd.Flags().GetString("strategy")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading request file: %w", err)
		}
		var req model.DeploymentRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("parsing request file: %w", err)
		}
		if strategy != "" {
			req.Strategy = model.Strategy(strings.ToUpper(strategy))
		}

		a, err := newApp("Deploy")
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Deploy(cmd.Context(), &req)
		if err != nil {
			return err
		}

		for _, line := range result.Logs {
			fmt.Println(line)
		}
		if !result.Success {
			return fmt.Errorf("deployment failed: %s", result.Error)
		}
		if result.PRURL != "" {
			fmt.Printf("Pull request: %s\n", result.PRURL)
		}
		if result.BackupID != "" {
			fmt.Printf("Backup: %s (rollback available: %v)\n", result.BackupID, result.RollbackAvailable)
		}
		return nil
	},
}

// rollback command
var rollbackCmd = &cobra.Command{
	Use:   "rollback DEPLOYMENT_ID BACKUP_ID",
	Short: "Restore a backup onto its nucleus",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Rollback")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase := ""
		if a.EncryptionEnabled() {
			passphrase, err = promptPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
		}

		result, err := a.Rollback(cmd.Context(), args[0], args[1], passphrase)
		if err != nil {
			return err
		}

		for _, line := range result.Logs {
			fmt.Println(line)
		}
		if !result.Success {
			return fmt.Errorf("rollback failed: %s", result.Error)
		}
		fmt.Printf("Restored %d file(s), commit %s\n", result.RestoredFiles, result.CommitID)
		return nil
	},
}

// backups command
var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "Inspect deployment backups",
}

var backupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup records",
	RunE: func(cmd *cobra.Command, args []string) error {
		nucleusID, _ := cmd.Flags().GetString("nucleus")

		a, err := newApp("ListBackups")
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.ListBackups(nucleusID)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No backups recorded.")
			return nil
		}
		for _, r := range records {
			valid := "valid"
			if !r.ChecksumValid {
				valid = "INVALID"
			}
			fmt.Printf("%-30s  %-15s  %2d file(s)  %8d bytes  %-7s  %s\n",
				r.BackupID, r.NucleusID, r.ChangeCount, r.TotalSize, valid,
				r.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var backupsShowCmd = &cobra.Command{
	Use:   "show BACKUP_ID",
	Short: "Show a backup record with its files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("GetBackup")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase := ""
		if a.EncryptionEnabled() {
			passphrase, err = promptPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
		}

		record, err := a.GetBackup(args[0], passphrase)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("backup %s not found", args[0])
		}

		fmt.Printf("Backup:     %s\n", record.BackupID)
		fmt.Printf("Nucleus:    %s\n", record.NucleusID)
		fmt.Printf("Deployment: %s\n", record.DeploymentID)
		fmt.Printf("Repository: %s (%s)\n", record.Repository, record.Branch)
		fmt.Printf("Created:    %s\n\n", record.CreatedAt.Format("2006-01-02 15:04:05"))
		for _, f := range record.Files {
			fmt.Printf("%s  %-8s  %8d  %s\n", f.Checksum[:12], f.Encoding, f.Size, f.File)
		}
		return nil
	},
}

// scheduled command
var scheduledCmd = &cobra.Command{
	Use:   "scheduled",
	Short: "List recorded scheduled deployments",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListScheduled")
		if err != nil {
			return err
		}
		defer a.Close()

		sds, err := a.ScheduledDeployments()
		if err != nil {
			return err
		}
		if len(sds) == 0 {
			fmt.Println("No scheduled deployments.")
			return nil
		}
		for _, sd := range sds {
			fmt.Printf("%-38s  %-15s  %2d change(s)  after %s\n",
				sd.ID, sd.NucleusID, sd.ChangeCount,
				sd.RunAfter.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("GetHistory")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(limit)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}
		for _, op := range ops {
			duration := ""
			if !op.FinishedAt.IsZero() {
				d := op.FinishedAt.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-18s  %s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
			)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeysInitCmd)

	// nucleus subcommands
	nucleusCmd.AddCommand(nucleusConnectCmd)
	nucleusCmd.AddCommand(nucleusDisconnectCmd)
	nucleusCmd.AddCommand(nucleusListCmd)
	nucleusCmd.AddCommand(nucleusHealthCmd)

	// backups subcommands
	backupsCmd.AddCommand(backupsListCmd)
	backupsCmd.AddCommand(backupsShowCmd)
	backupsListCmd.Flags().StringP("nucleus", "u", "", "Only show backups for this nucleus")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(nucleusCmd)
	rootCmd.AddCommand(deployCmd)
	deployCmd.Flags().StringP("strategy", "s", "", "Override the strategy in the request file")
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(backupsCmd)
	rootCmd.AddCommand(scheduledCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
