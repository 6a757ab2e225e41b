package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calleja/cql-migrate/config"
	"github.com/calleja/cql-migrate/migrate"
)

func newCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create <description>",
		Short: "Create a new migration file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.configPath)
			if err != nil {
				return err
			}
			source := migrate.NewSource(cfg.Migrations.Directory, cfg.Behavior.NormalizeChecksums)
			path, err := source.Create(strings.Join(args, " "))
			if err != nil {
				return err
			}
			return emit(CommandOutput{
				Success: true,
				Message: fmt.Sprintf("Created migration file: %s", filepath.Base(path)),
				Data:    map[string]string{"file_path": path, "filename": filepath.Base(path)},
			})
		},
	}
}

func newUpCommand() *cobra.Command {
	var count int
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			defer env.Close()

			result, err := env.coordinator.Up(cmd.Context(), count)
			if err != nil {
				return err
			}
			return emit(CommandOutput{Success: true, Message: runMessage(result, "apply", "applied"), Data: result})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Number of migrations to apply (default: all)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be applied without executing")
	return cmd
}

func newDownCommand() *cobra.Command {
	var count int
	var dryRun, force bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Rollback applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			defer env.Close()

			result, err := env.coordinator.Down(cmd.Context(), count, force)
			if err != nil {
				return err
			}
			return emit(CommandOutput{Success: true, Message: runMessage(result, "roll back", "rolled back"), Data: result})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of migrations to rollback")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be rolled back without executing")
	cmd.Flags().BoolVar(&force, "force", false, "Remove the history record even without a down section (dangerous)")
	return cmd
}

// runMessage renders a RunResult as human text.
func runMessage(result *migrate.RunResult, infinitive, past string) string {
	if len(result.Steps) == 0 {
		return fmt.Sprintf("No migrations to %s", infinitive)
	}
	var lines []string
	if result.DryRun {
		lines = append(lines, fmt.Sprintf("Dry run: %d migration(s) would be %s:", len(result.Steps), past))
	}
	for i, step := range result.Steps {
		switch {
		case result.DryRun:
			lines = append(lines, fmt.Sprintf("%d. %s - %s (%d statement(s))", i+1, step.Version, step.Description, step.Statements))
		case step.Forced:
			lines = append(lines, fmt.Sprintf("Force %s %s - %s (no down section, record removed only)", past, step.Version, step.Description))
		default:
			lines = append(lines, fmt.Sprintf("%s %s - %s (%dms)", capitalize(past), step.Version, step.Description, step.ExecutionMillis))
		}
	}
	if !result.DryRun {
		lines = append(lines, fmt.Sprintf("Successfully %s %d migration(s)", past, len(result.Steps)))
	}
	for _, warning := range result.Warnings {
		lines = append(lines, "Warning: "+warning)
	}
	return strings.Join(lines, "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func newStatusCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show current migration status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer env.Close()

			report, err := env.coordinator.Status(cmd.Context())
			if err != nil {
				return err
			}
			return emit(CommandOutput{Success: true, Message: statusMessage(report, verbose), Data: report})
		},
	}
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Show detailed information about each migration")
	return cmd
}

func statusMessage(report *migrate.StatusReport, verbose bool) string {
	lines := []string{
		"Migration Status",
		strings.Repeat("=", 40),
		fmt.Sprintf("Current schema version: %s", report.CurrentVersion),
		fmt.Sprintf("Applied migrations:     %d", report.AppliedCount),
		fmt.Sprintf("Pending migrations:     %d", report.PendingCount),
		fmt.Sprintf("Total migration files:  %d", report.TotalFiles),
	}
	if verbose {
		lines = append(lines, "", "Applied:")
		if len(report.Applied) == 0 {
			lines = append(lines, "  none")
		}
		for _, applied := range report.Applied {
			lines = append(lines, fmt.Sprintf("  %s - %s (%s)", applied.Version, applied.Description, applied.AppliedAt))
		}
		lines = append(lines, "", "Pending:")
		if len(report.Pending) == 0 {
			lines = append(lines, "  none")
		}
		for _, pending := range report.Pending {
			lines = append(lines, fmt.Sprintf("  %s - %s", pending.Version, pending.Description))
		}
		for _, malformed := range report.Malformed {
			lines = append(lines, fmt.Sprintf("  invalid filename: %s", malformed))
		}
	}
	if report.UpToDate() {
		lines = append(lines, "", "Schema is up to date")
	} else {
		lines = append(lines, "", fmt.Sprintf("%d migration(s) pending. Run 'cql-migrate up' to apply them.", report.PendingCount))
	}
	return strings.Join(lines, "\n")
}

func newVerifyCommand() *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the integrity of applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer env.Close()

			report, fixed, err := env.coordinator.Verify(cmd.Context(), fix)
			if err != nil {
				return err
			}
			message, clean := verifyMessage(report, fixed)
			data := map[string]any{
				"findings":     report.Findings,
				"out_of_order": report.OutOfOrder,
				"fixed":        fixed,
			}
			if err := emit(CommandOutput{Success: clean, Message: message, Data: data}); err != nil {
				return err
			}
			if !clean {
				return errAlreadyReported
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "Rewrite stored checksums of drifted migrations to match disk")
	return cmd
}

func verifyMessage(report *migrate.Report, fixed []string) (string, bool) {
	drifted, orphaned := report.Drifted(), report.Orphaned()
	var lines []string
	for _, finding := range drifted {
		lines = append(lines, fmt.Sprintf("Checksum mismatch for migration %s", finding.Version))
		lines = append(lines, fmt.Sprintf("  recorded: %s", finding.RecordedChecksum))
		lines = append(lines, fmt.Sprintf("  on disk:  %s", finding.ActualChecksum))
	}
	for _, finding := range orphaned {
		lines = append(lines, fmt.Sprintf("Migration file missing for applied version %s", finding.Version))
	}
	for _, version := range report.OutOfOrder {
		lines = append(lines, fmt.Sprintf("Warning: migration %s is pending below the highest applied version", version))
	}
	for _, version := range fixed {
		lines = append(lines, fmt.Sprintf("Fixed checksum for migration %s", version))
	}

	// Drift is resolved by --fix; orphans never are.
	clean := len(orphaned) == 0 && (len(drifted) == 0 || len(fixed) == len(drifted))
	if len(lines) == 0 {
		return "All migrations verified successfully - no integrity issues found", true
	}
	if !clean && len(drifted) > 0 && len(fixed) == 0 {
		lines = append(lines, "Use --fix to rewrite stored checksums to match disk")
	}
	if len(orphaned) > 0 {
		lines = append(lines, "Missing migration files cannot be fixed automatically")
	}
	return strings.Join(lines, "\n"), clean
}

func newResetCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all migration history records (destructive)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer env.Close()

			if !env.config.Behavior.AllowDestructive {
				return &config.ConfigurationError{
					Reason: "destructive operations are disabled; set allow_destructive = true to enable reset",
				}
			}
			if !yes {
				return emit(CommandOutput{
					Success: true,
					Message: "Reset permanently deletes every migration history record (files on disk are untouched).\nRe-run with --yes to confirm.",
					Data:    map[string]any{"confirmed": false},
				})
			}
			removed, err := env.coordinator.Reset(cmd.Context())
			if err != nil {
				return err
			}
			return emit(CommandOutput{
				Success: true,
				Message: fmt.Sprintf("Reset migration history: removed %d record(s)", removed),
				Data:    map[string]any{"confirmed": true, "records_removed": removed},
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	return cmd
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(rootOpts.configPath); err != nil {
				return err
			}
			return emit(CommandOutput{Success: true, Message: fmt.Sprintf("Wrote default configuration to %s", rootOpts.configPath)})
		},
	})
	return cmd
}
