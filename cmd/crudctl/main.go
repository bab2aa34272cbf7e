package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"crudgate/internal/audit"
	"crudgate/internal/auth"
	"crudgate/internal/config"
	"crudgate/internal/engine"
	"crudgate/internal/rawsql"
	"crudgate/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "crudctl",
		Short: "Operator tool for the crudgate service",
		Long: `A CLI tool for working with crudgate without going through HTTP.

This tool allows you to:
  - Compile a CRUD request body to the SQL the service would run
  - Check a statement against the raw-SQL blocklist
  - Hash a password for the users table
  - Prune old audit events`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(compileCmd())
	rootCmd.AddCommand(checkSQLCmd())
	rootCmd.AddCommand(hashPasswordCmd())
	rootCmd.AddCommand(pruneAuditCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// compileCmd prints the statement and parameters for a request body.
func compileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile [file]",
		Short: "Compile a CRUD request body to SQL",
		Long: `Read a /api_crud request body from a file, or stdin when no file is
given, and print the parameterized SQL and its bound values.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			return runCompile(cmd.OutOrStdout(), data)
		},
	}
	return cmd
}

func runCompile(w io.Writer, data []byte) error {
	op, err := engine.ParseRequest(data)
	if err != nil {
		return err
	}
	cq, err := op.Compile()
	if err != nil {
		return err
	}

	fmt.Fprintln(w, cq.SQL)
	for i, p := range cq.Params {
		encoded, _ := json.Marshal(p)
		fmt.Fprintf(w, "  $%d = %s\n", i+1, encoded)
	}
	return nil
}

// checkSQLCmd reports whether the raw-SQL gateway would refuse a statement.
func checkSQLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-sql [file]",
		Short: "Check a statement against the raw-SQL blocklist",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			return runCheckSQL(cmd.OutOrStdout(), string(data))
		},
	}
	return cmd
}

func runCheckSQL(w io.Writer, sql string) error {
	if p := rawsql.Check(sql); p != nil {
		fmt.Fprintf(w, "blocked: %s\n", p.Name)
		return fmt.Errorf("statement matches blocked pattern %q", p.Name)
	}
	fmt.Fprintln(w, "allowed")
	return nil
}

// hashPasswordCmd prints a bcrypt hash for seeding the users table.
func hashPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password with bcrypt",
		Long:  `Read a password from --password or the first line of stdin and print its bcrypt hash.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && err != io.EOF {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return fmt.Errorf("password is required")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().StringP("password", "p", "", "Password to hash (reads stdin when empty)")
	return cmd
}

// pruneAuditCmd deletes audit events older than the retention window.
func pruneAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune-audit",
		Short: "Delete audit events older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			days, _ := cmd.Flags().GetInt("days")
			if days <= 0 {
				days = cfg.Audit.RetentionDays
			}
			return runPruneAudit(cmd, cfg, days)
		},
	}
	cmd.Flags().IntP("days", "n", 0, "Retention in days (defaults to audit.retention_days)")
	return cmd
}

func runPruneAudit(cmd *cobra.Command, cfg *config.Config, days int) error {
	ctx := context.Background()
	db, err := store.New(ctx, cfg.Database, zap.NewNop())
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	deleted, err := audit.Prune(ctx, db, days)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d audit event(s) older than %d day(s)\n", deleted, days)
	return nil
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", args[0], err)
		}
		return data, nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return data, nil
}
