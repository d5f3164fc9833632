package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"schoolhub/internal/app"
	"schoolhub/internal/config"
	"schoolhub/internal/diff"
	"schoolhub/internal/introspect"
	"schoolhub/internal/tenant"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migration files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			summary, err := a.Runner.Run(ctx)
			executed, skipped, failed := summary.Counts()
			fmt.Printf("executed=%d skipped=%d failed=%d\n", executed, skipped, failed)
			for _, f := range summary.Executed {
				fmt.Println("  applied", f)
			}
			return err
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the migration ledger and pending files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Tracker.EnsureMigrationTable(ctx); err != nil {
				return err
			}
			records, err := a.Tracker.ListMigrationRecords(ctx)
			if err != nil {
				return err
			}
			pending, err := a.Runner.Pending(ctx)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tEXECUTED AT\tMS\tSTATUS")
			for _, r := range records {
				status := "ok"
				if !r.Succeeded() {
					status = "failed: " + *r.ErrorMessage
				}
				ms := "-"
				if r.ExecutionTimeMs != nil {
					ms = fmt.Sprint(*r.ExecutionTimeMs)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.File, r.ExecutedAt.Format("2006-01-02 15:04:05"), ms, status)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println("no pending migrations")
				return nil
			}
			fmt.Println("pending:", strings.Join(pending, ", "))
			return nil
		})
	},
}

var forgetYes bool

var forgetCmd = &cobra.Command{
	Use:   "forget [file]",
	Short: "Delete the ledger entry for a file so the next run executes it again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !forgetYes {
			ok, err := promptYes(fmt.Sprintf("Forget ledger entry for %s? Type YES to continue: ", args[0]))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("aborted")
				return nil
			}
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			removed, err := a.Tracker.ForgetMigration(ctx, args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no ledger entry for %s", args[0])
			}
			fmt.Println("forgot", args[0])
			return nil
		})
	},
}

var inspectJSON bool

var inspectCmd = &cobra.Command{
	Use:   "inspect [schema]",
	Short: "Compare one tenant schema with the expected baseline tables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			info, err := a.Introspector.InspectSchema(ctx, args[0])
			if err != nil {
				return err
			}
			return printInfos([]introspect.SchemaInfo{info})
		})
	},
}

var inspectConcurrency int

var inspectAllCmd = &cobra.Command{
	Use:   "inspect-all",
	Short: "Inspect every registered tenant schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			schemas, err := a.Registry.Schemas(ctx)
			if err != nil {
				return err
			}
			infos, err := a.Introspector.InspectAll(ctx, schemas, inspectConcurrency)
			if err != nil {
				return err
			}
			return printInfos(infos)
		})
	},
}

func printInfos(infos []introspect.SchemaInfo) error {
	if inspectJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCHEMA\tTABLES\tMISSING")
	for _, info := range infos {
		missing := "-"
		if !info.Complete() {
			missing = strings.Join(info.MissingTables, ",")
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", info.SchemaName, info.TableCount, missing)
	}
	return tw.Flush()
}

var compareCmd = &cobra.Command{
	Use:   "compare [reference-schema] [schema]",
	Short: "Compare columns and keys of two tenant schemas",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range args {
			if err := tenant.AssertValidSchemaName(name); err != nil {
				return err
			}
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			left, err := a.Catalog.FetchSchema(ctx, args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			right, err := a.Catalog.FetchSchema(ctx, args[1])
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}
			d := diff.Compare(left, right)
			fmt.Println(diff.Describe(d))
			if d.HasChanges() {
				return fmt.Errorf("schemas %s and %s differ", args[0], args[1])
			}
			return nil
		})
	},
}

var (
	tenantName   string
	tenantSchema string
)

var createTenantCmd = &cobra.Command{
	Use:   "create-tenant",
	Short: "Register a tenant and create its schema with the baseline tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := tenant.AssertValidSchemaName(tenantSchema); err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			t, err := a.Provisioner.Create(ctx, tenant.CreateInput{
				DisplayName: tenantName,
				SchemaName:  tenantSchema,
				Actor:       "cli",
			})
			if err != nil {
				return err
			}
			fmt.Printf("created tenant %s (%s) id=%s\n", t.DisplayName, t.SchemaName, t.ID)
			return nil
		})
	},
}

var configPath string

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a starter YAML config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("%s already exists", configPath)
		}
		body, err := config.Sample()
		if err != nil {
			return err
		}
		if err := os.WriteFile(configPath, body, 0o600); err != nil {
			return err
		}
		fmt.Println("sample config written to", configPath)
		fmt.Println("point SCHOOLHUB_CONFIG at it to use it")
		return nil
	},
}

func init() {
	forgetCmd.Flags().BoolVar(&forgetYes, "yes", false, "skip the confirmation prompt")

	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print JSON")
	inspectAllCmd.Flags().BoolVar(&inspectJSON, "json", false, "print JSON")
	inspectAllCmd.Flags().IntVar(&inspectConcurrency, "concurrency", 4, "schemas inspected in parallel")

	createTenantCmd.Flags().StringVar(&tenantName, "name", "", "display name")
	createTenantCmd.Flags().StringVar(&tenantSchema, "schema", "", "schema name, immutable after creation")
	_ = createTenantCmd.MarkFlagRequired("name")
	_ = createTenantCmd.MarkFlagRequired("schema")

	initConfigCmd.Flags().StringVar(&configPath, "path", "schoolhub.yaml", "where to write the sample config")
}
