package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/garyjia/procurement-tracker/internal/application/workflow"
	"github.com/garyjia/procurement-tracker/internal/container"
	domainwf "github.com/garyjia/procurement-tracker/internal/domain/workflow"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/persistence/repository"
	"github.com/garyjia/procurement-tracker/pkg/database"
)

func transitionCmd(opts *globalOptions) *cobra.Command {
	var (
		actor    string
		notes    string
		expected string
	)

	cmd := &cobra.Command{
		Use:   "transition NUMBER STATUS",
		Short: "Request a status change for one document",
		Example: `  procurement transition PR-0042 "In Queue" --actor buyer@example.com
  procurement transition PO-0042 "PO Ordered" --actor buyer@example.com --expected "PO Approved"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(actor) == "" {
				return fmt.Errorf("--actor is required")
			}

			c, _, logger, err := opts.startContainer(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			defer c.Close()

			result, err := c.Engine().RequestTransition(cmd.Context(), workflow.TransitionRequest{
				DocNumber:      args[0],
				NewStatus:      domainwf.Status(args[1]),
				Notes:          notes,
				Actor:          actor,
				ExpectedStatus: domainwf.Status(expected),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "Identity of the caller (must hold the procurement role)")
	cmd.Flags().StringVar(&notes, "notes", "", "Note appended to the document")
	cmd.Flags().StringVar(&expected, "expected", "", "Reject unless the document is currently in this status")
	return cmd
}

func allowedCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "allowed NUMBER",
		Short: "Show the current status and the statuses it may move to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, logger, err := opts.startContainer(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			defer c.Close()

			current, allowed, err := c.Engine().AllowedTransitions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"document_number": args[0],
				"current":         current,
				"allowed":         allowed,
			})
		},
	}
}

func sweepCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "sweep [auto-cancel|reminders|all]",
		Short:     "Run the scheduled sweeps once",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"auto-cancel", "reminders", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			which := "all"
			if len(args) == 1 {
				which = args[0]
			}

			c, _, logger, err := opts.startContainer(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			defer c.Close()

			return runSweeps(cmd, c.Services(), which)
		},
	}
}

func runSweeps(cmd *cobra.Command, services *container.ServiceBundle, which string) error {
	out := make(map[string]interface{}, 2)

	if which == "all" || which == "auto-cancel" {
		result, err := services.AutoCancel.Sweep(cmd.Context())
		if err != nil {
			return fmt.Errorf("auto-cancel sweep: %w", err)
		}
		out["auto_cancel"] = result
	}
	if which == "all" || which == "reminders" {
		result, err := services.Reminders.Sweep(cmd.Context())
		if err != nil {
			return fmt.Errorf("reminder sweep: %w", err)
		}
		out["reminders"] = result
	}

	return printJSON(cmd, out)
}

func migrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := database.New(database.Config{Path: cfg.Database.Path}, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := database.NewMigrator(db, logger).Up()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return nil
		},
	}
}

func vendorCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vendor",
		Short: "Maintain the approved vendor list",
	}

	set := func(use, short string, approved bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " NAME",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := opts.load()
				if err != nil {
					return err
				}
				defer logger.Sync() //nolint:errcheck

				containerCfg, err := cfg.ToContainerConfig()
				if err != nil {
					return err
				}
				db, err := container.ProvideDatabase(containerCfg.Database, logger)
				if err != nil {
					return err
				}
				defer db.Close()

				vendors := repository.NewVendorRepository(db.DB, logger)
				if err := vendors.SetApproved(cmd.Context(), args[0], approved); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: approved=%t\n", args[0], approved)
				return nil
			},
		}
	}

	cmd.AddCommand(
		set("approve", "Mark a vendor as approved", true),
		set("revoke", "Mark a vendor as not approved", false),
	)
	return cmd
}
