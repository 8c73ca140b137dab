package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmeshcher/course-checkout/internal/enrollment"
	"github.com/mmeshcher/course-checkout/internal/ledger"
	"github.com/mmeshcher/course-checkout/internal/middleware"
	"github.com/mmeshcher/course-checkout/internal/model"
	"github.com/mmeshcher/course-checkout/internal/repository"
)

// store описывает всё, что утилите нужно от хранилища.
type store interface {
	ledger.Store
	enrollment.Store
	ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]model.Purchase, error)
	Close() error
}

// openStore подменяется в тестах.
var openStore = func(dsn string) (store, error) {
	repo, err := repository.NewPostgresRepository(dsn)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "purchasectl",
		Short:         "Maintenance tool for course purchases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("database", os.Getenv("DATABASE_URI"), "database URI (defaults to $DATABASE_URI)")

	root.AddCommand(staleCmd())
	root.AddCommand(relinkCmd())
	root.AddCommand(tokenCmd())

	return root
}

func withStore(cmd *cobra.Command, fn func(s store) error) error {
	dsn, _ := cmd.Flags().GetString("database")
	if dsn == "" {
		return errors.New("database URI is required: pass --database or set DATABASE_URI")
	}

	s, err := openStore(dsn)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	return fn(s)
}

func staleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List pending purchases older than the given age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			olderThan, _ := cmd.Flags().GetDuration("older-than")
			limit, _ := cmd.Flags().GetInt("limit")

			return withStore(cmd, func(s store) error {
				purchases, err := s.ListStalePending(cmd.Context(), olderThan, limit)
				if err != nil {
					return err
				}

				if len(purchases) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no stale pending purchases")
					return nil
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tUSER\tCOURSE\tAMOUNT\tCREATED")
				for _, p := range purchases {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", p.ID, p.UserID, p.CourseID, p.Amount, p.CreatedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().Duration("older-than", time.Hour, "minimum age of a pending purchase")
	cmd.Flags().IntP("limit", "n", 100, "maximum rows")

	return cmd
}

func relinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relink <purchase-id>",
		Short: "Re-run enrollment linking for a completed purchase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(s store) error {
				return relink(cmd.Context(), s, args[0], cmd)
			})
		},
	}
}

func relink(ctx context.Context, s store, purchaseID string, cmd *cobra.Command) error {
	p, err := ledger.New(s).FindByID(ctx, purchaseID)
	if err != nil {
		return err
	}
	if p.Status != model.PurchaseStatusCompleted {
		return fmt.Errorf("purchase %s is %s, only completed purchases can be relinked", p.ID, p.Status)
	}

	if err := enrollment.NewLinker(s, zap.NewNop()).Link(ctx, p.UserID, p.CourseID); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "user %d linked to course %d\n", p.UserID, p.CourseID)
	return nil
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, _ := cmd.Flags().GetString("auth-secret")
			if secret == "" {
				return errors.New("auth secret is required: pass --auth-secret or set AUTH_SECRET")
			}

			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || userID <= 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}

			fmt.Fprintln(cmd.OutOrStdout(), middleware.NewAuthMiddleware(secret).IssueToken(userID))
			return nil
		},
	}

	cmd.Flags().String("auth-secret", os.Getenv("AUTH_SECRET"), "token signing secret (defaults to $AUTH_SECRET)")

	return cmd
}
