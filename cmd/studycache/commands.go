package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/phrazzld/studycache/internal/domain"
	"github.com/phrazzld/studycache/internal/domain/srs"
	"github.com/phrazzld/studycache/internal/platform/migrations"
	"github.com/phrazzld/studycache/internal/platform/otel"
	"github.com/phrazzld/studycache/internal/platform/postgres"
	"github.com/phrazzld/studycache/internal/platform/sqlite"
	"github.com/phrazzld/studycache/internal/service"
	"github.com/phrazzld/studycache/internal/service/auth"
	"github.com/phrazzld/studycache/internal/version"
	"github.com/spf13/cobra"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			shutdownTracing, err := otel.Setup(ctx, c.cfg.Tracing, version.Version)
			if err != nil {
				return fmt.Errorf("failed to set up tracing: %w", err)
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(flushCtx); err != nil {
					c.logger.Warn("failed to flush traces", "error", err)
				}
			}()

			app, err := newApplication(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			app.start(ctx)
			return app.startHTTPServer(ctx, app.router())
		},
	}
}

// sqlHandle is an opened SQL-backed store as seen by the migrate command.
type sqlHandle interface {
	DB() *sql.DB
	Close() error
}

func (c *cli) openSQL(ctx context.Context) (sqlHandle, migrations.Dialect, error) {
	switch c.cfg.Cache.Driver {
	case "sqlite":
		s, err := sqlite.Open(ctx, c.cfg.Cache.Path, c.logger)
		return s, migrations.SQLite, err
	case "postgres":
		s, err := postgres.Open(ctx, c.cfg.Database.URL, c.logger)
		return s, migrations.Postgres, err
	default:
		return nil, "", fmt.Errorf("cache driver %q has no schema to migrate", c.cfg.Cache.Driver)
	}
}

func newMigrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the cache database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Opening a store applies pending migrations.
			h, _, err := c.openSQL(cmd.Context())
			if err != nil {
				return err
			}
			defer h.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, dialect, err := c.openSQL(cmd.Context())
			if err != nil {
				return err
			}
			defer h.Close()

			statuses, err := migrations.Status(cmd.Context(), h.DB(), dialect)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED\tSOURCE")
			for _, st := range statuses {
				applied := "-"
				if !st.AppliedAt.IsZero() {
					applied = st.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", st.Source.Version, st.State, applied, st.Source.Path)
			}
			return tw.Flush()
		},
	})
	return cmd
}

func newCacheCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or reset the persisted query cache",
	}

	// withApp runs fn against a wired, unstarted application.
	withApp := func(fn func(ctx context.Context, app *application, out io.Writer) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			app, err := newApplication(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer app.shutdown(context.Background())
			return fn(cmd.Context(), app, cmd.OutOrStdout())
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every persisted entry",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, app *application, out io.Writer) error {
			app.persister.Clear(ctx)
			fmt.Fprintln(out, "cache cleared")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show entry counts and storage usage",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, app *application, out io.Writer) error {
			st, err := app.persister.Stats(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "version\t%s\n", app.persister.Version())
			fmt.Fprintf(tw, "ttl\t%s\n", app.persister.TTL())
			fmt.Fprintf(tw, "entries\t%d\n", st.Entries)
			fmt.Fprintf(tw, "live\t%d\n", st.Live)
			fmt.Fprintf(tw, "size\t%s\n", humanize.Bytes(uint64(max(st.Bytes, 0))))
			if st.UsageKnown {
				fmt.Fprintf(tw, "usage\t%s (%.1f%%)\n", st.Usage, st.Usage.Ratio()*100)
			} else {
				fmt.Fprintln(tw, "usage\tunknown")
			}
			return tw.Flush()
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "restore",
		Short: "Print the live snapshot as JSON",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, app *application, out io.Writer) error {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(app.persister.Restore(ctx))
		}),
	})
	return cmd
}

func newReviewCmd(c *cli) *cobra.Command {
	var (
		quality  int
		cardJSON string
	)
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Score one flashcard review and print the next card state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var card *domain.SRCardState
			if cardJSON != "" {
				card = &domain.SRCardState{}
				if err := json.Unmarshal([]byte(cardJSON), card); err != nil {
					return fmt.Errorf("invalid --card: %w", err)
				}
			}

			svc, err := service.NewReviewService(srs.NewDefaultService(), c.logger)
			if err != nil {
				return err
			}
			next, err := svc.SubmitReview(cmd.Context(), card, domain.Quality(quality))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(next)
		},
	}
	cmd.Flags().IntVarP(&quality, "quality", "q", -1, "recall quality, 0 (blackout) to 5 (perfect)")
	cmd.Flags().StringVar(&cardJSON, "card", "", `current card state as JSON, e.g. '{"interval":6,"repetition":2,"efactor":2.5}'`)
	_ = cmd.MarkFlagRequired("quality")
	return cmd
}

func newTokenCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an access token for subject, signed with the configured secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := auth.NewJWTService(c.cfg.Auth)
			if err != nil {
				return err
			}
			token, err := svc.GenerateToken(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, auth.ErrEmptySubject) {
					return fmt.Errorf("subject cannot be empty")
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
