// Command import-users manages the user registry outside the running bot.
//
// Usage:
//
//	import-users import ./legacy-users.json [--dry-run]
//	import-users list
//	import-users seal [--dry-run]
//	import-users migrate up|down|version
//
// The registry backend is selected with the same configuration as the bot
// (REGISTRY_BACKEND, USER_DATA_FILE, REGISTRY_ENCRYPTION_KEY, DB_DSN).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/onnwee/match-tender/config"
	"github.com/onnwee/match-tender/crypto"
	"github.com/onnwee/match-tender/db"
	"github.com/onnwee/match-tender/registry"
	"github.com/onnwee/match-tender/registrystore"
)

func main() {
	_ = godotenv.Load(".env")
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	root := &cobra.Command{
		Use:          "import-users",
		Short:        "Manage the match-tender user registry",
		SilenceUsage: true,
	}
	root.AddCommand(importCmd(), listCmd(), sealCmd(), migrateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// withRegistry opens the configured store and registry for the duration of fn.
func withRegistry(ctx context.Context, fn func(ctx context.Context, reg *registry.Registry) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	h, err := registrystore.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer h.Close()
	reg, err := registry.Open(ctx, h.Store)
	if err != nil {
		return err
	}
	return fn(ctx, reg)
}

func importCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <legacy-users.json>",
		Short: "Import users written by the first version of the bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := registry.ReadLegacyFile(args[0])
			if err != nil {
				return err
			}
			return withRegistry(cmd.Context(), func(ctx context.Context, reg *registry.Registry) error {
				res, err := importUsers(ctx, reg, users, dryRun)
				slog.Info("import summary",
					slog.Int("total", len(users)),
					slog.Int("imported", res.Imported),
					slog.Int("skipped", res.Skipped),
					slog.Bool("dry_run", dryRun))
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be imported without making changes")
	return cmd
}

type importResult struct {
	Imported int
	Skipped  int
}

// importUsers adds users in order. Users whose id or Steam id is already
// registered are skipped; any other failure stops the import.
func importUsers(ctx context.Context, reg *registry.Registry, users []registry.User, dryRun bool) (importResult, error) {
	var res importResult
	for i, u := range users {
		logger := slog.With(slog.String("user_id", u.UserID), slog.String("steam_id", u.SteamID), slog.Int("index", i+1))
		if _, exists := reg.Get(u.UserID); exists {
			logger.Info("skipping: user already registered")
			res.Skipped++
			continue
		}
		if _, taken := reg.GetBySteamID(u.SteamID); taken {
			logger.Info("skipping: steam id already registered")
			res.Skipped++
			continue
		}
		if dryRun {
			logger.Info("would import user (dry-run)")
			res.Imported++
			continue
		}
		if err := reg.Add(ctx, u); err != nil {
			if errors.Is(err, registry.ErrAlreadyRegistered) || errors.Is(err, registry.ErrDuplicateSteamID) {
				res.Skipped++
				continue
			}
			return res, fmt.Errorf("import user %s: %w", u.UserID, err)
		}
		res.Imported++
	}
	return res, nil
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd.Context(), func(_ context.Context, reg *registry.Registry) error {
				return printUsers(cmd.OutOrStdout(), reg.All())
			})
		},
	}
}

func printUsers(w io.Writer, users []registry.User) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER ID\tSTEAM ID\tAUTO\tLAST MATCH")
	for _, u := range users {
		last := "-"
		if u.LastMatchID != nil {
			last = fmt.Sprint(*u.LastMatchID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", u.UserID, u.SteamID, u.AutoNotify, last)
	}
	return tw.Flush()
}

func sealCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Encrypt a plaintext registry file with REGISTRY_ENCRYPTION_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.RegistryEncryptionKey == "" {
				return fmt.Errorf("REGISTRY_ENCRYPTION_KEY is required")
			}
			sealer, err := crypto.NewAESSealer(cfg.RegistryEncryptionKey)
			if err != nil {
				return err
			}
			n, err := sealFile(cmd.Context(), cfg.UserDataFile, sealer, dryRun)
			if err != nil {
				return err
			}
			slog.Info("seal summary", slog.String("path", cfg.UserDataFile), slog.Int("users", n), slog.Bool("dry_run", dryRun))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only check that the file can be read")
	return cmd
}

// sealFile rewrites the plaintext registry at path in sealed form and returns
// the number of users. A file that is already sealed fails to decode and is
// left untouched.
func sealFile(ctx context.Context, path string, sealer crypto.Sealer, dryRun bool) (int, error) {
	users, err := registry.NewFileStore(path, nil).Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("read plaintext registry: %w", err)
	}
	if dryRun {
		return len(users), nil
	}
	if err := registry.NewFileStore(path, sealer).Save(ctx, users); err != nil {
		return 0, err
	}
	return len(users), nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate up|down|version",
		Short:     "Manage the Postgres registry schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			database, err := db.Connect(cmd.Context(), cfg.DBDsn)
			if err != nil {
				return err
			}
			defer database.Close()

			switch args[0] {
			case "up":
				return db.RunMigrations(database)
			case "down":
				return db.MigrateDown(database)
			default:
				version, dirty, err := db.GetMigrationVersion(database)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
				return nil
			}
		},
	}
	return cmd
}
