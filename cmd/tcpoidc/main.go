package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/tcpoidc/internal/config"
	"github.com/dropDatabas3/tcpoidc/internal/http/server"
	"github.com/dropDatabas3/tcpoidc/internal/observability/logger"
	"github.com/dropDatabas3/tcpoidc/internal/provider"
	"github.com/dropDatabas3/tcpoidc/internal/storage"
	migrations "github.com/dropDatabas3/tcpoidc/migrations/postgres"
)

var version = "dev"

func main() {
	var (
		cfgPath = envOr("CONFIG_PATH", "config.yaml")
		envFile = envOr("ENV_FILE", ".env")
		cfg     *config.Config
	)

	root := &cobra.Command{
		Use:           "tcpoidc",
		Short:         "Puente de login OIDC (authorization code) para el foro",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env es opcional
			_ = godotenv.Load(envFile)
			c, err := config.LoadOrDefault(cfgPath)
			if err != nil {
				return err
			}
			if c.App.Version == "" {
				c.App.Version = version
			}
			logger.Init(logger.Config{Env: c.App.Env, Level: c.Log.Level, ServiceName: c.App.Name, Version: c.App.Version})
			cfg = c
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", cfgPath, "Ruta del YAML de configuración (env CONFIG_PATH)")
	root.PersistentFlags().StringVar(&envFile, "env-file", envFile, "Archivo .env a cargar (env ENV_FILE)")

	withApp := func(ctx context.Context, fn func(*server.App) error) error {
		app, err := server.Build(ctx, cfg, server.Options{})
		if err != nil {
			return err
		}
		defer app.Close()
		return fn(app)
	}

	// serve
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, func(app *server.App) error {
				return server.Run(ctx, app)
			})
		},
	}

	// providers
	var role string
	var fresh bool
	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "Imprime el listado de proveedores (forum|admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *server.App) error {
				list, err := app.Registry.ListSummaries(cmd.Context(), provider.Role(role), fresh)
				if err != nil {
					return err
				}
				return printJSON(list)
			})
		},
	}
	providersCmd.Flags().StringVar(&role, "role", string(provider.RoleForum), "Vista: forum|admin")
	providersCmd.Flags().BoolVar(&fresh, "fresh", false, "Ignora el cache")

	// settings get|set
	settingsCmd := &cobra.Command{Use: "settings", Short: "Lee o escribe settings"}
	settingsCmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Imprime el valor de un setting (con defaults)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *server.App) error {
				v, err := app.Settings.String(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Println(v)
				return nil
			})
		},
	})
	settingsCmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Escribe un setting e invalida los listados si corresponde",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *server.App) error {
				return app.Settings.Set(cmd.Context(), map[string]string{args[0]: args[1]})
			})
		},
	})

	// cache purge
	cacheCmd := &cobra.Command{Use: "cache", Short: "Operaciones sobre el cache de listados"}
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Borra ambos listados cacheados",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *server.App) error {
				return app.Registry.Purge(cmd.Context())
			})
		},
	})

	// migrate
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones Postgres embebidas",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Storage.DSN == "" {
				return fmt.Errorf("storage.dsn (o STORAGE_DSN) es requerido")
			}
			pool, err := storage.Open(cmd.Context(), cfg.Storage.DSN)
			if err != nil {
				return err
			}
			defer pool.Close()
			res, err := storage.NewMigrator(migrations.FS, migrations.Dir).Run(cmd.Context(), pool)
			if err != nil {
				return err
			}
			fmt.Printf("applied=%v skipped=%v duration=%s\n", res.Applied, res.Skipped, res.Duration)
			return nil
		},
	}

	root.AddCommand(serveCmd, providersCmd, settingsCmd, cacheCmd, migrateCmd, newAdminCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
