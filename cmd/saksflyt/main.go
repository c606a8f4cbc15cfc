package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"saksflyt/internal/bus"
	"saksflyt/internal/config"
	"saksflyt/internal/db"
	"saksflyt/internal/jobs"
	"saksflyt/internal/klient"
	"saksflyt/internal/mediator"
	"saksflyt/internal/migrate"
	"saksflyt/internal/oppgave"
	"saksflyt/internal/repo"
	"saksflyt/internal/server"
	"saksflyt/internal/utboks"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "saksflyt",
	Short: "Saksflyt CLI",
	Long: `Saksflyt processes unemployment benefit claims: it builds a step graph per
behandling, gathers opplysninger from collaborators, derives vilkår through the
rule engine, and hands the result to a saksbehandler as an oppgave.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SAKSFLYT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(oppgaveCmd())
	rootCmd.AddCommand(utboksCmd())
	rootCmd.AddCommand(hendelseCmd())
	rootCmd.AddCommand(versionCmd())
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the saksflyt service",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if secret := os.Getenv("SAKSFLYT_JWT_SECRET"); secret != "" {
				cfg.Server.JWTSecret = secret
			}
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("SAKSFLYT_JWT_SECRET is required for bearer auth")
			}

			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}

			logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
			kanal := bus.NyKanal()
			med := &mediator.Mediator{
				DB:        conn,
				Repo:      repo.Repo{DB: conn},
				Utboks:    utboks.Skriver{DB: conn},
				Bus:       kanal,
				Beslutter: beslutterFraConfig(cfg),
				Logger:    logger,
			}
			kanal.Abonner(func(ctx context.Context, melding []byte) {
				if err := med.BehandleRaa(ctx, melding); err != nil {
					logger.Error("melding feilet", "feil", err)
				}
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			planlegger := &jobs.Planlegger{Valg: lederValgFraConfig(cfg), Logger: logger}
			planlegger.Registrer(jobs.FristUtgaattJobb{Mediator: med}, cfg.Jobber.FristPeriode)
			planlegger.Registrer(jobs.VaktmesterJobb{Mediator: med, MaksAlder: cfg.Jobber.MaksOppgaveAlder}, cfg.Jobber.VaktmesterPeriode)
			planlegger.Start(ctx)

			handler, err := server.New(server.Config{
				Mediator: med,
				BasePath: cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret: cfg.Server.JWTSecret,
					ADGruppe:  cfg.Server.ADGruppe,
					Logger:    logger,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info("saksflyt startet", "addr", cfg.Server.Addr, "basePath", cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			planlegger.Vent()
			return nil
		},
	}
	return cmd
}

func beslutterFraConfig(cfg *config.Config) klient.Beslutter {
	b := klient.NyBeslutter(cfg.Beslutter.URL)
	if cfg.Beslutter.Timeout > 0 {
		b.Timeout = cfg.Beslutter.Timeout
	}
	return b
}

func lederValgFraConfig(cfg *config.Config) jobs.LederValg {
	if cfg.LederValg.URL == "" {
		return jobs.AlltidLeder{}
	}
	return jobs.HTTPLederValg{URL: cfg.LederValg.URL}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			version, err := migrate.Version(conn)
			if err != nil {
				return err
			}
			fmt.Printf("migrated %s to version %d\n", db.Path(viper.GetString("workspace")), version)
			return nil
		},
	}
}

func oppgaveCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "oppgave", Short: "Inspect oppgaver"}
	cmd.AddCommand(oppgaveListCmd())
	return cmd
}

func oppgaveListCmd() *cobra.Command {
	var tilstand string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List oppgaver",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				filter := repo.OppgaveFilter{}
				if tilstand != "" {
					filter.Tilstander = []oppgave.Tilstand{oppgave.Tilstand(tilstand)}
				}
				oppgaver, err := r.ListOppgaver(ctx, filter)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(oppgaver)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Behandling", "Ident", "Tilstand", "Saksbehandler", "Utsatt til"})
				for _, o := range oppgaver {
					saksbehandler := ""
					if o.Saksbehandler != nil {
						saksbehandler = *o.Saksbehandler
					}
					utsatt := ""
					if o.UtsattTil != nil {
						utsatt = o.UtsattTil.Format("2006-01-02")
					}
					tw.AppendRow(table.Row{o.Id, o.BehandlingId, o.Ident, o.Tilstand, saksbehandler, utsatt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tilstand, "tilstand", "", "filter on tilstand")
	return cmd
}

func utboksCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "utboks", Short: "Inspect the outbox"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List outbox rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			rader, err := utboks.Skriver{DB: conn}.HentAlle(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(rader)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Nøkkel", "Opprettet", "Publisert", "Melding"})
			for _, r := range rader {
				tw.AppendRow(table.Row{r.Id, r.Noekkel, r.Opprettet, r.Publisert, r.Melding})
			}
			tw.Render()
			return nil
		},
	})
	return cmd
}

func hendelseCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "hendelse", Short: "Feed events into the mediator"}
	var file string
	send := &cobra.Command{
		Use:   "send",
		Short: "Send a raw JSON event (from --file or stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if file != "" {
				data, err = os.ReadFile(file)
			} else {
				data, err = io.ReadAll(os.Stdin)
			}
			if err != nil {
				return err
			}
			return withMediator(cmd.Context(), func(ctx context.Context, med *mediator.Mediator) error {
				return med.BehandleRaa(ctx, data)
			})
		},
	}
	send.Flags().StringVar(&file, "file", "", "path to a JSON event file")
	cmd.AddCommand(send)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("saksflyt", version)
		},
	}
}

// --- helpers ---

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := openMigrated()
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, repo.Repo{DB: conn})
}

func withMediator(ctx context.Context, fn func(context.Context, *mediator.Mediator) error) error {
	conn, err := openMigrated()
	if err != nil {
		return err
	}
	defer conn.Close()
	cfg, err := config.Load(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	med := &mediator.Mediator{
		DB:        conn,
		Repo:      repo.Repo{DB: conn},
		Utboks:    utboks.Skriver{DB: conn},
		Bus:       bus.NyKanal(),
		Beslutter: beslutterFraConfig(cfg),
	}
	return fn(ctx, med)
}

func openMigrated() (*sql.DB, error) {
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
