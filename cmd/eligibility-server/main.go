package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/eligibility/internal/config"
	"github.com/ehr/eligibility/internal/domain/eligibility"
	"github.com/ehr/eligibility/internal/domain/payer"
	"github.com/ehr/eligibility/internal/platform/auth"
	"github.com/ehr/eligibility/internal/platform/clearinghouse"
	"github.com/ehr/eligibility/internal/platform/db"
	"github.com/ehr/eligibility/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "eligibility-server",
		Short: "Real-time insurance eligibility verification (270/271)",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(rosterCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// newService assembles the check pipeline from config. A nil repo
// means checks are not persisted.
func newService(cfg *config.Config, logger zerolog.Logger, repo eligibility.CheckRepository, profiles payer.ProfileLookup) (*eligibility.Service, error) {
	ch, err := cfg.ActiveClearinghouse()
	if err != nil {
		return nil, err
	}

	client := clearinghouse.NewClient(ch.Endpoint, cfg.ClearinghouseTimeout, logger)
	provider := eligibility.ProviderIdentity{
		NPI:   cfg.ProviderNPI,
		Name:  cfg.ProviderName,
		TaxID: cfg.ProviderTaxID,
	}

	opts := []eligibility.Option{}
	if repo != nil {
		opts = append(opts, eligibility.WithRepository(repo))
	}
	return eligibility.NewService(profiles, provider, client, ch.Credentials(), logger, opts...), nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the eligibility API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()

	// Database is optional: without one, checks run but are not
	// persisted and payer profiles come from the built-in registry.
	var repo eligibility.CheckRepository
	var profiles payer.ProfileLookup = payer.NewRegistry(payer.BuiltinProfiles()...)
	var healthHandler echo.HandlerFunc

	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")

		repo = eligibility.NewRepoPG(pool)
		store := payer.NewStorePG(pool)
		if err := seedPayers(ctx, store); err != nil {
			logger.Fatal().Err(err).Msg("failed to seed payer profiles")
		}
		profiles = store
		healthHandler = db.HealthHandler(pool)
	} else {
		logger.Warn().Msg("DATABASE_URL not set; checks will not be persisted")
		repo = eligibility.NewMemoryRepository()
	}

	svc, err := newService(cfg, logger, repo, profiles)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build eligibility service")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware([]byte(cfg.JWTSigningKey)))
	}

	e.GET("/healthz", func(c echo.Context) error {
		if healthHandler != nil {
			return healthHandler(c)
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	apiV1 := e.Group("/api/v1")
	handler := eligibility.NewHandler(svc, repo, profiles)
	handler.RegisterRoutes(apiV1)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// seedPayers upserts the built-in profiles so a fresh database serves
// the known payer set immediately. Manually edited rows win on fields
// the built-ins don't change.
func seedPayers(ctx context.Context, store *payer.StorePG) error {
	for _, p := range payer.BuiltinProfiles() {
		if err := store.Upsert(ctx, p); err != nil {
			return fmt.Errorf("seed payer %s: %w", p.ID, err)
		}
	}
	return nil
}

func checkCmd() *cobra.Command {
	var (
		payerID     string
		firstName   string
		lastName    string
		dob         string
		memberID    string
		serviceDate string
		showRaw     bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run a single eligibility check from the command line",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			q := eligibility.PatientQuery{
				FirstName: firstName,
				LastName:  lastName,
				MemberID:  memberID,
			}
			if dob != "" {
				if q.DateOfBirth, err = time.Parse("2006-01-02", dob); err != nil {
					return fmt.Errorf("invalid --dob %q", dob)
				}
			}
			if serviceDate != "" {
				if q.ServiceDate, err = time.Parse("2006-01-02", serviceDate); err != nil {
					return fmt.Errorf("invalid --service-date %q", serviceDate)
				}
			}

			ctx := context.Background()
			svc, err := newService(cfg, logger, nil, payer.NewRegistry(payer.BuiltinProfiles()...))
			if err != nil {
				return err
			}

			result, err := svc.Check(ctx, q, payerID)
			if err != nil {
				return err
			}

			if showRaw {
				fmt.Println("--- 270 ---")
				fmt.Println(result.Raw270)
				fmt.Println("--- 271 ---")
				fmt.Println(result.Raw271)
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&payerID, "payer", "", "Payer ID (e.g. UTMCD)")
	cmd.Flags().StringVar(&firstName, "first", "", "Patient first name")
	cmd.Flags().StringVar(&lastName, "last", "", "Patient last name")
	cmd.Flags().StringVar(&dob, "dob", "", "Date of birth (YYYY-MM-DD)")
	cmd.Flags().StringVar(&memberID, "member-id", "", "Member ID")
	cmd.Flags().StringVar(&serviceDate, "service-date", "", "Service date (YYYY-MM-DD), defaults to today")
	cmd.Flags().BoolVar(&showRaw, "raw", false, "Print raw 270/271 wire payloads")
	cmd.MarkFlagRequired("payer")
	cmd.MarkFlagRequired("last")

	return cmd
}

func rosterCmd() *cobra.Command {
	var (
		file        string
		payerID     string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Run eligibility checks for every patient in an XLSX roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			entries, err := eligibility.ReadRoster(file)
			if err != nil {
				return err
			}
			logger.Info().Int("patients", len(entries)).Str("payer", payerID).Msg("roster loaded")

			ctx := context.Background()
			svc, err := newService(cfg, logger, nil, payer.NewRegistry(payer.BuiltinProfiles()...))
			if err != nil {
				return err
			}

			results := svc.BulkCheck(ctx, entries, payerID, concurrency)

			enrolled, failed := 0, 0
			for _, r := range results {
				name := fmt.Sprintf("%s %s", r.Entry.Query.FirstName, r.Entry.Query.LastName)
				switch {
				case r.Err != nil:
					failed++
					fmt.Printf("row %d  %-30s ERROR: %v\n", r.Entry.Row, name, r.Err)
				case r.Result.Response.Enrolled:
					enrolled++
					fmt.Printf("row %d  %-30s enrolled (%s)\n", r.Entry.Row, name, r.Result.Plan.ProgramName)
				default:
					fmt.Printf("row %d  %-30s NOT enrolled\n", r.Entry.Row, name)
				}
			}
			fmt.Printf("\n%d checked, %d enrolled, %d errors\n", len(results), enrolled, failed)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Path to XLSX roster")
	cmd.Flags().StringVar(&payerID, "payer", "", "Payer ID to check against")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Concurrent checks")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("payer")

	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrations")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrations")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}
