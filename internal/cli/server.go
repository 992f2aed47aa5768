package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"caselab-service/internal/app"
	"caselab-service/internal/config"
	"caselab-service/internal/domain"
	"caselab-service/internal/infra/memory"
	pgstore "caselab-service/internal/infra/postgres"
	redisinfra "caselab-service/internal/infra/redis"
	"caselab-service/internal/llm"
	transport "caselab-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the case-study session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	// Durable stores: Postgres when configured, in-memory fallbacks otherwise.
	var (
		sessionStore  app.SessionStore
		responseStore app.ResponseStore
		studyStore    app.CaseStudyStore
		studyLoader   memory.CaseStudyLoader
	)
	if pool != nil {
		pg := pgstore.NewCaseStudyStore(pool)
		sessionStore = pgstore.NewSessionStore(pool)
		responseStore = pgstore.NewResponseStore(pool)
		studyStore = pg
		studyLoader = pg
	} else {
		memStudies := memory.NewCaseStudyStore()
		seedSampleCaseStudy(ctx, memStudies)
		sessionStore = memory.NewSessionStore()
		responseStore = memory.NewResponseStore()
		studyStore = memStudies
		studyLoader = memStudies
	}

	cacheTTL := config.TTLDuration(cfg.CaseStudy.CacheTTL, 10*time.Minute)
	var studyRepo app.CaseStudyRepository
	if redisClient != nil {
		studyRepo = redisinfra.NewCaseStudyRepository(redisClient, studyLoader, cacheTTL)
	} else {
		studyRepo = memory.NewCaseStudyRepository(studyLoader, cacheTTL)
	}

	var live app.LiveRegistry
	if redisClient != nil {
		live = redisinfra.NewLiveRegistry(redisClient, redisTTL)
	} else {
		live = memory.NewLiveRegistry()
	}

	var llmClient *llm.Client
	var assessor app.Assessor
	var generator transport.Generator
	if cfg.OpenAI.APIKey != "" {
		llmClient = llm.New(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.Model,
			config.TTLDuration(cfg.OpenAI.Timeout, llm.DefaultGenerationTimeout))
		assessor = llmClient
		generator = llmClient
	} else {
		log.Println("no OpenAI API key configured; AI endpoints disabled, text answers recorded unscored")
	}

	sessionService := app.NewSessionService(sessionStore, responseStore, studyRepo, live, assessor)
	studyService := app.NewCaseStudyService(studyStore)

	apiHandler := transport.NewAPIHandler(sessionService, studyService, generator)
	wsHandler := transport.NewWSHandler(sessionService)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(apiHandler, wsHandler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	// Server-side staleness sweep: sessions idle past the threshold get ended
	// even when no dashboard is open.
	staleAfter := config.TTLDuration(cfg.Session.StaleAfter, 2*time.Hour)
	sweepInterval := config.TTLDuration(cfg.Session.SweepInterval, 5*time.Minute)
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if ended, err := sessionService.SweepInactiveSessions(sweepCtx, staleAfter); err != nil {
					log.Printf("session sweep failed: %v", err)
				} else if ended > 0 {
					log.Printf("session sweep ended %d stale session(s)", ended)
				}
			case <-sweepCtx.Done():
				return
			}
		}
	}()

	go func() {
		log.Printf("starting caselab service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedSampleCaseStudy provides minimal demo content for redis/postgres-less
// runs; production deployments author content through the API.
func seedSampleCaseStudy(ctx context.Context, store *memory.CaseStudyStore) {
	cs := domain.CaseStudy{
		ID:        "demo-water-cycle",
		TeacherID: "demo-teacher",
		Title:     "The Water Cycle",
		Sections: []domain.Section{
			{
				ID:    "s0",
				Title: "Evaporation",
				Order: 0,
				Type:  domain.SectionReading,
				Content: "The sun heats surface water until it becomes vapor and rises " +
					"into the atmosphere.",
				Questions: []domain.Question{
					{
						ID:     "q1",
						Text:   "What drives evaporation?",
						Type:   domain.QuestionMultipleChoice,
						Points: 10,
						Options: []string{
							"Wind", "Heat from the sun", "Gravity",
						},
						CorrectAnswer: 1,
					},
				},
			},
			{
				ID:               "s1",
				Title:            "Where have you seen condensation?",
				Order:            1,
				Type:             domain.SectionDiscussion,
				DiscussionPrompt: "Share an everyday example of condensation.",
			},
		},
	}
	cs.RecomputeTotalPoints()
	if err := store.Create(ctx, &cs); err != nil {
		log.Printf("seed sample case study: %v", err)
	}
}
