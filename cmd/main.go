package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ukdeo/Self-Healing-Database/api"
	"github.com/ukdeo/Self-Healing-Database/internal/backup"
	"github.com/ukdeo/Self-Healing-Database/internal/queue"
	"github.com/ukdeo/Self-Healing-Database/internal/repairer"
	"github.com/ukdeo/Self-Healing-Database/internal/rules"
	"github.com/ukdeo/Self-Healing-Database/internal/scanner"
	"github.com/ukdeo/Self-Healing-Database/internal/state"
	"github.com/ukdeo/Self-Healing-Database/internal/store"
	"github.com/ukdeo/Self-Healing-Database/pkg/cache"
	"github.com/ukdeo/Self-Healing-Database/pkg/config"
	"github.com/ukdeo/Self-Healing-Database/pkg/models"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  Self-Healing Database Engine")
	fmt.Println("==============================================")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	fmt.Printf("Starting on port %s (store=%s, check interval %s)...\n", cfg.Port, cfg.StoreMode, cfg.CheckInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Document store. Mongo is the production backend; the in-memory
	// store exists for local runs and tests.
	var st store.Store
	switch cfg.StoreMode {
	case config.StoreMongo:
		connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
		mongoStore, err := store.NewMongoStore(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		connectCancel()
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer mongoStore.Close(context.Background())
		st = mongoStore
	case config.StoreMemory:
		log.Println("WARNING: using in-memory store, data does not survive restarts.")
		st = store.NewMemStore()
	default:
		log.Fatalf("Unknown store mode %q", cfg.StoreMode)
	}

	// Optional Postgres-backed defect history.
	var history state.HistoryStore
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("WARNING: Postgres unavailable (%v). Defect history disabled.", err)
		} else {
			defer pool.Close()
			pg := state.NewPgStore(pool)
			migrateCtx, migrateCancel := context.WithTimeout(ctx, 30*time.Second)
			err = pg.Migrate(migrateCtx)
			migrateCancel()
			if err != nil {
				log.Printf("WARNING: History migration failed (%v). Defect history disabled.", err)
			} else {
				history = pg
				log.Println("Defect history persistence enabled.")
			}
		}
	}

	// Optional Redis snapshot cache.
	var snapshotCache *cache.Cache
	if cfg.RedisURL != "" {
		cacheCtx, cacheCancel := context.WithTimeout(ctx, 5*time.Second)
		snapshotCache, err = cache.NewCache(cacheCtx, cfg.RedisURL)
		cacheCancel()
		if err != nil {
			log.Printf("WARNING: Redis unavailable (%v). Snapshot caching disabled.", err)
			snapshotCache = nil
		} else {
			defer snapshotCache.Close()
		}
	}

	ruleCfg := rules.DefaultConfig()
	ruleCfg.Disabled = map[models.DefectKind]bool{
		models.KindDuplicateRecord:  !cfg.CheckDuplicates,
		models.KindOrphanedDocument: !cfg.CheckOrphanedDocs,
		models.KindMissingField:     !cfg.CheckMissingFields,
		models.KindInvalidValue:     !cfg.CheckInvalidValues,
		models.KindMissingIndex:     !cfg.CheckSlowQueries,
	}
	catalog, err := rules.NewCatalog(ruleCfg)
	if err != nil {
		log.Fatalf("Invalid rule config: %v", err)
	}

	engineState := state.New()
	workQueue := queue.New(cfg.QueueCapacity)
	backups := backup.NewService(st)

	scan := scanner.New(st, catalog, workQueue, engineState, cfg.CheckInterval)
	repair := repairer.New(st, catalog, workQueue, engineState, backups, history, repairer.Options{
		AutoFix:         cfg.AutoFixEnabled,
		DryRun:          cfg.DryRun,
		BackupBeforeFix: cfg.BackupBeforeFix,
		FixDelay:        cfg.FixDelay,
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scan.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		repair.Run(ctx)
	}()

	// HTTP surface.
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.AllowedOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	handler := api.NewHandler(engineState, workQueue, backups, st, history, snapshotCache)
	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Healing engine is ready on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt, then let the in-flight cycle and fix finish.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Engine exited.")
}
