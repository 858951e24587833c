package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/ignite/construction-crm/internal/api"
	"github.com/ignite/construction-crm/internal/audit"
	"github.com/ignite/construction-crm/internal/auth"
	"github.com/ignite/construction-crm/internal/config"
	"github.com/ignite/construction-crm/internal/pkg/distlock"
	"github.com/ignite/construction-crm/internal/pkg/logger"
	"github.com/ignite/construction-crm/internal/repository/memory"
	"github.com/ignite/construction-crm/internal/repository/postgres"
	"github.com/ignite/construction-crm/internal/service/activity"
	"github.com/ignite/construction-crm/internal/service/campaign"
	"github.com/ignite/construction-crm/internal/service/contact"
	"github.com/ignite/construction-crm/internal/service/importer"
	"github.com/ignite/construction-crm/internal/service/ratelimit"
	"github.com/ignite/construction-crm/internal/service/segment"
	"github.com/ignite/construction-crm/internal/service/sending"
	"github.com/ignite/construction-crm/internal/service/template"
	"github.com/ignite/construction-crm/internal/service/viewstate"
	"github.com/redis/go-redis/v9"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

// repos is the storage backend the services run on.
type repos struct {
	contacts   contact.Repository
	segments   segment.Repository
	templates  template.Repository
	campaigns  campaign.Repository
	activities activity.Repository
	views      viewstate.Repository
	sent       ratelimit.Counter
}

func postgresRepos(db *sql.DB) repos {
	return repos{
		contacts:   postgres.NewContactRepo(db),
		segments:   postgres.NewSegmentRepo(db),
		templates:  postgres.NewTemplateRepo(db),
		campaigns:  postgres.NewCampaignRepo(db),
		activities: postgres.NewActivityRepo(db),
		views:      postgres.NewViewStateRepo(db),
		sent:       postgres.NewSentCounter(db),
	}
}

func memoryRepos() repos {
	db := memory.NewDB()
	return repos{
		contacts:   memory.NewContactRepo(db),
		segments:   memory.NewSegmentRepo(db),
		templates:  memory.NewTemplateRepo(db),
		campaigns:  memory.NewCampaignRepo(db),
		activities: memory.NewActivityRepo(db),
		views:      memory.NewViewStateRepo(db),
		sent:       memory.NewSentCounter(db),
	}
}

func connectRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		log.Println("Redis not configured (REDIS_URL not set): rate windows count from recipient state")
		return nil
	}
	opts, err := redis.ParseURL(url)
	var client *redis.Client
	if err != nil {
		client = redis.NewClient(&redis.Options{Addr: url})
	} else {
		client = redis.NewClient(opts)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("Warning: Redis connection failed (%s): %v, falling back to recipient state", url, err)
		client.Close()
		return nil
	}
	log.Printf("Redis connected: %s", url)
	return client
}

func newSender(ctx context.Context, cfg *config.Config) (sending.Sender, error) {
	switch cfg.Sending.Transport {
	case "ses":
		client, err := sending.NewSESClient(ctx, cfg.SES.Region, cfg.SES.AccessKey, cfg.SES.SecretKey)
		if err != nil {
			return nil, err
		}
		log.Printf("SES transport initialized (region %s, from %s)", cfg.SES.Region, cfg.Sending.FromEmail)
		return sending.NewSESSender(client, cfg.Sending.FromName, cfg.Sending.FromEmail, cfg.Sending.ReplyTo).
			WithTimeout(cfg.SES.Timeout()), nil
	case "log", "":
		log.Println("Log transport active: campaign email is logged, not delivered")
		return sending.LogSender{}, nil
	}
	return nil, fmt.Errorf("unknown sending transport %q", cfg.Sending.Transport)
}

// newAuditSink returns the sink and a function flushing it on shutdown.
func newAuditSink(ctx context.Context, cfg *config.Config) (audit.Sink, func()) {
	switch cfg.Audit.Sink {
	case "sqs":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Audit.Region))
		if err != nil {
			log.Printf("Warning: AWS config for audit failed: %v, auditing to log", err)
			return audit.LogSink{}, func() {}
		}
		sink := audit.NewSQSSink(sqs.NewFromConfig(awsCfg), cfg.Audit.SQSQueueURL)
		log.Printf("Audit events publish to SQS: %s", cfg.Audit.SQSQueueURL)
		return sink, sink.Close
	case "none":
		return audit.Nop{}, func() {}
	}
	return audit.LogSink{}, func() {}
}

func newS3Client(ctx context.Context, region string) importer.S3API {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		log.Printf("Warning: AWS config for S3 imports failed: %v, S3 imports disabled", err)
		return nil
	}
	return s3.NewFromConfig(awsCfg)
}

func main() {
	log.Println("Construction CRM server starting")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(!cfg.Log.ShowPII)

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var db *sql.DB
	var backend repos
	if cfg.Database.URL != "" {
		db, err = postgres.Open(ctx, cfg.Database.URL, postgres.PoolOptions{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime(),
		})
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL at %s: %v", extractHost(cfg.Database.URL), err)
		}
		defer db.Close()
		log.Printf("PostgreSQL connected: %s", extractHost(cfg.Database.URL))
		backend = postgresRepos(db)
	} else {
		log.Println("DATABASE_URL not set: running on in-memory storage")
		backend = memoryRepos()
	}

	redisClient := connectRedis(ctx, cfg.Redis.URL)
	if redisClient != nil {
		defer redisClient.Close()
		backend.sent = ratelimit.NewRedisCounter(redisClient, cfg.Redis.Key)
	}

	var newLock func(string) distlock.DistLock
	if cfg.Sending.StrictDispatch {
		if redisClient == nil && db == nil {
			log.Println("Warning: strict dispatch needs Redis or PostgreSQL; running without a dispatch lock")
		} else {
			newLock = distlock.Factory(redisClient, db, cfg.Sending.LockTTL())
			log.Println("Strict dispatch enabled: one batch at a time")
		}
	}

	sender, err := newSender(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize sending transport: %v", err)
	}
	sink, closeSink := newAuditSink(ctx, cfg)
	defer closeSink()

	authz := auth.NewRoleAuthorizer(cfg.Authz.Roles)
	governor := ratelimit.NewGovernor(backend.sent, ratelimit.Limits{
		Hourly: cfg.Sending.HourlyCap,
		Daily:  cfg.Sending.DailyCap,
	})
	renderer := template.NewRenderer()
	engine := campaign.NewEngine(campaign.Deps{
		Repo:             backend.campaigns,
		Contacts:         backend.contacts,
		Templates:        backend.templates,
		Activities:       backend.activities,
		Renderer:         renderer,
		Governor:         governor,
		Sender:           sender,
		Authz:            authz,
		Audit:            sink,
		NewLock:          newLock,
		DefaultBatchSize: cfg.Sending.DefaultBatchSize,
	})

	handlers := api.NewHandlers(api.Services{
		Contacts:   contact.NewService(backend.contacts, backend.activities, authz, sink),
		Segments:   segment.NewService(backend.segments, authz, sink),
		Templates:  template.NewService(backend.templates, renderer, authz, sink),
		Campaigns:  engine,
		Importer:   importer.NewPipeline(contact.NewStore(backend.contacts), backend.segments, authz, sink, cfg.Import.MaxRows),
		Activities: activity.NewService(backend.activities, authz, sink),
		Views:      viewstate.NewService(backend.views),
		S3:         newS3Client(ctx, cfg.Import.S3Region),
	})
	health := api.NewHealthChecker(db, redisClient, governor)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      api.SetupRoutes(handlers, health, cfg.Server.AllowedOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
