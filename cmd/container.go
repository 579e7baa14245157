// cmd/container.go
//
// Root composition root. Owns infrastructure (Postgres, Redis, metrics, mail,
// job queue) and composes the IAM container. This is the only place that
// knows about every module.
package main

import (
	"context"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/asyncx"
	"github.com/Abraxas-365/gatekeeper/pkg/config"
	"github.com/Abraxas-365/gatekeeper/pkg/dbx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/iamcontainer"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/verification/verificationinfra"
	"github.com/Abraxas-365/gatekeeper/pkg/jobx"
	"github.com/Abraxas-365/gatekeeper/pkg/jobx/jobxredis"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	"github.com/Abraxas-365/gatekeeper/pkg/metricsx"
	"github.com/Abraxas-365/gatekeeper/pkg/notifx"
	"github.com/Abraxas-365/gatekeeper/pkg/notifx/notifxconsole"
	"github.com/Abraxas-365/gatekeeper/pkg/notifx/notifxses"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

const healthCheckTimeout = 2 * time.Second

// Container holds shared infrastructure and composed module containers.
type Container struct {
	Config *config.Config

	DB      *sqlx.DB
	Redis   *redis.Client
	Metrics *metricsx.Metrics
	Notifx  *notifx.Client
	Jobs    *jobx.Client

	IAM *iamcontainer.Container
}

func NewContainer(cfg *config.Config) *Container {
	logx.Info("🔧 Initializing application container...")

	c := &Container{Config: cfg}

	c.initInfrastructure()
	c.initModules()

	logx.Info("✅ Application container initialized")
	return c
}

// ---------------------------------------------------------------------------
// Infrastructure
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure() {
	logx.Info("🏗️ Initializing infrastructure...")
	ctx := context.Background()

	// 1. Database
	db, err := dbx.Open(ctx, c.Config.Database)
	if err != nil {
		logx.Fatalf("Failed to connect to database: %v", err)
	}
	c.DB = db
	logx.Info("  ✅ Database connected")

	if c.Config.Database.MigrateOnStart {
		if err := dbx.Migrate(db.DB); err != nil {
			logx.Fatalf("Failed to migrate database: %v", err)
		}
	}

	// 2. Redis
	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Address(),
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	if err := c.Redis.Ping(ctx).Err(); err != nil {
		logx.Fatalf("Failed to connect to Redis: %v (Redis is required)", err)
	}
	logx.Info("  ✅ Redis connected")

	// 3. Metrics
	c.Metrics = metricsx.New()

	// 4. Email + job queue
	c.initNotifx(ctx)
	c.Jobs = jobx.NewClient(jobxredis.NewRedisQueue(c.Redis),
		jobx.WithQueues(c.Config.Jobx.Queues...),
		jobx.WithConcurrency(c.Config.Jobx.Concurrency),
		jobx.WithPollInterval(c.Config.Jobx.PollInterval),
		jobx.WithShutdownTimeout(c.Config.Jobx.ShutdownTimeout),
		jobx.WithDequeueTimeout(c.Config.Jobx.DequeueTimeout),
		jobx.WithRetryBackoff(c.Config.Jobx.RetryInitialInterval, c.Config.Jobx.RetryMaxInterval),
		jobx.WithJobTimeout(c.Config.Jobx.JobTimeout),
		jobx.WithObserver(c.Metrics.JobFinished),
	)

	logx.Info("✅ Infrastructure initialized")
}

func (c *Container) initNotifx(ctx context.Context) {
	cfg := c.Config.Notifx
	from := cfg.Sender()

	switch cfg.Provider {
	case config.EmailProviderSES:
		provider, err := notifxses.NewFromRegion(ctx, cfg.AWSRegion, from)
		if err != nil {
			logx.Fatalf("Unable to configure SES: %v", err)
		}
		var defaults []notifx.Option
		if cfg.SESConfigurationSet != "" {
			defaults = append(defaults, notifx.WithConfigurationSet(cfg.SESConfigurationSet))
		}
		c.Notifx = notifx.NewClient(provider, from, defaults...)
		logx.Infof("  ✅ SES email configured (region: %s)", cfg.AWSRegion)

	case config.EmailProviderConsole:
		c.Notifx = notifx.NewClient(notifxconsole.NewConsoleProvider(), from)
		logx.Info("  ✅ Console email configured (emails are logged, not sent)")

	default:
		logx.Fatalf("Unknown NOTIFX_PROVIDER: %s (use 'console' or 'ses')", cfg.Provider)
	}
}

// ---------------------------------------------------------------------------
// Modules
// ---------------------------------------------------------------------------

func (c *Container) initModules() {
	logx.Info("📦 Initializing modules...")

	direct, err := verificationinfra.NewNotifxMailer(c.Notifx)
	if err != nil {
		logx.Fatalf("Failed to register email templates: %v", err)
	}

	var mailer verification.Mailer = direct
	if c.Config.Verification.EmailDispatch == config.DispatchQueue {
		verificationinfra.RegisterEmailJob(c.Jobs, direct)
		mailer = verificationinfra.NewQueuedMailer(c.Jobs)
		logx.Info("  ✅ Verification emails go through the job queue")
	}

	iam, err := iamcontainer.New(iamcontainer.Deps{
		DB:      c.DB,
		Redis:   c.Redis,
		Cfg:     c.Config,
		Metrics: c.Metrics,
		Mailer:  mailer,
	})
	if err != nil {
		logx.Fatalf("Failed to initialize IAM: %v", err)
	}
	c.IAM = iam
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// StartBackgroundServices runs the job worker when emails are queued.
func (c *Container) StartBackgroundServices(ctx context.Context) {
	if c.Config.Verification.EmailDispatch != config.DispatchQueue {
		return
	}
	logx.Info("🔄 Starting background services...")
	go func() {
		if err := c.Jobs.Start(ctx); err != nil {
			logx.Errorf("jobx worker stopped: %v", err)
		}
	}()
}

// Health pings every dependency concurrently.
func (c *Container) Health(ctx context.Context) map[string]error {
	results := asyncx.AllSettled(ctx,
		asyncx.Timed(healthCheckTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.DB.PingContext(ctx)
		}),
		asyncx.Timed(healthCheckTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.Redis.Ping(ctx).Err()
		}),
	)
	return map[string]error{
		"db":    results[0].Err,
		"redis": results[1].Err,
	}
}

func (c *Container) Cleanup() {
	logx.Info("🧹 Cleaning up resources...")

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("Error closing database: %v", err)
		} else {
			logx.Info("  ✅ Database connection closed")
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("Error closing Redis: %v", err)
		} else {
			logx.Info("  ✅ Redis connection closed")
		}
	}

	logx.Info("✅ Cleanup complete")
}
