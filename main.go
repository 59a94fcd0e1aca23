package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	api "github.com/rpupo63/portfolio-api/api"
	"github.com/rpupo63/portfolio-api/config"
	"github.com/rpupo63/portfolio-api/database"
	"github.com/rpupo63/portfolio-api/docstore"
	"github.com/rpupo63/portfolio-api/errs"
	"github.com/rpupo63/portfolio-api/services"
)

const (
	defaultAdminToken = "changeme-admin-token"
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Load environment variables from .env file
	envErr := godotenv.Load()

	c := config.New()
	setupLogging(c)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file loaded")
	}
	log.Info().Msg("Initializing app...")

	ctx := context.Background()

	store, err := openStore(ctx, c)
	fatalOnError(err, "Error connecting to database")
	log.Info().Str("backend", store.Kind()).Msg("document store ready")

	activity := services.NewAsyncActivitySink(
		services.NewStoreActivitySink(database.NewActivityLogRepo(store)),
		config.GetInt(c, "ACTIVITY_QUEUE_SIZE", 256),
	)
	currentDB := database.New(store, activity)

	indexCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := currentDB.EnsureIndexes(indexCtx); err != nil {
		log.Warn().Err(err).Msg("could not ensure indexes")
	}
	cancel()

	if config.GetBool(c, "SEED_SAMPLE_DATA", false) {
		seedCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := currentDB.SeedSampleData(seedCtx); err != nil {
			log.Warn().Err(err).Msg("seeding sample data failed")
		}
		cancel()
	}

	adminToken, err := resolveAdminToken(ctx, c)
	fatalOnError(err, "Error resolving admin token")

	limiter, closeLimiter, err := newRateLimiter(ctx, c)
	fatalOnError(err, "Error initializing rate limiter")

	files, err := newFileStore(ctx, c)
	fatalOnError(err, "Error initializing upload storage")

	server, err := api.NewServer(currentDB, c, api.Services{
		Contact:        newContactService(c, limiter, activity),
		Files:          files,
		UploadMaxBytes: config.GetInt64(c, "UPLOAD_MAX_BYTES", 10<<20),
		AdminToken:     adminToken,
	})
	fatalOnError(err, "Error initializing server")

	errChannel := make(chan error, 2)
	go server.Start(errChannel)

	// Listen for interrupt signals to gracefully shutdown the server
	go listenToInterrupt(errChannel)

	fatalErr := <-errChannel
	log.Info().Msgf("Closing server: %v", fatalErr)

	server.ShutdownGracefully(shutdownTimeout)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := activity.Close(closeCtx); err != nil {
		log.Warn().Err(err).Int64("dropped", activity.Dropped()).Msg("activity log did not drain")
	}
	if err := closeLimiter(); err != nil {
		log.Warn().Err(err).Msg("error closing rate limiter")
	}
	if err := store.Close(closeCtx); err != nil {
		log.Warn().Err(err).Msg("error closing document store")
	}
}

// fatalOnError exits when err is set, flagging settings problems apart from
// unreachable dependencies.
func fatalOnError(err error, msg string) {
	if err == nil {
		return
	}
	log.Fatal().Err(err).Bool("configError", errs.IsConfigError(err)).Msg(msg)
}

// setupLogging configures the global zerolog logger from LOG_LEVEL and LOG_FORMAT.
func setupLogging(c map[string]string) {
	level, err := zerolog.ParseLevel(strings.ToLower(config.GetString(c, "LOG_LEVEL", "info")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	if config.GetString(c, "LOG_FORMAT", "console") == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

func openStore(ctx context.Context, c map[string]string) (docstore.Store, error) {
	dbType := config.GetString(c, "DB_TYPE", "mongo")
	log.Info().Str("DB_TYPE", dbType).Msg("connecting to database")

	switch dbType {
	case "mongo":
		uri := config.GetString(c, "MONGODB_URI", "")
		if uri == "" {
			return nil, errs.NewConfigError("MONGODB_URI", errors.New("required for DB_TYPE=mongo"))
		}
		return docstore.OpenMongo(uri, config.GetString(c, "MONGODB_DATABASE", "portfolio"))
	case "postgres":
		dsn := config.GetString(c, "POSTGRES_DSN", "")
		if dsn == "" {
			return nil, errs.NewConfigError("POSTGRES_DSN", errors.New("required for DB_TYPE=postgres"))
		}
		return docstore.OpenPostgres(ctx, dsn, docstore.PoolOptions{
			MaxOpenConns:    config.GetInt(c, "DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    config.GetInt(c, "DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: config.GetSeconds(c, "DB_CONN_MAX_LIFETIME_SECONDS", 30*time.Minute),
			ConnMaxIdleTime: config.GetSeconds(c, "DB_CONN_MAX_IDLE_SECONDS", 5*time.Minute),
		})
	case "sqlite":
		return docstore.OpenSQLite(config.GetString(c, "SQLITE_PATH", "portfolio.db"))
	case "memory":
		log.Warn().Msg("using the in-memory store, data is lost on restart")
		return docstore.NewMemoryStore(), nil
	default:
		return nil, errs.NewConfigError("DB_TYPE", fmt.Errorf("unsupported value %q", dbType))
	}
}

func resolveAdminToken(ctx context.Context, c map[string]string) (string, error) {
	fallback := config.GetString(c, "ADMIN_TOKEN", "")
	param := config.GetString(c, "ADMIN_TOKEN_SSM_PARAM", "")

	var token string
	if param != "" {
		client, err := services.NewSSMClient(ctx, config.GetString(c, "AWS_REGION", ""))
		if err != nil {
			return "", err
		}
		ssmCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if token, err = services.ResolveAdminToken(ssmCtx, client, param, fallback); err != nil {
			return "", err
		}
	} else {
		token = fallback
	}

	if token == "" {
		log.Warn().Msg("ADMIN_TOKEN is not set, falling back to the default token")
		token = defaultAdminToken
	}
	if token == defaultAdminToken {
		log.Warn().Msg("the admin API is protected by the default token")
	}
	return token, nil
}

func newRateLimiter(ctx context.Context, c map[string]string) (services.RateLimiter, func() error, error) {
	limit := config.GetInt(c, "CONTACT_RATE_LIMIT", 3)
	window := config.GetSeconds(c, "CONTACT_RATE_WINDOW_SECONDS", time.Minute)

	if config.GetString(c, "RATE_LIMIT_BACKEND", "memory") != "redis" {
		limiter := services.NewMemoryRateLimiter(limit, window, config.GetInt(c, "RATE_LIMIT_MAX_KEYS", 10_000))
		return limiter, func() error { return nil }, nil
	}

	rdb, err := services.NewRedisClient(
		config.GetString(c, "REDIS_ADDR", ""),
		config.GetString(c, "REDIS_PASSWORD", ""),
		config.GetInt(c, "REDIS_DB", 0),
	)
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis is unreachable, contact submissions are admitted until it recovers")
	}
	return services.NewRedisRateLimiter(rdb, "ratelimit:contact:", limit, window), rdb.Close, nil
}

func newFileStore(ctx context.Context, c map[string]string) (services.FileStore, error) {
	if config.GetString(c, "UPLOAD_BACKEND", "local") == "s3" {
		region := config.GetString(c, "S3_REGION", config.GetString(c, "AWS_REGION", "us-east-1"))
		return services.NewS3FileStore(ctx, region,
			config.GetString(c, "S3_BUCKET", ""),
			config.GetString(c, "S3_PUBLIC_BASE_URL", ""),
		)
	}
	return services.NewLocalFileStore(config.GetString(c, "UPLOAD_DIR", "uploads"), "/uploads")
}

// newContactService wires owner notifications only when Resend is configured.
func newContactService(c map[string]string, limiter services.RateLimiter, sink database.ActivitySink) *services.ContactService {
	apiKey := config.GetString(c, "RESEND_API_KEY", "")
	recipients := config.GetList(c, "CONTACT_NOTIFY_EMAIL", nil)
	if apiKey == "" || len(recipients) == 0 {
		return services.NewContactService(limiter, sink, nil)
	}
	sender := services.NewResendClient(apiKey, config.GetString(c, "RESEND_FROM_EMAIL", ""))
	return services.NewContactService(limiter, sink, services.NewContactNotifier(sender, recipients...))
}

// listenToInterrupt waits for SIGINT or SIGTERM and then sends an error to the error channel.
func listenToInterrupt(errChannel chan<- error) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	errChannel <- fmt.Errorf("%s", <-c)
}
