package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanwahyu/vindereg/internal/application"
	"github.com/bryanwahyu/vindereg/internal/application/ingest"
	"github.com/bryanwahyu/vindereg/internal/application/notify"
	"github.com/bryanwahyu/vindereg/internal/application/syncer"
	"github.com/bryanwahyu/vindereg/internal/config"
	"github.com/bryanwahyu/vindereg/internal/domain/vehicle"
	sugarcrm "github.com/bryanwahyu/vindereg/internal/infra/crm/sugar"
	ftpsource "github.com/bryanwahyu/vindereg/internal/infra/ftp"
	"github.com/bryanwahyu/vindereg/internal/infra/httpserver"
	mailnotify "github.com/bryanwahyu/vindereg/internal/infra/mail"
	minioStore "github.com/bryanwahyu/vindereg/internal/infra/storage"
	"github.com/bryanwahyu/vindereg/internal/middleware"

	mysqldb "github.com/bryanwahyu/vindereg/internal/infra/db/mysql"
	postgresdb "github.com/bryanwahyu/vindereg/internal/infra/db/postgres"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx := context.Background()

	// connect staging store
	var db *sql.DB
	var repo vehicle.StageRepository
	switch cfg.Database.Driver {
	case "postgres":
		db, err = postgresdb.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		repo = postgresdb.NewStageRepository(db)
	default:
		db, err = mysqldb.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatalf("mysql connect error: %v", err)
		}
		repo = mysqldb.NewStageRepository(db)
	}
	defer db.Close()

	// init minio archive store
	archive, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		log.Fatalf("minio init error: %v", err)
	}

	// init ftp source
	files := ftpsource.New(
		cfg.FTP.Host, cfg.FTP.Port,
		cfg.FTP.Username, cfg.FTP.Password,
		cfg.FTP.RemotePath, cfg.FTPTimeout(),
	)

	// init CRM client
	crm, err := sugarcrm.New(sugarcrm.Options{
		BaseURL:      cfg.Sugar.BaseURL,
		Username:     cfg.Sugar.Username,
		Password:     cfg.Sugar.Password,
		ClientID:     cfg.Sugar.ClientID,
		ClientSecret: cfg.Sugar.ClientSecret,
		Platform:     cfg.Sugar.Platform,
		GrantType:    cfg.Sugar.GrantType,
		Timeout:      cfg.SugarTimeout(),
		RetryMax:     cfg.Sugar.RetryMax,
	}, logger)
	if err != nil {
		log.Fatalf("crm client error: %v", err)
	}

	// init notifier + throttle
	clock := application.SystemClock{}
	var notifier vehicle.Notifier
	if cfg.Email.SMTPHost != "" {
		prefix := ""
		if cfg.Notify.ServiceName != "" {
			prefix = fmt.Sprintf("[%s] ", cfg.Notify.ServiceName)
		}
		notifier = mailnotify.New(mailnotify.Options{
			Host:              cfg.Email.SMTPHost,
			Port:              cfg.Email.SMTPPort,
			Username:          cfg.Email.Username,
			Password:          cfg.Email.Password,
			UseTLS:            cfg.Email.UseTLS,
			Timeout:           cfg.EmailTimeout(),
			Sender:            cfg.Email.Sender,
			Recipients:        cfg.Email.Recipients,
			SuccessRecipients: cfg.Email.SuccessRecipients,
			FailureRecipients: cfg.Email.FailureRecipients,
			SubjectPrefix:     prefix,
		}, logger)
	} else {
		logger.Warn("email notifications disabled; SMTP host not configured")
	}
	dispatch := &notify.Dispatcher{
		Notifier: notifier,
		Throttle: notify.NewThrottle(cfg.NotifyCooldown(), clock),
		Log:      logger,
	}

	// init services
	ingestSvc := &ingest.Service{
		Files:      files,
		Archive:    archive,
		Repo:       repo,
		Normalizer: vehicle.NewNormalizer(cfg.Ingest.AllowedMakes),
		Dispatch:   dispatch,
		Clock:      clock,
		Log:        logger,
		Pattern:    cfg.FTP.Pattern,
	}
	syncSvc := &syncer.Service{
		Repo:     repo,
		CRM:      crm,
		Policy:   syncer.BacklogPolicy{MinPendingAge: cfg.MinPendingAge()},
		Dispatch: dispatch,
		Clock:    clock,
		Log:      logger,
	}

	// init router
	health := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
	}
	mux := httpserver.NewRouter(ingestSvc, syncSvc, cfg.Server.APIKey, health)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Minute, // a batch run answers with its summary
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down server")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Error("shutdown error", "err", err)
	}
}
