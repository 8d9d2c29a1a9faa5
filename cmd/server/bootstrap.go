package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/black-bourne/educ-backend/internal/api"
	"github.com/black-bourne/educ-backend/internal/app"
	"github.com/black-bourne/educ-backend/internal/app/maintenance"
	iauth "github.com/black-bourne/educ-backend/internal/auth"
	"github.com/black-bourne/educ-backend/internal/auth/mfa"
	"github.com/black-bourne/educ-backend/internal/cache"
	"github.com/black-bourne/educ-backend/internal/database"
	"github.com/black-bourne/educ-backend/internal/middleware"
	"github.com/black-bourne/educ-backend/internal/models"
	"github.com/black-bourne/educ-backend/internal/realtime"
	"github.com/black-bourne/educ-backend/internal/services"
	"github.com/black-bourne/educ-backend/internal/storage"
	"github.com/black-bourne/educ-backend/pkg/crypto"
	"github.com/black-bourne/educ-backend/pkg/logger"
	"github.com/black-bourne/educ-backend/pkg/mail"
)

// runtimeStack bundles the long-lived pieces behind the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Redis      *cache.RedisStore
	Dispatcher *mail.Dispatcher
	Cleaner    *maintenance.Cleaner
	Hub        *realtime.Hub
	Router     *gin.Engine
}

// bootstrapRuntime opens the database and cache, wires every service and
// builds the router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	success := false

	defer func() {
		if !success {
			stack.Shutdown(log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}
	stack.DB = db

	dbStore := cache.NewDatabaseStore(db)

	var store cache.Store = dbStore
	if cfg.Cache.Redis.Enabled {
		redis, redisErr := cache.NewRedisStore(cache.RedisConfig{
			Address:  cfg.Cache.Redis.Address,
			Username: cfg.Cache.Redis.Username,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		if redisErr != nil {
			log.Warn("redis unavailable; using database-backed cache", zap.Error(redisErr))
		} else {
			stack.Redis = redis
			store = redis
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:          cfg.Auth.JWT.Secret,
		Issuer:          cfg.Auth.JWT.Issuer,
		PreAuthTokenTTL: cfg.Auth.JWT.PreAuthTTL,
		SessionTokenTTL: cfg.Auth.JWT.SessionTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	otpService, err := iauth.NewOTPService(store, cfg.Auth.OTPTTL)
	if err != nil {
		return nil, fmt.Errorf("initialise otp service: %w", err)
	}

	resetService, err := iauth.NewPasswordResetService(db, cfg.Auth.ResetTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("initialise reset service: %w", err)
	}

	totpService, err := initialiseTOTP(cfg, db)
	if err != nil {
		return nil, err
	}

	mailer, err := initialiseMailer(cfg, log)
	if err != nil {
		return nil, err
	}
	dispatcher, err := mail.NewDispatcher(mailer, mail.DispatcherConfig{})
	if err != nil {
		return nil, fmt.Errorf("initialise mail dispatcher: %w", err)
	}
	stack.Dispatcher = dispatcher

	auditService, err := services.NewAuditService(db)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	authService, err := services.NewAuthService(services.AuthServiceConfig{
		DB:         db,
		JWT:        jwtService,
		OTP:        otpService,
		Reset:      resetService,
		TOTP:       totpService,
		Dispatcher: dispatcher,
		Audit:      auditService,
		Policy:     iauth.DefaultPasswordPolicy{MinLength: cfg.Auth.MinPassword},
		AppBaseURL: cfg.Server.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise auth service: %w", err)
	}

	userService, err := services.NewUserService(db, resetService, dispatcher, auditService, cfg.Server.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}

	classService, err := services.NewClassService(db)
	if err != nil {
		return nil, fmt.Errorf("initialise class service: %w", err)
	}

	stack.Hub = realtime.NewHub()

	announcementService, err := services.NewAnnouncementService(db, classService, store, stack.Hub)
	if err != nil {
		return nil, fmt.Errorf("initialise announcement service: %w", err)
	}

	eventService, err := services.NewEventService(db, classService, store, stack.Hub)
	if err != nil {
		return nil, fmt.Errorf("initialise event service: %w", err)
	}

	assignmentService, err := services.NewAssignmentService(db, classService, store)
	if err != nil {
		return nil, fmt.Errorf("initialise assignment service: %w", err)
	}

	files, err := storage.NewFilesystemStore(cfg.Uploads.Dir)
	if err != nil {
		return nil, fmt.Errorf("initialise upload storage: %w", err)
	}

	submissionService, err := services.NewSubmissionService(db, classService, assignmentService, files)
	if err != nil {
		return nil, fmt.Errorf("initialise submission service: %w", err)
	}

	cleaner := maintenance.NewCleaner(resetService, auditService, dbStore,
		maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays))
	if err := cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}
	stack.Cleaner = cleaner

	router, err := api.NewRouter(api.Deps{
		DB:            db,
		JWT:           jwtService,
		Auth:          authService,
		Users:         userService,
		Classes:       classService,
		Announcements: announcementService,
		Events:        eventService,
		Assignments:   assignmentService,
		Submissions:   submissionService,
		TOTP:          totpService,
		Hub:           stack.Hub,
		RateStore:     middleware.NewCacheRateStore(store),
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}
	stack.Router = router

	success = true
	return stack, nil
}

// Shutdown releases everything bootstrapRuntime acquired, in reverse order.
func (s *runtimeStack) Shutdown(log *zap.Logger) {
	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		<-stopCtx.Done()
		if err := s.Cleaner.RunOnce(context.Background()); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}
	if s.Dispatcher != nil {
		s.Dispatcher.Stop()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	db, err := database.Open(convertDatabaseConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected",
		zap.String("driver", strings.ToLower(strings.TrimSpace(cfg.Database.Driver))))
	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "postgres", "postgresql":
		dbCfg.Host = cfg.Database.Postgres.Host
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = cfg.Database.Postgres.Database
		dbCfg.User = cfg.Database.Postgres.Username
		dbCfg.Password = cfg.Database.Postgres.Password
	case "mysql":
		dbCfg.Host = cfg.Database.MySQL.Host
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = cfg.Database.MySQL.Database
		dbCfg.User = cfg.Database.MySQL.Username
		dbCfg.Password = cfg.Database.MySQL.Password
	}

	return dbCfg
}

func initialiseTOTP(cfg *app.Config, db *gorm.DB) (*mfa.TOTPService, error) {
	key := strings.TrimSpace(cfg.Auth.EncryptionKey)
	if key == "" {
		// Authenticator enrollment stays disabled; emailed codes still work.
		return nil, nil
	}
	if l := len(key); l != 16 && l != 24 && l != 32 {
		return nil, fmt.Errorf("auth.encryption_key must be 16, 24, or 32 characters (current: %d)", l)
	}
	return mfa.NewTOTPService(db, []byte(key))
}

func initialiseMailer(cfg *app.Config, log *zap.Logger) (mail.Mailer, error) {
	if cfg.Email.SMTP.Enabled {
		return mail.NewSMTPMailer(mail.SMTPSettings{
			Enabled:  true,
			Host:     cfg.Email.SMTP.Host,
			Port:     cfg.Email.SMTP.Port,
			Username: cfg.Email.SMTP.Username,
			Password: cfg.Email.SMTP.Password,
			From:     cfg.Email.SMTP.From,
			UseTLS:   cfg.Email.SMTP.UseTLS,
			Timeout:  cfg.Email.SMTP.Timeout,
		})
	}

	log.Warn("smtp disabled; outbound email is written to the log")
	return logMailer{log: logger.WithModule("mail")}, nil
}

// logMailer writes messages to the application log instead of delivering
// them. Development only.
type logMailer struct {
	log *zap.Logger
}

func (m logMailer) Send(_ context.Context, msg mail.Message) error {
	m.log.Info("outbound email",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))
	return nil
}

// bootstrapInitialTeacher creates an active teacher account from
// EDUC_BOOTSTRAP_EMAIL and EDUC_BOOTSTRAP_PASSWORD when no teacher exists
// yet. Without it a fresh install has nobody who can provision accounts.
func bootstrapInitialTeacher(ctx context.Context, stack *runtimeStack, log *zap.Logger) error {
	email := strings.TrimSpace(strings.ToLower(os.Getenv("EDUC_BOOTSTRAP_EMAIL")))
	password := os.Getenv("EDUC_BOOTSTRAP_PASSWORD")
	if email == "" || password == "" {
		return nil
	}

	var count int64
	if err := stack.DB.WithContext(ctx).Model(&models.User{}).
		Where("role = ?", models.RoleTeacher).
		Count(&count).Error; err != nil {
		return fmt.Errorf("bootstrap teacher: %w", err)
	}
	if count > 0 {
		return nil
	}

	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("bootstrap teacher: %w", err)
	}

	user := models.User{
		Email:    email,
		Password: hashed,
		Role:     models.RoleTeacher,
		IsActive: true,
	}
	if err := stack.DB.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return fmt.Errorf("bootstrap teacher: %w", err)
	}

	log.Info("bootstrap teacher created", zap.String("email", email))
	return nil
}
