// cmd/loan-service/main.go
package main

import (
	"context"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Abbracx/loan-be/internal/pkg/auth"
	"github.com/Abbracx/loan-be/internal/pkg/bootstrap"
	"github.com/Abbracx/loan-be/internal/pkg/mq"
	"github.com/Abbracx/loan-be/internal/pkg/redis"
	"github.com/Abbracx/loan-be/internal/service/loan/application"
	"github.com/Abbracx/loan-be/internal/service/loan/domain/fraud"
	"github.com/Abbracx/loan-be/internal/service/loan/domain/port"
	loaninfra "github.com/Abbracx/loan-be/internal/service/loan/infrastructure"
	loanadapter "github.com/Abbracx/loan-be/internal/service/loan/infrastructure/adapter"
	loanapi "github.com/Abbracx/loan-be/internal/service/loan/interfaces"
	userapp "github.com/Abbracx/loan-be/internal/service/user/application"
	userinfra "github.com/Abbracx/loan-be/internal/service/user/infrastructure"
	useradapter "github.com/Abbracx/loan-be/internal/service/user/infrastructure/adapter"
	userapi "github.com/Abbracx/loan-be/internal/service/user/interfaces"
	"github.com/Abbracx/loan-be/internal/zookeeper"
)

const (
	serviceName = "loan-service"
	bcryptCost  = 12
)

// main 函数是应用的"组装根" (Composition Root)
func main() {
	var (
		kafkaWriter *kafka.Writer
		redisClient *redis.Client
		zkConn      *zk.Conn
		hub         *loanadapter.FlagFeedHub
	)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8000,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			cfg := appCtx.Config
			tracer := otel.Tracer(serviceName)
			loc := cfg.Location()

			// 1. 基础设施
			db, err := openDB(cfg.Infra.MySQL)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to connect mysql")
			}

			redisClient, err = redis.NewClient(cfg.Infra.Redis.Addrs)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to initialize redis client")
			}
			cache := redis.NewCache(redisClient, cfg.Infra.Redis.KeyPrefix)

			kafkaWriter = mq.NewKafkaWriter(cfg.KafkaBrokers(), cfg.Infra.Kafka.NotificationTopic)

			var locker port.UserLocker
			if servers := cfg.ZookeeperServers(); len(servers) > 0 {
				zkConn, err = zookeeper.Connect(servers, cfg.Infra.Zookeeper.SessionTimeout)
				if err != nil {
					log.Fatal().Err(err).Msg("failed to connect zookeeper")
				}
				locker = loanadapter.NewZkUserLocker(zkConn, cfg.Locking.Timeout)
			} else {
				locker, err = loanadapter.NewRedisUserLocker(redisClient, cfg.Infra.Redis.KeyPrefix, cfg.Locking.Timeout, cfg.Locking.TTL)
				if err != nil {
					log.Fatal().Err(err).Msg("failed to initialize redis user lock")
				}
			}

			policy, err := fraudPolicy(cfg.Fraud)
			if err != nil {
				log.Fatal().Err(err).Msg("invalid fraud configuration")
			}
			rules, err := loanadapter.NewCELRuleEngine(policy.CustomRules)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to compile custom fraud rules")
			}
			hub = loanadapter.NewFlagFeedHub()

			tokens := auth.NewTokenManager(cfg.Auth.SigningKey, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)

			// 2. 用户上下文
			userRepo := userinfra.NewGormUserRepository(db)
			userSvc := userapp.NewUserApplicationService(userRepo, useradapter.NewBcryptHasher(bcryptCost), tokens,
				cache, cfg.Cache.ListTTL, cfg.Auth.MaxFailedLogins, loc, tracer)

			// 3. 贷款上下文
			loanRepo := loaninfra.NewGormLoanRepository(db)
			directory := loanadapter.NewUserDirectoryAdapter(userRepo)
			fraudSvc := application.NewFraudDetectionService(loanRepo, directory, cache,
				loanadapter.NewNotificationKafkaAdapter(kafkaWriter), hub, rules, policy, tracer)
			loanSvc := application.NewLoanApplicationService(loanRepo, directory, fraudSvc, locker, cache, cfg.Cache.ListTTL, loc, tracer)

			// 4. 路由
			authMW := auth.Middleware(tokens)
			userapi.NewUserHandler(userSvc).RegisterRoutes(appCtx.API, authMW)
			loanapi.NewLoanHandler(loanSvc, hub).RegisterRoutes(appCtx.API, authMW, auth.Middleware(tokens, auth.WithQueryToken("token")))

			log.Info().Int("custom_rules", rules.Len()).Msg("✅ loan service wired")
		},
		OnShutdown: func(ctx context.Context) {
			if hub != nil {
				hub.Close()
			}
			if kafkaWriter != nil {
				if err := kafkaWriter.Close(); err != nil {
					log.Error().Err(err).Msg("Error closing kafka writer")
				}
			}
			if zkConn != nil {
				zkConn.Close()
			}
			if redisClient != nil {
				if err := redisClient.Close(); err != nil {
					log.Error().Err(err).Msg("Error closing redis client")
				}
			}
		},
	})
}

func openDB(cfg bootstrap.MySQLConfig) (*gorm.DB, error) {
	db, err := gorm.Open(gormmysql.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&userinfra.UserModel{}, &loaninfra.LoanApplicationModel{}, &loaninfra.FraudFlagModel{}); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// fraudPolicy 把配置转换成规则阈值。
func fraudPolicy(cfg bootstrap.FraudConfig) (fraud.Policy, error) {
	threshold, err := decimal.NewFromString(cfg.AmountThreshold)
	if err != nil {
		return fraud.Policy{}, err
	}
	p := fraud.Policy{
		VelocityLimit:   int64(cfg.VelocityLimit),
		VelocityWindow:  cfg.VelocityWindow,
		AmountThreshold: threshold,
		DomainUserLimit: int64(cfg.DomainUserLimit),
		DomainCacheTTL:  cfg.DomainCacheTTL,
	}
	for _, r := range cfg.CustomRules {
		p.CustomRules = append(p.CustomRules, fraud.CustomRule{Name: r.Name, Expression: r.Expression, Reason: r.Reason})
	}
	return p, nil
}
