// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/Abbracx/loan-be/internal/pkg/logger"
	"github.com/Abbracx/loan-be/internal/pkg/nacos"
	"github.com/Abbracx/loan-be/internal/pkg/tracing"
)

const configDataID = "loan-be.yaml"

type AppCtx struct {
	Engine *gin.Engine
	API    *gin.RouterGroup // /api/v1
	Nacos  *nacos.Client    // 未配置 Nacos 时为 nil
	Config *Config
}

// AppInfo 包含了启动一个服务所需的特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx)         // 组装依赖并注册路由
	OnShutdown       func(ctx context.Context) // 在 HTTP 服务关闭之后、Tracer 关闭之前执行
}

// StartService 封装了所有服务的通用启动和优雅关停逻辑。
func StartService(info AppInfo) {
	// 1. 配置：优先 Nacos 配置中心，其次本地文件
	nacosClient, cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	SetCurrentConfig(cfg)
	logger.Init(info.ServiceName, cfg.App.LogLevel)

	// 2. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint, cfg.App.SampleRatio)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	// 3. HTTP 引擎与通用路由
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := NewEngine(info.ServiceName)
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{
			Engine: engine,
			API:    engine.Group("/api/v1"),
			Nacos:  nacosClient,
			Config: cfg,
		})
	}

	port := info.Port
	if p, err := strconv.Atoi(getEnv("PORT", "")); err == nil && p > 0 {
		port = p
	}
	server := &http.Server{Addr: ":" + strconv.Itoa(port), Handler: engine, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Msgf("✅ %s listening on :%d", info.ServiceName, port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msgf("could not listen on %s", server.Addr)
		}
	}()

	// 4. 服务注册
	var ip string
	if nacosClient != nil {
		if ip, err = getOutboundIP(); err != nil {
			log.Fatal().Err(err).Msg("failed to get outbound IP address")
		}
		if err := nacosClient.RegisterServiceInstance(info.ServiceName, ip, port); err != nil {
			log.Fatal().Err(err).Msg("failed to register service with nacos")
		}
	}

	// 5. 优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msgf("🛑 Shutting down service %s...", info.ServiceName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 按启动的逆序清理
	if nacosClient != nil {
		if err := nacosClient.DeregisterServiceInstance(info.ServiceName, ip, port); err != nil {
			log.Error().Err(err).Msg("Error deregistering from Nacos")
		}
	}
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down http server")
	}
	if info.OnShutdown != nil {
		info.OnShutdown(ctx)
	}
	if err := tp.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down tracer provider")
	}
	if nacosClient != nil {
		nacosClient.Close()
	}
	log.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}

// NewEngine 创建带有恢复、访问日志和链路追踪中间件的 gin 引擎，并挂载 /healthz 和 /metrics。
func NewEngine(serviceName string) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), TracingMiddleware(serviceName), AccessLogMiddleware())
	engine.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return engine
}

func loadConfig() (*nacos.Client, *Config, error) {
	addrs := getEnv("NACOS_SERVER_ADDRS", "")
	if addrs == "" {
		cfg, err := LoadConfigFile(getEnv("CONFIG_FILE", "configs/config.yaml"))
		return nil, cfg, err
	}

	client, err := nacos.NewNacosClient(addrs, getEnv("NACOS_NAMESPACE", ""), getEnv("NACOS_GROUP", "DEFAULT_GROUP"))
	if err != nil {
		return nil, nil, err
	}
	content, err := client.GetConfig(configDataID)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	cfg, err := ParseConfig([]byte(content))
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	// 热更新：只替换快照，连接类配置需要重启生效
	err = client.ListenConfig(configDataID, func(content string) {
		next, err := ParseConfig([]byte(content))
		if err != nil {
			log.Error().Err(err).Msg("ignoring invalid config pushed by Nacos")
			return
		}
		SetCurrentConfig(next)
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to listen for Nacos config changes")
	}
	return client, cfg, nil
}

func getOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}

// getEnv 从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
