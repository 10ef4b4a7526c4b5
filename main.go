package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shipping-gateway/controllers"
	"shipping-gateway/database"
	"shipping-gateway/middleware"
	"shipping-gateway/models"
	aws_pkg "shipping-gateway/pkg/aws"
	"shipping-gateway/providers"
	"shipping-gateway/repository"
	"shipping-gateway/routes"
	servicepkg "shipping-gateway/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	cfg, err := LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	db, err := database.ConnectPostgres(logger, &models.LabelRecord{})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db) //nolint:errcheck

	// AWS clients
	awsCfg, awsErr := aws_pkg.LoadAWSConfig(context.Background())
	var snsClient aws_pkg.SNSPublisher
	var uploader aws_pkg.LabelUploader

	if awsErr != nil {
		logger.Warn("AWS config unavailable, SNS and label storage disabled", zap.Error(awsErr))
	} else {
		snsClient = aws_pkg.NewSNSClient(awsCfg)
		if cfg.LabelBucket != "" {
			uploader = aws_pkg.NewS3LabelStore(awsCfg, cfg.LabelBucket)
		} else {
			logger.Warn("LABEL_S3_BUCKET not set, label storage disabled")
		}
	}

	metricsClient, mErr := aws_pkg.NewMetricsClient(context.Background())
	if mErr != nil {
		logger.Warn("CloudWatch metrics unavailable", zap.Error(mErr))
	}

	provs := buildProviders(cfg, logger)
	if len(provs) == 0 {
		logger.Warn("No shipping providers configured; rate requests will return empty results")
	}

	labelRepo := repository.NewGormLabelRepository(db)
	shippingService := servicepkg.NewShippingService(
		labelRepo,
		provs,
		uploader,
		snsClient,
		cfg.LabelSNSTopicARN,
		cfg.DefaultLabelFormat,
		cfg.OriginAddress,
		logger,
	)
	shippingController := controllers.NewShippingController(shippingService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.RateLimitMiddleware())
	r.Use(middleware.MetricsMiddleware(metricsClient, "shipping-gateway"))

	// 30-second request timeout
	r.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	routes.RegisterRoutes(r, shippingController)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	logger.Info("Shipping gateway started",
		zap.String("port", cfg.Port),
		zap.Int("providers", len(provs)),
	)
	<-quit
	logger.Info("Shutting down shipping gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exited cleanly")
}

// buildProviders constructs an adapter for every provider with a configured
// API key. A missing key simply excludes the provider.
func buildProviders(cfg *Config, logger *zap.Logger) map[string]providers.ShippingProvider {
	provs := make(map[string]providers.ShippingProvider)

	if cfg.ShippoAPIKey != "" {
		if p, err := providers.NewShippoProvider(cfg.ShippoAPIKey, cfg.ShippoTestMode, logger); err == nil {
			provs[p.Name()] = p
		} else {
			logger.Warn("Shippo provider unavailable", zap.Error(err))
		}
	}
	if cfg.EasyPostAPIKey != "" {
		if p, err := providers.NewEasyPostProvider(cfg.EasyPostAPIKey, cfg.EasyPostTestMode, logger); err == nil {
			provs[p.Name()] = p
		} else {
			logger.Warn("EasyPost provider unavailable", zap.Error(err))
		}
	}
	if cfg.ShipEngineAPIKey != "" {
		if p, err := providers.NewShipEngineProvider(cfg.ShipEngineAPIKey, logger); err == nil {
			provs[p.Name()] = p
		} else {
			logger.Warn("ShipEngine provider unavailable", zap.Error(err))
		}
	}
	if cfg.EasyshipAPIKey != "" {
		if p, err := providers.NewEasyshipProvider(cfg.EasyshipAPIKey, logger); err == nil {
			provs[p.Name()] = p
		} else {
			logger.Warn("Easyship provider unavailable", zap.Error(err))
		}
	}

	return provs
}
