package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"order-service/internal/bucketing"
	"order-service/internal/client"
	"order-service/internal/config"
	"order-service/internal/encryption"
	"order-service/internal/events"
	"order-service/internal/hashing"
	"order-service/internal/mailer"
	redisrepo "order-service/internal/repository/redis"
	"order-service/internal/repository/scylla"
	"order-service/internal/search"
	"order-service/internal/service"
	"order-service/internal/tlsutil"
	"order-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies.
type Factory struct {
	config     *config.Config
	tlsManager *tlsutil.Manager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.Manager
	bucketingManager  *bucketing.Manager
	mailer            mailer.Mailer

	// Lazily built collaborators
	recorder       *events.Recorder
	signupCache    *redisrepo.SignupSessionCache
	userRepository scylla.UserRepository
	foodRepository scylla.FoodRepository
	cartRepository scylla.CartRepository
	orderRepo      scylla.OrderRepository
	catalogIndex   *search.CatalogIndex

	signupService  *service.SignupService
	cartService    *service.CartService
	catalogService *service.CatalogService
	orderService   *service.OrderService

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tlsutil.NewManager(&tlsutil.Config{
			EnableTLS:   cfg.Server.EnableTLS,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			Environment: cfg.Environment,
		})
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeManagers()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health
// checks. In development, non-critical failures degrade to warnings so the
// service can run against a partial stack.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	if scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
		util.Info("Kafka producer initialized")
	}

	if esClient, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
		util.Warn("Elasticsearch initialization failed - menu search disabled", util.ErrorField(err))
	} else {
		f.esClient = esClient
		util.Info("Elasticsearch client initialized and healthy")
	}

	if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		util.Warn("ClickHouse initialization failed - proceeding without analytics sink", util.ErrorField(err))
	} else {
		f.clickhouseClient = chClient
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			util.Warn("ClickHouse health check failed", util.ErrorField(err))
		} else {
			util.Info("ClickHouse client initialized and healthy")
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers initializes hashing, encryption, bucketing and mail
// collaborators.
func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher(f.config)

	var kmsClient *kms.Client
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			util.Warn("Failed to load AWS config - falling back to local key wrapping", util.ErrorField(err))
		} else {
			kmsClient = kms.NewFromConfig(awsCfg)
		}
	}

	f.encryptionManager = encryption.NewManager(f.config, kmsClient)
	f.bucketingManager = bucketing.NewManager(f.config)
	f.mailer = mailer.NewMailer(f.config)
}

func (f *Factory) Recorder() *events.Recorder {
	if f.recorder == nil {
		f.recorder = events.NewRecorder(
			f.kafkaProducer, f.clickhouseClient, f.config.Kafka.EventsTopic, f.bucketingManager, util.Get())
	}
	return f.recorder
}

func (f *Factory) SignupCache() *redisrepo.SignupSessionCache {
	if f.signupCache == nil {
		f.signupCache = redisrepo.NewSignupSessionCache(f.redisClient, f.config.Redis.OpTimeout)
	}
	return f.signupCache
}

func (f *Factory) UserRepository() scylla.UserRepository {
	if f.userRepository == nil {
		f.userRepository = scylla.NewUserRepository(f.scyllaClient, f.bucketingManager, util.Get())
	}
	return f.userRepository
}

func (f *Factory) FoodRepository() scylla.FoodRepository {
	if f.foodRepository == nil {
		f.foodRepository = scylla.NewFoodRepository(f.scyllaClient, util.Get())
	}
	return f.foodRepository
}

func (f *Factory) CartRepository() scylla.CartRepository {
	if f.cartRepository == nil {
		f.cartRepository = scylla.NewCartRepository(f.scyllaClient, util.Get())
	}
	return f.cartRepository
}

func (f *Factory) OrderRepository() scylla.OrderRepository {
	if f.orderRepo == nil {
		f.orderRepo = scylla.NewOrderRepository(f.scyllaClient, util.Get())
	}
	return f.orderRepo
}

// CatalogIndex is nil when Elasticsearch is unavailable; catalog search is
// disabled in that case.
func (f *Factory) CatalogIndex() *search.CatalogIndex {
	if f.catalogIndex == nil && f.esClient != nil {
		f.catalogIndex = search.NewCatalogIndex(f.esClient, f.config.Elasticsearch.FoodIndex, util.Get())
	}
	return f.catalogIndex
}

func (f *Factory) SignupService() *service.SignupService {
	if f.signupService == nil {
		f.signupService = service.NewSignupService(
			f.SignupCache(),
			f.UserRepository(),
			f.hasher,
			f.encryptionManager,
			f.mailer,
			f.Recorder(),
			f.config.OTP,
			util.Get(),
		)
	}
	return f.signupService
}

func (f *Factory) CartService() *service.CartService {
	if f.cartService == nil {
		f.cartService = service.NewCartService(
			f.CartRepository(), f.FoodRepository(), f.Recorder(), util.Get())
	}
	return f.cartService
}

func (f *Factory) CatalogService() *service.CatalogService {
	if f.catalogService == nil {
		f.catalogService = service.NewCatalogService(
			f.FoodRepository(), f.CatalogIndex(), util.Get())
	}
	return f.catalogService
}

func (f *Factory) OrderService() *service.OrderService {
	if f.orderService == nil {
		f.orderService = service.NewOrderService(
			f.OrderRepository(), f.CartService(), f.Recorder(), util.Get())
	}
	return f.orderService
}

// HealthCheck reports the health of every initialized dependency.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

// IsHealthy reports whether the critical dependencies are reachable.
// Analytics sinks are best-effort and do not gate readiness.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	delete(healthErrors, "clickhouse")
	delete(healthErrors, "elasticsearch")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.recorder != nil {
			f.recorder.Flush(context.Background())
			f.recorder.Close()
			util.Info("Activity recorder closed")
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tlsutil.Manager {
	return f.tlsManager
}
