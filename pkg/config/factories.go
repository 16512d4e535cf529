package config

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsS3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/omnifs/internal/logger"
	"github.com/marmos91/omnifs/internal/ratelimiter"
	"github.com/marmos91/omnifs/pkg/metrics"
	"github.com/marmos91/omnifs/pkg/storage"
	"github.com/marmos91/omnifs/pkg/storage/badger"
	"github.com/marmos91/omnifs/pkg/storage/gcs"
	"github.com/marmos91/omnifs/pkg/storage/local"
	"github.com/marmos91/omnifs/pkg/storage/s3"
	"github.com/minio/minio-go/v7"
	minioCredentials "github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultGCSEndpoint is the S3-interoperable endpoint of Google Cloud Storage.
const DefaultGCSEndpoint = "storage.googleapis.com"

// CreateAdapter creates a storage adapter based on configuration.
//
// This factory function uses the Type field to determine which adapter
// implementation to create, then decodes the type-specific options map and
// passes it to the adapter's constructor.
//
// Supported types:
//   - "local": Uses pkg/storage/local (local filesystem)
//   - "s3": Uses pkg/storage/s3 (Amazon S3 or compatible storage)
//   - "gcs": Uses pkg/storage/gcs (GCS interoperability API or any S3-compatible endpoint)
//   - "badger": Uses pkg/storage/badger (embedded BadgerDB)
//
// When RateLimit.RequestsPerSecond is set every call is throttled. When m is
// not nil the adapter is wrapped by metrics.Instrument and the object stores
// report their multipart parts to it. Instrumentation sits outside the
// throttle, so observed durations include the time spent waiting.
//
// The returned closer releases resources owned by the adapter. It is never
// nil.
func CreateAdapter(ctx context.Context, cfg *StorageConfig, m *metrics.StorageMetrics) (storage.Adapter, io.Closer, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var (
		adapter storage.Adapter
		closer  io.Closer = nopCloser{}
		err     error
	)

	switch cfg.Type {
	case "local":
		adapter, err = createLocalAdapter(ctx, cfg.Options)
	case "s3":
		adapter, err = createS3Adapter(ctx, cfg.Name, cfg.Options, m)
	case "gcs":
		adapter, err = createGCSAdapter(ctx, cfg.Name, cfg.Options, m)
	case "badger":
		var b *badger.BadgerAdapter
		b, err = createBadgerAdapter(ctx, cfg.Options)
		if err == nil {
			adapter, closer = b, b
		}
	default:
		return nil, nil, fmt.Errorf("unknown storage type: %q (supported: local, s3, gcs, badger)", cfg.Type)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("storage %q: %w", cfg.Name, err)
	}

	if rl := cfg.RateLimit; rl.RequestsPerSecond > 0 {
		adapter = ratelimiter.Throttle(adapter, ratelimiter.New(rl.RequestsPerSecond, rl.Burst))
		logger.Debug("Storage %s throttled to %d req/s", cfg.Name, rl.RequestsPerSecond)
	}

	return metrics.Instrument(cfg.Name, adapter, m), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// createLocalAdapter creates a local filesystem adapter.
func createLocalAdapter(ctx context.Context, options map[string]any) (storage.Adapter, error) {
	type LocalAdapterConfig struct {
		Root            string      `mapstructure:"root"`
		FilePermissions os.FileMode `mapstructure:"file_permissions"`
		DirPermissions  os.FileMode `mapstructure:"dir_permissions"`
	}

	var adapterCfg LocalAdapterConfig
	if err := storage.Decode(options, &adapterCfg); err != nil {
		return nil, fmt.Errorf("failed to decode local adapter config: %w", err)
	}

	if adapterCfg.Root == "" {
		return nil, fmt.Errorf("local adapter: root is required")
	}

	adapter, err := local.New(ctx, local.Config{
		Root:            adapterCfg.Root,
		FilePermissions: adapterCfg.FilePermissions,
		DirPermissions:  adapterCfg.DirPermissions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create local adapter: %w", err)
	}

	logger.Info("Local storage initialized: root=%s", adapterCfg.Root)
	return adapter, nil
}

// createS3Adapter creates an S3-based adapter.
func createS3Adapter(ctx context.Context, name string, options map[string]any, m *metrics.StorageMetrics) (storage.Adapter, error) {
	type S3AdapterConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		Prefix          string `mapstructure:"prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
		SkipBucketCheck bool   `mapstructure:"skip_bucket_check"`
	}

	var adapterCfg S3AdapterConfig
	if err := storage.Decode(options, &adapterCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 adapter config: %w", err)
	}

	if adapterCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 adapter: bucket is required")
	}
	if adapterCfg.Region == "" {
		return nil, fmt.Errorf("S3 adapter: region is required")
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(adapterCfg.Region),
	}

	// Set credentials if provided, otherwise use default credential chain
	if adapterCfg.AccessKeyID != "" && adapterCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			adapterCfg.AccessKeyID,
			adapterCfg.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := adapterCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := awsS3.NewFromConfig(awsCfg, func(o *awsS3.Options) {
		// Custom endpoints (MinIO, Localstack) need path-style addressing
		if adapterCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(adapterCfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create S3 Adapter
	// ========================================================================

	s3Cfg := s3.Config{
		Client:          client,
		Bucket:          adapterCfg.Bucket,
		Prefix:          adapterCfg.Prefix,
		SkipBucketCheck: adapterCfg.SkipBucketCheck,
	}
	if m != nil {
		s3Cfg.Metrics = m.ForStorage(name)
	}

	adapter, err := s3.New(ctx, s3Cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 adapter: %w", err)
	}

	logger.Info("S3 storage initialized: bucket=%s, region=%s, prefix=%s",
		adapterCfg.Bucket, adapterCfg.Region, adapterCfg.Prefix)

	return adapter, nil
}

// createGCSAdapter creates an adapter on a GCS-like object store.
func createGCSAdapter(ctx context.Context, name string, options map[string]any, m *metrics.StorageMetrics) (storage.Adapter, error) {
	type GCSAdapterConfig struct {
		Endpoint        string `mapstructure:"endpoint"`
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		Prefix          string `mapstructure:"prefix"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		Insecure        bool   `mapstructure:"insecure"`
		SkipBucketCheck bool   `mapstructure:"skip_bucket_check"`
	}

	var adapterCfg GCSAdapterConfig
	if err := storage.Decode(options, &adapterCfg); err != nil {
		return nil, fmt.Errorf("failed to decode GCS adapter config: %w", err)
	}

	if adapterCfg.Bucket == "" {
		return nil, fmt.Errorf("GCS adapter: bucket is required")
	}
	if adapterCfg.Endpoint == "" {
		adapterCfg.Endpoint = DefaultGCSEndpoint
	}

	// HMAC keys when given, otherwise the environment (MINIO_*/AWS_* variables)
	creds := minioCredentials.NewEnvMinio()
	if adapterCfg.AccessKeyID != "" && adapterCfg.SecretAccessKey != "" {
		creds = minioCredentials.NewStaticV4(adapterCfg.AccessKeyID, adapterCfg.SecretAccessKey, "")
	}

	core, err := gcs.NewCore(adapterCfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: !adapterCfg.Insecure,
		Region: adapterCfg.Region,
	})
	if err != nil {
		return nil, err
	}

	gcsCfg := gcs.Config{
		Client:          core,
		Bucket:          adapterCfg.Bucket,
		Prefix:          adapterCfg.Prefix,
		SkipBucketCheck: adapterCfg.SkipBucketCheck,
	}
	if m != nil {
		gcsCfg.Metrics = m.ForStorage(name)
	}

	adapter, err := gcs.New(ctx, gcsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS adapter: %w", err)
	}

	logger.Info("GCS storage initialized: endpoint=%s, bucket=%s, prefix=%s",
		adapterCfg.Endpoint, adapterCfg.Bucket, adapterCfg.Prefix)

	return adapter, nil
}

// createBadgerAdapter creates a BadgerDB-backed adapter that owns its database.
func createBadgerAdapter(ctx context.Context, options map[string]any) (*badger.BadgerAdapter, error) {
	type BadgerAdapterConfig struct {
		Path      string `mapstructure:"path"`
		InMemory  bool   `mapstructure:"in_memory"`
		Prefix    string `mapstructure:"prefix"`
		ChunkSize int    `mapstructure:"chunk_size"`
	}

	var adapterCfg BadgerAdapterConfig
	if err := storage.Decode(options, &adapterCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger adapter config: %w", err)
	}

	adapter, err := badger.New(ctx, badger.Config{
		Path:      adapterCfg.Path,
		InMemory:  adapterCfg.InMemory,
		Prefix:    adapterCfg.Prefix,
		ChunkSize: adapterCfg.ChunkSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger adapter: %w", err)
	}

	logger.Info("Badger storage initialized: path=%s, in_memory=%t", adapterCfg.Path, adapterCfg.InMemory)
	return adapter, nil
}
