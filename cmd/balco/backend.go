package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/balco-dev/balco/internal/config"
	"github.com/balco-dev/balco/internal/errors"
	"github.com/balco-dev/balco/pkg/roomstore"
)

// openBackend builds the durable store selected by cfg.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (roomstore.Backend, error) {
	sc := cfg.Store
	switch sc.Kind {
	case config.StoreFile:
		var opts []roomstore.FileOption
		if sc.Format != "" {
			opts = append(opts, roomstore.WithFormat(roomstore.Format(sc.Format)))
		}
		return roomstore.NewFileBackend(sc.DataFile, opts...), nil

	case config.StoreSQLite:
		if dir := filepath.Dir(sc.SQLitePath); dir != "." && sc.SQLitePath != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.New(errors.CodeSQLiteOpen).Wrap(err)
			}
		}
		b, err := roomstore.OpenSQLite(ctx, sc.SQLitePath)
		if err != nil {
			return nil, errors.New(errors.CodeSQLiteOpen).Wrap(err).
				WithSuggestion("Check that " + sc.SQLitePath + " is writable and not locked by another process")
		}
		return b, nil

	case config.StoreS3:
		client, err := newS3Client(ctx, sc.S3)
		if err != nil {
			return nil, err
		}
		return roomstore.NewS3Backend(client, sc.S3.Bucket,
			roomstore.WithS3Key(sc.S3.Key),
			roomstore.WithS3Logger(logger),
			roomstore.WithBreaker(sc.S3.BreakerFailures, sc.S3.BreakerTimeout.Std()),
		), nil

	case config.StoreMemory:
		return roomstore.NewMemoryBackend(), nil
	}
	return nil, errors.New(errors.CodeInvalidStore).WithDetailf("Store kind %q is not supported", sc.Kind)
}

func newS3Client(ctx context.Context, sc config.S3Config) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if sc.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(sc.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.New(errors.CodeS3Config).Wrap(err).
			WithSuggestion("Set AWS_REGION and credentials, or BALCO_S3_REGION")
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if sc.Endpoint != "" {
			o.BaseEndpoint = aws.String(sc.Endpoint)
		}
		o.UsePathStyle = sc.UsePathStyle
	}), nil
}

// newLogger builds the process logger from the log settings.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Log.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("service", "balco"), nil
}
