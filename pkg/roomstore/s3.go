package roomstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/balco-dev/balco/pkg/board"
	"github.com/sony/gobreaker"
)

// DefaultS3Key is the object S3Backend writes unless told otherwise.
const DefaultS3Key = "balco/rooms.json"

// S3API is the part of *s3.Client the backend uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Backend stores every room as one JSON object. Requests pass through a
// circuit breaker so an unreachable bucket fails fast instead of stalling
// every mutation for the SDK's full retry budget.
type S3Backend struct {
	client  S3API
	bucket  string
	key     string
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// S3Option configures an S3Backend.
type S3Option func(*s3Config)

type s3Config struct {
	key         string
	logger      *slog.Logger
	maxFailures uint32
	openTimeout time.Duration
}

// WithS3Key sets the object key. Default: "balco/rooms.json".
func WithS3Key(key string) S3Option {
	return func(c *s3Config) {
		if key != "" {
			c.key = key
		}
	}
}

// WithS3Logger sets the logger used for breaker state changes.
func WithS3Logger(logger *slog.Logger) S3Option {
	return func(c *s3Config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBreaker sets how many consecutive failures open the breaker and how
// long it stays open. Default: 5 failures, 30 seconds.
func WithBreaker(maxFailures uint32, openTimeout time.Duration) S3Option {
	return func(c *s3Config) {
		c.maxFailures = maxFailures
		c.openTimeout = openTimeout
	}
}

// NewS3Backend returns a backend storing rooms in bucket.
func NewS3Backend(client S3API, bucket string, opts ...S3Option) *S3Backend {
	cfg := &s3Config{
		key:         DefaultS3Key,
		logger:      slog.Default(),
		maxFailures: 5,
		openTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	b := &S3Backend{
		client: client,
		bucket: bucket,
		key:    cfg.key,
		logger: cfg.logger.With("component", "roomstore", "backend", "s3"),
	}
	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "roomstore-s3",
		MaxRequests: 1,
		Timeout:     cfg.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isNoSuchKey(err)
		},
	})
	return b
}

// Load fetches and decodes the object. A missing object is an empty mapping.
func (b *S3Backend) Load(ctx context.Context) (map[string]board.Snapshot, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(b.key),
		})
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return io.ReadAll(resp.Body)
	})
	if isNoSuchKey(err) {
		return map[string]board.Snapshot{}, nil
	}
	if err != nil {
		return nil, backendErr("s3", "load", err)
	}

	data := out.([]byte)
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]board.Snapshot{}, nil
	}
	rooms, err := decodeRooms(data, FormatJSON)
	if err != nil {
		return nil, backendErr("s3", "load", fmt.Errorf("parse s3://%s/%s: %w", b.bucket, b.key, err))
	}
	return rooms, nil
}

// Save encodes rooms and overwrites the object.
func (b *S3Backend) Save(ctx context.Context, rooms map[string]board.Snapshot) error {
	data, err := encodeRooms(rooms, FormatJSON)
	if err != nil {
		return backendErr("s3", "save", err)
	}
	_, err = b.breaker.Execute(func() (interface{}, error) {
		return b.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(b.bucket),
			Key:         aws.String(b.key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
	})
	return backendErr("s3", "save", err)
}

// State returns the circuit breaker state.
func (b *S3Backend) State() gobreaker.State {
	return b.breaker.State()
}

// Close is a no-op; the client is owned by the caller.
func (b *S3Backend) Close() error {
	return nil
}

func isNoSuchKey(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

var _ Backend = (*S3Backend)(nil)
