package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/internlink/auth-api/internal/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDB wraps the client and database handle for the document-store
// lockout backend.
type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
	logger   *slog.Logger
}

// NewMongoConnection connects to MongoDB and verifies the connection
func NewMongoConnection(cfg *config.MongoConfig, logger *slog.Logger) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("unable to ping mongodb: %w", err)
	}

	logger.Info("mongodb connection established",
		slog.String("database", cfg.Database),
		slog.Int("max_pool_size", int(cfg.MaxPoolSize)),
	)

	return &MongoDB{
		Client:   client,
		Database: client.Database(cfg.Database),
		logger:   logger,
	}, nil
}

func (m *MongoDB) Close(ctx context.Context) {
	m.logger.Info("closing mongodb connection")
	if err := m.Client.Disconnect(ctx); err != nil {
		m.logger.Error("mongodb disconnect failed", slog.Any("error", err))
	}
}
