// Package mongodb connects the shipping engine to the MongoDB deployment that
// stores shipments, their event history, the outbox and idempotency keys.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// ErrTransactionsUnsupported is returned when the deployment is a standalone
// server. A shipment, its events and its outbox records are written in one
// transaction, which needs a replica set or a sharded cluster.
var ErrTransactionsUnsupported = errors.New("mongodb deployment does not support transactions")

// Config holds MongoDB connection configuration
type Config struct {
	URI        string
	Database   string
	AppName    string
	ReplicaSet string
	// Direct connects to the single host in URI without discovering the
	// rest of the replica set.
	Direct bool

	ConnectTimeout time.Duration
	PingTimeout    time.Duration
	MaxPoolSize    uint64
	MinPoolSize    uint64
}

// DefaultConfig returns the local development settings for appName.
func DefaultConfig(appName string) *Config {
	return &Config{
		URI:            "mongodb://localhost:27017",
		Database:       "shipping_db",
		AppName:        appName,
		ConnectTimeout: 10 * time.Second,
		PingTimeout:    5 * time.Second,
		MaxPoolSize:    100,
		MinPoolSize:    10,
	}
}

// Validate reports the first setting that would keep the client from
// connecting.
func (c *Config) Validate() error {
	switch {
	case c.URI == "":
		return errors.New("mongodb: URI is required")
	case c.Database == "":
		return errors.New("mongodb: database is required")
	case c.ConnectTimeout <= 0:
		return errors.New("mongodb: connect timeout must be positive")
	case c.MaxPoolSize > 0 && c.MinPoolSize > c.MaxPoolSize:
		return fmt.Errorf("mongodb: min pool size %d exceeds max pool size %d", c.MinPoolSize, c.MaxPoolSize)
	}
	return nil
}

func (c *Config) clientOptions() *options.ClientOptions {
	opts := options.Client().
		ApplyURI(c.URI).
		SetAppName(c.AppName).
		SetConnectTimeout(c.ConnectTimeout).
		SetServerSelectionTimeout(c.ConnectTimeout).
		SetMaxPoolSize(c.MaxPoolSize).
		SetMinPoolSize(c.MinPoolSize).
		SetRetryWrites(true).
		SetWriteConcern(writeconcern.Majority()).
		SetReadConcern(readconcern.Majority())
	if c.ReplicaSet != "" {
		opts.SetReplicaSet(c.ReplicaSet)
	}
	if c.Direct {
		opts.SetDirect(true)
	}
	return opts
}

func (c *Config) pingTimeout() time.Duration {
	if c.PingTimeout > 0 {
		return c.PingTimeout
	}
	return 5 * time.Second
}

// Deployment describes the topology the client connected to.
type Deployment struct {
	ReplicaSet string
	Sharded    bool
}

// SupportsTransactions reports whether multi-document transactions are
// available.
func (d Deployment) SupportsTransactions() bool {
	return d.ReplicaSet != "" || d.Sharded
}

// Client wraps the MongoDB client with the shipping database
type Client struct {
	client      *mongo.Client
	database    *mongo.Database
	deployment  Deployment
	pingTimeout time.Duration
}

// NewClient connects, pings the primary and checks that the deployment can run
// the transactions shipment writes depend on.
func NewClient(ctx context.Context, config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := mongo.Connect(ctx, config.clientOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	c := &Client{
		client:      client,
		database:    client.Database(config.Database),
		pingTimeout: config.pingTimeout(),
	}
	if err := c.HealthCheck(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	c.deployment, err = describe(ctx, client)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	if !c.deployment.SupportsTransactions() {
		_ = client.Disconnect(ctx)
		return nil, ErrTransactionsUnsupported
	}
	return c, nil
}

func describe(ctx context.Context, client *mongo.Client) (Deployment, error) {
	var reply struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&reply)
	if err != nil {
		return Deployment{}, fmt.Errorf("failed to describe MongoDB deployment: %w", err)
	}
	return Deployment{ReplicaSet: reply.SetName, Sharded: reply.Msg == "isdbgrid"}, nil
}

// Database returns the shipping database handle
func (c *Client) Database() *mongo.Database {
	return c.database
}

// Deployment returns the topology found at connect time.
func (c *Client) Deployment() Deployment {
	return c.deployment
}

// Close disconnects the client
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// HealthCheck pings the primary, bounded by the configured ping timeout.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.pingTimeout)
	defer cancel()
	return c.client.Ping(ctx, readpref.Primary())
}
