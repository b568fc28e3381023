package temporal

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// Config holds Temporal client configuration
type Config struct {
	HostPort  string
	Namespace string
	Identity  string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		HostPort:  "localhost:7233",
		Namespace: "default",
		Identity:  "shipping-worker",
	}
}

// TaskQueues contains the task queues served by this service
var TaskQueues = struct {
	Shipping string
}{
	Shipping: "shipping-queue",
}

// WorkflowNames contains the workflows registered by the shipping worker
var WorkflowNames = struct {
	ShipmentQuote string
}{
	ShipmentQuote: "ShipmentQuoteWorkflow",
}

// Client wraps the Temporal client
type Client struct {
	client client.Client
}

// NewClient dials the Temporal frontend.
func NewClient(ctx context.Context, config *Config) (*Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  config.HostPort,
		Namespace: config.Namespace,
		Identity:  config.Identity,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Temporal client: %w", err)
	}
	return &Client{client: c}, nil
}

// Client returns the underlying Temporal client
func (c *Client) Client() client.Client {
	return c.client
}

// Close closes the client connection
func (c *Client) Close() {
	c.client.Close()
}

// WorkerOptions holds worker configuration
type WorkerOptions struct {
	TaskQueue                          string
	MaxConcurrentActivityExecutionSize int
	MaxConcurrentWorkflowTaskPollers   int
	WorkerStopTimeout                  time.Duration
}

// DefaultWorkerOptions returns default worker options for a task queue
func DefaultWorkerOptions(taskQueue string) *WorkerOptions {
	return &WorkerOptions{
		TaskQueue:                          taskQueue,
		MaxConcurrentActivityExecutionSize: 100,
		MaxConcurrentWorkflowTaskPollers:   2,
		WorkerStopTimeout:                  30 * time.Second,
	}
}

// NewWorker creates a worker bound to this client
func (c *Client) NewWorker(opts *WorkerOptions) worker.Worker {
	return worker.New(c.client, opts.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: opts.MaxConcurrentActivityExecutionSize,
		MaxConcurrentWorkflowTaskPollers:   opts.MaxConcurrentWorkflowTaskPollers,
		WorkerStopTimeout:                  opts.WorkerStopTimeout,
	})
}
