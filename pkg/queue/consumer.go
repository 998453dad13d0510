// Package queue implements the durable ingress: a shared Pulsar subscription
// whose acknowledgement discipline encodes the processing outcome. A message
// is acknowledged iff its result was published (success reply or graceful
// error); everything else is negatively acknowledged so the broker
// redelivers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"golang.org/x/sync/semaphore"

	"arc-framework/sherlock/pkg/config"
	"arc-framework/sherlock/pkg/graph"
	"arc-framework/sherlock/pkg/telemetry"
)

// receiveTimeout bounds each Receive call so Stop is prompt.
const receiveTimeout = 5 * time.Second

// maxInFlight caps concurrent message processing per replica. Receipt stays
// unblocked while long inferences run; anything beyond the cap waits here
// instead of piling up goroutines.
const maxInFlight = 64

// Invoker runs one request through the reasoning pipeline.
type Invoker interface {
	Invoke(ctx context.Context, userID, text string) (string, error)
}

// messageConsumer is the slice of pulsar.Consumer the loop needs.
type messageConsumer interface {
	Receive(ctx context.Context) (pulsar.Message, error)
	Ack(msg pulsar.Message) error
	Nack(msg pulsar.Message)
	Close()
}

// resultPublisher is the slice of pulsar.Producer the loop needs.
type resultPublisher interface {
	Send(ctx context.Context, msg *pulsar.ProducerMessage) (pulsar.MessageID, error)
	Close()
}

// requestPayload is the inbound message body. All three keys are required;
// a missing key is a malformed payload and takes the redelivery path.
type requestPayload struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
}

// resultPayload is the outbound result. Text is present only on success;
// Error only on graceful failure.
type resultPayload struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Consumer owns the Pulsar client, the shared subscription, and the result
// producer for the service lifetime.
type Consumer struct {
	cfg      config.PulsarConfig
	pipeline Invoker
	metrics  *telemetry.Metrics

	client   pulsar.Client
	consumer messageConsumer
	producer resultPublisher

	sem      *semaphore.Weighted
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewConsumer builds an unconnected consumer; call Start to connect and
// begin receiving.
func NewConsumer(cfg config.PulsarConfig, pipeline Invoker, metrics *telemetry.Metrics) *Consumer {
	return &Consumer{
		cfg:      cfg,
		pipeline: pipeline,
		metrics:  metrics,
		sem:      semaphore.NewWeighted(maxInFlight),
	}
}

// Start connects to Pulsar, joins the shared subscription on the request
// topic, creates the result producer, and launches the receive loop.
func (c *Consumer) Start(ctx context.Context) error {
	client, err := pulsar.NewClient(pulsar.ClientOptions{
		URL: c.cfg.URL,
	})
	if err != nil {
		return fmt.Errorf("creating pulsar client: %w", err)
	}

	consumer, err := client.Subscribe(pulsar.ConsumerOptions{
		Topic:            c.cfg.RequestTopic,
		SubscriptionName: c.cfg.Subscription,
		Type:             pulsar.Shared,
	})
	if err != nil {
		client.Close()
		return fmt.Errorf("subscribing to %s: %w", c.cfg.RequestTopic, err)
	}

	producer, err := client.CreateProducer(pulsar.ProducerOptions{
		Topic: c.cfg.ResultTopic,
	})
	if err != nil {
		consumer.Close()
		client.Close()
		return fmt.Errorf("creating producer for %s: %w", c.cfg.ResultTopic, err)
	}

	c.client = client
	c.consumer = consumer
	c.producer = producer

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.receiveLoop(loopCtx)
	}()

	slog.Info("Pulsar ingress started",
		"request_topic", c.cfg.RequestTopic,
		"result_topic", c.cfg.ResultTopic,
		"subscription", c.cfg.Subscription)
	return nil
}

// receiveLoop receives until the context is cancelled. Each Receive is
// bounded by receiveTimeout; each message is processed on its own goroutine
// so a slow inference never stalls receipt.
func (c *Consumer) receiveLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		recvCtx, cancel := context.WithTimeout(ctx, receiveTimeout)
		msg, err := c.consumer.Receive(recvCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Timed-out receive on an idle topic; keep polling.
			continue
		}

		if err := c.sem.Acquire(ctx, 1); err != nil {
			c.consumer.Nack(msg)
			return
		}

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer c.sem.Release(1)
			c.process(ctx, msg)
		}()
	}
}

// process drives one message to exactly one of Ack or Nack.
func (c *Consumer) process(ctx context.Context, msg pulsar.Message) {
	ctx = telemetry.WithTransport(ctx, telemetry.TransportPulsar)
	c.metrics.RecordRequest(ctx, telemetry.TransportPulsar)
	start := time.Now()

	var req requestPayload
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		slog.Warn("Failed to decode queue message, redelivering", "error", err)
		c.nack(ctx, msg)
		return
	}
	if strings.TrimSpace(req.RequestID) == "" ||
		strings.TrimSpace(req.UserID) == "" ||
		strings.TrimSpace(req.Text) == "" {
		slog.Warn("Queue message missing required keys, redelivering",
			"request_id", req.RequestID, "user_id", req.UserID)
		c.nack(ctx, msg)
		return
	}

	reply, err := c.pipeline.Invoke(ctx, req.UserID, req.Text)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		if graceful, ok := graph.AsGraceful(err); ok {
			// Retries were exhausted; the message counts as processed.
			// Publish the error result and consume the message.
			if pubErr := c.publish(ctx, &resultPayload{
				RequestID: req.RequestID,
				Error:     graceful.Message,
				LatencyMS: latency,
			}); pubErr != nil {
				slog.Error("Failed to publish error result, redelivering",
					"request_id", req.RequestID, "error", pubErr)
				c.nack(ctx, msg)
				return
			}
			c.metrics.RecordError(ctx, telemetry.TransportPulsar)
			c.ack(msg)
			return
		}

		slog.Error("Queue message processing failed, redelivering",
			"request_id", req.RequestID, "error", err)
		c.nack(ctx, msg)
		return
	}

	if pubErr := c.publish(ctx, &resultPayload{
		RequestID: req.RequestID,
		UserID:    req.UserID,
		Text:      reply,
		LatencyMS: latency,
	}); pubErr != nil {
		slog.Error("Failed to publish result, redelivering",
			"request_id", req.RequestID, "error", pubErr)
		c.nack(ctx, msg)
		return
	}

	c.metrics.RecordLatency(ctx, telemetry.TransportPulsar, latency)
	c.ack(msg)
}

func (c *Consumer) publish(ctx context.Context, result *resultPayload) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshalling result: %w", err)
	}
	_, err = c.producer.Send(ctx, &pulsar.ProducerMessage{Payload: data})
	return err
}

func (c *Consumer) ack(msg pulsar.Message) {
	if err := c.consumer.Ack(msg); err != nil {
		slog.Error("Failed to ack queue message", "error", err)
	}
}

func (c *Consumer) nack(ctx context.Context, msg pulsar.Message) {
	c.metrics.RecordError(ctx, telemetry.TransportPulsar)
	c.consumer.Nack(msg)
}

// Stop cancels the receive loop, waits for in-flight messages to finish,
// and closes the transport.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		slog.Info("Stopping Pulsar ingress")
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()

		if c.producer != nil {
			c.producer.Close()
		}
		if c.consumer != nil {
			c.consumer.Close()
		}
		if c.client != nil {
			c.client.Close()
		}
		slog.Info("Pulsar ingress stopped")
	})
}
