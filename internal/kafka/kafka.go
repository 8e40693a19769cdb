// Package kafka wires the engine to the event bus: it publishes
// analysis lifecycle events and consumes graph-update and
// analysis-request events.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/graphintel/insight-engine/internal/config"
	"github.com/graphintel/insight-engine/internal/insights"
)

// Runner is the slice of the analysis engine the consumer drives.
type Runner interface {
	InvalidateSnapshot()
	RunScheduledAnalysis(ctx context.Context) error
}

// Consumer handles Kafka message consumption.
type Consumer struct {
	consumer sarama.ConsumerGroup
	runner   Runner
	config   config.Config
	logger   *slog.Logger
	topics   []string
	ctx      context.Context
	cancel   context.CancelFunc
}

// Producer handles Kafka message production.
type Producer struct {
	producer sarama.SyncProducer
	config   config.Config
	logger   *slog.Logger
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(runner Runner, config config.Config, logger *slog.Logger) (*Consumer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	kafkaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	kafkaConfig.Consumer.Group.Session.Timeout = 10 * time.Second
	kafkaConfig.Consumer.Group.Heartbeat.Interval = 3 * time.Second
	kafkaConfig.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumerGroup(config.Kafka.Brokers, config.Kafka.GroupID, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	topics := []string{
		config.Kafka.Topics.GraphUpdated,
		config.Kafka.Topics.AnalysisRequested,
	}

	return &Consumer{
		consumer: consumer,
		runner:   runner,
		config:   config,
		logger:   logger,
		topics:   topics,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// NewProducer creates a new Kafka producer.
func NewProducer(config config.Config, logger *slog.Logger) (*Producer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Retry.Max = 5
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Partitioner = sarama.NewRandomPartitioner

	producer, err := sarama.NewSyncProducer(config.Kafka.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	return &Producer{
		producer: producer,
		config:   config,
		logger:   logger,
	}, nil
}

// Start begins consuming messages.
func (c *Consumer) Start() error {
	c.logger.Info("Starting Kafka consumer",
		"topics", c.topics,
		"group_id", c.config.Kafka.GroupID)

	go func() {
		for {
			select {
			case <-c.ctx.Done():
				return
			default:
				if err := c.consumer.Consume(c.ctx, c.topics, c); err != nil {
					c.logger.Error("Error consuming from Kafka", "error", err)
					time.Sleep(5 * time.Second) // Wait before retrying
				}
			}
		}
	}()

	go func() {
		for {
			select {
			case err := <-c.consumer.Errors():
				c.logger.Error("Kafka consumer error", "error", err)
			case <-c.ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the consumer.
func (c *Consumer) Stop() error {
	c.logger.Info("Stopping Kafka consumer")
	c.cancel()
	return c.consumer.Close()
}

// Setup implements sarama.ConsumerGroupHandler.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	c.logger.Info("Kafka consumer group session setup")
	return nil
}

// Cleanup implements sarama.ConsumerGroupHandler.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	c.logger.Info("Kafka consumer group session cleanup")
	return nil
}

// ConsumeClaim implements sarama.ConsumerGroupHandler.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			if err := c.handleMessage(message); err != nil {
				c.logger.Error("Failed to handle message",
					"topic", message.Topic,
					"partition", message.Partition,
					"offset", message.Offset,
					"error", err)
			} else {
				session.MarkMessage(message, "")
			}

		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) handleMessage(message *sarama.ConsumerMessage) error {
	c.logger.Debug("Received Kafka message",
		"topic", message.Topic,
		"partition", message.Partition,
		"offset", message.Offset)

	switch message.Topic {
	case c.config.Kafka.Topics.GraphUpdated:
		return c.handleGraphUpdatedEvent(message)
	case c.config.Kafka.Topics.AnalysisRequested:
		return c.handleAnalysisRequestedEvent(message)
	default:
		c.logger.Warn("Unknown topic", "topic", message.Topic)
		return nil
	}
}

// handleGraphUpdatedEvent invalidates the current snapshot so the next
// analysis sees the new graph state.
func (c *Consumer) handleGraphUpdatedEvent(message *sarama.ConsumerMessage) error {
	var event GraphUpdatedEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal graph updated event: %w", err)
	}

	c.logger.Info("Processing graph updated event",
		"source", event.Source,
		"entity_count", event.EntityCount,
		"relationship_count", event.RelationshipCount)

	c.runner.InvalidateSnapshot()
	return nil
}

// handleAnalysisRequestedEvent triggers a full analysis run.
func (c *Consumer) handleAnalysisRequestedEvent(message *sarama.ConsumerMessage) error {
	var event AnalysisRequestedEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal analysis requested event: %w", err)
	}

	c.logger.Info("Processing analysis requested event",
		"request_id", event.RequestID,
		"requested_by", event.RequestedBy)

	if err := c.runner.RunScheduledAnalysis(c.ctx); err != nil {
		return fmt.Errorf("failed to run requested analysis: %w", err)
	}
	return nil
}

// PublishAnalysisCompleted publishes an analysis completion event.
func (p *Producer) PublishAnalysisCompleted(ctx context.Context, event *AnalysisCompletedEvent) error {
	return p.publishEvent(ctx, p.config.Kafka.Topics.AnalysisCompleted, event)
}

// PublishInsightsGenerated publishes generated insights downstream.
func (p *Producer) PublishInsightsGenerated(ctx context.Context, event *InsightsGeneratedEvent) error {
	return p.publishEvent(ctx, p.config.Kafka.Topics.InsightsGenerated, event)
}

func (p *Producer) publishEvent(ctx context.Context, topic string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.StringEncoder(data),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("content-type"),
				Value: []byte("application/json"),
			},
			{
				Key:   []byte("timestamp"),
				Value: []byte(fmt.Sprintf("%d", time.Now().Unix())),
			},
		},
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to send message to topic %s: %w", topic, err)
	}

	p.logger.Debug("Published event to Kafka",
		"topic", topic,
		"partition", partition,
		"offset", offset)

	return nil
}

// Close closes the producer.
func (p *Producer) Close() error {
	return p.producer.Close()
}

// Event types

// GraphUpdatedEvent signals that upstream ingestion changed the graph.
type GraphUpdatedEvent struct {
	Source            string    `json:"source"`
	EntityCount       int       `json:"entity_count"`
	RelationshipCount int       `json:"relationship_count"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// AnalysisRequestedEvent requests a full analysis run.
type AnalysisRequestedEvent struct {
	RequestID   string    `json:"request_id"`
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

// AnalysisCompletedEvent reports a finished analysis run.
type AnalysisCompletedEvent struct {
	JobID           string    `json:"job_id"`
	SnapshotVersion int64     `json:"snapshot_version"`
	CommunityCount  int       `json:"community_count"`
	InsightCount    int       `json:"insight_count"`
	DurationMillis  int64     `json:"duration_millis"`
	CompletedAt     time.Time `json:"completed_at"`
}

// InsightsGeneratedEvent carries generated insights to downstream
// consumers.
type InsightsGeneratedEvent struct {
	JobID           string              `json:"job_id"`
	SnapshotVersion int64               `json:"snapshot_version"`
	Insights        []*insights.Insight `json:"insights"`
	GeneratedAt     time.Time           `json:"generated_at"`
}
