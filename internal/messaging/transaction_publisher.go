package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	amqp "github.com/streadway/amqp"

	"portfolio-analytics-api/internal/config"
	"portfolio-analytics-api/internal/models"
)

// TransactionEvent is the message fanned out whenever a holding changes.
// Downstream consumers (alerting, audit) key on portfolio and symbol.
type TransactionEvent struct {
	EventID     string              `json:"event_id"`
	PortfolioID string              `json:"portfolio_id"`
	HoldingID   string              `json:"holding_id"`
	Type        string              `json:"type"`
	Symbol      string              `json:"symbol"`
	Shares      string              `json:"shares"`
	Price       string              `json:"price"`
	PublishedBy string              `json:"published_by"`
	Timestamp   time.Time           `json:"timestamp"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
}

// TransactionPublisher publishes holding change events to RabbitMQ. A nil
// publisher is valid and drops events, so the API runs without a broker.
type TransactionPublisher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *logrus.Logger
}

// NewTransactionPublisher connects to RabbitMQ and declares the transaction
// exchange. Returns nil without error when messaging is disabled.
func NewTransactionPublisher(cfg config.RabbitMQConfig, logger *logrus.Logger) (*TransactionPublisher, error) {
	if !cfg.Enabled {
		logger.Info("Transaction publishing disabled")
		return nil, nil
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		cfg.TransactionExchange, // name
		"topic",                 // type
		true,                    // durable
		false,                   // auto-deleted
		false,                   // internal
		false,                   // no-wait
		nil,                     // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.Infof("Transaction publisher initialized (exchange: %s, routing_key: %s)",
		cfg.TransactionExchange, cfg.TransactionRoutingKey)

	return &TransactionPublisher{
		conn:       conn,
		channel:    channel,
		exchange:   cfg.TransactionExchange,
		routingKey: cfg.TransactionRoutingKey,
		logger:     logger,
	}, nil
}

// Publish emits a transaction event. Safe to call on a nil publisher.
func (p *TransactionPublisher) Publish(tx *models.Transaction) error {
	if p == nil {
		return nil
	}

	event := TransactionEvent{
		EventID:     uuid.New().String(),
		PortfolioID: tx.PortfolioID.Hex(),
		HoldingID:   tx.HoldingID,
		Type:        tx.Type,
		Symbol:      tx.Symbol,
		Shares:      tx.Shares.String(),
		Price:       tx.Price.String(),
		PublishedBy: "portfolio-analytics-api",
		Timestamp:   time.Now(),
		Transaction: tx,
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction event: %w", err)
	}

	err = p.channel.Publish(
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			CorrelationId: event.EventID,
			ContentType:   "application/json",
			Body:          body,
			Timestamp:     event.Timestamp,
			DeliveryMode:  amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish transaction event: %w", err)
	}

	p.logger.Debugf("Published transaction event (event_id: %s, type: %s, symbol: %s)",
		event.EventID, event.Type, event.Symbol)
	return nil
}

// Close closes the publisher channel and connection.
func (p *TransactionPublisher) Close() error {
	if p == nil {
		return nil
	}
	if err := p.channel.Close(); err != nil {
		p.logger.Warnf("Error closing channel: %v", err)
	}
	if err := p.conn.Close(); err != nil {
		p.logger.Warnf("Error closing connection: %v", err)
		return err
	}
	p.logger.Info("Transaction publisher closed")
	return nil
}
