// Package nats fans session events out to a NATS subject.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
	"github.com/kirillkom/rag-document-assistant/internal/infrastructure/resilience"
)

const DefaultSubject = "rag.session.events"

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

type Publisher struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	publish  func(subject string, data []byte) error
}

func New(url, subject string) (*Publisher, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Publisher, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 30
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	if subject == "" {
		subject = DefaultSubject
	}

	conn, err := nats.Connect(
		url,
		nats.Name("rag-document-assistant"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		publish:  conn.Publish,
	}, nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		if err := p.conn.FlushTimeout(2 * time.Second); err != nil {
			slog.Warn("nats_flush_failed", "error", err)
		}
		p.conn.Close()
	}
}

// PublishSessionEvent delivers at least once. Connection errors are retried
// through the executor, and a publish that reached the server before its error
// surfaced is sent again, so subscribers may see the same event twice and
// should dedupe on session_id, kind and at.
func (p *Publisher) PublishSessionEvent(ctx context.Context, event domain.SessionEvent) error {
	payload, err := EncodeEvent(event)
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := p.publish(p.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if p.executor != nil {
		// Idempotent here only opts into retries; the event itself may be duplicated.
		err = p.executor.Execute(ctx, resilience.Operation{Name: "nats.publish", Idempotent: true}, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

func EncodeEvent(event domain.SessionEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode session event: %w", err)
	}
	return payload, nil
}
