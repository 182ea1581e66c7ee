package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/invoice-extraction/internal/infrastructure/resilience"
)

const workerQueueGroup = "extraction-workers"

type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

// Options tune the connection. Zero values pick the defaults below.
type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 2 * time.Second
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 2 * time.Second
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = 60
	}
	if o.RetryOnFailedConnect == nil {
		retry := true
		o.RetryOnFailedConnect = &retry
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func (o Options) natsOptions() []nats.Option {
	logger := o.Logger
	return []nats.Option{
		nats.Name("invoice-extraction"),
		nats.Timeout(o.ConnectTimeout),
		nats.ReconnectWait(o.ReconnectWait),
		nats.MaxReconnects(o.MaxReconnects),
		nats.RetryOnFailedConnect(*o.RetryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	}
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	options = options.withDefaults()
	conn, err := nats.Connect(url, options.natsOptions()...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &Queue{conn: conn, subject: subject, executor: options.ResilienceExecutor, logger: options.Logger}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// sampleUploadedEvent is the wire payload of an upload notification.
type sampleUploadedEvent struct {
	SampleID    string    `json:"sampleId"`
	PublishedAt time.Time `json:"publishedAt"`
}

func (q *Queue) PublishSampleUploaded(ctx context.Context, sampleID string) error {
	payload, err := json.Marshal(sampleUploadedEvent{SampleID: sampleID, PublishedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal upload event: %w", err)
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, operationPublish, call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeSampleUploaded delivers events to handler until ctx is done, then
// drains the subscription so in-flight messages finish.
func (q *Queue) SubscribeSampleUploaded(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerQueueGroup, func(msg *nats.Msg) {
		q.dispatch(ctx, msg, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", q.subject, err)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	return q.conn.FlushTimeout(5 * time.Second)
}

func (q *Queue) dispatch(ctx context.Context, msg *nats.Msg, handler func(context.Context, string) error) {
	if ctx.Err() != nil {
		return
	}
	sampleID, err := decodeSampleUploaded(msg.Data)
	if err != nil {
		q.logger.Warn("upload_event_rejected", "subject", msg.Subject, "error", err)
		return
	}
	if err := handler(ctx, sampleID); err != nil {
		q.logger.Error("upload_event_handler_failed", "sample_id", sampleID, "error", err)
	}
}

// decodeSampleUploaded accepts the JSON event and, for older publishers, a
// bare sample id.
func decodeSampleUploaded(data []byte) (string, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return "", errors.New("empty event payload")
	}
	if !strings.HasPrefix(trimmed, "{") {
		return trimmed, nil
	}
	var event sampleUploadedEvent
	if err := json.Unmarshal([]byte(trimmed), &event); err != nil {
		return "", fmt.Errorf("decode upload event: %w", err)
	}
	if strings.TrimSpace(event.SampleID) == "" {
		return "", errors.New("upload event without sampleId")
	}
	return event.SampleID, nil
}
