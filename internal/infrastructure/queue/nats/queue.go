package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/decision-assistant/internal/infrastructure/resilience"
)

const (
	DefaultIngestSubject = "documents.ingest"
	DefaultCorpusSubject = "corpus.changed"
	workerQueueGroup     = "workers"
)

// Queue carries document ingestion jobs on a work-queue subject and corpus
// change broadcasts on a fan-out subject.
type Queue struct {
	conn          *nats.Conn
	subject       string
	corpusSubject string
	executor      *resilience.Executor
	logger        *slog.Logger
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ClientName           string
	CorpusSubject        string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
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
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := options.ClientName
	if name == "" {
		name = "decision-assistant"
	}
	if strings.TrimSpace(subject) == "" {
		subject = DefaultIngestSubject
	}
	corpusSubject := options.CorpusSubject
	if strings.TrimSpace(corpusSubject) == "" {
		corpusSubject = DefaultCorpusSubject
	}

	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:          conn,
		subject:       subject,
		corpusSubject: corpusSubject,
		executor:      options.ResilienceExecutor,
		logger:        logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishDocumentIngested(ctx context.Context, documentID string) error {
	return q.publish(ctx, "nats.publish_ingest", q.subject, documentID)
}

// CorpusChanged broadcasts that a document's chunks were added or removed.
func (q *Queue) CorpusChanged(ctx context.Context, documentID string) error {
	return q.publish(ctx, "nats.publish_corpus", q.corpusSubject, documentID)
}

func (q *Queue) publish(ctx context.Context, operation, subject, payload string) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, []byte(payload)); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, operation, call, classify)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return resilience.MarkTemporary(operation, err, classify)
	}
	return nil
}

// SubscribeDocumentIngested load-balances ingestion jobs across workers and blocks until ctx ends.
func (q *Queue) SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, string(msg.Data)); err != nil {
			q.logger.Error("worker_handler_failed", "document_id", string(msg.Data), "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	return q.serve(ctx, sub)
}

// SubscribeCorpusChanged delivers every corpus change to this process and blocks until ctx ends.
func (q *Queue) SubscribeCorpusChanged(ctx context.Context, handler func(context.Context, string)) error {
	sub, err := q.conn.Subscribe(q.corpusSubject, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		handler(ctx, string(msg.Data))
	})
	if err != nil {
		return fmt.Errorf("nats subscribe corpus: %w", err)
	}
	return q.serve(ctx, sub)
}

func (q *Queue) serve(ctx context.Context, sub *nats.Subscription) error {
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
