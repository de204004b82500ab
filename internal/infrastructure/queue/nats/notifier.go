package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
	"github.com/kirillkom/fund-facts-assistant/internal/infrastructure/resilience"
)

// Notifier publishes and receives corpus rebuild events on one subject.
type Notifier struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

type Options struct {
	ClientName           string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url, subject string, options Options) (*Notifier, error) {
	clientName := options.ClientName
	if clientName == "" {
		clientName = "fund-facts-assistant"
	}
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

	conn, err := nats.Connect(
		url,
		nats.Name(clientName),
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
	return &Notifier{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (n *Notifier) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

func (n *Notifier) PublishCorpusRebuilt(ctx context.Context, event domain.CorpusRebuilt) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := n.conn.Publish(n.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return n.conn.FlushTimeout(2 * time.Second)
	}

	if n.executor != nil {
		err = n.executor.Execute(ctx, "nats.publish", call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return publishError(event.Version, err)
	}
	return nil
}

// SubscribeCorpusRebuilt blocks until ctx is done. Every subscriber receives every
// event; there is no queue group because each API instance must learn about rebuilds.
func (n *Notifier) SubscribeCorpusRebuilt(ctx context.Context, handler func(context.Context, domain.CorpusRebuilt) error) error {
	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		event, err := decodeEvent(msg.Data)
		if err != nil {
			slog.Warn("corpus_rebuilt_decode_failed", "subject", msg.Subject, "error", err)
			return
		}
		if err := handler(ctx, event); err != nil {
			slog.Error("corpus_rebuilt_handler_failed", "version", event.Version, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := n.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	return nil
}

func encodeEvent(event domain.CorpusRebuilt) ([]byte, error) {
	if event.Version == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode corpus rebuilt", fmt.Errorf("version is empty"))
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal corpus rebuilt: %w", err)
	}
	return raw, nil
}

func decodeEvent(raw []byte) (domain.CorpusRebuilt, error) {
	var event domain.CorpusRebuilt
	if err := json.Unmarshal(raw, &event); err != nil {
		return domain.CorpusRebuilt{}, fmt.Errorf("unmarshal corpus rebuilt: %w", err)
	}
	if event.Version == "" {
		return domain.CorpusRebuilt{}, domain.WrapError(domain.ErrInvalidInput, "decode corpus rebuilt", fmt.Errorf("version is empty"))
	}
	return event, nil
}
