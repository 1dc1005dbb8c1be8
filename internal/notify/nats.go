package notify

import (
	"bot-controller-go/internal/metrics"
	"bot-controller-go/internal/models"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	statusSubject = "bots.status"
	tradeSubject  = "bots.trades"
)

// NATSPublisher publishes controller events as JSON on
// bots.status.<bot id> and bots.trades.<bot id>.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// NewNATSPublisher connects to url. The connection reconnects on its own;
// events published while disconnected are buffered by the client.
func NewNATSPublisher(url string, logger *zap.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("bot-controller"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc, logger: logger}, nil
}

func (p *NATSPublisher) OnStatusChanged(e models.StatusEvent) {
	p.publish(Subject(statusSubject, e.BotID), e)
}

func (p *NATSPublisher) OnTrade(e models.TradeEvent) {
	p.publish(Subject(tradeSubject, e.BotID), e)
}

func (p *NATSPublisher) publish(subject string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("failed to marshal nats event", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		metrics.NotificationsDroppedTotal.WithLabelValues("nats").Inc()
		p.logger.Warn("failed to publish nats event", zap.String("subject", subject), zap.Error(err))
	}
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// Subject builds "<prefix>.<token>" with the token reduced to one valid subject token.
func Subject(prefix, id string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, id)
	if token == "" {
		token = "_"
	}
	return prefix + "." + token
}
