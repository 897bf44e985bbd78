package service

import (
    "context"
    "encoding/json"
    "errors"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sirupsen/logrus"

    q "github.com/iliyamo/student-hostel-booking/internal/queue"
)

// QueuePublisher publishes domain events to RabbitMQ over one long-lived
// connection, redialling lazily after the broker drops it.  Errors are
// logged and returned so the caller can choose to ignore them; a broker
// outage never fails the booking that triggered the event.
type QueuePublisher struct {
    url string
    log *logrus.Entry

    mu   sync.Mutex
    conn *amqp.Connection
    ch   *amqp.Channel
}

// NewQueuePublisher returns a publisher for the broker at url.  No
// connection is made until the first publish.
func NewQueuePublisher(url string, log *logrus.Entry) *QueuePublisher {
    return &QueuePublisher{url: url, log: log.WithField("component", "amqp-publisher")}
}

// PublishBookingConfirmed sends ev to the durable booking.confirmed queue
// as a persistent message.
func (p *QueuePublisher) PublishBookingConfirmed(ctx context.Context, ev q.BookingConfirmedEvent) error {
    body, err := json.Marshal(ev)
    if err != nil {
        return err
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        MessageId:    ev.EventID,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }

    p.mu.Lock()
    defer p.mu.Unlock()
    ch, err := p.channelLocked()
    if err != nil {
        p.log.WithError(err).Warn("broker unavailable")
        return err
    }
    if err := ch.PublishWithContext(ctx,
        "",                      // default exchange
        q.BookingConfirmedQueue, // routing key = queue name
        false,                   // mandatory
        false,                   // immediate
        pub,
    ); err != nil {
        p.resetLocked()
        p.log.WithError(err).WithField("booking_id", ev.BookingID).Warn("publish failed")
        return err
    }
    return nil
}

// Close releases the connection.
func (p *QueuePublisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.resetLocked()
    return nil
}

func (p *QueuePublisher) channelLocked() (*amqp.Channel, error) {
    if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
        return p.ch, nil
    }
    p.resetLocked()
    if p.url == "" {
        return nil, errors.New("no broker url configured")
    }
    conn, err := amqp.Dial(p.url)
    if err != nil {
        return nil, err
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return nil, err
    }
    // Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(q.BookingConfirmedQueue, true, false, false, false, nil); err != nil {
        _ = ch.Close()
        _ = conn.Close()
        return nil, err
    }
    p.conn, p.ch = conn, ch
    return ch, nil
}

func (p *QueuePublisher) resetLocked() {
    if p.ch != nil {
        _ = p.ch.Close()
    }
    if p.conn != nil {
        _ = p.conn.Close()
    }
    p.ch, p.conn = nil, nil
}
