// Package queue contains the background consumer that listens to the
// booking.confirmed queue and turns each event into stored notifications
// for the student and the landlord.
package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sirupsen/logrus"
)

// NotificationWriter stores one in-app notification.
type NotificationWriter interface {
    Create(ctx context.Context, userID uint64, kind, body string) error
}

// Notification kinds written by the consumer.
const (
    KindBookingConfirmed = "booking_confirmed"
    KindBookingReceived  = "booking_received"
)

// errMalformed marks a message that can never be processed.
var errMalformed = errors.New("malformed message")

// Consumer drains booking.confirmed.  Malformed messages are rejected
// without requeue so a poison message cannot spin the loop; failures to
// store a notification are requeued after a short pause.
type Consumer struct {
    URL           string
    Notifications NotificationWriter
    Log           *logrus.Entry

    mu   sync.Mutex
    seen map[string]struct{}
}

// NewConsumer returns a consumer bound to the broker at url.
func NewConsumer(url string, notifications NotificationWriter, log *logrus.Entry) *Consumer {
    return &Consumer{URL: url, Notifications: notifications, Log: log, seen: make(map[string]struct{})}
}

// Run connects, consumes, and reconnects with backoff until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return ctx.Err()
        }
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            c.Log.WithError(err).WithField("retry_in", backoff.String()).Warn("failed to dial broker")
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.Log.WithError(err).Warn("consume loop ended; reconnecting")
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.Log.WithError(err).Warn("set QoS failed")
    }

    if _, err := ch.QueueDeclare(BookingConfirmedQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }

    msgs, err := ch.ConsumeWithContext(ctx, BookingConfirmedQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for d := range msgs {
        if err := c.Handle(ctx, d.Body); err != nil {
            retry := requeue(err)
            c.Log.WithError(err).WithField("requeue", retry).Error("handle message failed")
            if retry {
                sleep(ctx, time.Second)
            }
            _ = d.Nack(false, retry)
            continue
        }
        _ = d.Ack(false)
    }
    return errors.New("deliveries channel closed")
}

// Handle processes one message body.  Each recipient's notification is
// remembered per event id, so a redelivery writes only the ones that
// failed before.  Errors wrapping errMalformed are not worth retrying.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
    var ev BookingConfirmedEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("%w: %v", errMalformed, err)
    }
    if ev.BookingID == 0 || ev.StudentID == 0 {
        return fmt.Errorf("%w: event missing booking or student id", errMalformed)
    }

    student := fmt.Sprintf("Your booking #%d for %s at %s (%s) is confirmed.",
        ev.BookingID, ev.RoomName, ev.HostelName, termOrDefault(ev.Term))
    if err := c.notifyOnce(ctx, ev.EventID, ev.StudentID, KindBookingConfirmed, student); err != nil {
        return fmt.Errorf("notify student: %w", err)
    }
    if ev.LandlordID != 0 {
        landlord := fmt.Sprintf("Booking #%d for %s at %s was paid (%d cents).",
            ev.BookingID, ev.RoomName, ev.HostelName, ev.AmountCents)
        if err := c.notifyOnce(ctx, ev.EventID, ev.LandlordID, KindBookingReceived, landlord); err != nil {
            return fmt.Errorf("notify landlord: %w", err)
        }
    }
    c.Log.WithFields(logrus.Fields{
        "booking_id": ev.BookingID,
        "student_id": ev.StudentID,
        "hostel_id":  ev.HostelID,
    }).Info("booking confirmation delivered")
    return nil
}

func (c *Consumer) notifyOnce(ctx context.Context, eventID string, userID uint64, kind, body string) error {
    key := ""
    if eventID != "" {
        key = eventID + "/" + kind
    }
    if c.duplicate(key) {
        c.Log.WithFields(logrus.Fields{"event_id": eventID, "kind": kind}).Debug("skipping redelivered notification")
        return nil
    }
    if err := c.Notifications.Create(ctx, userID, kind, body); err != nil {
        c.forget(key)
        return err
    }
    return nil
}

// requeue reports whether a failed message should go back on the queue.
func requeue(err error) bool {
    return err != nil && !errors.Is(err, errMalformed)
}

func (c *Consumer) duplicate(id string) bool {
    if id == "" {
        return false
    }
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.seen == nil {
        c.seen = make(map[string]struct{})
    }
    if _, ok := c.seen[id]; ok {
        return true
    }
    // bounded memory; redeliveries arrive close to the original
    if len(c.seen) >= 10000 {
        c.seen = make(map[string]struct{})
    }
    c.seen[id] = struct{}{}
    return false
}

func (c *Consumer) forget(id string) {
    if id == "" {
        return
    }
    c.mu.Lock()
    defer c.mu.Unlock()
    delete(c.seen, id)
}

func termOrDefault(t string) string {
    if t == "" {
        return "current term"
    }
    return t
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
