package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/student-hostel-booking/internal/config"
	"github.com/iliyamo/student-hostel-booking/internal/model"
	"github.com/iliyamo/student-hostel-booking/internal/payment"
)

type fakeProvider struct {
	created   []payment.Checkout
	createErr error
	verify    payment.Verification
	webhook   payment.WebhookEvent
	hookErr   error
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, c payment.Checkout) (payment.Session, error) {
	if f.createErr != nil {
		return payment.Session{}, f.createErr
	}
	f.created = append(f.created, c)
	return payment.Session{ID: "cs_1", URL: "https://checkout.example/cs_1"}, nil
}

func (f *fakeProvider) VerifySession(context.Context, string) (payment.Verification, error) {
	return f.verify, nil
}

func (f *fakeProvider) ParseWebhook([]byte, string) (payment.WebhookEvent, error) {
	return f.webhook, f.hookErr
}

func newPaymentService(t *testing.T, p payment.Provider) (*PaymentService, sqlmock.Sqlmock) {
	t.Helper()
	bs, mock, _ := newBookingService(t, nil, nil)
	cfg := config.PaymentConfig{Currency: "usd", SuccessURL: "http://ok", CancelURL: "http://cancel"}
	return NewPaymentService(bs, p, cfg, quietLog()), mock
}

func TestCheckoutStoresSessionAsPaymentRef(t *testing.T) {
	p := &fakeProvider{}
	svc, mock := newPaymentService(t, p)
	mock.ExpectQuery(qBookingGet).WithArgs(uint64(21)).
		WillReturnRows(bookings(bookingRow{id: 21, student: 1, room: 3, hostel: 2, status: model.StatusPending, claimed: true}))
	mock.ExpectQuery(qRoomGet).WithArgs(uint64(3)).WillReturnRows(roomRow(3, 2, 1, 1))
	mock.ExpectExec(`UPDATE bookings SET payment_ref = \? WHERE id = \?`).WithArgs("cs_1", uint64(21)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sess, err := svc.Checkout(context.Background(), 1, 21)
	require.NoError(t, err)
	assert.Equal(t, "cs_1", sess.ID)
	require.Len(t, p.created, 1)
	assert.Equal(t, int64(50000), p.created[0].AmountCents)
	assert.Equal(t, "usd", p.created[0].Currency)
	assert.Contains(t, p.created[0].Description, "A1")
	assert.Equal(t, fmt.Sprintf("checkout-21-%d", t0.Unix()), p.created[0].IdempotencyKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckoutProviderFailure(t *testing.T) {
	p := &fakeProvider{createErr: errors.New("card network down")}
	svc, mock := newPaymentService(t, p)
	mock.ExpectQuery(qBookingGet).WithArgs(uint64(21)).
		WillReturnRows(bookings(bookingRow{id: 21, student: 1, room: 3, hostel: 2, status: model.StatusPending}))
	mock.ExpectQuery(qRoomGet).WithArgs(uint64(3)).WillReturnRows(roomRow(3, 2, 1, 1))

	_, err := svc.Checkout(context.Background(), 1, 21)
	assert.ErrorIs(t, err, model.ErrPaymentSession)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckoutRejectsOtherStudentsAndExpiredHolds(t *testing.T) {
	svc, mock := newPaymentService(t, &fakeProvider{})
	mock.ExpectQuery(qBookingGet).WithArgs(uint64(21)).
		WillReturnRows(bookings(bookingRow{id: 21, student: 1, room: 3, hostel: 2, status: model.StatusPending}))
	_, err := svc.Checkout(context.Background(), 2, 21)
	assert.ErrorIs(t, err, model.ErrForbidden)

	mock.ExpectQuery(qBookingGet).WithArgs(uint64(22)).
		WillReturnRows(bookings(bookingRow{id: 22, student: 1, room: 3, hostel: 2, status: model.StatusOnHold, holdUntil: at(t0.Add(-time.Second))}))
	_, err = svc.Checkout(context.Background(), 1, 22)
	assert.ErrorIs(t, err, model.ErrHoldExpired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyUnpaidChangesNothing(t *testing.T) {
	svc, mock := newPaymentService(t, &fakeProvider{verify: payment.Verification{Paid: false, BookingID: 21}})
	ref := "cs_1"
	mock.ExpectQuery(qBookingGet).WithArgs(uint64(21)).
		WillReturnRows(bookings(bookingRow{id: 21, student: 1, room: 3, hostel: 2, status: model.StatusPending, ref: &ref}))

	paid, b, err := svc.Verify(context.Background(), 1, "cs_1", 21)
	require.NoError(t, err)
	assert.False(t, paid)
	assert.Equal(t, model.StatusPending, b.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyRejectsForeignSession(t *testing.T) {
	svc, mock := newPaymentService(t, &fakeProvider{verify: payment.Verification{Paid: true, BookingID: 99}})
	mock.ExpectQuery(qBookingGet).WithArgs(uint64(21)).
		WillReturnRows(bookings(bookingRow{id: 21, student: 1, room: 3, hostel: 2, status: model.StatusPending}))

	paid, _, err := svc.Verify(context.Background(), 1, "cs_other", 21)
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
	assert.False(t, paid)
}

func TestVerifyPaidConfirms(t *testing.T) {
	svc, mock := newPaymentService(t, &fakeProvider{verify: payment.Verification{Paid: true, BookingID: 21}})
	row := bookingRow{id: 21, student: 1, room: 3, hostel: 2, status: model.StatusPending, claimed: true}
	mock.ExpectQuery(qBookingGet).WithArgs(uint64(21)).WillReturnRows(bookings(row))
	expectConfirmPreamble(mock, row)
	mock.ExpectExec(qConfirm).WithArgs("cs_1", uint64(21)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	paid, b, err := svc.Verify(context.Background(), 1, "cs_1", 21)
	require.NoError(t, err)
	assert.True(t, paid)
	assert.Equal(t, model.StatusConfirmed, b.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckoutRetryReusesIdempotencyKey(t *testing.T) {
	p := &fakeProvider{}
	svc, mock := newPaymentService(t, p)
	row := bookingRow{id: 21, student: 1, room: 3, hostel: 2, status: model.StatusPending, claimed: true}
	for i := 0; i < 2; i++ {
		mock.ExpectQuery(qBookingGet).WithArgs(uint64(21)).WillReturnRows(bookings(row))
		mock.ExpectQuery(qRoomGet).WithArgs(uint64(3)).WillReturnRows(roomRow(3, 2, 1, 1))
	}
	// the first attempt's payment_ref write is lost
	mock.ExpectExec(`UPDATE bookings SET payment_ref = \?`).WillReturnError(errors.New("connection reset"))
	mock.ExpectExec(`UPDATE bookings SET payment_ref = \?`).WithArgs("cs_1", uint64(21)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := svc.Checkout(context.Background(), 1, 21)
	require.Error(t, err)
	_, err = svc.Checkout(context.Background(), 1, 21)
	require.NoError(t, err)

	require.Len(t, p.created, 2)
	assert.Equal(t, p.created[0].IdempotencyKey, p.created[1].IdempotencyKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyConfirmsEarlierSessionOfSameBooking(t *testing.T) {
	// the student opened a second checkout, then paid in the first tab
	svc, mock := newPaymentService(t, &fakeProvider{verify: payment.Verification{Paid: true, BookingID: 21}})
	newer := "cs_2"
	row := bookingRow{id: 21, student: 1, room: 3, hostel: 2, status: model.StatusPending, claimed: true, ref: &newer}
	mock.ExpectQuery(qBookingGet).WithArgs(uint64(21)).WillReturnRows(bookings(row))
	expectConfirmPreamble(mock, row)
	mock.ExpectExec(qConfirm).WithArgs("cs_1", uint64(21)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	paid, b, err := svc.Verify(context.Background(), 1, "cs_1", 21)
	require.NoError(t, err)
	assert.True(t, paid)
	assert.Equal(t, model.StatusConfirmed, b.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyWithoutMetadataNeedsMatchingRef(t *testing.T) {
	svc, mock := newPaymentService(t, &fakeProvider{verify: payment.Verification{Paid: true}})
	ref := "cs_2"
	mock.ExpectQuery(qBookingGet).WithArgs(uint64(21)).
		WillReturnRows(bookings(bookingRow{id: 21, student: 1, room: 3, hostel: 2, status: model.StatusPending, ref: &ref}))

	paid, _, err := svc.Verify(context.Background(), 1, "cs_1", 21)
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
	assert.False(t, paid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookExpiredMarksPaymentFailed(t *testing.T) {
	svc, mock := newPaymentService(t, &fakeProvider{webhook: payment.WebhookEvent{Kind: payment.WebhookExpired, SessionID: "cs_1", BookingID: 21}})
	mock.ExpectExec(`UPDATE bookings SET payment_status = \?`).WithArgs("failed", uint64(21)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, svc.HandleWebhook(context.Background(), []byte(`{}`), "sig"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookCompletedAcknowledgesRejectedConfirmation(t *testing.T) {
	svc, mock := newPaymentService(t, &fakeProvider{webhook: payment.WebhookEvent{Kind: payment.WebhookCompleted, SessionID: "cs_1", BookingID: 21, Paid: true}})
	expectConfirmPreamble(mock, bookingRow{id: 21, student: 1, room: 3, hostel: 2, status: model.StatusCancelled})
	mock.ExpectRollback()

	assert.NoError(t, svc.HandleWebhook(context.Background(), []byte(`{}`), "sig"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookBadSignature(t *testing.T) {
	svc, _ := newPaymentService(t, &fakeProvider{hookErr: payment.ErrInvalidWebhook})
	err := svc.HandleWebhook(context.Background(), []byte(`{}`), "bad")
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}
