package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-fulfillment/internal/errs"
	"ms-fulfillment/internal/inventory"
	"ms-fulfillment/internal/lifecycle"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
	ordersdb "ms-fulfillment/internal/orders/db"
	"ms-fulfillment/internal/payment"
	"ms-fulfillment/internal/sideeffects"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockStore) UpdateOrderStatus(ctx context.Context, order *models.Order, expectedStatus string) error {
	args := m.Called(ctx, order, expectedStatus)
	return args.Error(0)
}

func (m *MockStore) UpdateOrderStatusWithRestock(ctx context.Context, order *models.Order, expectedStatus string, adjustments []inventory.Adjustment) error {
	args := m.Called(ctx, order, expectedStatus, adjustments)
	return args.Error(0)
}

func (m *MockStore) SetProcessingError(ctx context.Context, orderID, message string) error {
	args := m.Called(ctx, orderID, message)
	return args.Error(0)
}

type MockPerms struct {
	mock.Mock
}

func (m *MockPerms) HasPermission(ctx context.Context, actorID, claimedRole, permissionID string) bool {
	args := m.Called(ctx, actorID, claimedRole, permissionID)
	return args.Bool(0)
}

type MockPayments struct {
	mock.Mock
}

func (m *MockPayments) Execute(ctx context.Context, in payment.Input) (*payment.Outcome, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Outcome), args.Error(1)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []sideeffects.Event
}

func (d *recordingDispatcher) Submit(ev sideeffects.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
}

func newTestService(store *MockStore, perms *MockPerms, payments *MockPayments, dispatcher *recordingDispatcher) *Service {
	return NewService(store, perms, payments, dispatcher, lifecycle.NewEngine(nil), logger.NewNopLogger())
}

func allowAll(perms *MockPerms) {
	perms.On("HasPermission", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true)
}

func testOrder(status string) *models.Order {
	return &models.Order{
		OrderID:          "order-1",
		CustomerID:       "cust-1",
		BoxID:            "box-1",
		Items:            []models.OrderItem{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}},
		Status:           status,
		PaymentStatus:    models.PaymentAuthorized,
		PaymentMethod:    models.MethodCard,
		AuthorizationID:  "auth-1",
		AuthorizedAmount: 2500,
		CurrencyCode:     "EUR",
	}
}

func TestUpdateStatusRequiresActor(t *testing.T) {
	svc := newTestService(&MockStore{}, &MockPerms{}, &MockPayments{}, &recordingDispatcher{})

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID:      "order-1",
		TargetStatus: models.OrderPreparing,
	})

	assert.Equal(t, errs.CodeUnauthenticated, errs.CodeOf(err))
}

func TestUpdateStatusDeniedWithoutPermission(t *testing.T) {
	perms := &MockPerms{}
	perms.On("HasPermission", mock.Anything, "u1", "courier", PermUpdateOrderStatus).Return(false)
	svc := newTestService(&MockStore{}, perms, &MockPayments{}, &recordingDispatcher{})

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID:      "order-1",
		ActorID:      "u1",
		ActorRole:    "courier",
		TargetStatus: models.OrderPreparing,
	})

	assert.Equal(t, errs.CodePermissionDenied, errs.CodeOf(err))
}

func TestUpdateStatusToReadyDispatchesPickupCode(t *testing.T) {
	store := &MockStore{}
	perms := &MockPerms{}
	payments := &MockPayments{}
	dispatcher := &recordingDispatcher{}
	allowAll(perms)

	order := testOrder(models.OrderPreparing)
	store.On("GetOrderByID", mock.Anything, "order-1").Return(order, nil)
	payments.On("Execute", mock.Anything, mock.Anything).Return(&payment.Outcome{Action: payment.ActionNone}, nil)
	store.On("UpdateOrderStatus", mock.Anything, order, models.OrderPreparing).Return(nil)

	svc := newTestService(store, perms, payments, dispatcher)
	updated, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID:      "order-1",
		ActorID:      "u1",
		ActorRole:    "box_operator",
		TargetStatus: models.OrderReady,
	})

	require.NoError(t, err)
	assert.Equal(t, models.OrderReady, updated.Status)
	require.Len(t, updated.StatusHistory, 1)
	assert.Equal(t, models.OrderPreparing, updated.StatusHistory[0].From)
	assert.Equal(t, "u1", updated.StatusHistory[0].ActorID)

	require.Len(t, dispatcher.events, 1)
	ev := dispatcher.events[0]
	require.NotNil(t, ev.PickupCode)
	assert.Equal(t, "order-1", ev.PickupCode.OrderID)
	require.Len(t, ev.Notifications, 1)
	assert.Equal(t, "order_ready", ev.Notifications[0].TemplateKey)
}

func TestUpdateStatusSameStatusIsNoOp(t *testing.T) {
	store := &MockStore{}
	perms := &MockPerms{}
	dispatcher := &recordingDispatcher{}
	allowAll(perms)

	order := testOrder(models.OrderPreparing)
	store.On("GetOrderByID", mock.Anything, "order-1").Return(order, nil)

	svc := newTestService(store, perms, &MockPayments{}, dispatcher)
	updated, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID:      "order-1",
		ActorID:      "u1",
		ActorRole:    "box_operator",
		TargetStatus: models.OrderPreparing,
	})

	require.NoError(t, err)
	assert.Equal(t, models.OrderPreparing, updated.Status)
	assert.Empty(t, updated.StatusHistory)
	assert.Empty(t, dispatcher.events)
	store.AssertNotCalled(t, "UpdateOrderStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateStatusCaptureFailureWritesNothing(t *testing.T) {
	store := &MockStore{}
	perms := &MockPerms{}
	payments := &MockPayments{}
	dispatcher := &recordingDispatcher{}
	allowAll(perms)

	order := testOrder(models.OrderReady)
	store.On("GetOrderByID", mock.Anything, "order-1").Return(order, nil)
	payments.On("Execute", mock.Anything, mock.Anything).
		Return(nil, errs.CaptureFailed("order-1", errors.New("card declined")))
	store.On("SetProcessingError", mock.Anything, "order-1", mock.Anything).Return(nil)

	svc := newTestService(store, perms, payments, dispatcher)
	_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID:      "order-1",
		ActorID:      "u1",
		ActorRole:    "courier",
		TargetStatus: models.OrderCompleted,
	})

	assert.Equal(t, errs.CodeCaptureFailed, errs.CodeOf(err))
	assert.Empty(t, dispatcher.events)
	store.AssertCalled(t, "SetProcessingError", mock.Anything, "order-1", mock.Anything)
	store.AssertNotCalled(t, "UpdateOrderStatus", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "UpdateOrderStatusWithRestock", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateStatusCompletionAppliesPaymentOutcome(t *testing.T) {
	store := &MockStore{}
	perms := &MockPerms{}
	payments := &MockPayments{}
	dispatcher := &recordingDispatcher{}
	allowAll(perms)

	order := testOrder(models.OrderReady)
	store.On("GetOrderByID", mock.Anything, "order-1").Return(order, nil)
	payments.On("Execute", mock.Anything, mock.MatchedBy(func(in payment.Input) bool {
		return in.To == models.OrderCompleted && in.AuthorizationID == "auth-1"
	})).Return(&payment.Outcome{Action: payment.ActionCapture, PaymentStatus: models.PaymentPaid, TransactionID: "txn-1"}, nil)
	store.On("UpdateOrderStatus", mock.Anything, order, models.OrderReady).Return(nil)

	svc := newTestService(store, perms, payments, dispatcher)
	updated, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID:      "order-1",
		ActorID:      "u1",
		ActorRole:    "courier",
		TargetStatus: models.OrderCompleted,
	})

	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, updated.Status)
	assert.Equal(t, models.PaymentPaid, updated.PaymentStatus)
	require.NotNil(t, updated.CompletedAt)
	assert.WithinDuration(t, time.Now(), *updated.CompletedAt, 5*time.Second)
}

func TestUpdateStatusCancellationRestocksItems(t *testing.T) {
	store := &MockStore{}
	perms := &MockPerms{}
	payments := &MockPayments{}
	dispatcher := &recordingDispatcher{}
	allowAll(perms)

	order := testOrder(models.OrderPlaced)
	store.On("GetOrderByID", mock.Anything, "order-1").Return(order, nil)
	payments.On("Execute", mock.Anything, mock.Anything).
		Return(&payment.Outcome{Action: payment.ActionVoid, PaymentStatus: models.PaymentVoided}, nil)

	var gotAdjustments []inventory.Adjustment
	store.On("UpdateOrderStatusWithRestock", mock.Anything, order, models.OrderPlaced, mock.Anything).
		Run(func(args mock.Arguments) {
			gotAdjustments = args.Get(3).([]inventory.Adjustment)
		}).
		Return(nil)

	svc := newTestService(store, perms, payments, dispatcher)
	updated, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID:      "order-1",
		ActorID:      "u1",
		ActorRole:    "support",
		TargetStatus: models.OrderCancelled,
		Details:      lifecycle.CancelDetails{Reason: "customer request"},
	})

	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, updated.Status)
	assert.Equal(t, models.PaymentVoided, updated.PaymentStatus)
	assert.Empty(t, updated.AuthorizationID)
	assert.ElementsMatch(t, []inventory.Adjustment{
		{ProductID: "p1", Delta: 2},
		{ProductID: "p2", Delta: 1},
	}, gotAdjustments)
	store.AssertNotCalled(t, "UpdateOrderStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateStatusVoidFailureStillCommitsAndAlerts(t *testing.T) {
	store := &MockStore{}
	perms := &MockPerms{}
	payments := &MockPayments{}
	dispatcher := &recordingDispatcher{}
	allowAll(perms)

	order := testOrder(models.OrderPlaced)
	store.On("GetOrderByID", mock.Anything, "order-1").Return(order, nil)
	payments.On("Execute", mock.Anything, mock.Anything).
		Return(&payment.Outcome{Action: payment.ActionVoid, PaymentStatus: models.PaymentVoidFailed, VoidFailed: true}, nil)
	store.On("UpdateOrderStatusWithRestock", mock.Anything, order, models.OrderPlaced, mock.Anything).Return(nil)

	svc := newTestService(store, perms, payments, dispatcher)
	updated, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID:      "order-1",
		ActorID:      "u1",
		ActorRole:    "support",
		TargetStatus: models.OrderCancelled,
	})

	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, updated.Status)
	assert.Equal(t, models.PaymentVoidFailed, updated.PaymentStatus)

	require.Len(t, dispatcher.events, 1)
	require.Len(t, dispatcher.events[0].Alerts, 1)
	assert.Equal(t, "payment_void_failed", dispatcher.events[0].Alerts[0].TemplateKey)
}

func TestUpdateStatusRefundRequestedRaisesAlert(t *testing.T) {
	store := &MockStore{}
	perms := &MockPerms{}
	payments := &MockPayments{}
	dispatcher := &recordingDispatcher{}
	allowAll(perms)

	order := testOrder(models.OrderPreparing)
	order.PaymentStatus = models.PaymentPaid
	store.On("GetOrderByID", mock.Anything, "order-1").Return(order, nil)
	payments.On("Execute", mock.Anything, mock.Anything).
		Return(&payment.Outcome{Action: payment.ActionRefundAsync, PaymentStatus: models.PaymentRefundPending, RefundRequested: true}, nil)
	store.On("UpdateOrderStatusWithRestock", mock.Anything, order, models.OrderPreparing, mock.Anything).Return(nil)

	svc := newTestService(store, perms, payments, dispatcher)
	updated, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID:      "order-1",
		ActorID:      "u1",
		ActorRole:    "support",
		TargetStatus: models.OrderCancelled,
	})

	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefundPending, updated.PaymentStatus)
	require.Len(t, dispatcher.events, 1)
	require.Len(t, dispatcher.events[0].Alerts, 1)
	assert.Equal(t, "refund_requested", dispatcher.events[0].Alerts[0].TemplateKey)
}

func TestUpdateStatusConcurrentWriteMapsToInvalidTransition(t *testing.T) {
	store := &MockStore{}
	perms := &MockPerms{}
	payments := &MockPayments{}
	dispatcher := &recordingDispatcher{}
	allowAll(perms)

	order := testOrder(models.OrderPreparing)
	moved := testOrder(models.OrderCancelled)
	store.On("GetOrderByID", mock.Anything, "order-1").Return(order, nil).Once()
	payments.On("Execute", mock.Anything, mock.Anything).Return(&payment.Outcome{}, nil)
	store.On("UpdateOrderStatus", mock.Anything, order, models.OrderPreparing).Return(ordersdb.ErrPreconditionFailed)
	store.On("GetOrderByID", mock.Anything, "order-1").Return(moved, nil).Once()

	svc := newTestService(store, perms, payments, dispatcher)
	_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID:      "order-1",
		ActorID:      "u1",
		ActorRole:    "box_operator",
		TargetStatus: models.OrderReady,
	})

	assert.Equal(t, errs.CodeInvalidTransition, errs.CodeOf(err))
	assert.Empty(t, dispatcher.events)
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	store := &MockStore{}
	perms := &MockPerms{}
	allowAll(perms)

	order := testOrder(models.OrderCompleted)
	store.On("GetOrderByID", mock.Anything, "order-1").Return(order, nil)

	svc := newTestService(store, perms, &MockPayments{}, &recordingDispatcher{})
	_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID:      "order-1",
		ActorID:      "u1",
		ActorRole:    "admin",
		TargetStatus: models.OrderCancelled,
	})

	assert.Equal(t, errs.CodeInvalidTransition, errs.CodeOf(err))
}
