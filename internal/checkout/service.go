package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/farm-checkout/internal/cart"
	"github.com/vasiliy-maslov/farm-checkout/internal/marketplace"
	"github.com/vasiliy-maslov/farm-checkout/internal/metrics"
	"github.com/vasiliy-maslov/farm-checkout/internal/payment"
)

const bankTransferNotice = "Your order has been placed. Bank transfer verification is manual and may take up to 24 hours."

type Marketplace interface {
	CreateOrder(ctx context.Context, req marketplace.CreateOrderRequest) (*marketplace.CreateOrderResponse, error)
	GenerateGCashQR(ctx context.Context, req marketplace.GCashQRRequest) (*marketplace.GCashQRResponse, error)
	VerifyGCashPayment(ctx context.Context, req marketplace.VerifyGCashRequest) (string, error)
	CreateBankTransfer(ctx context.Context, req marketplace.BankTransferRequest) (*marketplace.BankTransferResponse, error)
}

type Catalog interface {
	Refresh(ctx context.Context) ([]cart.Product, error)
}

// Ledger keeps a durable trail of created orders and payment transactions.
// FindOrder returns ErrNotRecorded when the session has no order yet.
type Ledger interface {
	FindOrder(ctx context.Context, sessionID uuid.UUID) (*PlacedOrder, error)
	RecordOrder(ctx context.Context, order PlacedOrder) error
	RecordTransaction(ctx context.Context, sessionID uuid.UUID, orderID string, method payment.Method, tx payment.Transaction) error
	UpdateTransactionStatus(ctx context.Context, transactionID string, status payment.TransactionStatus) error
}

type Service interface {
	StartCheckout(ctx context.Context, lines []cart.Line) (*Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)
	ReconcileCart(ctx context.Context, id uuid.UUID) (*Session, []cart.Adjustment, error)
	SetShipping(ctx context.Context, id uuid.UUID, shipping Shipping) (*Session, error)
	SelectPayment(ctx context.Context, id uuid.UUID, method payment.Method) (*Session, error)
	GoToStep(ctx context.Context, id uuid.UUID, target Step) (*Session, error)
	RequestGCashQR(ctx context.Context, id uuid.UUID, mobileNumber string) (*Session, error)
	VerifyGCash(ctx context.Context, id uuid.UUID, code string) (*Session, error)
	SubmitBankTransfer(ctx context.Context, id uuid.UUID, details payment.BankTransferDetails) (*Session, error)
	SubmitOrder(ctx context.Context, id uuid.UUID) (*Confirmation, error)
	Cancel(ctx context.Context, id uuid.UUID) error
}

type service struct {
	market   Marketplace
	catalog  Catalog
	store    SessionStore
	ledger   Ledger
	inflight *inflight
	now      func() time.Time
}

// NewService wires the checkout orchestration. A nil ledger disables the
// audit trail.
func NewService(market Marketplace, catalog Catalog, store SessionStore, ledger Ledger) Service {
	if ledger == nil {
		ledger = noopLedger{}
	}
	return &service{
		market:   market,
		catalog:  catalog,
		store:    store,
		ledger:   ledger,
		inflight: newInflight(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) StartCheckout(ctx context.Context, lines []cart.Line) (*Session, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	products, err := s.catalog.Refresh(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to refresh catalog for checkout")
		return nil, fmt.Errorf("service: refresh catalog: %w", err)
	}

	items, err := cart.Build(lines, cart.Index(products))
	if err != nil {
		return nil, err
	}

	session, err := StartCheckout(items, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, &session); err != nil {
		log.Error().Err(err).Stringer("session_id", session.ID).Msg("service: failed to save new checkout session")
		return nil, fmt.Errorf("service: save session: %w", err)
	}

	metrics.CheckoutEventsTotal.WithLabelValues("started", "").Inc()
	log.Info().
		Stringer("session_id", session.ID).
		Int("items", len(session.Items)).
		Str("total", session.Total().StringFixed(2)).
		Msg("service: checkout started")

	return &session, nil
}

func (s *service) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	session, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			log.Warn().Stringer("session_id", id).Msg("service: checkout session not found")
			return nil, ErrSessionNotFound
		}
		log.Error().Err(err).Stringer("session_id", id).Msg("service: failed to load checkout session")
		return nil, fmt.Errorf("service: load session: %w", err)
	}
	return session, nil
}

// ReconcileCart re-reads the catalog and applies stock and price changes to
// a session that has no order yet.
func (s *service) ReconcileCart(ctx context.Context, id uuid.UUID) (*Session, []cart.Adjustment, error) {
	release, err := s.inflight.acquire(id, actionReconcile)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	current, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if current.HasOrder() {
		return nil, nil, ErrPaymentLocked
	}
	if current.Step == StepReview {
		return nil, nil, ErrReviewLocked
	}

	products, err := s.catalog.Refresh(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("service: refresh catalog: %w", err)
	}

	items, adjustments := cart.Reconcile(current.Items, cart.Index(products))
	if len(adjustments) == 0 {
		return current, nil, nil
	}

	next := current.Clone()
	next.Items = items
	if len(items) == 0 {
		next.Step = StepCart
	}
	if err := s.save(ctx, &next); err != nil {
		return nil, nil, err
	}

	log.Info().Stringer("session_id", id).Int("adjustments", len(adjustments)).Msg("service: cart reconciled with catalog")
	return &next, adjustments, nil
}

func (s *service) SetShipping(ctx context.Context, id uuid.UUID, shipping Shipping) (*Session, error) {
	return s.mutate(ctx, id, actionEdit, func(current Session) (Session, error) {
		return SetShipping(current, shipping)
	})
}

func (s *service) SelectPayment(ctx context.Context, id uuid.UUID, method payment.Method) (*Session, error) {
	return s.mutate(ctx, id, actionEdit, func(current Session) (Session, error) {
		return SelectPayment(current, method)
	})
}

func (s *service) GoToStep(ctx context.Context, id uuid.UUID, target Step) (*Session, error) {
	release, err := s.inflight.acquire(id, actionNavigate)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := GoToStep(*current, target)
	if err != nil && !errors.Is(err, ErrVerificationRequired) {
		log.Info().Err(err).Stringer("session_id", id).Stringer("from", current.Step).Stringer("to", target).Msg("service: step change rejected")
		return current, err
	}

	if saveErr := s.save(ctx, &next); saveErr != nil {
		return nil, saveErr
	}
	return &next, err
}

func (s *service) RequestGCashQR(ctx context.Context, id uuid.UUID, mobileNumber string) (*Session, error) {
	mobileNumber = strings.TrimSpace(mobileNumber)
	if err := payment.ValidateMobileNumber(mobileNumber); err != nil {
		return nil, err
	}

	release, err := s.inflight.acquire(id, actionGCashQR)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := readyForOrder(*current, payment.MethodGCash); err != nil {
		return nil, err
	}
	if current.Verification != nil && current.Verification.State == payment.StateVerified {
		return nil, payment.ErrVerificationUnavailable
	}

	current, err = s.ensureOrder(ctx, current)
	if err != nil {
		return nil, err
	}

	resp, err := s.market.GenerateGCashQR(ctx, marketplace.GCashQRRequest{
		OrderID:      current.PrimaryOrderID(),
		Amount:       current.Total().InexactFloat64(),
		MobileNumber: mobileNumber,
	})
	if err != nil {
		log.Error().Err(err).Stringer("session_id", id).Str("order_id", current.PrimaryOrderID()).Msg("service: failed to generate gcash qr")
		return current, fmt.Errorf("service: generate gcash qr: %w", err)
	}

	now := s.now()
	tx := payment.Transaction{
		ID:               resp.TransactionID.String(),
		VerificationCode: resp.VerificationCode,
		QRCodeURL:        resp.QRCodeURL,
		Amount:           current.Total(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	next, err := ApplyQR(*current, tx)
	if err != nil {
		return current, err
	}
	if err := s.save(ctx, &next); err != nil {
		return nil, err
	}

	s.recordTransaction(ctx, &next)
	metrics.CheckoutEventsTotal.WithLabelValues("qr_issued", payment.MethodGCash.String()).Inc()
	log.Info().
		Stringer("session_id", id).
		Str("order_id", next.PrimaryOrderID()).
		Str("transaction_id", tx.ID).
		Msg("service: gcash qr issued")

	return &next, nil
}

func (s *service) VerifyGCash(ctx context.Context, id uuid.UUID, code string) (*Session, error) {
	if err := payment.ValidateCode(code); err != nil {
		return nil, err
	}

	release, err := s.inflight.acquire(id, actionGCashVerify)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Payment.Method != payment.MethodGCash {
		return nil, fmt.Errorf("%w: session pays with %s", payment.ErrWrongMethod, current.Payment.Method)
	}

	matched, err := CheckCode(*current, code)
	if errors.Is(err, payment.ErrCodeMismatch) || errors.Is(err, payment.ErrTooManyAttempts) {
		if saveErr := s.save(ctx, &matched); saveErr != nil {
			return nil, saveErr
		}
		if errors.Is(err, payment.ErrTooManyAttempts) && current.Verification.State != payment.StateFailed {
			s.updateTransactionStatus(ctx, matched.Verification.Transaction.ID, payment.TransactionFailed)
		}
		return &matched, err
	}
	if err != nil {
		return current, err
	}

	tx := matched.Verification.Transaction
	if _, err := s.market.VerifyGCashPayment(ctx, marketplace.VerifyGCashRequest{
		TransactionID:    tx.ID,
		VerificationCode: tx.VerificationCode,
	}); err != nil {
		log.Error().Err(err).Stringer("session_id", id).Str("transaction_id", tx.ID).Msg("service: gcash verification rejected")
		return current, fmt.Errorf("service: verify gcash payment: %w", err)
	}

	next, err := ConfirmVerification(matched)
	if err != nil {
		return current, err
	}
	if err := s.save(ctx, &next); err != nil {
		return nil, err
	}

	s.updateTransactionStatus(ctx, tx.ID, payment.TransactionVerified)
	metrics.CheckoutEventsTotal.WithLabelValues("gcash_verified", payment.MethodGCash.String()).Inc()
	log.Info().Stringer("session_id", id).Str("transaction_id", tx.ID).Msg("service: gcash payment verified")

	return &next, nil
}

func (s *service) SubmitBankTransfer(ctx context.Context, id uuid.UUID, details payment.BankTransferDetails) (*Session, error) {
	details = details.Normalize()
	if err := details.Validate(); err != nil {
		return nil, err
	}

	release, err := s.inflight.acquire(id, actionBankTransfer)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := readyForOrder(*current, payment.MethodBankTransfer); err != nil {
		return nil, err
	}

	current, err = s.ensureOrder(ctx, current)
	if err != nil {
		return nil, err
	}

	resp, err := s.market.CreateBankTransfer(ctx, marketplace.BankTransferRequest{
		OrderID:           current.PrimaryOrderID(),
		Amount:            current.Total().InexactFloat64(),
		BankName:          details.BankName,
		BankAccountNumber: details.AccountNumber,
		BankAccountName:   details.AccountName,
		TransferReference: details.TransferReference,
		TransferDate:      details.TransferDate,
	})
	if err != nil {
		log.Error().Err(err).Stringer("session_id", id).Str("order_id", current.PrimaryOrderID()).Msg("service: failed to create bank transfer")
		return current, fmt.Errorf("service: create bank transfer: %w", err)
	}

	reference := resp.TransactionReference
	if reference == "" {
		reference = details.TransferReference
	}
	txID := resp.TransactionID.String()
	if txID == "" {
		txID = reference
	}

	now := s.now()
	tx := payment.Transaction{
		ID:        txID,
		Reference: reference,
		Amount:    current.Total(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	bank := payment.MerchantBankDetails{
		BankName:      resp.MerchantBankDetails.BankName,
		AccountNumber: resp.MerchantBankDetails.AccountNumber,
		AccountName:   resp.MerchantBankDetails.AccountName,
		SwiftCode:     resp.MerchantBankDetails.SwiftCode,
	}

	next, err := ApplyBankTransfer(*current, tx, bank)
	if err != nil {
		return current, err
	}
	if err := s.save(ctx, &next); err != nil {
		return nil, err
	}

	s.recordTransaction(ctx, &next)
	metrics.CheckoutEventsTotal.WithLabelValues("bank_transfer_submitted", payment.MethodBankTransfer.String()).Inc()
	log.Info().
		Stringer("session_id", id).
		Str("order_id", next.PrimaryOrderID()).
		Str("transaction_id", tx.ID).
		Msg("service: bank transfer submitted for review")

	return &next, nil
}

func (s *service) SubmitOrder(ctx context.Context, id uuid.UUID) (*Confirmation, error) {
	release, err := s.inflight.acquire(id, actionSubmit)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ReadyForSubmission(*current); err != nil {
		log.Info().Err(err).Stringer("session_id", id).Msg("service: order submission rejected")
		return nil, err
	}

	var remoteMessage string
	if !current.HasOrder() {
		current, remoteMessage, err = s.createOrder(ctx, current)
		if err != nil {
			return nil, err
		}
	}

	confirmation := confirm(*current, remoteMessage)

	if err := s.store.Delete(ctx, id); err != nil {
		// the order exists; a stale session can only replay the cached ids
		log.Error().Err(err).Stringer("session_id", id).Msg("service: failed to delete submitted checkout session")
	}

	metrics.CheckoutEventsTotal.WithLabelValues("submitted", current.Payment.Method.String()).Inc()
	metrics.OrderAmount.Observe(current.Total().InexactFloat64())
	log.Info().
		Stringer("session_id", id).
		Str("order_id", confirmation.OrderID).
		Strs("order_ids", confirmation.OrderIDs).
		Stringer("payment_method", current.Payment.Method).
		Msg("service: order submitted")

	return confirmation, nil
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID) error {
	release, err := s.inflight.acquire(id, actionCancel)
	if err != nil {
		return err
	}
	defer release()

	current, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		log.Error().Err(err).Stringer("session_id", id).Msg("service: failed to delete checkout session")
		return fmt.Errorf("service: delete session: %w", err)
	}

	if current.HasOrder() {
		log.Warn().Stringer("session_id", id).Strs("order_ids", current.OrderIDs).Msg("service: checkout cancelled after order creation")
	}
	metrics.CheckoutEventsTotal.WithLabelValues("cancelled", current.Payment.Method.String()).Inc()
	log.Info().Stringer("session_id", id).Msg("service: checkout cancelled")
	return nil
}

func (s *service) mutate(ctx context.Context, id uuid.UUID, action string, fn func(Session) (Session, error)) (*Session, error) {
	release, err := s.inflight.acquire(id, action)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := fn(*current)
	if err != nil {
		return current, err
	}
	if err := s.save(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

func (s *service) save(ctx context.Context, session *Session) error {
	session.UpdatedAt = s.now()
	if err := s.store.Save(ctx, session); err != nil {
		log.Error().Err(err).Stringer("session_id", session.ID).Msg("service: failed to save checkout session")
		return fmt.Errorf("service: save session: %w", err)
	}
	return nil
}

// ensureOrder returns session with its collaborator order, creating it on
// first use.
func (s *service) ensureOrder(ctx context.Context, session *Session) (*Session, error) {
	if session.HasOrder() {
		return session, nil
	}
	next, _, err := s.createOrder(ctx, session)
	return next, err
}

// createOrder makes the single create_order call a session is allowed. The
// caller holds the session's in-flight slot. The ledger is consulted first so
// a session whose save was lost after a successful call does not order twice.
func (s *service) createOrder(ctx context.Context, session *Session) (*Session, string, error) {
	var (
		orderIDs []string
		message  string
	)

	recorded, err := s.ledger.FindOrder(ctx, session.ID)
	switch {
	case err == nil && recorded != nil && len(recorded.OrderIDs) > 0:
		log.Warn().Stringer("session_id", session.ID).Strs("order_ids", recorded.OrderIDs).Msg("service: reusing order recorded in ledger")
		orderIDs = recorded.OrderIDs
	case err != nil && !errors.Is(err, ErrNotRecorded):
		log.Error().Err(err).Stringer("session_id", session.ID).Msg("service: ledger lookup failed, creating order")
	}

	address := session.Shipping.FormatAddress()
	if orderIDs == nil {
		items := make([]marketplace.OrderItem, 0, len(session.Items))
		for _, it := range session.Items {
			items = append(items, marketplace.OrderItem{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice.InexactFloat64(),
			})
		}

		resp, err := s.market.CreateOrder(ctx, marketplace.CreateOrderRequest{
			CartItems:       items,
			DeliveryAddress: address,
			PaymentMethod:   session.Payment.Method.String(),
		})
		if err != nil {
			log.Error().Err(err).Stringer("session_id", session.ID).Msg("service: failed to create order")
			return nil, "", fmt.Errorf("service: create order: %w", err)
		}
		orderIDs = resp.OrderIDs()
		message = resp.Text()
	}

	next, err := RecordOrder(*session, orderIDs)
	if err != nil {
		return nil, "", err
	}
	if err := s.save(ctx, &next); err != nil {
		return nil, "", err
	}

	if recorded == nil {
		placed := PlacedOrder{
			SessionID:       session.ID,
			OrderIDs:        orderIDs,
			PaymentMethod:   session.Payment.Method,
			Total:           session.Total(),
			DeliveryAddress: address,
			Items:           session.Items,
			CreatedAt:       s.now(),
		}
		if err := s.ledger.RecordOrder(ctx, placed); err != nil && !errors.Is(err, ErrOrderAlreadyRecorded) {
			log.Error().Err(err).Stringer("session_id", session.ID).Strs("order_ids", orderIDs).Msg("service: failed to record order in ledger")
		}
	}

	log.Info().Stringer("session_id", session.ID).Strs("order_ids", orderIDs).Msg("service: order created")
	return &next, message, nil
}

func (s *service) recordTransaction(ctx context.Context, session *Session) {
	flow := session.Verification
	if flow == nil || flow.Transaction == nil {
		return
	}
	if err := s.ledger.RecordTransaction(ctx, session.ID, flow.OrderID, flow.Method, *flow.Transaction); err != nil {
		log.Error().Err(err).Stringer("session_id", session.ID).Str("transaction_id", flow.Transaction.ID).Msg("service: failed to record transaction in ledger")
	}
}

func (s *service) updateTransactionStatus(ctx context.Context, transactionID string, status payment.TransactionStatus) {
	if err := s.ledger.UpdateTransactionStatus(ctx, transactionID, status); err != nil {
		log.Error().Err(err).Str("transaction_id", transactionID).Stringer("status", status).Msg("service: failed to update transaction in ledger")
	}
}

func confirm(s Session, remoteMessage string) *Confirmation {
	c := &Confirmation{
		OrderID:              s.PrimaryOrderID(),
		OrderIDs:             append([]string(nil), s.OrderIDs...),
		Total:                s.Total(),
		PaymentMethod:        s.Payment.Method,
		TransactionReference: s.Payment.TransactionReference,
	}

	if s.Verification != nil {
		c.PaymentStatus = s.Verification.State
		c.MerchantBank = s.Verification.MerchantBank
	}

	switch {
	case s.Payment.Method == payment.MethodBankTransfer:
		c.Message = bankTransferNotice
	case remoteMessage != "":
		c.Message = remoteMessage
	case s.Payment.Method == payment.MethodGCash:
		c.Message = "Payment verified. Your order has been placed."
	case s.Payment.Method == payment.MethodCashOnDelivery:
		c.Message = "Your order has been placed. Please prepare the exact amount upon delivery."
	default:
		c.Message = "Your order has been placed successfully."
	}
	return c
}

type noopLedger struct{}

func (noopLedger) FindOrder(context.Context, uuid.UUID) (*PlacedOrder, error) {
	return nil, ErrNotRecorded
}

func (noopLedger) RecordOrder(context.Context, PlacedOrder) error { return nil }

func (noopLedger) RecordTransaction(context.Context, uuid.UUID, string, payment.Method, payment.Transaction) error {
	return nil
}

func (noopLedger) UpdateTransactionStatus(context.Context, string, payment.TransactionStatus) error {
	return nil
}
