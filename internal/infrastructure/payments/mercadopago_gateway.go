// Package payments реализует платёжный процессор эскроу поверх Mercado Pago.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/refund"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/logger"
)

var (
	ErrMissingMercadoPagoAccessToken   = errors.New("missing MERCADOPAGO_ACCESS_TOKEN")
	ErrMercadoPagoGatewayNotConfigured = errors.New("mercado pago gateway not configured")
	ErrInvalidHoldRef                  = errors.New("invalid hold reference")
	ErrUnexpectedProviderStatus        = errors.New("unexpected provider payment status")
)

// Статусы платежа Mercado Pago.
const (
	providerAuthorized = "authorized"
	providerApproved   = "approved"
	providerCancelled  = "cancelled"
	providerRefunded   = "refunded"
)

type paymentAPI interface {
	Create(ctx context.Context, request payment.Request) (*payment.Response, error)
	Get(ctx context.Context, id int) (*payment.Response, error)
	Capture(ctx context.Context, id int) (*payment.Response, error)
	CaptureAmount(ctx context.Context, id int, amount float64) (*payment.Response, error)
	Cancel(ctx context.Context, id int) (*payment.Response, error)
}

type refundAPI interface {
	Create(ctx context.Context, paymentID int) (*refund.Response, error)
	CreatePartialRefund(ctx context.Context, paymentID int, amount float64) (*refund.Response, error)
}

// MercadoPagoGateway удерживает средства авторизацией без списания (capture=false),
// списывает их при подписании работ и возвращает при отмене.
type MercadoPagoGateway struct {
	payments paymentAPI
	refunds  refundAPI
	mockMode bool
	mockSeq  atomic.Int64
}

// NewMercadoPagoGateway создаёт шлюз. При mock=true обращений к API нет.
func NewMercadoPagoGateway(accessToken string, mock bool) (*MercadoPagoGateway, error) {
	log := logger.Log.WithField("component", "payment_gateway")
	if mock {
		log.Info("payment gateway: включён mock-режим")
		g := &MercadoPagoGateway{mockMode: true}
		g.mockSeq.Store(time.Now().UTC().Unix())
		return g, nil
	}

	if accessToken == "" {
		log.Error("payment gateway: не задан MERCADOPAGO_ACCESS_TOKEN")
		return nil, ErrMissingMercadoPagoAccessToken
	}

	cfg, err := config.New(accessToken)
	if err != nil {
		log.WithError(err).Error("payment gateway: не удалось создать конфигурацию SDK")
		return nil, err
	}
	log.Info("payment gateway: клиент Mercado Pago инициализирован")

	return &MercadoPagoGateway{
		payments: payment.NewClient(cfg),
		refunds:  refund.NewClient(cfg),
	}, nil
}

// Hold авторизует сумму без списания.
func (g *MercadoPagoGateway) Hold(ctx context.Context, paymentID uuid.UUID, amount valueobject.Cents) (string, error) {
	if g.mockMode {
		return g.mockRef("hold", paymentID.String(), amount), nil
	}
	if g.payments == nil {
		return "", ErrMercadoPagoGatewayNotConfigured
	}

	resp, err := g.payments.Create(ctx, payment.Request{
		TransactionAmount: toAmount(amount),
		Capture:           false,
		Description:       "Escrow " + paymentID.String(),
		ExternalReference: paymentID.String(),
	})
	if err != nil {
		g.log("hold", paymentID.String()).WithError(err).Warn("payment gateway: ошибка создания платежа")
		return "", err
	}
	g.log("hold", paymentID.String()).WithFields(logrus.Fields{
		"provider_payment_id": resp.ID,
		"provider_status":     resp.Status,
	}).Info("payment gateway: средства авторизованы")
	return strconv.Itoa(resp.ID), nil
}

// Capture списывает авторизованную сумму. Уже списанный платёж не списывается повторно.
func (g *MercadoPagoGateway) Capture(ctx context.Context, holdRef string) (string, error) {
	if g.mockMode {
		return g.mockRef("capture", holdRef, 0), nil
	}
	id, current, err := g.lookup(ctx, holdRef)
	if err != nil {
		return "", err
	}
	switch current.Status {
	case providerApproved:
		return holdRef, nil
	case providerAuthorized:
	default:
		return "", fmt.Errorf("%w: %s", ErrUnexpectedProviderStatus, current.Status)
	}

	resp, err := g.payments.Capture(ctx, id)
	if err != nil {
		g.log("capture", holdRef).WithError(err).Warn("payment gateway: ошибка списания")
		return "", err
	}
	g.log("capture", holdRef).WithField("provider_status", resp.Status).Info("payment gateway: средства списаны")
	return strconv.Itoa(resp.ID), nil
}

// Transfer фиксирует выплату мастеру. Распределение средств выполняет маркетплейс-аккаунт
// Mercado Pago, шлюз проверяет только, что платёж списан.
func (g *MercadoPagoGateway) Transfer(ctx context.Context, holdRef string, payout valueobject.Cents) (string, error) {
	if g.mockMode {
		return g.mockRef("transfer", holdRef, payout), nil
	}
	_, current, err := g.lookup(ctx, holdRef)
	if err != nil {
		return "", err
	}
	if current.Status != providerApproved {
		return "", fmt.Errorf("%w: %s", ErrUnexpectedProviderStatus, current.Status)
	}
	ref := fmt.Sprintf("%s-payout-%d", holdRef, int64(payout))
	g.log("transfer", holdRef).WithField("payout", payout.String()).Info("payment gateway: выплата мастеру зафиксирована")
	return ref, nil
}

// Refund возвращает клиенту amount. Для авторизованного платежа удерживаемая часть
// списывается, остаток освобождается; для списанного оформляется возврат.
func (g *MercadoPagoGateway) Refund(ctx context.Context, holdRef string, amount valueobject.Cents) (string, error) {
	if g.mockMode {
		return g.mockRef("refund", holdRef, amount), nil
	}
	id, current, err := g.lookup(ctx, holdRef)
	if err != nil {
		return "", err
	}
	total := fromAmount(current.TransactionAmount)
	log := g.log("refund", holdRef).WithFields(logrus.Fields{"amount": amount.String(), "provider_status": current.Status})

	switch current.Status {
	case providerCancelled, providerRefunded:
		return holdRef, nil
	case providerAuthorized:
		if amount >= total {
			resp, err := g.payments.Cancel(ctx, id)
			if err != nil {
				log.WithError(err).Warn("payment gateway: ошибка отмены авторизации")
				return "", err
			}
			log.Info("payment gateway: авторизация отменена")
			return strconv.Itoa(resp.ID), nil
		}
		resp, err := g.payments.CaptureAmount(ctx, id, toAmount(total-amount))
		if err != nil {
			log.WithError(err).Warn("payment gateway: ошибка частичного списания")
			return "", err
		}
		log.Info("payment gateway: удержан штраф, остаток освобождён")
		return strconv.Itoa(resp.ID), nil
	case providerApproved:
		var resp *refund.Response
		if amount >= total {
			resp, err = g.refunds.Create(ctx, id)
		} else {
			resp, err = g.refunds.CreatePartialRefund(ctx, id, toAmount(amount))
		}
		if err != nil {
			log.WithError(err).Warn("payment gateway: ошибка возврата")
			return "", err
		}
		log.Info("payment gateway: возврат оформлен")
		return strconv.Itoa(resp.ID), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnexpectedProviderStatus, current.Status)
}

func (g *MercadoPagoGateway) lookup(ctx context.Context, holdRef string) (int, *payment.Response, error) {
	if g.payments == nil {
		return 0, nil, ErrMercadoPagoGatewayNotConfigured
	}
	id, err := strconv.Atoi(holdRef)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %q", ErrInvalidHoldRef, holdRef)
	}
	resp, err := g.payments.Get(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	return id, resp, nil
}

func (g *MercadoPagoGateway) mockRef(op, subject string, amount valueobject.Cents) string {
	ref := strconv.FormatInt(g.mockSeq.Add(1), 10)
	g.log(op, subject).WithFields(logrus.Fields{"mock_ref": ref, "amount": amount.String()}).Info("payment gateway: mock-операция")
	return ref
}

func (g *MercadoPagoGateway) log(op, subject string) *logrus.Entry {
	return logger.Log.WithFields(logrus.Fields{"component": "payment_gateway", "op": op, "ref": subject})
}

func toAmount(c valueobject.Cents) float64 {
	return float64(c) / 100
}

// fromAmount округляет сумму провайдера до цента.
func fromAmount(v float64) valueobject.Cents {
	if v < 0 {
		return valueobject.Cents(v*100 - 0.5)
	}
	return valueobject.Cents(v*100 + 0.5)
}
