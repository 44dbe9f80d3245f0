package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	billingapp "github.com/labbill/backend/internal/application/billing"
	"github.com/labbill/backend/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paymentBody(clientID uuid.UUID, invoiceID uuid.UUID, amount float64) map[string]interface{} {
	return map[string]interface{}{
		"client_id":   clientID.String(),
		"invoice_ids": []string{invoiceID.String()},
		"amount":      amount,
		"method":      "CASH",
	}
}

func decodePaymentResult(t *testing.T, resp dto.Response) PaymentResultResponse {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result PaymentResultResponse
	require.NoError(t, json.Unmarshal(raw, &result))
	return result
}

func TestProcessPayment(t *testing.T) {
	env := newTestEnv(t)
	clientID := uuid.New()
	invoiceID := seedInvoice(t, env, clientID, "100")

	w := env.do(t, http.MethodPost, "/api/v1/payments", paymentBody(clientID, invoiceID, 60))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decodeResponse(t, w)
	result := decodePaymentResult(t, resp)

	assert.NotEmpty(t, result.PaymentID)
	assert.NotEmpty(t, result.IdempotencyKey)
	require.Len(t, result.Allocations, 1)
	assert.InDelta(t, 60.0, result.Allocations[0].Amount, 0.001)
	assert.InDelta(t, 60.0, result.TotalAllocated, 0.001)
	assert.Nil(t, result.CreditID)

	require.Len(t, result.UpdatedInvoices, 1)
	assert.Equal(t, "PARTIAL", result.UpdatedInvoices[0].Status)
	assert.InDelta(t, 40.0, result.UpdatedInvoices[0].BalanceDue, 0.001)
}

func TestProcessPaymentDuplicate(t *testing.T) {
	env := newTestEnv(t)
	clientID := uuid.New()
	invoiceID := seedInvoice(t, env, clientID, "100")

	body := paymentBody(clientID, invoiceID, 40)
	body["reference"] = "wire-123"

	w := env.do(t, http.MethodPost, "/api/v1/payments", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/v1/payments", body)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "ERR_DUPLICATE_PAYMENT", resp.Error.Code)

	// A different reference is a distinct payment, not a duplicate
	body["reference"] = "wire-124"
	w = env.do(t, http.MethodPost, "/api/v1/payments", body)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestProcessPaymentValidation(t *testing.T) {
	env := newTestEnv(t)
	clientID := uuid.New()
	invoiceID := seedInvoice(t, env, clientID, "100")

	body := paymentBody(clientID, invoiceID, 50)
	body["method"] = "BARTER"
	w := env.do(t, http.MethodPost, "/api/v1/payments", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body = paymentBody(clientID, invoiceID, 50)
	body["strategy"] = "RANDOM"
	w = env.do(t, http.MethodPost, "/api/v1/payments", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body = paymentBody(clientID, invoiceID, 50)
	body["invoice_ids"] = []string{}
	w = env.do(t, http.MethodPost, "/api/v1/payments", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessPaymentOverpayment(t *testing.T) {
	env := newTestEnv(t)
	clientID := uuid.New()
	invoiceID := seedInvoice(t, env, clientID, "100")

	// Surplus beyond the invoice balance becomes credit without any opt-in
	w := env.do(t, http.MethodPost, "/api/v1/payments", paymentBody(clientID, invoiceID, 150))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	result := decodePaymentResult(t, decodeResponse(t, w))
	assert.InDelta(t, 100.0, result.TotalAllocated, 0.001)
	assert.InDelta(t, 50.0, result.CreditedAmount, 0.001)
	require.NotNil(t, result.CreditID)

	// The surplus is now consumable credit balance
	w = env.do(t, http.MethodGet, "/api/v1/clients/"+clientID.String()+"/credit-balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	raw, _ := json.Marshal(decodeResponse(t, w).Data)
	var balance CreditBalanceResponse
	require.NoError(t, json.Unmarshal(raw, &balance))
	assert.InDelta(t, 50.0, balance.Balance, 0.001)

	// The invoice is now settled, so another payment needs the explicit flag
	body := paymentBody(clientID, invoiceID, 25)
	body["reference"] = "post-settlement"
	w = env.do(t, http.MethodPost, "/api/v1/payments", body)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "ERR_INVOICE_ALREADY_PAID", resp.Error.Code)

	body["allow_overpayment"] = true
	w = env.do(t, http.MethodPost, "/api/v1/payments", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	result = decodePaymentResult(t, decodeResponse(t, w))
	assert.InDelta(t, 0.0, result.TotalAllocated, 0.001)
	assert.InDelta(t, 25.0, result.CreditedAmount, 0.001)
}

func TestProcessPaymentWithCoverage(t *testing.T) {
	env := newTestEnv(t)
	clientID := uuid.New()
	invoiceID := seedInvoice(t, env, clientID, "1000")

	// 80% coverage leaves a 200 patient responsibility, which caps what
	// the payment can allocate against the 1000 invoice
	body := paymentBody(clientID, invoiceID, 200)
	body["primary"] = map[string]interface{}{
		"payer_name":       "Atlas Health",
		"coverage_percent": 0.8,
	}
	w := env.do(t, http.MethodPost, "/api/v1/payments", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	result := decodePaymentResult(t, decodeResponse(t, w))
	assert.InDelta(t, 200.0, result.TotalAllocated, 0.001)
	assert.InDelta(t, 0.0, result.CreditedAmount, 0.001)

	// Paying past the remaining patient responsibility converts the excess
	// to credit; coverage caps allocation, not acceptance
	body = paymentBody(clientID, invoiceID, 300)
	body["primary"] = map[string]interface{}{
		"payer_name":       "Atlas Health",
		"coverage_percent": 0.8,
	}
	body["reference"] = "second-attempt"
	w = env.do(t, http.MethodPost, "/api/v1/payments", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	result = decodePaymentResult(t, decodeResponse(t, w))
	assert.InDelta(t, 160.0, result.TotalAllocated, 0.001)
	assert.InDelta(t, 140.0, result.CreditedAmount, 0.001)
}

func TestPreviewAllocation(t *testing.T) {
	env := newTestEnv(t)
	clientID := uuid.New()
	first := seedInvoice(t, env, clientID, "100")
	seedInvoice(t, env, clientID, "200")

	w := env.do(t, http.MethodPost, "/api/v1/payments/preview", map[string]interface{}{
		"client_id": clientID.String(),
		"amount":    150,
		"strategy":  "FIFO",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	raw, _ := json.Marshal(decodeResponse(t, w).Data)
	var plan AllocationPlanResponse
	require.NoError(t, json.Unmarshal(raw, &plan))

	require.Len(t, plan.Entries, 2)
	assert.InDelta(t, 150.0, plan.TotalAllocated, 0.001)
	assert.InDelta(t, 0.0, plan.RemainingAmount, 0.001)
	assert.True(t, plan.FullyAllocated)
	assert.Equal(t, []string{first.String()}, plan.InvoicesFullyPaid)
	assert.Len(t, plan.InvoicesPartiallyPaid, 1)
}

func TestGetAndListPayments(t *testing.T) {
	env := newTestEnv(t)
	clientID := uuid.New()
	invoiceID := seedInvoice(t, env, clientID, "100")

	w := env.do(t, http.MethodPost, "/api/v1/payments", paymentBody(clientID, invoiceID, 100))
	require.Equal(t, http.StatusCreated, w.Code)
	result := decodePaymentResult(t, decodeResponse(t, w))

	w = env.do(t, http.MethodGet, "/api/v1/payments/"+result.PaymentID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	raw, _ := json.Marshal(decodeResponse(t, w).Data)
	var payment PaymentResponse
	require.NoError(t, json.Unmarshal(raw, &payment))
	assert.Equal(t, "COMMITTED", payment.Status)
	assert.Equal(t, "CASH", payment.Method)
	assert.NotNil(t, payment.CommittedAt)

	w = env.do(t, http.MethodGet, "/api/v1/payments?client_id="+clientID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(1), resp.Meta.Total)
}

func TestApplyCredits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	clientID := uuid.New()
	invoiceID := seedInvoice(t, env, clientID, "100")

	applyPath := fmt.Sprintf("/api/v1/clients/%s/invoices/%s/apply-credits", clientID, invoiceID)

	// No credits yet
	w := env.do(t, http.MethodPost, applyPath, nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Equal(t, "ERR_NO_CREDIT", decodeResponse(t, w).Error.Code)

	_, err := env.credit.IssueCredit(ctx, billingapp.IssueCreditRequest{
		ClientID: clientID,
		Amount:   decimal.NewFromInt(40),
		Reason:   "goodwill adjustment",
	})
	require.NoError(t, err)

	w = env.do(t, http.MethodPost, applyPath, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	result := decodePaymentResult(t, decodeResponse(t, w))
	assert.InDelta(t, 40.0, result.TotalAllocated, 0.001)
	require.Len(t, result.UpdatedInvoices, 1)
	assert.InDelta(t, 60.0, result.UpdatedInvoices[0].BalanceDue, 0.001)

	// The credit is fully drained
	w = env.do(t, http.MethodGet, "/api/v1/clients/"+clientID.String()+"/credit-balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	raw, _ := json.Marshal(decodeResponse(t, w).Data)
	var balance CreditBalanceResponse
	require.NoError(t, json.Unmarshal(raw, &balance))
	assert.InDelta(t, 0.0, balance.Balance, 0.001)
}

func TestRefundPayment(t *testing.T) {
	env := newTestEnv(t)
	clientID := uuid.New()
	invoiceID := seedInvoice(t, env, clientID, "100")

	w := env.do(t, http.MethodPost, "/api/v1/payments", paymentBody(clientID, invoiceID, 100))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	paymentID := decodePaymentResult(t, decodeResponse(t, w)).PaymentID

	// Missing reason is rejected before anything happens
	w = env.do(t, http.MethodPost, "/api/v1/payments/"+paymentID+"/refund", map[string]interface{}{
		"amount": 40,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/v1/payments/"+paymentID+"/refund", map[string]interface{}{
		"amount": 40,
		"reason": "panel cancelled after draw",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	raw, _ := json.Marshal(decodeResponse(t, w).Data)
	var result RefundResultResponse
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, paymentID, result.Credit.SourcePaymentID)
	assert.Equal(t, "ACTIVE", result.Credit.Status)
	assert.InDelta(t, 40.0, result.Credit.RemainingAmount, 0.001)
	assert.InDelta(t, 100.0, result.Payment.AllocatedAmount, 0.001)

	w = env.do(t, http.MethodGet, "/api/v1/clients/"+clientID.String()+"/credit-balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	raw, _ = json.Marshal(decodeResponse(t, w).Data)
	var balance CreditBalanceResponse
	require.NoError(t, json.Unmarshal(raw, &balance))
	assert.InDelta(t, 40.0, balance.Balance, 0.001)

	// Refunds against one payment cannot exceed what was paid
	w = env.do(t, http.MethodPost, "/api/v1/payments/"+paymentID+"/refund", map[string]interface{}{
		"amount": 70,
		"reason": "second dispute",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "ERR_BUSINESS_RULE", resp.Error.Code)
}
