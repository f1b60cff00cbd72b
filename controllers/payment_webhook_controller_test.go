package controllers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupartner/edupartner_backend/utils"
)

// The signature gate runs before any lookup, so a controller with no
// backing stores is enough to exercise rejection.
func newWebhookTestContext(t *testing.T, body, signature string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/paygate/webhook", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandlePaymentCapturedRejectsMissingSignature(t *testing.T) {
	t.Setenv("PAYGATE_WEBHOOK_SECRET", "test-secret")
	wc := NewPaymentWebhookController(nil, nil)

	c, rec := newWebhookTestContext(t, `{"event":"payment.captured","externalId":1}`, "")
	require.NoError(t, wc.HandlePaymentCaptured(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlePaymentCapturedRejectsBadSignature(t *testing.T) {
	t.Setenv("PAYGATE_WEBHOOK_SECRET", "test-secret")
	wc := NewPaymentWebhookController(nil, nil)

	body := `{"event":"payment.captured","externalId":1}`
	c, rec := newWebhookTestContext(t, body, utils.SignPayload("wrong-secret", []byte(body)))
	require.NoError(t, wc.HandlePaymentCaptured(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlePaymentCapturedRejectsTamperedBody(t *testing.T) {
	t.Setenv("PAYGATE_WEBHOOK_SECRET", "test-secret")
	wc := NewPaymentWebhookController(nil, nil)

	// Signature over a different body than the one delivered.
	signed := utils.SignPayload("test-secret", []byte(`{"event":"payment.captured","externalId":1}`))
	c, rec := newWebhookTestContext(t, `{"event":"payment.captured","externalId":2}`, signed)
	require.NoError(t, wc.HandlePaymentCaptured(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlePaymentCapturedRejectsUnparseablePayload(t *testing.T) {
	t.Setenv("PAYGATE_WEBHOOK_SECRET", "test-secret")
	wc := NewPaymentWebhookController(nil, nil)

	body := `not json`
	c, rec := newWebhookTestContext(t, body, utils.SignPayload("test-secret", []byte(body)))
	require.NoError(t, wc.HandlePaymentCaptured(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePaymentCapturedWithoutConfiguredSecret(t *testing.T) {
	t.Setenv("PAYGATE_WEBHOOK_SECRET", "")
	wc := NewPaymentWebhookController(nil, nil)

	// With no secret configured every delivery is rejected, including ones
	// signed with an empty key.
	body := `{"event":"payment.captured","externalId":1}`
	c, rec := newWebhookTestContext(t, body, utils.SignPayload("", []byte(body)))
	require.NoError(t, wc.HandlePaymentCaptured(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
