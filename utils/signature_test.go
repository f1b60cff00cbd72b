package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	secret := "webhook-secret"
	body := []byte(`{"event":"payment.captured","externalId":42}`)

	sig := SignPayload(secret, body)
	assert.True(t, VerifySignature(secret, body, sig))

	// Any byte of the body changing invalidates the signature.
	tampered := []byte(`{"event":"payment.captured","externalId":43}`)
	assert.False(t, VerifySignature(secret, tampered, sig))

	assert.False(t, VerifySignature("other-secret", body, sig))
	assert.False(t, VerifySignature(secret, body, SignPayload("other-secret", body)))
}

func TestVerifySignatureRejectsMalformedInput(t *testing.T) {
	body := []byte("payload")
	sig := SignPayload("secret", body)

	assert.False(t, VerifySignature("secret", body, ""))
	assert.False(t, VerifySignature("secret", body, "not-hex!"))
	// An unset secret rejects everything rather than degrading to open.
	assert.False(t, VerifySignature("", body, sig))
}
