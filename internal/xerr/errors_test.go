package xerr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatError(t *testing.T) {
	assert := assert.New(t)

	err := NewFormat("xorb", "bad magic")
	assert.Error(err)
	assert.Contains(err.Error(), "xorb")
	assert.Contains(err.Error(), "bad magic")

	var fe *FormatError
	assert.ErrorAs(err, &fe)
}

func TestIntegrityError(t *testing.T) {
	assert := assert.New(t)

	err := NewIntegrity("xorb", "aa", "bb")
	assert.Error(err)
	assert.Contains(err.Error(), "aa")
	assert.Contains(err.Error(), "bb")

	var ie *IntegrityError
	assert.ErrorAs(err, &ie)
}

func TestKeyExpiryError(t *testing.T) {
	assert := assert.New(t)

	err := NewKeyExpiry("deadbeef", 1000, 5000)
	assert.Error(err)
	assert.Contains(err.Error(), "deadbeef")

	var ke *KeyExpiryError
	assert.ErrorAs(err, &ke)
	assert.Equal(uint64(1000), ke.Expiry)
	assert.Equal(uint64(5000), ke.Now)
}

func TestTransportRetryable(t *testing.T) {
	assert := assert.New(t)

	assert.True((&TransportError{Status: 503}).Retryable())
	assert.True((&TransportError{Status: 429}).Retryable())
	assert.False((&TransportError{Status: 400}).Retryable())
	assert.True((&TransportError{Status: 0}).Retryable())
}

func TestPanicIfTrue(t *testing.T) {
	assert := assert.New(t)
	assert.Panics(func() { PanicIfTrue(true, "boom") })
	assert.NotPanics(func() { PanicIfTrue(false, "boom") })
}

func TestPanicIfFalse(t *testing.T) {
	assert := assert.New(t)
	assert.Panics(func() { PanicIfFalse(false, "boom") })
	assert.NotPanics(func() { PanicIfFalse(true, "boom") })
}
