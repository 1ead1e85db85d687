package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusEmail(t *testing.T) {
	msg := StatusEmail("jo@example.com", "o-123", "completed")

	assert.Equal(t, "jo@example.com", msg.To)
	assert.Equal(t, "Your Order #o-123 Status Has Been Updated", msg.Subject)
	assert.Contains(t, msg.HTML, "<strong>#o-123</strong>")
	assert.Contains(t, msg.HTML, "<strong>completed</strong>")
}

func TestStatusEmailFallbacks(t *testing.T) {
	msg := StatusEmail("jo@example.com", "", "")

	assert.Contains(t, msg.Subject, "#N/A")
	assert.Contains(t, msg.HTML, "processing")
}

func TestStatusSMS(t *testing.T) {
	msg := StatusSMS("+15550100", "o-123", "canceled")

	assert.Equal(t, "+15550100", msg.To)
	assert.Equal(t, "Your order #o-123 has been updated to: canceled. Thanks for shopping with us!", msg.Body)
}

func TestStatusSMSFallbacks(t *testing.T) {
	msg := StatusSMS("+15550100", "", "")

	assert.Contains(t, msg.Body, "#N/A")
	assert.Contains(t, msg.Body, "processing")
}
