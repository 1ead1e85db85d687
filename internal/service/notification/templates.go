package notification

import "fmt"

// EmailMessage is an outbound email.
type EmailMessage struct {
	To      string
	From    string
	Subject string
	HTML    string
}

// SMSMessage is an outbound text message.
type SMSMessage struct {
	To   string
	From string
	Body string
}

// StatusEmail renders the order-status update email.
func StatusEmail(to, orderID, status string) EmailMessage {
	if orderID == "" {
		orderID = "N/A"
	}
	if status == "" {
		status = "processing"
	}
	return EmailMessage{
		To:      to,
		Subject: fmt.Sprintf("Your Order #%s Status Has Been Updated", orderID),
		HTML: fmt.Sprintf(
			"<h2>Order Status Update</h2>"+
				"<p>Hello,</p>"+
				"<p>We're reaching out to let you know that the status of your order <strong>#%s</strong> has been updated to: <strong>%s</strong>.</p>"+
				"<p>Thank you for shopping with us!</p>",
			orderID, status,
		),
	}
}

// StatusSMS renders the order-status update text message.
func StatusSMS(to, orderID, status string) SMSMessage {
	if orderID == "" {
		orderID = "N/A"
	}
	if status == "" {
		status = "processing"
	}
	return SMSMessage{
		To:   to,
		Body: fmt.Sprintf("Your order #%s has been updated to: %s. Thanks for shopping with us!", orderID, status),
	}
}
