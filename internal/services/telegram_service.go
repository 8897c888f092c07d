package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
)

// TelegramService sends best-effort notifications to the admin chat. Send
// failures are logged and swallowed; callers never roll back on them.
type TelegramService struct {
	botToken    string
	adminChatID string
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to the specified chat.
func (s *TelegramService) SendMessage(chatID, text string) error {
	if s.botToken == "" {
		log.Println("[Telegram] Bot token not configured")
		return nil
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.botToken)

	msg := telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[Telegram] Failed to send message: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Telegram] Unexpected status: %d", resp.StatusCode)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(text string) error {
	if s.adminChatID == "" {
		log.Println("[Telegram] Admin chat ID not configured")
		return nil
	}
	return s.SendMessage(s.adminChatID, text)
}

// OrderNotification contains order data for a new-order message.
type OrderNotification struct {
	OrderNumber string
	Items       []OrderItemNotification
	GrandTotal  float64
	Currency    string
	Status      string
}

// OrderItemNotification contains one order line for the message body.
type OrderItemNotification struct {
	Name     string
	Quantity int
	Price    float64
}

// FormatPrice formats a price with currency and thousand separators.
func FormatPrice(amount float64, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	// Both parts come from the same rounded cent total, so an amount that
	// rounds up across a whole unit carries into the integer part.
	totalCents := int64(amount*100 + 0.5)
	intAmount := totalCents / 100
	cents := totalCents % 100
	str := fmt.Sprintf("%d", intAmount)

	var result strings.Builder
	length := len(str)
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}

	return fmt.Sprintf("%s.%02d %s", result.String(), cents, currency)
}

// NotifyNewOrder sends a new-order notification to the admin chat.
func (s *TelegramService) NotifyNewOrder(order OrderNotification) error {
	if s.adminChatID == "" {
		return nil
	}

	var itemsList strings.Builder
	for i, item := range order.Items {
		itemTotal := item.Price * float64(item.Quantity)
		itemsList.WriteString(fmt.Sprintf("%d. <b>%s</b>\n   %d x %s = %s\n",
			i+1,
			item.Name,
			item.Quantity,
			FormatPrice(item.Price, order.Currency),
			FormatPrice(itemTotal, order.Currency),
		))
	}

	message := fmt.Sprintf(`<b>🛒 New order %s</b>
<b>Items:</b>
%s
<b>Total:</b> %s
<b>Status:</b> %s`,
		order.OrderNumber,
		itemsList.String(),
		FormatPrice(order.GrandTotal, order.Currency),
		order.Status,
	)

	return s.SendToAdmin(strings.TrimSpace(message))
}

// NotifyPaymentApproved sends a payment-confirmation notification.
func (s *TelegramService) NotifyPaymentApproved(orderNumber string, amount float64, currency string) error {
	if s.adminChatID == "" {
		return nil
	}

	message := fmt.Sprintf(`<b>✅ Payment approved</b>
<b>Order:</b> %s
<b>Amount:</b> %s`,
		orderNumber,
		FormatPrice(amount, currency),
	)

	return s.SendToAdmin(strings.TrimSpace(message))
}

// NotifyOrderShipped sends a shipment notification.
func (s *TelegramService) NotifyOrderShipped(orderNumber, carrier, tracking string) error {
	if s.adminChatID == "" {
		return nil
	}

	message := fmt.Sprintf(`<b>📦 Order shipped</b>
<b>Order:</b> %s
<b>Carrier:</b> %s
<b>Tracking:</b> %s`,
		orderNumber,
		carrier,
		tracking,
	)

	return s.SendToAdmin(strings.TrimSpace(message))
}
