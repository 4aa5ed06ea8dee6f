package mailer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func deviceParams() DeviceParams {
	return DeviceParams{
		RecipientName: "Maria",
		DeviceName:    "Chrome / Windows",
		IP:            "203.0.113.9",
		Locale:        "pt-BR",
		Timezone:      "America/Sao_Paulo",
		ConfirmLink:   "https://app.example.com/confirmDevice?token=abc123",
		When:          time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
	}
}

func TestConfirmationEmail(t *testing.T) {
	content := ConfirmationEmail(deviceParams())

	assert.Equal(t, "Confirme seu novo dispositivo", content.Subject)
	assert.Contains(t, content.HTML, "https://app.example.com/confirmDevice?token=abc123")
	assert.Contains(t, content.Text, "https://app.example.com/confirmDevice?token=abc123")
	assert.Contains(t, content.HTML, "Maria")
	assert.Contains(t, content.HTML, "01/06/2025 12:30 (UTC)")
}

func TestConfirmationEmail_EscapesDeviceName(t *testing.T) {
	p := deviceParams()
	p.DeviceName = `<script>alert("x")</script>`

	content := ConfirmationEmail(p)

	assert.NotContains(t, content.HTML, "<script>")
	assert.Contains(t, content.HTML, "&lt;script&gt;")
}

func TestConfirmationEmail_Fallbacks(t *testing.T) {
	content := ConfirmationEmail(DeviceParams{When: time.Now()})

	assert.Contains(t, content.Text, "usuário")
	assert.Contains(t, content.Text, "dispositivo desconhecido")
}

func TestLoginNotificationEmail(t *testing.T) {
	content := LoginNotificationEmail(deviceParams())

	assert.Equal(t, "Novo acesso à sua conta", content.Subject)
	assert.Contains(t, content.Text, "Chrome / Windows")
	assert.NotContains(t, content.HTML, "confirmDevice")
}
