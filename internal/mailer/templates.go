package mailer

import (
	"fmt"
	"html"
	"time"
)

// Content is a composed email body
type Content struct {
	Subject string
	HTML    string
	Text    string
}

// DeviceParams describes the login attempt an email reports on
type DeviceParams struct {
	RecipientName string
	DeviceName    string
	IP            string
	Locale        string
	Timezone      string
	ConfirmLink   string
	When          time.Time
}

func (p DeviceParams) displayName() string {
	if p.RecipientName != "" {
		return p.RecipientName
	}
	return "usuário"
}

func (p DeviceParams) deviceLabel() string {
	if p.DeviceName != "" {
		return p.DeviceName
	}
	return "dispositivo desconhecido"
}

func (p DeviceParams) whenLabel() string {
	return p.When.UTC().Format("02/01/2006 15:04 (UTC)")
}

// ConfirmationEmail composes the new-device confirmation mail carrying
// the single-use approval link.
func ConfirmationEmail(p DeviceParams) Content {
	subject := "Confirme seu novo dispositivo"

	text := fmt.Sprintf(
		"Olá, %s!\n\n"+
			"Um novo dispositivo tentou acessar sua conta:\n\n"+
			"Dispositivo: %s\nIP: %s\nIdioma: %s\nFuso horário: %s\nQuando: %s\n\n"+
			"Se foi você, confirme o acesso pelo link:\n%s\n\n"+
			"Se não foi você, ignore este email. O dispositivo permanecerá bloqueado.",
		p.displayName(), p.deviceLabel(), p.IP, p.Locale, p.Timezone, p.whenLabel(), p.ConfirmLink,
	)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html lang="pt-BR"><body style="font-family:Arial,sans-serif;background:#f4f4f7;padding:24px">
<div style="max-width:520px;margin:0 auto;background:#fff;border-radius:8px;padding:32px">
<h2 style="color:#1a1a2e;margin-top:0">Confirme seu novo dispositivo</h2>
<p>Olá, <strong>%s</strong>!</p>
<p>Um novo dispositivo tentou acessar sua conta:</p>
<table style="width:100%%;border-collapse:collapse;font-size:14px">
<tr><td style="padding:4px 0;color:#666">Dispositivo</td><td>%s</td></tr>
<tr><td style="padding:4px 0;color:#666">IP</td><td>%s</td></tr>
<tr><td style="padding:4px 0;color:#666">Idioma</td><td>%s</td></tr>
<tr><td style="padding:4px 0;color:#666">Fuso horário</td><td>%s</td></tr>
<tr><td style="padding:4px 0;color:#666">Quando</td><td>%s</td></tr>
</table>
<p style="text-align:center;margin:28px 0">
<a href="%s" style="background:#4f46e5;color:#fff;padding:12px 28px;border-radius:6px;text-decoration:none">Confirmar dispositivo</a>
</p>
<p style="color:#666;font-size:13px">Se não foi você, ignore este email. O dispositivo permanecerá bloqueado.</p>
</div></body></html>`,
		html.EscapeString(p.displayName()),
		html.EscapeString(p.deviceLabel()),
		html.EscapeString(p.IP),
		html.EscapeString(p.Locale),
		html.EscapeString(p.Timezone),
		html.EscapeString(p.whenLabel()),
		p.ConfirmLink,
	)

	return Content{Subject: subject, HTML: htmlBody, Text: text}
}

// LoginNotificationEmail composes the known-device login notice
func LoginNotificationEmail(p DeviceParams) Content {
	subject := "Novo acesso à sua conta"

	text := fmt.Sprintf(
		"Olá, %s!\n\n"+
			"Detectamos um acesso à sua conta:\n\n"+
			"Dispositivo: %s\nIP: %s\nIdioma: %s\nFuso horário: %s\nQuando: %s\n\n"+
			"Se foi você, nenhuma ação é necessária.",
		p.displayName(), p.deviceLabel(), p.IP, p.Locale, p.Timezone, p.whenLabel(),
	)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html lang="pt-BR"><body style="font-family:Arial,sans-serif;background:#f4f4f7;padding:24px">
<div style="max-width:520px;margin:0 auto;background:#fff;border-radius:8px;padding:32px">
<h2 style="color:#1a1a2e;margin-top:0">Novo acesso à sua conta</h2>
<p>Olá, <strong>%s</strong>!</p>
<p>Detectamos um acesso à sua conta:</p>
<table style="width:100%%;border-collapse:collapse;font-size:14px">
<tr><td style="padding:4px 0;color:#666">Dispositivo</td><td>%s</td></tr>
<tr><td style="padding:4px 0;color:#666">IP</td><td>%s</td></tr>
<tr><td style="padding:4px 0;color:#666">Idioma</td><td>%s</td></tr>
<tr><td style="padding:4px 0;color:#666">Fuso horário</td><td>%s</td></tr>
<tr><td style="padding:4px 0;color:#666">Quando</td><td>%s</td></tr>
</table>
<p style="color:#666;font-size:13px">Se foi você, nenhuma ação é necessária.</p>
</div></body></html>`,
		html.EscapeString(p.displayName()),
		html.EscapeString(p.deviceLabel()),
		html.EscapeString(p.IP),
		html.EscapeString(p.Locale),
		html.EscapeString(p.Timezone),
		html.EscapeString(p.whenLabel()),
	)

	return Content{Subject: subject, HTML: htmlBody, Text: text}
}
