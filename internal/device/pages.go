package device

import (
	"fmt"
	"html"
)

// Self-contained confirmation pages: the link lands straight on the API,
// so there is no frontend to render these.

const pageShell = `<!DOCTYPE html>
<html lang="pt-BR">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<style>
body { font-family: Arial, sans-serif; background: #f4f4f7; margin: 0;
       display: flex; align-items: center; justify-content: center; min-height: 100vh; }
.card { background: #fff; border-radius: 12px; padding: 40px 48px; max-width: 420px;
        text-align: center; box-shadow: 0 2px 12px rgba(0,0,0,.08); }
.icon { font-size: 48px; margin-bottom: 16px; }
h1 { font-size: 20px; color: #1a1a2e; margin: 0 0 12px; }
p { color: #555; font-size: 15px; line-height: 1.5; margin: 0; }
.ok { color: #16a34a; }
.err { color: #dc2626; }
</style>
</head>
<body>
<div class="card">
<div class="icon %s">%s</div>
<h1>%s</h1>
<p>%s</p>
</div>
</body>
</html>`

func successPage(deviceLabel string) string {
	return fmt.Sprintf(pageShell,
		"Dispositivo confirmado",
		"ok", "&#10003;",
		"Dispositivo confirmado!",
		"O dispositivo <strong>"+html.EscapeString(deviceLabel)+"</strong> foi aprovado. Você já pode voltar ao painel e continuar o acesso.",
	)
}

func missingTokenPage() string {
	return fmt.Sprintf(pageShell,
		"Token ausente",
		"err", "&#10007;",
		"Link incompleto",
		"O link de confirmação não contém um token. Solicite um novo email de confirmação no painel.",
	)
}

func errorPage(message string) string {
	return fmt.Sprintf(pageShell,
		"Falha na confirmação",
		"err", "&#10007;",
		"Não foi possível confirmar",
		html.EscapeString(message)+" Solicite um novo email de confirmação no painel.",
	)
}
