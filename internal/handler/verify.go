package handler

import (
	"bytes"
	"html/template"
	"net/http"

	"order-bridge/internal/dto"
	"order-bridge/internal/service"

	"github.com/labstack/echo/v4"
)

// Every verification response is a rendered page with status 200; the
// operator reaches it from a chat link in a plain browser.
var verifyPages = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<title>{{.Title}}</title>
	<style>
		body {
			font-family: Arial, sans-serif;
			max-width: 560px;
			margin: 60px auto;
			text-align: center;
		}
		pre {
			text-align: left;
			white-space: pre-wrap;
			background: #f4f4f4;
			padding: 12px;
		}
		button {
			font-size: 16px;
			padding: 10px 24px;
			margin: 8px;
			cursor: pointer;
		}
		.approve { background: #2e7d32; color: #fff; border: 0; }
		.reject { background: #c62828; color: #fff; border: 0; }
		.ok { color: #2e7d32; }
		.fail { color: #c62828; }
	</style>
</head>
<body>
	<h2{{if .Class}} class="{{.Class}}"{{end}}>{{.Title}}</h2>
	{{if .Details}}<pre>{{.Details}}</pre>{{end}}
	{{if .Message}}<p>{{.Message}}</p>{{end}}
	{{if eq .Kind "decision"}}
	<form method="POST" action="/verify/action/{{.TokenID}}">
		<button class="approve" type="submit" name="action" value="approve">Aprovar</button>
		<button class="reject" type="submit" name="action" value="reject">Recusar</button>
	</form>
	{{else if eq .Kind "delivery"}}
	<form method="POST" action="/verify/action/{{.TokenID}}">
		<button class="approve" type="submit" name="action" value="deliver">Confirmar entrega</button>
	</form>
	{{end}}
	{{if .ExpiresAt}}<p><small>Link válido até {{.ExpiresAt}}</small></p>{{end}}
</body>
</html>
`))

type verifyView struct {
	Kind      string
	TokenID   string
	Title     string
	Class     string
	Details   string
	Message   string
	ExpiresAt string
}

type VerifyHandler struct {
	verificationService service.VerificationService
}

func NewVerifyHandler(verificationService service.VerificationService) *VerifyHandler {
	return &VerifyHandler{
		verificationService: verificationService,
	}
}

func (h *VerifyHandler) Page(c echo.Context) error {
	page := h.verificationService.Page(c.Param("tokenId"))

	view := verifyView{
		Kind:    string(page.Kind),
		TokenID: page.TokenID,
		Details: page.Details,
	}
	switch page.Kind {
	case service.PageDecision:
		view.Title = "Verificação de pagamento"
	case service.PageDelivery:
		view.Title = "Confirmação de entrega"
	default:
		view.Title = "Link inválido ou expirado"
		view.Class = "fail"
		view.Message = "Este link de verificação já foi usado ou expirou."
	}
	if !page.ExpiresAt.IsZero() {
		view.ExpiresAt = page.ExpiresAt.Local().Format("02/01/2006 15:04")
	}

	return render(c, view)
}

func (h *VerifyHandler) Apply(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.VerifyActionRequest
	// a body that does not bind is treated as no action; the token decides
	_ = c.Bind(&req)

	result := h.verificationService.Apply(ctx, c.Param("tokenId"), req.Action)

	view := verifyView{
		Title:   result.Title,
		Message: result.Message,
		Class:   "fail",
	}
	if result.Success {
		view.Class = "ok"
	}
	return render(c, view)
}

func render(c echo.Context, view verifyView) error {
	var buf bytes.Buffer
	if err := verifyPages.Execute(&buf, view); err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}
