package notify

import (
	"bytes"
	"fmt"
	"html/template"
	textTemplate "text/template"
)

type emailTemplate struct {
	subject *textTemplate.Template
	body    *template.Template
}

// templateData 是渲染信件時可用的資料
type templateData struct {
	Username string
	BaseURL  string
	N        Notification
}

const layout = `<!DOCTYPE html>
<html><body style="font-family:sans-serif">
<p>Hi {{.Username}},</p>
{{template "content" .}}
<p style="color:#888">popAUC</p>
</body></html>`

var templateSources = map[Kind][2]string{
	KindBidPlaced: {
		`Your bid on "{{.N.ArtworkTitle}}" was placed`,
		`<p>We received your bid of <b>{{.N.Amount}} {{.N.Currency}}</b> on <a href="{{.BaseURL}}/artworks/{{.N.ArtworkID}}">{{.N.ArtworkTitle}}</a>.</p>`,
	},
	KindOutbid: {
		`You have been outbid on "{{.N.ArtworkTitle}}"`,
		`<p>Someone placed a higher bid of <b>{{.N.Amount}} {{.N.Currency}}</b> on <a href="{{.BaseURL}}/artworks/{{.N.ArtworkID}}">{{.N.ArtworkTitle}}</a>. Bid again before the auction ends.</p>`,
	},
	KindLeadingBid: {
		`You are leading on "{{.N.ArtworkTitle}}"`,
		`<p>Your bid of <b>{{.N.Amount}} {{.N.Currency}}</b> is currently the highest on <a href="{{.BaseURL}}/artworks/{{.N.ArtworkID}}">{{.N.ArtworkTitle}}</a>.</p>`,
	},
	KindAuctionWon: {
		`You won "{{.N.ArtworkTitle}}"`,
		`<p>Congratulations! You won <a href="{{.BaseURL}}/artworks/{{.N.ArtworkID}}">{{.N.ArtworkTitle}}</a> with a bid of <b>{{.N.Amount}} {{.N.Currency}}</b>.</p>
<p>Please <a href="{{.BaseURL}}/shipping/{{.N.ArtworkID}}">submit your shipping address</a> and complete the payment.</p>`,
	},
	KindAuctionLost: {
		`The auction for "{{.N.ArtworkTitle}}" has ended`,
		`<p>The auction for <a href="{{.BaseURL}}/artworks/{{.N.ArtworkID}}">{{.N.ArtworkTitle}}</a> has ended. The winning bid was <b>{{.N.Amount}} {{.N.Currency}}</b>.</p>`,
	},
	KindEndingSoon: {
		`"{{.N.ArtworkTitle}}" is ending soon`,
		`<p>The auction for <a href="{{.BaseURL}}/artworks/{{.N.ArtworkID}}">{{.N.ArtworkTitle}}</a> ends at {{.N.EndTime.Format "2006-01-02 15:04 MST"}}. Your current bid is <b>{{.N.Amount}} {{.N.Currency}}</b>.</p>`,
	},
	KindEmailVerification: {
		`Verify your email address`,
		`<p>Please confirm your email address by opening <a href="{{.BaseURL}}/auth/verify-email?token={{.N.Token}}">this link</a>.</p>`,
	},
	KindOrderPaid: {
		`Order for "{{.N.ArtworkTitle}}" has been paid`,
		`<p>The buyer paid <b>{{.N.Amount}} {{.N.Currency}}</b> for <a href="{{.BaseURL}}/artworks/{{.N.ArtworkID}}">{{.N.ArtworkTitle}}</a>. Please prepare the shipment.</p>`,
	},
	KindShipmentSent: {
		`"{{.N.ArtworkTitle}}" has been shipped`,
		`<p><a href="{{.BaseURL}}/artworks/{{.N.ArtworkID}}">{{.N.ArtworkTitle}}</a> is on its way. Tracking number: <b>{{.N.TrackingNumber}}</b>.</p>`,
	},
}

// Renderer 將通知渲染成信件
type Renderer struct {
	baseURL   string
	templates map[Kind]emailTemplate
}

func NewRenderer(baseURL string) (*Renderer, error) {
	const op = "NewRenderer"
	base, err := template.New("layout").Parse(layout)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse layout, err=%w", op, err)
	}

	templates := make(map[Kind]emailTemplate, len(templateSources))
	for kind, src := range templateSources {
		subject, err := textTemplate.New(string(kind)).Parse(src[0])
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to parse subject, kind=%s, err=%w", op, kind, err)
		}
		body, err := template.Must(base.Clone()).New("content").Parse(src[1])
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to parse body, kind=%s, err=%w", op, kind, err)
		}
		templates[kind] = emailTemplate{subject: subject, body: body.Lookup("layout")}
	}
	return &Renderer{baseURL: baseURL, templates: templates}, nil
}

// Render 返回信件主旨與HTML內容
func (r *Renderer) Render(username string, n Notification) (string, string, error) {
	const op = "Renderer.Render"
	tmpl, ok := r.templates[n.Kind]
	if !ok {
		return "", "", fmt.Errorf("[%s] Unknown notification kind, kind=%s", op, n.Kind)
	}

	data := templateData{Username: username, BaseURL: r.baseURL, N: n}
	var subject, body bytes.Buffer
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("[%s] Fail to render subject, err=%w", op, err)
	}
	if err := tmpl.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("[%s] Fail to render body, err=%w", op, err)
	}
	return subject.String(), body.String(), nil
}
