package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

type templateData struct {
	AppName       string
	DocumentTitle string
	Actor         string
	Text          string
	Link          string
}

var subjects = map[Kind]string{
	KindTeamApprovalRequest:     "Approval requested: %s",
	KindCustomerApprovalRequest: "Please review: %s",
	KindEditLockChanged:         "Editing status changed: %s",
	KindUnlockRequested:         "Unlock requested: %s",
	KindUnlockDecided:           "Unlock request answered: %s",
}

var bodies = map[Kind]*template.Template{
	KindTeamApprovalRequest: mustParse(`<p>{{.Actor}} asks for your approval of <strong>{{.DocumentTitle}}</strong>.</p>
{{if .Text}}<blockquote>{{.Text}}</blockquote>{{end}}
{{if .Link}}<p><a href="{{.Link}}" class="button">Review now</a></p>{{end}}`),
	KindCustomerApprovalRequest: mustParse(`<p>{{.Actor}} shared <strong>{{.DocumentTitle}}</strong> with you for approval.</p>
{{if .Text}}<blockquote>{{.Text}}</blockquote>{{end}}
{{if .Link}}<p><a href="{{.Link}}" class="button">Open document</a></p>{{end}}`),
	KindEditLockChanged: mustParse(`<p>Editing of <strong>{{.DocumentTitle}}</strong> changed: {{.Text}}.</p>
{{if .Actor}}<p>Changed by {{.Actor}}.</p>{{end}}`),
	KindUnlockRequested: mustParse(`<p>{{.Actor}} asks to unlock <strong>{{.DocumentTitle}}</strong> for editing.</p>
<blockquote>{{.Text}}</blockquote>`),
	KindUnlockDecided: mustParse(`<p>Your unlock request for <strong>{{.DocumentTitle}}</strong> was {{.Text}} by {{.Actor}}.</p>`),
}

var layout = mustParse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        blockquote { border-left: 3px solid #ddd; margin: 16px 0; padding-left: 12px; color: #555; }
    </style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
    {{.Body}}
</body>
</html>`)

func mustParse(text string) *template.Template {
	return template.Must(template.New("email").Parse(text))
}

func renderMessage(appName string, msg Message) (subject, html string, err error) {
	body, ok := bodies[msg.Kind]
	if !ok {
		return "", "", fmt.Errorf("unknown notification kind %q", msg.Kind)
	}
	data := templateData{
		AppName:       appName,
		DocumentTitle: msg.DocumentTitle,
		Actor:         msg.Actor,
		Text:          msg.Text,
		Link:          msg.Link,
	}

	var inner bytes.Buffer
	if err := body.Execute(&inner, data); err != nil {
		return "", "", fmt.Errorf("render %s template: %w", msg.Kind, err)
	}
	var outer bytes.Buffer
	if err := layout.Execute(&outer, map[string]any{
		"AppName": appName,
		"Body":    template.HTML(inner.String()),
	}); err != nil {
		return "", "", fmt.Errorf("render email layout: %w", err)
	}
	return fmt.Sprintf(subjects[msg.Kind], msg.DocumentTitle), outer.String(), nil
}
