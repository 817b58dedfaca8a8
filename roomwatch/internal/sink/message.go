package sink

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
)

// DefaultHTMLTemplate reproduces the original text message body.
const DefaultHTMLTemplate = `<strong>{{.Total}} rooms available</strong>`

// Message is a rendered email body.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer turns a Notification into an email Message. HTML templates come
// from configuration, so the output is sanitized before it is sent.
type Renderer struct {
	subject *texttemplate.Template
	html    *template.Template
	policy  *bluemonday.Policy
	md      *converter.Converter
}

// NewRenderer parses the subject and HTML templates. An empty HTML template
// selects DefaultHTMLTemplate; an empty subject stays empty.
func NewRenderer(subject, html string) (*Renderer, error) {
	if html == "" {
		html = DefaultHTMLTemplate
	}
	st, err := texttemplate.New("subject").Option("missingkey=error").Parse(subject)
	if err != nil {
		return nil, fmt.Errorf("sink: parse subject template: %w", err)
	}
	ht, err := template.New("html").Option("missingkey=error").Parse(html)
	if err != nil {
		return nil, fmt.Errorf("sink: parse html template: %w", err)
	}
	return &Renderer{
		subject: st,
		html:    ht,
		policy:  bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}, nil
}

type messageData struct {
	Notification
	Summary string
	Time    string
}

// Render executes the templates for n.
func (r *Renderer) Render(n Notification) (Message, error) {
	data := messageData{Notification: n, Summary: n.Summary()}
	if !n.Timestamp.IsZero() {
		data.Time = n.Timestamp.Format("Mon Jan 2 3:04pm MST")
	}

	var subj bytes.Buffer
	if err := r.subject.Execute(&subj, data); err != nil {
		return Message{}, fmt.Errorf("sink: render subject: %w", err)
	}
	var body bytes.Buffer
	if err := r.html.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("sink: render html: %w", err)
	}

	html := r.policy.Sanitize(body.String())
	text, err := r.md.ConvertString(html)
	if err != nil {
		return Message{}, fmt.Errorf("sink: html to text: %w", err)
	}
	return Message{
		Subject: strings.TrimSpace(subj.String()),
		HTML:    html,
		Text:    strings.TrimSpace(text),
	}, nil
}
