package notify

import (
	"bytes"
	"errors"
	"fmt"
	"text/template"
	"time"

	notifications "signal-alerts/internal/notifications/domain"

	"github.com/hako/durafmt"
)

const DefaultTemplate = `[{{.EventLabel}}] {{.Title}}
Asset: {{.Asset}}
Signal: {{.Signal}}
{{- if eq .Kind "start"}}
Status: {{.Status}}
Value: {{.Value}} ({{.Percent}}% beyond threshold)
Threshold: {{.Min}} .. {{.Max}}
Start Time: {{.StartTime}}
{{- else}}
Start Time: {{.StartTime}}
End Time: {{.EndTime}}
Duration: {{.Duration}}
Observed: {{.Min}} .. {{.Max}}
{{- end}}
`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Kind       string
	EventLabel string
	Title      string
	Asset      string
	Signal     string
	Status     string
	Value      string
	Percent    string
	Min        string
	Max        string
	StartTime  string
	EndTime    string
	Duration   string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("alert-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("alert template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPayload renders a start or resolved payload.
func (t *Template) RenderPayload(payload notifications.Payload) (string, error) {
	data, err := BuildTemplateData(payload)
	if err != nil {
		return "", err
	}
	return t.Render(data)
}

// BuildTemplateData flattens a payload into display strings.
func BuildTemplateData(payload notifications.Payload) (TemplateData, error) {
	switch p := payload.(type) {
	case notifications.StartPayload:
		return TemplateData{
			Kind:       string(notifications.KindStart),
			EventLabel: "Alert",
			Title:      p.Title(),
			Asset:      p.Asset,
			Signal:     p.Signal,
			Status:     p.Status,
			Value:      formatFloat(p.Value),
			Percent:    fmt.Sprintf("%.1f", p.Percent),
			Min:        formatFloat(p.Min),
			Max:        formatFloat(p.Max),
			StartTime:  p.Timestamp.UTC().Format(time.RFC3339),
		}, nil
	case notifications.ResolvedPayload:
		return TemplateData{
			Kind:       string(notifications.KindResolved),
			EventLabel: "Resolved",
			Title:      p.Title(),
			Asset:      p.Asset,
			Signal:     p.Signal,
			Min:        formatFloat(p.Min),
			Max:        formatFloat(p.Max),
			StartTime:  p.From.UTC().Format(time.RFC3339),
			EndTime:    p.To.UTC().Format(time.RFC3339),
			Duration:   formatDuration(p.DurationSeconds),
		}, nil
	default:
		return TemplateData{}, fmt.Errorf("alert template: unsupported payload %T", payload)
	}
}

func formatDuration(seconds int64) string {
	if seconds <= 0 {
		return "0 seconds"
	}
	return durafmt.Parse(time.Duration(seconds) * time.Second).String()
}

func formatFloat(value float64) string {
	return fmt.Sprintf("%.2f", value)
}
