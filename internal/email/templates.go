package email

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"hama/estate/internal/models"
)

// Email kinds, used as the RedisSender key suffix.
const (
	KindNewInquiry = "new_inquiry"
	KindTest       = "test"
)

const newInquirySubjectPrefix = "New inquiry: "

var (
	newInquirySubject = template.Must(template.New("subject").Parse(newInquirySubjectPrefix + "{{.Notice.PropertyTitle}}"))
	newInquiryBody    = template.Must(template.New("body").Parse(`Hi {{if .Notice.AgentName}}{{.Notice.AgentName}}{{else}}there{{end}},

{{if .Notice.ClientName}}{{.Notice.ClientName}}{{else}}A client{{end}} is interested in {{.Notice.PropertyTitle}}.
{{- if .Notice.Message}}

"{{.Notice.Message}}"
{{- end}}

Open your inquiries in {{.AppName}} to reply (ref {{.Notice.InquiryID}}).
`))
)

// RenderNewInquiry renders the subject and body of a new-inquiry notice.
func RenderNewInquiry(appName string, notice models.InquiryNotice) (string, string, error) {
	data := struct {
		AppName string
		Notice  models.InquiryNotice
	}{AppName: appName, Notice: notice}

	var subject, body bytes.Buffer
	if err := newInquirySubject.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	if err := newInquiryBody.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	// Header injection guard.
	s := strings.NewReplacer("\r", " ", "\n", " ").Replace(subject.String())
	return s, body.String(), nil
}

// KindOf classifies an email by its subject.
func KindOf(subject string) string {
	switch {
	case strings.HasPrefix(subject, newInquirySubjectPrefix):
		return KindNewInquiry
	case strings.HasPrefix(subject, "Test email"):
		return KindTest
	}
	return "unknown"
}
