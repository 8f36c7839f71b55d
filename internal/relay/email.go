package relay

import (
	"bytes"
	"html/template"
	"strings"

	"careers-relay/internal/models"
)

var bodyTemplate = template.Must(template.New("application").Parse(`
<h2>New Job Application</h2>
<p><strong>Name:</strong> {{.Name}}</p>
<p><strong>Email:</strong> {{.Email}}</p>
<p><strong>Phone:</strong> {{.Phone}}</p>
<p><strong>Position:</strong> {{.Position}}</p>
<p><strong>Experience:</strong></p>
<pre style="white-space:pre-wrap; font:inherit">{{.Experience}}</pre>
`))

// Subject formats the mail subject, falling back to placeholders for missing values.
func Subject(fields models.ApplicationFields) string {
	position := fields.Position
	if strings.TrimSpace(position) == "" {
		position = "Unknown Position"
	}
	name := fields.Name
	if strings.TrimSpace(name) == "" {
		name = "Unknown"
	}
	return stripLineBreaks("Job Application: " + position + " — " + name)
}

// RenderBody renders the HTML body with every applicant value escaped.
func RenderBody(fields models.ApplicationFields) (string, error) {
	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, fields); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildEmail assembles the outbound message. Sender and recipients come from
// configuration, never from the request.
func BuildEmail(from string, to []string, fields models.ApplicationFields, attachments []models.EmailAttachment) (*models.OutboundEmail, error) {
	body, err := RenderBody(fields)
	if err != nil {
		return nil, err
	}
	return &models.OutboundEmail{
		From:        from,
		To:          to,
		ReplyTo:     stripLineBreaks(strings.TrimSpace(fields.Email)),
		Subject:     Subject(fields),
		HTMLBody:    body,
		Attachments: attachments,
	}, nil
}

func stripLineBreaks(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
