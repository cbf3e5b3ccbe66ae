package notifications

import (
	"fmt"
	"os"
	"strings"
)

const namePlaceholder = "{name}"

// Template renders the subject and body of the ticket email. Both may contain {name}.
type Template struct {
	Subject string
	Body    string
}

// LoadTemplate reads the body from a text file.
func LoadTemplate(subject, bodyPath string) (Template, error) {
	b, err := os.ReadFile(bodyPath)
	if err != nil {
		return Template{}, fmt.Errorf("read email body %s: %w", bodyPath, err)
	}
	return Template{Subject: subject, Body: string(b)}, nil
}

func (t Template) Compose(to, name string, attachment []byte, attachmentName string) Mail {
	return Mail{
		To:             to,
		Subject:        strings.ReplaceAll(t.Subject, namePlaceholder, name),
		Body:           strings.ReplaceAll(t.Body, namePlaceholder, name),
		Attachment:     attachment,
		AttachmentName: attachmentName,
	}
}
