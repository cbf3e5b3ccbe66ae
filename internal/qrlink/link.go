// Package qrlink fills the attendance-trigger URL template embedded in each QR code.
package qrlink

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	PlaceholderName   = "{name}"
	PlaceholderStatus = "{status}"
	PlaceholderID     = "{id}"
	PlaceholderToken  = "{token}"
)

var (
	ErrMissingPlaceholder = errors.New("url template is missing a placeholder")
	ErrTokenWithoutSecret = errors.New("url template uses {token} but no signing secret is set")
	ErrInvalidTemplate    = errors.New("url template is not a valid url")
)

// ValidateTemplate checks the template parses as an absolute URL and carries the
// {name} and {status} placeholders.
func ValidateTemplate(tmpl string, signing bool) error {
	for _, p := range []string{PlaceholderName, PlaceholderStatus} {
		if !strings.Contains(tmpl, p) {
			return fmt.Errorf("%w: %s", ErrMissingPlaceholder, p)
		}
	}
	if strings.Contains(tmpl, PlaceholderToken) && !signing {
		return ErrTokenWithoutSecret
	}

	u, err := url.Parse(tmpl)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q is not absolute", ErrInvalidTemplate, tmpl)
	}
	return nil
}

// Claims is the payload of the optional signed {token}. It carries no timestamps so
// the same attendee always receives the same token.
type Claims struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	AttendeeID string `json:"aid,omitempty"`
	jwt.RegisteredClaims
}

type Builder struct {
	template string
	status   string
	secret   []byte
}

// NewBuilder validates tmpl once so BuildLink can only fail on signing.
func NewBuilder(tmpl, status, secret string) (*Builder, error) {
	if err := ValidateTemplate(tmpl, secret != ""); err != nil {
		return nil, err
	}
	return &Builder{template: tmpl, status: status, secret: []byte(secret)}, nil
}

// BuildLink is deterministic: the same name and attendee id always yield the same URL.
func (b *Builder) BuildLink(name, attendeeID string) (string, error) {
	values := map[string]string{
		PlaceholderName:   name,
		PlaceholderStatus: b.status,
		PlaceholderID:     attendeeID,
	}

	if strings.Contains(b.template, PlaceholderToken) {
		token, err := b.sign(name, attendeeID)
		if err != nil {
			return "", err
		}
		values[PlaceholderToken] = token
	}

	return Fill(b.template, values), nil
}

// NeedsAttendeeID reports whether the template embeds {id}; links built without an
// id would then be unusable.
func (b *Builder) NeedsAttendeeID() bool {
	return strings.Contains(b.template, PlaceholderID)
}

// Verify parses a token produced by BuildLink.
func (b *Builder) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return b.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func (b *Builder) sign(name, attendeeID string) (string, error) {
	claims := Claims{
		Name:       name,
		Status:     b.status,
		AttendeeID: attendeeID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(b.secret)
}

// Fill replaces each placeholder with its value, query-escaped after the '?' and
// path-escaped before it.
func Fill(tmpl string, values map[string]string) string {
	var sb strings.Builder
	queryStart := strings.IndexByte(tmpl, '?')

	for i := 0; i < len(tmpl); {
		if tmpl[i] == '{' {
			if end := strings.IndexByte(tmpl[i:], '}'); end > 0 {
				key := tmpl[i : i+end+1]
				if v, ok := values[key]; ok {
					if queryStart >= 0 && i > queryStart {
						sb.WriteString(url.QueryEscape(v))
					} else {
						sb.WriteString(url.PathEscape(v))
					}
					i += end + 1
					continue
				}
			}
		}
		sb.WriteByte(tmpl[i])
		i++
	}
	return sb.String()
}
