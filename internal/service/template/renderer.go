package template

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/ignite/construction-crm/internal/domain"
	"github.com/osteele/liquid"
)

// FallbackFirstName is rendered for {{first_name}} when the contact has no name.
const FallbackFirstName = "there"

var (
	placeholderPattern = regexp.MustCompile(`\{\{(.*?)\}\}`)
	identPattern       = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Liquid literals that would otherwise render as themselves.
var liquidLiterals = map[string]bool{
	"true": true, "false": true, "nil": true, "null": true, "empty": true, "blank": true,
}

// Renderer renders templates with flat variable substitution. Parsed
// templates are cached by source text. Safe for concurrent use.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer on a fresh Liquid engine.
func NewRenderer() *Renderer {
	return &Renderer{engine: liquid.NewEngine()}
}

// Validate reports ErrInvalidTemplate if text uses anything beyond plain
// {{identifier}} placeholders.
func (r *Renderer) Validate(text string) error {
	if strings.Contains(text, "{%") {
		return fmt.Errorf("%w: tags are not supported", ErrInvalidTemplate)
	}
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(m[1])
		if !identPattern.MatchString(name) {
			return fmt.Errorf("%w: placeholder %q must be a plain variable name", ErrInvalidTemplate, m[0])
		}
	}
	if strings.Contains(placeholderPattern.ReplaceAllString(text, ""), "{{") {
		return fmt.Errorf("%w: unclosed placeholder", ErrInvalidTemplate)
	}
	return nil
}

// Render substitutes vars into text. Placeholders without a value render
// as the empty string.
func (r *Renderer) Render(text string, vars map[string]any) (string, error) {
	if err := r.Validate(text); err != nil {
		return "", err
	}
	tpl, err := r.parse(text)
	if err != nil {
		return "", err
	}
	out, rerr := tpl.RenderString(vars)
	if rerr != nil {
		return "", fmt.Errorf("render template: %w", rerr)
	}
	return out, nil
}

// RenderMessage renders a template's subject and body for one contact.
func (r *Renderer) RenderMessage(t *domain.EmailTemplate, c *domain.Contact) (subject, body string, err error) {
	vars := Variables(c)
	if subject, err = r.Render(t.Subject, vars); err != nil {
		return "", "", fmt.Errorf("subject: %w", err)
	}
	if body, err = r.Render(t.Body, vars); err != nil {
		return "", "", fmt.Errorf("body: %w", err)
	}
	return subject, body, nil
}

func (r *Renderer) parse(text string) (*liquid.Template, error) {
	if cached, ok := r.cache.Load(text); ok {
		return cached.(*liquid.Template), nil
	}
	src := placeholderPattern.ReplaceAllStringFunc(text, func(m string) string {
		if liquidLiterals[strings.ToLower(strings.TrimSpace(m[2:len(m)-2]))] {
			return ""
		}
		return m
	})
	tpl, err := r.engine.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	r.cache.Store(text, tpl)
	return tpl, nil
}

// Variables returns the substitution variables for a contact.
func Variables(c *domain.Contact) map[string]any {
	first := c.FirstName()
	if first == "" {
		first = FallbackFirstName
	}
	name := strings.TrimSpace(c.Name)
	return map[string]any{
		"first_name": first,
		"full_name":  name,
		"name":       name,
		"email":      c.Email,
		"company":    c.Company,
		"phone":      c.Phone,
	}
}
