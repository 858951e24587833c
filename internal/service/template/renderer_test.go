package template

import (
	"testing"

	"github.com/ignite/construction-crm/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_FirstName(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("Hi {{first_name}}", Variables(&domain.Contact{Name: "Jane Doe"}))
	require.NoError(t, err)
	assert.Equal(t, "Hi Jane", out)
}

func TestRender_UnknownPlaceholderIsEmpty(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("Hi {{unknown}}!", Variables(&domain.Contact{Name: "Jane"}))
	require.NoError(t, err)
	assert.Equal(t, "Hi !", out)

	out, err = r.Render("[{{ nil }}][{{true}}]", nil)
	require.NoError(t, err)
	assert.Equal(t, "[][]", out)
}

func TestRender_FallbackFirstName(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("Hello {{ first_name }}, from {{company}}", Variables(&domain.Contact{}))
	require.NoError(t, err)
	assert.Equal(t, "Hello there, from ", out)
}

func TestRender_AllVariables(t *testing.T) {
	r := NewRenderer()
	c := &domain.Contact{Name: "Jane Doe", Email: "jane@x.com", Company: "Acme", Phone: "555"}
	out, err := r.Render("{{full_name}}|{{name}}|{{email}}|{{company}}|{{phone}}", Variables(c))
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe|Jane Doe|jane@x.com|Acme|555", out)
}

func TestValidate_RejectsControlFlow(t *testing.T) {
	r := NewRenderer()
	for _, src := range []string{
		"{% if first_name %}hi{% endif %}",
		"{{ first_name | upcase }}",
		"{{ contact.name }}",
		"Hi {{first_name",
		"{{}}",
	} {
		assert.ErrorIs(t, r.Validate(src), ErrInvalidTemplate, src)
	}
	assert.NoError(t, r.Validate("Plain text with no placeholders"))
}

func TestRenderMessage(t *testing.T) {
	r := NewRenderer()
	tpl := &domain.EmailTemplate{Subject: "Hello {{first_name}}", Body: "<p>{{company}}</p>"}
	subject, body, err := r.RenderMessage(tpl, &domain.Contact{Name: "Alice A", Company: "Stone"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Alice", subject)
	assert.Equal(t, "<p>Stone</p>", body)
}
