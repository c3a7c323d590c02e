package personalization

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender_SubstitutesKnownTokens(t *testing.T) {
	values := map[string]string{
		"{{subscriber.name}}":  "Ada Lovelace",
		"{{publication.name}}": "The Weekly Byte",
	}

	out := Render("Hi {{subscriber.name}}, welcome to {{publication.name}}!", values)

	assert.Equal(t, "Hi Ada Lovelace, welcome to The Weekly Byte!", out)
}

func TestRender_LeavesUnknownTokensVerbatim(t *testing.T) {
	values := map[string]string{
		"{{subscriber.name}}": "Ada",
	}

	out := Render("Hi {{subscriber.name}}, see {{post.title}}", values)

	assert.Equal(t, "Hi Ada, see {{post.title}}", out)
}

func TestRender_EmptyValueSubstitutesEmpty(t *testing.T) {
	values := map[string]string{
		"{{subscriber.name}}": "",
	}

	out := Render("Hi {{subscriber.name}}!", values)

	assert.Equal(t, "Hi !", out)
}

func TestRender_RepeatedTokenSubstitutedEverywhere(t *testing.T) {
	values := map[string]string{
		"{{subscriber.name}}": "Ada",
	}

	out := Render("{{subscriber.name}} and {{subscriber.name}}", values)

	assert.Equal(t, "Ada and Ada", out)
}

func TestRender_IsIdempotentWhenValuesCarryNoTokens(t *testing.T) {
	values := map[string]string{
		"{{subscriber.name}}": "Ada",
		"{{post.title}}":      "Go Generics",
	}

	template := "{{subscriber.name}} read {{post.title}} and {{unknown.token}}"

	once := Render(template, values)
	twice := Render(once, values)

	assert.Equal(t, once, twice)
}

func TestRender_MalformedTokensUntouched(t *testing.T) {
	values := map[string]string{
		"{{subscriber.name}}": "Ada",
	}

	template := "{{subscriber}} {{ subscriber.name }} {{subscriber.name}"

	assert.Equal(t, template, Render(template, values))
}

func TestExtractVariables_OrderOfFirstAppearance(t *testing.T) {
	template := "{{post.title}} by {{subscriber.name}}, again {{post.title}} ({{subscriber.email}})"

	vars := ExtractVariables(template)

	assert.Equal(t, []string{"{{post.title}}", "{{subscriber.name}}", "{{subscriber.email}}"}, vars)
}

func TestExtractVariables_NoTokens(t *testing.T) {
	assert.Empty(t, ExtractVariables("plain text without tokens"))
}

func TestValidate_ReportsUnknownAndMissing(t *testing.T) {
	available := map[string]string{
		"{{subscriber.name}}": "Ada",
	}

	result := Validate("{{subscriber.name}} {{bogus.token}}", available)

	assert.False(t, result.OK())
	assert.Contains(t, result.InvalidTokens, "{{bogus.token}}")
	assert.NotContains(t, result.InvalidTokens, "{{subscriber.name}}")
}

func TestValidate_CleanTemplate(t *testing.T) {
	available := SampleValues()

	result := Validate("Hi {{subscriber.first_name}}, read {{post.title}}", available)

	assert.True(t, result.OK())
}

func TestCatalog_SampleValuesCoverEveryVariable(t *testing.T) {
	samples := SampleValues()

	for _, variable := range Catalog() {
		assert.Contains(t, samples, variable.Key)
		assert.True(t, IsKnownToken(variable.Key))
	}
}
