package personalization

// Variable is one entry of the substitution catalog, exposed to the visual
// editor for autocomplete and used for sample rendering in previews.
type Variable struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Example     string `json:"example"`
}

var catalog = []Variable{
	{
		Key:         "{{subscriber.name}}",
		Label:       "Subscriber name",
		Description: "The subscriber's display name",
		Example:     "Jane Cooper",
	},
	{
		Key:         "{{subscriber.first_name}}",
		Label:       "Subscriber first name",
		Description: "The subscriber's first name",
		Example:     "Jane",
	},
	{
		Key:         "{{subscriber.email}}",
		Label:       "Subscriber email",
		Description: "The subscriber's email address",
		Example:     "jane@example.com",
	},
	{
		Key:         "{{subscriber.tier}}",
		Label:       "Subscription tier",
		Description: "The name of the subscriber's current paid tier",
		Example:     "Premium",
	},
	{
		Key:         "{{publication.name}}",
		Label:       "Publication name",
		Description: "The name of the publication",
		Example:     "The Weekly Dispatch",
	},
	{
		Key:         "{{publication.url}}",
		Label:       "Publication URL",
		Description: "Public URL of the publication",
		Example:     "https://weekly-dispatch.example.com",
	},
	{
		Key:         "{{post.title}}",
		Label:       "Post title",
		Description: "Title of the post that triggered the workflow",
		Example:     "Issue #42: The State of Things",
	},
	{
		Key:         "{{post.url}}",
		Label:       "Post URL",
		Description: "Public URL of the triggering post",
		Example:     "https://weekly-dispatch.example.com/p/issue-42",
	},
	{
		Key:         "{{unsubscribe.url}}",
		Label:       "Unsubscribe URL",
		Description: "Per-subscriber unsubscribe link, required in every email",
		Example:     "https://weekly-dispatch.example.com/unsubscribe/abc123",
	},
}

// Catalog returns the fixed variable catalog.
func Catalog() []Variable {
	out := make([]Variable, len(catalog))
	copy(out, catalog)

	return out
}

// IsKnownToken reports whether the token is part of the catalog.
func IsKnownToken(token string) bool {
	for _, v := range catalog {
		if v.Key == token {
			return true
		}
	}

	return false
}

// SampleValues returns example values for every catalog variable, used by
// previews when no live context is supplied.
func SampleValues() map[string]string {
	samples := make(map[string]string, len(catalog))
	for _, v := range catalog {
		samples[v.Key] = v.Example
	}

	return samples
}
