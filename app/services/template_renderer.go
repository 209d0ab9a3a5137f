package services

import (
	"regexp"
	"strings"

	"github.com/amirphl/orochi-outreach/models"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_.\-]+)\}`)

// TemplateRenderer substitutes {key} placeholders in message templates
type TemplateRenderer interface {
	Render(template string, vars map[string]string) string
}

// TemplateRendererImpl implements TemplateRenderer
type TemplateRendererImpl struct{}

func NewTemplateRenderer() TemplateRenderer {
	return &TemplateRendererImpl{}
}

// Render replaces each {key} with vars[key]. Keys match case-insensitively and
// unknown keys render as the empty string. Text outside placeholders is untouched.
func (r *TemplateRendererImpl) Render(template string, vars map[string]string) string {
	if template == "" {
		return ""
	}

	lookup := make(map[string]string, len(vars))
	for k, v := range vars {
		lookup[strings.ToLower(k)] = v
	}

	return placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		key := strings.ToLower(token[1 : len(token)-1])
		return lookup[key]
	})
}

// ContactVariables builds the substitution map for a contact.
// Built-in keys win over custom fields with the same name.
func ContactVariables(contact *models.Contact) map[string]string {
	vars := make(map[string]string)
	if contact == nil {
		return vars
	}

	for k, v := range contact.CustomFields {
		vars[strings.ToLower(k)] = v
	}

	vars["name"] = contact.Name
	vars["first_name"] = contact.FirstName()
	vars["phone"] = contact.Phone
	vars["email"] = ""
	if contact.Email != nil {
		vars["email"] = *contact.Email
	}
	vars["tags"] = strings.Join(contact.Tags, ", ")

	return vars
}

// RecipientVariables builds the substitution map for a recipient with no contact row
func RecipientVariables(recipient *models.CampaignRecipient) map[string]string {
	name := ""
	if recipient.DisplayName != nil {
		name = *recipient.DisplayName
	}
	first := ""
	if fields := strings.Fields(name); len(fields) > 0 {
		first = fields[0]
	}
	return map[string]string{
		"name":       name,
		"first_name": first,
		"phone":      recipient.Phone,
	}
}
