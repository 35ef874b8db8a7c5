package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadgen-workers/pkg/registry"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	v, err := NewValidator(reg)
	require.NoError(t, err)
	return v
}

func TestValidate(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name      string
		taskType  string
		variables string
		valid     bool
		field     string
	}{
		{"chat ok", "send-chat-message", `{"message":"Suche CTOs","extra":1}`, true, ""},
		{"chat missing message", "send-chat-message", `{"channel":"chat"}`, false, "(root)"},
		{"chat empty message", "send-chat-message", `{"message":""}`, false, "message"},
		{"chat audience wrong type", "send-chat-message", `{"message":"x","targetAudience":{"industry":3}}`, false, "targetAudience.industry"},
		{"verify empty leads", "verify-lead-emails", `{"leads":[]}`, false, "leads"},
		{"search size too big", "search-leads", `{"parameters":{},"size":1000}`, false, "size"},
		{"diagnostics empty vars", "run-webhook-diagnostics", ``, true, ""},
		{"unknown task type", "nope", `{"anything":true}`, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.taskType, tt.variables)
			assert.Equal(t, tt.valid, res.Valid, res.GetErrorMessages())
			if !tt.valid {
				assert.True(t, res.HasErrors(tt.field), res.GetErrorMessages())
			}
		})
	}
}

func TestValidate_MalformedJSON(t *testing.T) {
	res := newValidator(t).Validate("send-chat-message", `{"message":`)
	require.False(t, res.Valid)
	assert.Equal(t, "INVALID_JSON", res.Errors[0].Code)
}

func TestNilValidatorAcceptsEverything(t *testing.T) {
	var v *Validator
	assert.True(t, v.Validate("send-chat-message", `{}`).Valid)
}

func TestNewValidator_BadSchema(t *testing.T) {
	_, err := NewValidator(&registry.ActivityRegistry{Activities: []registry.Activity{{
		TaskType:    "broken",
		InputSchema: map[string]interface{}{"type": 12},
	}}})
	assert.Error(t, err)
}
