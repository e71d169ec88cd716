package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "simple substitution with {{.VAR}}",
			input: "api_key: {{.GEMINI_API_KEY}}",
			env:   map[string]string{"GEMINI_API_KEY": "secret123"},
			want:  "api_key: secret123",
		},
		{
			name:  "spaces inside the braces",
			input: "url: {{ .REDIS_URL }}",
			env:   map[string]string{"REDIS_URL": "redis://localhost:6379/0"},
			want:  "url: redis://localhost:6379/0",
		},
		{
			name:  "literal ${VAR} is not expanded",
			input: "pattern: ${USER_ID}",
			env:   map[string]string{"USER_ID": "123"},
			want:  "pattern: ${USER_ID}",
		},
		{
			name:  "missing variable expands to empty",
			input: "database_url: {{.MISSING_VAR}}",
			want:  "database_url: ",
		},
		{
			name:  "record template fields pass through",
			input: `record_template: "\nproduct_data: {{.Metadata}} {{.PageContent}}\n"`,
			env:   map[string]string{"Metadata": "nope"},
			want:  `record_template: "\nproduct_data: {{.Metadata}} {{.PageContent}}\n"`,
		},
		{
			name:  "adjacent variables",
			input: "{{.HOST}}:{{.PORT}}",
			env:   map[string]string{"HOST": "db", "PORT": "5432"},
			want:  "db:5432",
		},
		{
			name:  "unbalanced braces are left alone",
			input: "marker: [\"{{\"]",
			want:  "marker: [\"{{\"]",
		},
		{
			name:  "special characters in expanded value",
			input: "password: {{.PASSWORD}}",
			env:   map[string]string{"PASSWORD": "p@ssw0rd!#$%"},
			want:  "password: p@ssw0rd!#$%",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.want, string(ExpandEnv([]byte(tt.input))))
		})
	}
}

func TestExpandEnvWithEmptyInput(t *testing.T) {
	assert.Equal(t, "", string(ExpandEnv([]byte(""))))
}
