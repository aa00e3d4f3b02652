package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "short flag with separate value",
			args:    []string{"-c", "conf.json", "-a", "localhost"},
			allowed: []string{"-c", "--config"},
			want:    []string{"-c", "conf.json"},
		},
		{
			name:    "long flag with equals",
			args:    []string{"--config=alt.json", "-a", "localhost"},
			allowed: []string{"-c", "--config"},
			want:    []string{"--config=alt.json"},
		},
		{
			name:    "unknown flags and positionals ignored",
			args:    []string{"-x", "1", "--y=2", "positional"},
			allowed: []string{"-c"},
			want:    []string{},
		},
		{
			name:    "flag without value at end is kept as-is",
			args:    []string{"-w"},
			allowed: []string{"-w"},
			want:    []string{"-w"},
		},
		{
			name:    "flag followed by another flag takes no value",
			args:    []string{"-b", "-n", "10"},
			allowed: []string{"-b", "-n"},
			want:    []string{"-b", "-n", "10"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowed))
		})
	}
}

func TestConfigPath(t *testing.T) {
	t.Run("short flag", func(t *testing.T) {
		t.Setenv(ConfigEnvVar, "")
		assert.Equal(t, "a.json", ConfigPath([]string{"-a", ":8080", "-c", "a.json"}))
	})

	t.Run("long flag with equals", func(t *testing.T) {
		t.Setenv(ConfigEnvVar, "")
		assert.Equal(t, "b.json", ConfigPath([]string{"-config=b.json"}))
	})

	t.Run("env fallback", func(t *testing.T) {
		t.Setenv(ConfigEnvVar, "env.json")
		assert.Equal(t, "env.json", ConfigPath([]string{"-a", ":8080"}))
	})

	t.Run("flag wins over env", func(t *testing.T) {
		t.Setenv(ConfigEnvVar, "env.json")
		assert.Equal(t, "flag.json", ConfigPath([]string{"-c", "flag.json"}))
	})

	t.Run("nothing", func(t *testing.T) {
		t.Setenv(ConfigEnvVar, "")
		assert.Equal(t, "", ConfigPath(nil))
	})
}
