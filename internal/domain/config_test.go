package domain

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeConfig writes content to a config.yaml in a fresh temp dir and clears
// the environment overrides so the file is the only input.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	t.Setenv(EnvHost, "")
	t.Setenv(EnvUser, "")
	t.Setenv(EnvPassword, "")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}
	return configPath
}

// TestLoadConfig_ValidYAML tests loading a valid YAML configuration file.
func TestLoadConfig_ValidYAML(t *testing.T) {
	configPath := writeConfig(t, `
bamboo:
  host: https://bamboo.example.com
  port: 443
  prefix: /bamboo
  auth:
    type: basic
    username: testuser
    password: testpass
scan:
  branch: develop
  variable_index: 2
logging:
  level: debug
  pretty: true
`)

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v, want nil", err)
	}

	if config.Bamboo.Host != "https://bamboo.example.com" {
		t.Errorf("Bamboo.Host = %s, want https://bamboo.example.com", config.Bamboo.Host)
	}
	if config.Bamboo.Port != 443 {
		t.Errorf("Bamboo.Port = %d, want 443", config.Bamboo.Port)
	}
	if config.Bamboo.Auth == nil || config.Bamboo.Auth.Username != "testuser" {
		t.Errorf("Bamboo.Auth = %+v, want username testuser", config.Bamboo.Auth)
	}
	if config.Scan.Branch != "develop" {
		t.Errorf("Scan.Branch = %s, want develop", config.Scan.Branch)
	}
	if config.Scan.VariableIndex != 2 {
		t.Errorf("Scan.VariableIndex = %d, want 2", config.Scan.VariableIndex)
	}
	if config.Scan.SkipValue != DefaultSkipValue {
		t.Errorf("Scan.SkipValue = %q, want default %q", config.Scan.SkipValue, DefaultSkipValue)
	}
	if config.Logging.Level != "debug" || !config.Logging.Pretty {
		t.Errorf("Logging = %+v, want debug/pretty", config.Logging)
	}

	conn := config.Connection()
	if got := conn.URL("/rest/api/latest/plan"); got != "https://bamboo.example.com:443/bamboo/rest/api/latest/plan" {
		t.Errorf("Connection().URL() = %s", got)
	}
	if !conn.HasCredentials() {
		t.Error("Connection() should carry basic credentials")
	}
}

// TestLoadConfig_Defaults tests that omitted values fall back to defaults.
func TestLoadConfig_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
bamboo:
  host: http://bamboo.local
scan:
  branch: develop
`)

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v, want nil", err)
	}

	if config.Bamboo.Port != DefaultPort {
		t.Errorf("Bamboo.Port = %d, want %d", config.Bamboo.Port, DefaultPort)
	}
	if config.Logging.Level != "info" {
		t.Errorf("Logging.Level = %s, want info", config.Logging.Level)
	}
	if config.Bamboo.Auth != nil {
		t.Errorf("Bamboo.Auth = %+v, want nil", config.Bamboo.Auth)
	}
	if config.Connection().HasCredentials() {
		t.Error("Connection() should not carry credentials")
	}
}

// TestLoadConfig_EnvOverrides tests that environment variables take precedence.
func TestLoadConfig_EnvOverrides(t *testing.T) {
	configPath := writeConfig(t, `
bamboo:
  host: http://bamboo.local
scan:
  branch: develop
`)
	t.Setenv(EnvHost, "https://ci.example.org")
	t.Setenv(EnvUser, "envuser")
	t.Setenv(EnvPassword, "envpass")

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v, want nil", err)
	}

	if config.Bamboo.Host != "https://ci.example.org" {
		t.Errorf("Bamboo.Host = %s, want https://ci.example.org", config.Bamboo.Host)
	}
	if config.Bamboo.Auth == nil {
		t.Fatal("Bamboo.Auth is nil, want basic auth from environment")
	}
	if config.Bamboo.Auth.Type != "basic" || config.Bamboo.Auth.Username != "envuser" || config.Bamboo.Auth.Password != "envpass" {
		t.Errorf("Bamboo.Auth = %+v, want basic envuser/envpass", config.Bamboo.Auth)
	}
}

// TestApplyEnv_TokenAuth tests how basic credentials from the environment
// interact with a configured token.
func TestApplyEnv_TokenAuth(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want AuthConfig
	}{
		{
			name: "user only keeps token",
			env:  map[string]string{EnvUser: "envuser"},
			want: AuthConfig{Type: "token", Token: "tok"},
		},
		{
			name: "password only keeps token",
			env:  map[string]string{EnvPassword: "envpass"},
			want: AuthConfig{Type: "token", Token: "tok"},
		},
		{
			name: "both switch to basic",
			env:  map[string]string{EnvUser: "envuser", EnvPassword: "envpass"},
			want: AuthConfig{Type: "basic", Username: "envuser", Password: "envpass"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Config{Bamboo: BambooConfig{
				Host: "http://bamboo.local",
				Auth: &AuthConfig{Type: "token", Token: "tok"},
			}}
			config.applyEnv(func(key string) string { return tt.env[key] })

			if *config.Bamboo.Auth != tt.want {
				t.Errorf("Bamboo.Auth = %+v, want %+v", *config.Bamboo.Auth, tt.want)
			}
			creds := CredentialsFromAuthConfig(config.Bamboo.Auth)
			if err := ValidateCredentials(creds); err != nil {
				t.Errorf("ValidateCredentials() error = %v", err)
			}
		})
	}
}

// TestLoadConfig_MissingFile tests error handling when configuration file is missing.
func TestLoadConfig_MissingFile(t *testing.T) {
	config, err := LoadConfig("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("LoadConfig() error = nil, want error for missing file")
	}
	if config != nil {
		t.Errorf("LoadConfig() config = %v, want nil", config)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Error message should mention 'not found', got: %s", err.Error())
	}
}

// TestLoadConfig_InvalidYAMLSyntax tests error handling for invalid YAML syntax.
func TestLoadConfig_InvalidYAMLSyntax(t *testing.T) {
	configPath := writeConfig(t, "bamboo:\n  host: [unclosed\n")

	_, err := LoadConfig(configPath)
	if err == nil {
		t.Fatal("LoadConfig() error = nil, want error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "invalid YAML syntax") {
		t.Errorf("Error message should mention 'invalid YAML syntax', got: %s", err.Error())
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantErrs []string
	}{
		{
			name: "valid anonymous",
			config: Config{
				Bamboo: BambooConfig{Host: "https://bamboo.example.com", Port: 443},
				Scan:   ScanConfig{Branch: "develop"},
			},
		},
		{
			name: "missing host",
			config: Config{
				Bamboo: BambooConfig{Port: 443},
			},
			wantErrs: []string{"bamboo.host is required"},
		},
		{
			name: "no scan branch",
			config: Config{
				Bamboo: BambooConfig{Host: "https://bamboo.example.com", Port: 443},
			},
		},
		{
			name: "non http host",
			config: Config{
				Bamboo: BambooConfig{Host: "ftp://bamboo.example.com"},
				Scan:   ScanConfig{Branch: "develop"},
			},
			wantErrs: []string{"bamboo.host must be an http or https URL"},
		},
		{
			name: "port out of range",
			config: Config{
				Bamboo: BambooConfig{Host: "http://bamboo", Port: 70000},
				Scan:   ScanConfig{Branch: "develop"},
			},
			wantErrs: []string{"invalid bamboo.port 70000: must be between 1 and 65535"},
		},
		{
			name: "basic auth without password",
			config: Config{
				Bamboo: BambooConfig{
					Host: "http://bamboo",
					Auth: &AuthConfig{Type: "basic", Username: "user"},
				},
				Scan: ScanConfig{Branch: "develop"},
			},
			wantErrs: []string{"bamboo.auth.password is required"},
		},
		{
			name: "token auth without token",
			config: Config{
				Bamboo: BambooConfig{
					Host: "http://bamboo",
					Auth: &AuthConfig{Type: "token"},
				},
				Scan: ScanConfig{Branch: "develop"},
			},
			wantErrs: []string{"bamboo.auth.token is required"},
		},
		{
			name: "unknown auth type",
			config: Config{
				Bamboo: BambooConfig{
					Host: "http://bamboo",
					Auth: &AuthConfig{Type: "oauth"},
				},
				Scan: ScanConfig{Branch: "develop"},
			},
			wantErrs: []string{"bamboo.auth.type 'oauth' is invalid"},
		},
		{
			name: "unknown log level",
			config: Config{
				Bamboo:  BambooConfig{Host: "http://bamboo"},
				Scan:    ScanConfig{Branch: "develop"},
				Logging: LoggingConfig{Level: "verbose"},
			},
			wantErrs: []string{"logging.level 'verbose' is invalid"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if len(tt.wantErrs) == 0 {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want %v", tt.wantErrs)
			}
			if !strings.HasPrefix(err.Error(), "validation errors: ") {
				t.Errorf("Validate() error = %q, want 'validation errors: ' prefix", err.Error())
			}
			for _, want := range tt.wantErrs {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), want)
				}
			}
		})
	}
}

func TestParseAuthType(t *testing.T) {
	tests := []struct {
		in   string
		want AuthType
	}{
		{"basic", BasicAuth},
		{"token", TokenAuth},
		{"", BasicAuth},
		{"other", BasicAuth},
	}
	for _, tt := range tests {
		if got := ParseAuthType(tt.in); got != tt.want {
			t.Errorf("ParseAuthType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
