package domain

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables that override values from the configuration file.
const (
	EnvHost     = "BAMBOO_HOST"
	EnvUser     = "BAMBOO_USER"
	EnvPassword = "BAMBOO_PASSWORD"
)

// DefaultSkipValue is the branch variable value the scanner treats as "not set".
const DefaultSkipValue = "0"

// Config represents the scanner configuration.
// This is the root configuration structure loaded from YAML files.
type Config struct {
	Bamboo  BambooConfig  `yaml:"bamboo"`
	Scan    ScanConfig    `yaml:"scan"`
	Logging LoggingConfig `yaml:"logging"`
}

// BambooConfig defines how to reach the Bamboo server.
type BambooConfig struct {
	Host   string      `yaml:"host" validate:"required,http_url"`
	Port   int         `yaml:"port" validate:"omitempty,min=1,max=65535"`
	Prefix string      `yaml:"prefix"`
	Auth   *AuthConfig `yaml:"auth,omitempty" validate:"omitempty"` // Optional - anonymous access when absent
}

// AuthConfig defines authentication settings.
// Supports both basic authentication and token-based authentication.
type AuthConfig struct {
	Type     string `yaml:"type" validate:"required,oneof=basic token"`
	Username string `yaml:"username,omitempty" validate:"required_if=Type basic"`
	Password string `yaml:"password,omitempty" validate:"required_if=Type basic"`
	Token    string `yaml:"token,omitempty" validate:"required_if=Type token"`
}

// ScanConfig drives the branch variable scan.
type ScanConfig struct {
	Branch        string `yaml:"branch"`
	VariableIndex int    `yaml:"variable_index" validate:"min=0"`
	SkipValue     string `yaml:"skip_value"`
}

// LoggingConfig defines log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Pretty bool   `yaml:"pretty"`
}

// AuthType defines supported authentication methods.
type AuthType int

const (
	// BasicAuth uses username and password authentication
	BasicAuth AuthType = iota
	// TokenAuth uses personal access token authentication
	TokenAuth
)

// String returns the string representation of AuthType.
func (a AuthType) String() string {
	switch a {
	case BasicAuth:
		return "basic"
	case TokenAuth:
		return "token"
	default:
		return "unknown"
	}
}

// ParseAuthType converts a string to AuthType.
func ParseAuthType(s string) AuthType {
	switch s {
	case "basic":
		return BasicAuth
	case "token":
		return TokenAuth
	default:
		return BasicAuth
	}
}

// LoadConfig reads and validates configuration from a YAML file.
// Environment overrides are applied before validation.
// Returns an error if the file is missing, has invalid syntax, or fails validation.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("invalid YAML syntax in configuration file: %w", err)
	}

	config.applyEnv(os.Getenv)
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// applyEnv overrides host and basic credentials from the environment.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvHost); v != "" {
		c.Bamboo.Host = v
	}

	user, password := getenv(EnvUser), getenv(EnvPassword)
	if user == "" && password == "" {
		return
	}
	if c.Bamboo.Auth == nil {
		c.Bamboo.Auth = &AuthConfig{Type: "basic"}
	}
	// Basic credentials are ignored under token auth unless both are given,
	// in which case they replace the token.
	if c.Bamboo.Auth.Type == "token" {
		if user == "" || password == "" {
			return
		}
		c.Bamboo.Auth = &AuthConfig{Type: "basic"}
	}
	if user != "" {
		c.Bamboo.Auth.Username = user
	}
	if password != "" {
		c.Bamboo.Auth.Password = password
	}
}

func (c *Config) applyDefaults() {
	if c.Bamboo.Port == 0 {
		c.Bamboo.Port = DefaultPort
	}
	if c.Scan.SkipValue == "" {
		c.Scan.SkipValue = DefaultSkipValue
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

var configValidator = newConfigValidator()

// newConfigValidator reports fields by their YAML names.
func newConfigValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the configuration for completeness and correctness.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	err := configValidator.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}

	messages := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		messages = append(messages, describeFieldError(fe))
	}
	return fmt.Errorf("validation errors: %s", strings.Join(messages, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	// Namespace is "Config.bamboo.host"; drop the root type name.
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "http_url":
		return fmt.Sprintf("%s must be an http or https URL with a host", field)
	case "min", "max":
		if fe.Kind() == reflect.Int && field == "bamboo.port" {
			return fmt.Sprintf("invalid %s %v: must be between 1 and 65535", field, fe.Value())
		}
		return fmt.Sprintf("invalid %s %v: must be %s %s", field, fe.Value(), fe.Tag(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s '%v' is invalid: must be one of %s", field, fe.Value(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// Connection returns the connection parameters described by the configuration.
// Only basic credentials are carried over; token auth is applied through
// CredentialsFromAuthConfig.
func (c *Config) Connection() Connection {
	conn := Connection{
		Host:   c.Bamboo.Host,
		Port:   c.Bamboo.Port,
		Prefix: c.Bamboo.Prefix,
	}
	if c.Bamboo.Auth != nil && c.Bamboo.Auth.Type == "basic" {
		conn.Username = c.Bamboo.Auth.Username
		conn.Password = c.Bamboo.Auth.Password
	}
	return conn
}
