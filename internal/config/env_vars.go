package config

import "os"

const (
	appNameVar         = "APP_NAME"
	folderEnvVar       = "FOLDER"
	apiBaseURLVar      = "API_BASE_URL"
	identityBaseURLVar = "IDENTITY_API_BASE_URL"
	defaultLocaleVar   = "DEFAULT_LOCALE"
	loginPathVar       = "LOGIN_PATH"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}
var _ EndpointConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Go Session Client")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
}

func (EnvVars) GetDefaultLocale() string {
	return GetEnv(defaultLocaleVar, "en")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

// GetAPIBaseURL returns the base URL for the main backend REST API
// (e.g., "https://api.example.com"). All marketplace calls are made against it.
func (EnvVars) GetAPIBaseURL() string {
	return GetEnv(apiBaseURLVar, "http://localhost:8000")
}

// GetIdentityBaseURL returns the base URL for the identity-linked API
// (session fetch, refresh, and the auth event stream).
func (EnvVars) GetIdentityBaseURL() string {
	return GetEnv(identityBaseURLVar, "http://localhost:9999")
}

// GetLoginPath returns the path template of the login surface. The leading
// locale segment is filled in by the client when it builds the redirect URL.
func (EnvVars) GetLoginPath() string {
	return GetEnv(loginPathVar, "/%s/login")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
