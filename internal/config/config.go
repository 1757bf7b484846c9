package config

type Config interface {
	EnvConfig
	EndpointConfig
}

type EnvConfig interface {
	GetAppName() string
	GetDataFolder() string
	GetDefaultLocale() string
	GetEnv() string
}

type EndpointConfig interface {
	GetAPIBaseURL() string
	GetIdentityBaseURL() string
	GetLoginPath() string
}

type mainConfig struct {
	EnvVars
}

func New() Config {
	return mainConfig{}
}
