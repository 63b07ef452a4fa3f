package config

type Config struct {
	Sync       SyncConfig
	SQL        SQLConfig
	Plaid      PlaidConfig
	Classifier ClassifierConfig
	Influx     InfluxConfig
}

type Secrets struct {
	Plaid  PlaidSecrets
	SQL    SqlSecrets
	Influx InfluxSecrets
	Gemini GeminiSecrets

	// Altternative to the SQL struct, designed to be used with heroku env variable
	DatabaseURL string `env:"DATABASE_URL"`
}

///////////////////////////////////////////////////////////////////////////////////////
// Sync
///////////////////////////////////////////////////////////////////////////////////////

type SyncConfig struct {
	// Cron spec used by serve
	UpdateFrequency string
	// Users synced by serve
	Users []string
	// Days of history requested when an account is first linked
	InitialWindowDays int
	// Bound on a single provider call, parsed with time.ParseDuration
	ProviderTimeout       string
	MaxConcurrentAccounts int
}

type SQLConfig struct {
	Database string
}

///////////////////////////////////////////////////////////////////////////////////////
// Plaid
///////////////////////////////////////////////////////////////////////////////////////

type PlaidConfig struct {
	// sandbox, development or production
	Environment  string
	ClientName   string
	CountryCodes []string
	// Transactions requested per /transactions/get and /transactions/sync page
	PageSize int
}

type PlaidSecrets struct {
	ClientID string `json:"clientId" env:"PLAID_CLIENT_ID"`
	Secret   string `json:"secret" env:"PLAID_SECRET"`
}

///////////////////////////////////////////////////////////////////////////////////////
// Categorization
///////////////////////////////////////////////////////////////////////////////////////

type ClassifierConfig struct {
	// rules or gemini
	Backend  string
	Model    string
	Fallback string
	Rules    []ClassifierRule
}

type ClassifierRule struct {
	Label    string   `json:"label"`
	Keywords []string `json:"keywords"`
}

type GeminiSecrets struct {
	APIKey string `json:"apiKey" env:"GEMINI_API_KEY"`
}

///////////////////////////////////////////////////////////////////////////////////////
// Storage
///////////////////////////////////////////////////////////////////////////////////////

type SqlSecrets struct {
	SqlHost     string `env:"SQL_HOST"`
	SqlUsername string `env:"SQL_USERNAME"`
	SqlPassword string `env:"SQL_PASSWORD"`
}

type InfluxConfig struct {
	Enabled     bool
	Database    string
	Measurement string
}

type InfluxSecrets struct {
	InfluxEndpoint string `env:"INFLUX_ENDPOINT"`
	InfluxUsername string `env:"INFLUX_USERNAME"`
	InfluxPassword string `env:"INFLUX_PASSWORD"`
}
