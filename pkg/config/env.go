package config

// EnvPrefix is the envconfig prefix shared by every binary.
const EnvPrefix = "usermail"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Environment variable names referenced outside struct tags.
const (
	EnvAppEnv   = "USERMAIL_APP_ENV"
	EnvPort     = "USERMAIL_APP_PORT"
	EnvDBDSN    = "USERMAIL_DB_DSN"
	EnvDBHost   = "USERMAIL_DB_HOST"
	EnvDBUser   = "USERMAIL_DB_USER"
	EnvDBName   = "USERMAIL_DB_NAME"
	EnvRedisURL = "USERMAIL_REDIS_URL"

	EnvGCPProjectID    = "USERMAIL_GCP_PROJECT_ID"
	EnvPubSubEmailSub  = "USERMAIL_PUBSUB_EMAIL_SUBSCRIPTION"
	EnvOutboxBatchSize = "USERMAIL_OUTBOX_PUBLISH_BATCH_SIZE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
