package config

const (
	EnvPrefix = "MEDSTOCK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv = "MEDSTOCK_APP_ENV"
	EnvPort   = "MEDSTOCK_APP_PORT"

	EnvDBDSN      = "MEDSTOCK_DB_DSN"
	EnvDBHost     = "MEDSTOCK_DB_HOST"
	EnvDBUser     = "MEDSTOCK_DB_USER"
	EnvDBName     = "MEDSTOCK_DB_NAME"
	EnvDBPassword = "MEDSTOCK_DB_PASSWORD"

	EnvRedisURL = "MEDSTOCK_REDIS_URL"

	EnvJWTSecret  = "MEDSTOCK_JWT_SECRET"
	EnvJWTIssuer  = "MEDSTOCK_JWT_ISSUER"
	EnvJWTExpMins = "MEDSTOCK_JWT_EXPIRATION_MINUTES"

	EnvSettlementStrict  = "MEDSTOCK_SETTLEMENT_STRICT"
	EnvPubSubDomainTopic = "MEDSTOCK_PUBSUB_DOMAIN_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
