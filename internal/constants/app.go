package constants

// Application identity
const (
	AppName    = "auth-service"
	AppVersion = "1.0.0"
)

// Permission namespace. Permission strings are namespaced per consuming
// application, e.g. "theluxar_user", "theluxar_admin".
const (
	DefaultPermissionNamespace = "theluxar"
	PermissionSuffixUser       = "user"
	PermissionSuffixAdmin      = "admin"
)

// Environment names
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)
