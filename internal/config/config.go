package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// ServerConfig holds configuration variables for the server.
type ServerConfig struct {
	Scheme string
	Host   string
	Port   string
	TLS    TLSConfig
	MTLS   MTLSConfig
	CORS   CORSConfig
}

// URL returns the main gateway URL for the server.
func (s *ServerConfig) URL() string {
	host := s.Host
	includePort := func() bool {
		if s.Port == "" {
			return false
		}
		if s.Scheme == "http" {
			return s.Port != "80"
		}
		// s.Scheme == "https"
		return s.Port != "443"
	}()
	if includePort {
		host = fmt.Sprintf("%s:%s", host, s.Port)
	}
	uri := url.URL{
		Scheme: s.Scheme,
		Host:   host,
	}
	return uri.String()
}

// TLSConfig locates the server certificate and the CA used to verify client
// certificates. Whether the server listens with TLS is decided by
// ServerConfig.Scheme; with scheme https and no certificate configured, a
// self-signed one is generated at startup.
type TLSConfig struct {
	CertFile     string
	KeyFile      string
	ClientCAFile string
}

// HasCertificate reports whether a certificate and key have been configured.
func (t TLSConfig) HasCertificate() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// MTLSConfig names the routes guarded by the client-certificate gate.
type MTLSConfig struct {
	Routes []string
}

// Protects reports whether the named route has the mTLS gate attached.
func (m MTLSConfig) Protects(route string) bool {
	for _, r := range m.Routes {
		if r == route {
			return true
		}
	}
	return false
}

// CORSConfig holds the origins allowed to call the API with credentials.
type CORSConfig struct {
	AllowedOrigins []string
}

// DatabaseType selects the user store backend.
type DatabaseType string

// Supported backends
const (
	DatabaseTypeBadger DatabaseType = "badger"
	DatabaseTypeMongo  DatabaseType = "mongo"
)

// DatabaseConfig holds configuration variables for the database.
type DatabaseConfig struct {
	Type DatabaseType
	URL  string // MongoDB connection string
	Name string // MongoDB database name

	// For embedded DB
	Dir string // Path to store data in (for embedded)
}

// SecretConfig holds the signing secret and lifetime for one token kind.
type SecretConfig struct {
	Secret   string
	Lifetime time.Duration
}

// RefreshConfig holds refresh token settings.
type RefreshConfig struct {
	SecretConfig     `mapstructure:",squash"`
	IgnoreExpiration bool
}

// TokensConfig holds settings for each token kind.
type TokensConfig struct {
	Access    SecretConfig
	Refresh   RefreshConfig
	Federated struct {
		Lifetime time.Duration
	}
}

// PasswordsConfig holds credential hashing parameters.
type PasswordsConfig struct {
	Cost int
}

// FederationConfig describes the upstream OpenID Connect provider.
type FederationConfig struct {
	IssuerURL    string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Timeout      time.Duration
}

// Enabled reports whether federation has been configured.
func (f FederationConfig) Enabled() bool {
	return f.ClientID != "" && f.TokenURL != "" && f.UserInfoURL != ""
}

// AdminConfig holds the seeded administrator account.
type AdminConfig struct {
	Username string
	Email    string
	Password string
}

// Config holds configuration information for the program.
type Config struct {
	Server     *ServerConfig
	Database   *DatabaseConfig
	Tokens     *TokensConfig
	Passwords  *PasswordsConfig
	Federation *FederationConfig
	Admin      *AdminConfig
	Remain     map[string]interface{} `mapstructure:",remain"`
}

var (
	// Current is the current configuration for the server.
	Current Config

	configPath string
)

func setConfigDefaults() {
	viper.SetDefault("server.scheme", "https")
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", "5000")
	viper.SetDefault("server.mtls.routes", []string{})
	viper.SetDefault("server.cors.allowedOrigins", []string{"http://localhost:3000"})

	viper.SetDefault("database.type", string(DatabaseTypeBadger))
	viper.SetDefault("database.url", "mongodb://localhost:27017")
	viper.SetDefault("database.name", "identity")

	viper.SetDefault("tokens.access.lifetime", 15*time.Minute)
	viper.SetDefault("tokens.refresh.lifetime", 7*24*time.Hour)
	viper.SetDefault("tokens.refresh.ignoreExpiration", false)
	viper.SetDefault("tokens.federated.lifetime", time.Hour)

	viper.SetDefault("passwords.cost", 10)

	viper.SetDefault("federation.redirectURL", "http://localhost:3000/auth/callback")
	viper.SetDefault("federation.scopes", []string{"openid", "email", "profile"})
	viper.SetDefault("federation.timeout", 10*time.Second)

	viper.SetDefault("admin.username", "SuperAdmin")
	viper.SetDefault("admin.email", "admin@test.com")
	viper.SetDefault("admin.password", "")
}

// LoadConfig loads the config file from disk.
func LoadConfig() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Unable to read .env file", "error", err)
	}

	viper.AddConfigPath("/etc/identity/")
	viper.AddConfigPath("$HOME/.identity")
	viper.AddConfigPath(".")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	setConfigDefaults()

	viper.SetEnvPrefix("identity")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Info("No configuration found. Running with defaults...")
			configPath, err = getConfigurationDirectory()
			if err != nil {
				panic(err)
			}
		} else {
			panic(fmt.Errorf("Unable to read config file: %v", err))
		}
	} else {
		configPath = filepath.Dir(viper.ConfigFileUsed())
	}

	// Keys only present in the environment are invisible to Unmarshal
	// unless bound explicitly.
	for _, key := range []string{
		"tokens.access.secret",
		"tokens.refresh.secret",
		"federation.issuerURL",
		"federation.authURL",
		"federation.tokenURL",
		"federation.userInfoURL",
		"federation.clientID",
		"federation.clientSecret",
		"server.tls.certFile",
		"server.tls.keyFile",
		"server.tls.clientCAFile",
		"database.dir",
	} {
		if err := viper.BindEnv(key); err != nil {
			panic(fmt.Errorf("Error binding %s: %v", key, err))
		}
	}

	Current = Config{}
	err = viper.Unmarshal(&Current)
	if err != nil {
		panic(fmt.Errorf("Error unmarshalling config: %v", err))
	}

	// Set paths with known configPath
	if Current.Database.Dir == "" {
		Current.Database.Dir = filepath.Join(configPath, "data")
	}

	Current.Federation.resolveEndpoints()

	if Current.Tokens.Access.Secret == "" {
		slog.Warn("No access token secret configured; generating an ephemeral one")
		Current.Tokens.Access.Secret = generateSecret()
	}
	if Current.Tokens.Refresh.Secret == "" {
		slog.Warn("No refresh token secret configured; generating an ephemeral one")
		Current.Tokens.Refresh.Secret = generateSecret()
	}
}

// resolveEndpoints derives the OpenID Connect endpoints of a Keycloak-style
// issuer when they have not been set explicitly.
func (f *FederationConfig) resolveEndpoints() {
	if f.IssuerURL == "" {
		return
	}
	base := strings.TrimSuffix(f.IssuerURL, "/") + "/protocol/openid-connect"
	if f.AuthURL == "" {
		f.AuthURL = base + "/auth"
	}
	if f.TokenURL == "" {
		f.TokenURL = base + "/token"
	}
	if f.UserInfoURL == "" {
		f.UserInfoURL = base + "/userinfo"
	}
}

func generateSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func getConfigurationDirectory() (string, error) {
	var configDir string

	// Prefer /etc
	configDir = "/etc/identity"
	if _, err := os.Stat(configDir); err == nil {
		return configDir, nil
	} else if os.IsNotExist(err) {
		// For non-sudo users, this is not possible
		if err := os.Mkdir(configDir, 0770); err == nil {
			return configDir, nil
		}
	} else {
		return "", err
	}

	// Check home directory
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("could not retrieve home directory: %v", err)
	}
	configDir = filepath.Join(home, ".identity")
	if _, err := os.Stat(configDir); err == nil {
		return configDir, nil
	} else if os.IsNotExist(err) {
		if err := os.Mkdir(configDir, 0700); err == nil {
			return configDir, nil
		}
	} else {
		return "", err
	}

	return "", errors.New("could not locate viable storage dir")
}
