package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                string
		DebugHost           string
		ReadTimeout         time.Duration
		WriteTimeout        time.Duration
		ShutdownTimeout     time.Duration
		JWTExpirationDelta  time.Duration
		SessionWarningDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		InMemory      bool
	}

	BackendConfig struct {
		BaseURL        string
		Runtime        string
		Timeout        time.Duration
		RequestsPerSec float64
		Burst          int
	}

	ObjectStoreConfig struct {
		Host            string
		Port            int
		AccessKey       string
		SecretKey       string
		UseSSL          bool
		Region          string
		Bucket          string
		SignedURLExpiry time.Duration
	}

	Config struct {
		Debug            bool
		TestMode         bool
		Env              string
		Build            string
		AppName          string
		SecretKey        string
		RollbarToken     string
		SendgridApiKey   string
		FrontendBaseURL  string
		WorkDir          string
		Locales          []string
		DefaultLocale    string
		defaultFromEmail string

		Server      ServerConfig
		Database    DatabaseConfig
		Backend     BackendConfig
		ObjectStore ObjectStoreConfig
	}
)

// Address returns the database "host:port".
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Endpoint returns the object store base URL.
func (c ObjectStoreConfig) Endpoint() string {
	scheme := "http"
	if c.UseSSL {
		scheme = "https"
	}
	host := c.Host
	if c.Port > 0 {
		host = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	}
	return scheme + "://" + host
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

// NewConfig loads the configuration of the current environment.
// ENV selects the environment (DEV by default, TEST, QA or PROD) and is also used as the prefix of
// every environment variable, e.g. PROD_BACKEND_BASEURL.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "eClass")
	v.SetDefault("secretKey", "x7#kq2!m9v@wz4$e8r&t1y^u6i*o3p(a5s)d0f-g+h=j")
	v.SetDefault("defaultFromEmail", "eClass <noreply@localhost>")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("locales", "en,de")

	v.SetDefault("server.host", "0.0.0.0:8000")
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.readTimeout", 10*time.Second)
	v.SetDefault("server.writeTimeout", 0*time.Second) // SSE streams stay open
	v.SetDefault("server.shutdownTimeout", 10*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 24*time.Hour)
	v.SetDefault("server.sessionWarningDelta", 5*time.Minute)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "eclass")
	v.SetDefault("database.user", "eclass")
	v.SetDefault("database.password", "eclass")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.inMemory", false)

	v.SetDefault("backend.baseURL", "http://localhost:8080")
	v.SetDefault("backend.runtime", "server")
	v.SetDefault("backend.timeout", 15*time.Second)
	v.SetDefault("backend.requestsPerSec", 50.0)
	v.SetDefault("backend.burst", 20)

	v.SetDefault("minio.host", "localhost")
	v.SetDefault("minio.port", 9000)
	v.SetDefault("minio.accessKey", "")
	v.SetDefault("minio.secretKey", "")
	v.SetDefault("minio.useSSL", false)
	v.SetDefault("minio.region", "us-east-1")
	v.SetDefault("minio.bucket", "eclass")
	v.SetDefault("minio.signedURLExpiry", 3600) // seconds

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	locales := splitList(v.GetString("locales"))

	return &Config{
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		Env:              env,
		Build:            v.GetString("build"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		WorkDir:          wd,
		Locales:          locales,
		DefaultLocale:    locales[0],
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                v.GetString("server.host"),
			DebugHost:           v.GetString("server.debugHost"),
			ReadTimeout:         v.GetDuration("server.readTimeout"),
			WriteTimeout:        v.GetDuration("server.writeTimeout"),
			ShutdownTimeout:     v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:  v.GetDuration("server.jwtExpirationDelta"),
			SessionWarningDelta: v.GetDuration("server.sessionWarningDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			InMemory:      v.GetBool("database.inMemory"),
		},
		Backend: BackendConfig{
			BaseURL:        strings.TrimRight(v.GetString("backend.baseURL"), "/"),
			Runtime:        v.GetString("backend.runtime"),
			Timeout:        v.GetDuration("backend.timeout"),
			RequestsPerSec: v.GetFloat64("backend.requestsPerSec"),
			Burst:          v.GetInt("backend.burst"),
		},
		ObjectStore: ObjectStoreConfig{
			Host:            v.GetString("minio.host"),
			Port:            v.GetInt("minio.port"),
			AccessKey:       v.GetString("minio.accessKey"),
			SecretKey:       v.GetString("minio.secretKey"),
			UseSSL:          v.GetBool("minio.useSSL"),
			Region:          v.GetString("minio.region"),
			Bucket:          v.GetString("minio.bucket"),
			SignedURLExpiry: time.Duration(v.GetInt("minio.signedURLExpiry")) * time.Second,
		},
	}
}

// NewTestConfig returns the configuration used by tests.
func NewTestConfig() *Config {
	conf := NewConfig()
	conf.Debug = false
	conf.TestMode = true
	conf.Env = "TEST"
	conf.SecretKey = "test-secret"
	conf.Database.InMemory = true
	return conf
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = CleanString(p, true); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = append(out, "en")
	}
	return out
}
