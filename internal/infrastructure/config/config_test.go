package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	tests := []struct {
		name   string
		config DatabaseConfig
		want   string
	}{
		{
			name: "standard configuration",
			config: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "eddy",
				Password: "secret",
				Database: "eddy_dev",
				SSLMode:  "disable",
			},
			want: "host=localhost port=5432 user=eddy password=secret dbname=eddy_dev sslmode=disable",
		},
		{
			name: "custom port and ssl",
			config: DatabaseConfig{
				Host:     "db.example.com",
				Port:     15432,
				User:     "admin",
				Password: "p@ss",
				Database: "eddy",
				SSLMode:  "require",
			},
			want: "host=db.example.com port=15432 user=admin password=p@ss dbname=eddy sslmode=require",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.ConnectionString(); got != tt.want {
				t.Errorf("ConnectionString() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConnectConfig_BaseURL(t *testing.T) {
	c := ConnectConfig{Host: "debezium-connect", Port: 8083}
	if got := c.BaseURL(); got != "http://debezium-connect:8083" {
		t.Errorf("BaseURL() = %v", got)
	}
}

func TestSchemaConfig_ResolveSchemaPath(t *testing.T) {
	abs := SchemaConfig{Path: "/etc/eddy/eddy.schema"}
	if got := abs.ResolveSchemaPath(); got != "/etc/eddy/eddy.schema" {
		t.Errorf("ResolveSchemaPath() = %v, want absolute path unchanged", got)
	}

	rel := SchemaConfig{Path: "schema/eddy.schema"}
	got := rel.ResolveSchemaPath()
	if !filepath.IsAbs(got) {
		t.Errorf("ResolveSchemaPath() = %v, want absolute path", got)
	}
	if filepath.Base(got) != "eddy.schema" {
		t.Errorf("ResolveSchemaPath() = %v, want file name kept", got)
	}
}

func TestInitConfig(t *testing.T) {
	tests := []struct {
		name string
		env  string
	}{
		{name: "default environment", env: ""},
		{name: "test environment", env: "test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			defer viper.Reset()

			if err := InitConfig(tt.env); err != nil {
				t.Fatalf("InitConfig() error = %v", err)
			}

			if viper.GetString("SERVER_HOST") != "0.0.0.0" {
				t.Errorf("InitConfig() SERVER_HOST = %v, want 0.0.0.0", viper.GetString("SERVER_HOST"))
			}
			if viper.GetInt("SERVER_PORT") != 50051 {
				t.Errorf("InitConfig() SERVER_PORT = %v, want 50051", viper.GetInt("SERVER_PORT"))
			}
			if viper.GetString("DB_USER") != "eddy" {
				t.Errorf("InitConfig() DB_USER = %v, want eddy", viper.GetString("DB_USER"))
			}
			if viper.GetString("SCHEMA_PATH") != "schema/eddy.schema" {
				t.Errorf("InitConfig() SCHEMA_PATH = %v", viper.GetString("SCHEMA_PATH"))
			}
			if viper.GetInt("CONNECT_PORT") != 8083 {
				t.Errorf("InitConfig() CONNECT_PORT = %v, want 8083", viper.GetInt("CONNECT_PORT"))
			}
			if viper.GetString("ADMIN_USERNAME") != "admin" {
				t.Errorf("InitConfig() ADMIN_USERNAME = %v, want admin", viper.GetString("ADMIN_USERNAME"))
			}
		})
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setupEnv    func()
		wantErr     bool
		wantErrMsg  string
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "successful load with defaults",
			setupEnv: func() {
				_ = InitConfig("test")
				viper.Set("DB_PASSWORD", "testpassword")
				viper.Set("AUTH_JWT_SECRET", "signing-secret")
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != 50051 {
					t.Errorf("Load() Server.Port = %v, want 50051", cfg.Server.Port)
				}
				if cfg.Server.ShutdownTimeout != 30*time.Second {
					t.Errorf("Load() Server.ShutdownTimeout = %v, want 30s", cfg.Server.ShutdownTimeout)
				}
				if cfg.Database.Password != "testpassword" {
					t.Errorf("Load() Database.Password = %v, want testpassword", cfg.Database.Password)
				}
				if cfg.Database.MaxOpenConns != 25 {
					t.Errorf("Load() Database.MaxOpenConns = %v, want 25", cfg.Database.MaxOpenConns)
				}
				if cfg.Auth.JWTSecret != "signing-secret" {
					t.Errorf("Load() Auth.JWTSecret = %v", cfg.Auth.JWTSecret)
				}
				if cfg.Auth.TokenTTLMinutes != 60 {
					t.Errorf("Load() Auth.TokenTTLMinutes = %v, want 60", cfg.Auth.TokenTTLMinutes)
				}
				if !cfg.Cache.Enabled || cfg.Cache.MaxMemoryBytes != 10*1024*1024 {
					t.Errorf("Load() Cache = %+v", cfg.Cache)
				}
				if cfg.Connect.Host != "debezium-connect" || cfg.Connect.RetryMax != 3 {
					t.Errorf("Load() Connect = %+v", cfg.Connect)
				}
				if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
					t.Errorf("Load() Log = %+v", cfg.Log)
				}
			},
		},
		{
			name: "missing password",
			setupEnv: func() {
				viper.Set("AUTH_JWT_SECRET", "signing-secret")
			},
			wantErr:    true,
			wantErrMsg: "DB_PASSWORD is required (set via environment variable or .env file)",
		},
		{
			name: "missing jwt secret",
			setupEnv: func() {
				viper.Set("DB_PASSWORD", "pass123")
			},
			wantErr:    true,
			wantErrMsg: "AUTH_JWT_SECRET is required (set via environment variable or .env file)",
		},
		{
			name: "custom server config",
			setupEnv: func() {
				viper.Set("DB_PASSWORD", "pass123")
				viper.Set("AUTH_JWT_SECRET", "signing-secret")
				viper.Set("SERVER_HOST", "custom.host")
				viper.Set("SERVER_PORT", 8080)
				viper.Set("LOG_FORMAT", "console")
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				if cfg.Server.Host != "custom.host" {
					t.Errorf("Load() Server.Host = %v, want custom.host", cfg.Server.Host)
				}
				if cfg.Server.Port != 8080 {
					t.Errorf("Load() Server.Port = %v, want 8080", cfg.Server.Port)
				}
				if cfg.Log.Format != "console" {
					t.Errorf("Load() Log.Format = %v, want console", cfg.Log.Format)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			defer viper.Reset()
			tt.setupEnv()

			cfg, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				if err.Error() != tt.wantErrMsg {
					t.Errorf("Load() error = %v, want %v", err.Error(), tt.wantErrMsg)
				}
				return
			}

			if tt.validateCfg != nil {
				tt.validateCfg(t, cfg)
			}
		})
	}
}

func TestFindProjectRoot(t *testing.T) {
	root, err := FindProjectRoot()
	if err != nil {
		t.Errorf("FindProjectRoot() error = %v, want nil", err)
		return
	}

	goModPath := filepath.Join(root, "go.mod")
	if _, err := os.Stat(goModPath); os.IsNotExist(err) {
		t.Errorf("FindProjectRoot() returned %v, but go.mod does not exist at %v", root, goModPath)
	}
}
