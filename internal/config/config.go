package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port   int    `yaml:"port"`
		APIKey string `yaml:"apiKey"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	FTP struct {
		Host           string `yaml:"host"`
		Port           int    `yaml:"port"`
		Username       string `yaml:"username"`
		Password       string `yaml:"password"`
		RemotePath     string `yaml:"remotePath"`
		Pattern        string `yaml:"pattern"`
		TimeoutSeconds int    `yaml:"timeoutSeconds"`
	} `yaml:"ftp"`

	Sugar struct {
		BaseURL        string `yaml:"baseURL"`
		Username       string `yaml:"username"`
		Password       string `yaml:"password"`
		ClientID       string `yaml:"clientID"`
		ClientSecret   string `yaml:"clientSecret"`
		Platform       string `yaml:"platform"`
		GrantType      string `yaml:"grantType"`
		TimeoutSeconds int    `yaml:"timeoutSeconds"`
		RetryMax       int    `yaml:"retryMax"`
	} `yaml:"sugar"`

	Email struct {
		Sender            string   `yaml:"sender"`
		SMTPHost          string   `yaml:"smtpHost"`
		SMTPPort          int      `yaml:"smtpPort"`
		Username          string   `yaml:"username"`
		Password          string   `yaml:"password"`
		UseTLS            bool     `yaml:"useTLS"`
		TimeoutSeconds    int      `yaml:"timeoutSeconds"`
		Recipients        []string `yaml:"recipients"`
		SuccessRecipients []string `yaml:"successRecipients"`
		FailureRecipients []string `yaml:"failureRecipients"`
	} `yaml:"email"`

	Ingest struct {
		AllowedMakes []string `yaml:"allowedMakes"`
	} `yaml:"ingest"`

	Sync struct {
		MinPendingAgeMinutes int `yaml:"minPendingAgeMinutes"`
	} `yaml:"sync"`

	Notify struct {
		CooldownMinutes int    `yaml:"cooldownMinutes"`
		ServiceName     string `yaml:"serviceName"`
	} `yaml:"notify"`
}

// Load baca file config.yaml, lalu timpa rahasia dari env
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.FTP.Port == 0 {
		c.FTP.Port = 21
	}
	if c.FTP.Pattern == "" {
		c.FTP.Pattern = "*.csv"
	}
	if c.FTP.TimeoutSeconds == 0 {
		c.FTP.TimeoutSeconds = 30
	}
	if c.Sugar.GrantType == "" {
		c.Sugar.GrantType = "password"
	}
	if c.Sugar.TimeoutSeconds == 0 {
		c.Sugar.TimeoutSeconds = 30
	}
	if c.Sugar.RetryMax == 0 {
		c.Sugar.RetryMax = 3
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.Email.TimeoutSeconds == 0 {
		c.Email.TimeoutSeconds = 30
	}
	if len(c.Ingest.AllowedMakes) == 0 {
		c.Ingest.AllowedMakes = []string{"HYUNDAI", "ISUZU", "RENAULT"}
	}
	if c.Sync.MinPendingAgeMinutes == 0 {
		c.Sync.MinPendingAgeMinutes = 15
	}
	if c.Notify.CooldownMinutes == 0 {
		c.Notify.CooldownMinutes = 360
	}
}

// applyEnv: secrets never have to live in the yaml file
func (c *Config) applyEnv() {
	override(&c.Database.Password, "VINDEREG_DB_PASSWORD")
	override(&c.Minio.SecretKey, "VINDEREG_MINIO_SECRET_KEY")
	override(&c.FTP.Password, "VINDEREG_FTP_PASSWORD")
	override(&c.Sugar.Password, "VINDEREG_SUGAR_PASSWORD")
	override(&c.Sugar.ClientSecret, "VINDEREG_SUGAR_CLIENT_SECRET")
	override(&c.Email.Password, "VINDEREG_SMTP_PASSWORD")
	override(&c.Server.APIKey, "VINDEREG_API_KEY")
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Sugar.BaseURL == "" {
		return fmt.Errorf("sugar.baseURL is required")
	}
	if c.FTP.Host == "" {
		return fmt.Errorf("ftp.host is required")
	}
	return nil
}

func override(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
	)
}

func (c *Config) FTPTimeout() time.Duration {
	return time.Duration(c.FTP.TimeoutSeconds) * time.Second
}

func (c *Config) SugarTimeout() time.Duration {
	return time.Duration(c.Sugar.TimeoutSeconds) * time.Second
}

func (c *Config) EmailTimeout() time.Duration {
	return time.Duration(c.Email.TimeoutSeconds) * time.Second
}

func (c *Config) MinPendingAge() time.Duration {
	return time.Duration(c.Sync.MinPendingAgeMinutes) * time.Minute
}

func (c *Config) NotifyCooldown() time.Duration {
	return time.Duration(c.Notify.CooldownMinutes) * time.Minute
}
