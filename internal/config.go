package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 整個應用的配置
type Config struct {
	Server struct {
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		IdleTimeout  time.Duration `yaml:"idle_timeout"`
	} `yaml:"server"`

	WebSocket struct {
		ReadBufferSize  int           `yaml:"read_buffer_size"`
		WriteBufferSize int           `yaml:"write_buffer_size"`
		SendBufferSize  int           `yaml:"send_buffer_size"` // 每個連接的發送 channel 容量
		MaxMessageSize  int64         `yaml:"max_message_size"`
		PingInterval    time.Duration `yaml:"ping_interval"`
		PongWait        time.Duration `yaml:"pong_wait"`
		WriteWait       time.Duration `yaml:"write_wait"`
		AllowedOrigins  []string      `yaml:"allowed_origins"` // "*" 允許所有來源
	} `yaml:"websocket"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultConfig 預設配置
//
// 心跳 54s/60s 與寫入期限 10s 沿用既有的連接管理參數。
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8083
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.IdleTimeout = 60 * time.Second

	cfg.WebSocket.ReadBufferSize = 1024
	cfg.WebSocket.WriteBufferSize = 1024
	cfg.WebSocket.SendBufferSize = 256
	cfg.WebSocket.MaxMessageSize = 64 * 1024
	cfg.WebSocket.PingInterval = 54 * time.Second
	cfg.WebSocket.PongWait = 60 * time.Second
	cfg.WebSocket.WriteWait = 10 * time.Second
	cfg.WebSocket.AllowedOrigins = []string{"*"}

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	return cfg
}

// LoadConfig 載入配置
//
// 順序：預設值 → YAML 檔（不存在則略過）→ 環境變數。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		// #nosec G304 - path 來自命令列參數
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// 沒有配置檔，使用預設值
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv 環境變數覆蓋（部署平台通常只給 PORT）
func (c *Config) applyEnv() error {
	if v := os.Getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.WebSocket.AllowedOrigins = splitCSV(v)
	}
	return nil
}

// Validate 檢查配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.WebSocket.SendBufferSize <= 0 {
		return fmt.Errorf("send_buffer_size must be positive: %d", c.WebSocket.SendBufferSize)
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("max_message_size must be positive: %d", c.WebSocket.MaxMessageSize)
	}
	// 心跳與寫入期限必須為正（time.NewTicker 遇到非正值會 panic）
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("ping_interval must be positive: %s", c.WebSocket.PingInterval)
	}
	if c.WebSocket.PongWait <= 0 {
		return fmt.Errorf("pong_wait must be positive: %s", c.WebSocket.PongWait)
	}
	if c.WebSocket.WriteWait <= 0 {
		return fmt.Errorf("write_wait must be positive: %s", c.WebSocket.WriteWait)
	}
	if c.WebSocket.PingInterval >= c.WebSocket.PongWait {
		return fmt.Errorf("ping_interval (%s) must be shorter than pong_wait (%s)",
			c.WebSocket.PingInterval, c.WebSocket.PongWait)
	}
	return nil
}

// Addr 監聽地址
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// AllowAnyOrigin 是否允許所有來源
func (c *Config) AllowAnyOrigin() bool {
	for _, o := range c.WebSocket.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

// splitCSV 逗號分隔字串，去除空白與空項
func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
