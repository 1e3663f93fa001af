package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig      `mapstructure:"server"`
	Database DatabaseConfig    `mapstructure:"database"`
	Cache    CacheConfig       `mapstructure:"cache"`
	Security SecurityConfig    `mapstructure:"security"`
	Identity IdentityConfig    `mapstructure:"identity"`
	Social   SocialConfig      `mapstructure:"social"`
	Messages map[string]string `mapstructure:"messages"` // message key → template override
}

type ServerConfig struct {
	Port  int  `mapstructure:"port"`
	Debug bool `mapstructure:"debug"`
	// AdminKey protects /api/admin. Empty disables the admin routes.
	AdminKey string `mapstructure:"admin_key"`
	// AdminIPs restricts /api/admin to these addresses or CIDR ranges.
	AdminIPs []string `mapstructure:"admin_ips"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
	SlowQuery    time.Duration `mapstructure:"slow_query"` // 0 = off
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	RedisPrefix     string        `mapstructure:"redis_prefix"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalMaxEntries int           `mapstructure:"local_max_entries"`
}

type SecurityConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	// AllowedOrigins lists the SSE origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// IdentityConfig configures the external profile lookup service.
type IdentityConfig struct {
	NameURL  string        `mapstructure:"name_url"` // %s is replaced by the player name
	IDURL    string        `mapstructure:"id_url"`   // %s is replaced by the dashless uuid
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type SocialConfig struct {
	CommandName string `mapstructure:"command_name"`
	// NewsExpiration bounds how long a queued notification waits for its
	// recipient. Zero keeps it until the next connect.
	NewsExpiration    time.Duration `mapstructure:"news_expiration"`
	NewsPurgeInterval time.Duration `mapstructure:"news_purge_interval"`
	MaxFriends        int           `mapstructure:"max_friends"` // 0 = unlimited
	// DisabledMessages lists message keys that are never sent.
	DisabledMessages []string `mapstructure:"disabled_messages"`
}

// Load reads config from the given YAML file path.
// A .env file next to the working directory is loaded first when present;
// SOCIAL_* environment variables override file values.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SOCIAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/velocity_friends.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("database.slow_query", "200ms")
	v.SetDefault("cache.redis_prefix", "socialgraph:")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_max_entries", 100000)
	v.SetDefault("identity.name_url", "https://api.mojang.com/users/profiles/minecraft/%s")
	v.SetDefault("identity.id_url", "https://sessionserver.mojang.com/session/minecraft/profile/%s")
	v.SetDefault("identity.timeout", "5s")
	v.SetDefault("identity.cache_ttl", "10m")
	v.SetDefault("social.command_name", "friends")
	v.SetDefault("social.news_expiration", "0s")
	v.SetDefault("social.news_purge_interval", "10m")
	v.SetDefault("social.max_friends", 0)
	v.SetDefault("social.disabled_messages", []string{"player_friend_removed"})
}
