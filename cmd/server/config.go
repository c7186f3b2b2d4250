package main

import "time"

type Config struct {
	Host           string        `env:"HOST,default=0.0.0.0"`
	Port           int           `env:"PORT,default=8080"`
	DBPath         string        `env:"DB_PATH,default=foodfortalk.db"`
	SessionSecret  string        `env:"SESSION_SECRET,required=true"`
	SessionTTL     time.Duration `env:"SESSION_TTL,default=6h"`
	AllowedOrigins string        `env:"ALLOWED_ORIGINS,required=true"`
	TrustedProxies string        `env:"TRUSTED_PROXIES"`
	LogLevel       string        `env:"LOG_LEVEL,default=info"`
	SeedFile       string        `env:"SEED_FILE"`
}
