package config

import (
	"fmt"
	"log"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
)

type Listen struct {
	BindIp string `yaml:"bind_ip" env-default:"0.0.0.0"`
	Port   string `yaml:"port" env-default:"8080"`
}

type DiscordConfig struct {
	Token string `yaml:"token" env:"DISCORD_TOKEN" env-default:""`
	AppID string `yaml:"app_id" env:"DISCORD_APP_ID" env-default:""`
}

type DatabaseConfig struct {
	HostName string `yaml:"host" env-default:"localhost"`
	Port     string `yaml:"port" env-default:"3306"`
	UserName string `yaml:"user" env-default:"keyverify"`
	Password string `yaml:"password" env:"DB_PASSWORD" env-default:""`
	Database string `yaml:"database" env-default:"keyverify"`
}

type PayhipConfig struct {
	// APIKey is the account-level key used by the admin reset and
	// blacklist endpoints; per-product secrets live in the database.
	APIKey string `yaml:"api_key" env:"PAYHIP_API_KEY" env-default:""`
}

type CryptConfig struct {
	// Key is a base64-encoded 32-byte key for encrypting product
	// secrets and license keys at rest. Missing key is fatal.
	Key string `yaml:"key" env:"CRYPT_KEY" env-default:""`
}

type ApiConfig struct {
	Enabled bool     `yaml:"enabled" env-default:"false"`
	Tokens  []string `yaml:"tokens"`
}

type Config struct {
	Discord  DiscordConfig  `yaml:"discord"`
	Database DatabaseConfig `yaml:"database"`
	Payhip   PayhipConfig   `yaml:"payhip"`
	Crypt    CryptConfig    `yaml:"crypt"`
	Api      ApiConfig      `yaml:"api"`
	Listen   Listen         `yaml:"listen"`
	Env      string         `yaml:"env" env-default:"local"`
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("config: %s; %s", err, desc)
			instance = nil
			log.Fatal(err)
		}
	})
	return instance
}
