package config

import (
	"log"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/Astemirdum/library-records/library/internal/telemetry"
	"github.com/Astemirdum/library-records/pkg/kafka"
	"github.com/Astemirdum/library-records/pkg/logger"
	"github.com/Astemirdum/library-records/pkg/postgres"
)

type HTTPServer struct {
	Host         string        `yaml:"host" envconfig:"LIBRARY_HTTP_HOST" default:"0.0.0.0"`
	Port         string        `yaml:"port" envconfig:"LIBRARY_HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"readTimeout" envconfig:"HTTP_READ" default:"10s"`
	WriteTimeout time.Duration `yaml:"writeTimeout" envconfig:"HTTP_WRITE"`
}

type Config struct {
	Server    HTTPServer       `yaml:"server"`
	Database  postgres.DB      `yaml:"db"`
	Kafka     kafka.Config     `yaml:"kafka"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Log       logger.Log       `yaml:"log"`
}

var (
	once sync.Once
	cfg  *Config
)

// NewConfig reads config from environment.
// Options run first, so they only hold for variables that are unset and have no default.
func NewConfig(ops ...Option) *Config {
	once.Do(func() {
		var config Config
		for _, op := range ops {
			op(&config)
		}
		if err := envconfig.Process("", &config); err != nil {
			log.Fatal("NewConfig ", err)
		}
		cfg = &config
	})

	return cfg
}
