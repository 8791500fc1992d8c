package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

const (
	LoanTopic = "library.loans"
)

type Config struct {
	Addrs []string `envconfig:"KAFKA_ADDRS"`
	// Buffer bounds the number of events waiting to be published.
	Buffer int `envconfig:"KAFKA_BUFFER" default:"256"`
}

func (c Config) Enabled() bool {
	return len(c.Addrs) > 0
}

func NewProducer(cfg Config) (sarama.SyncProducer, error) {
	defaultCfg := sarama.NewConfig()

	defaultCfg.Producer.RequiredAcks = sarama.WaitForAll
	defaultCfg.Producer.Return.Successes = true
	defaultCfg.Producer.Timeout = 5 * time.Second
	defaultCfg.Producer.Retry.Max = 3

	return sarama.NewSyncProducer(cfg.Addrs, defaultCfg)
}
