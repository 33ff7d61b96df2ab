// Package dial opens a transport selected by environment variables
package dial

import (
	"context"
	"fmt"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/iotf/core/logger"
	"github.com/relabs-tech/iotf/iot/transport"
	"github.com/relabs-tech/iotf/iot/transport/kafka"
	"github.com/relabs-tech/iotf/iot/transport/mqtt"
	"github.com/relabs-tech/iotf/iot/transport/redis"
	"github.com/relabs-tech/iotf/iot/transport/sqs"
)

// Transport names
const (
	Memory = "memory"
	MQTT   = "mqtt"
	Kafka  = "kafka"
	Redis  = "redis"
	SQS    = "sqs"
)

// Settings select and configure a transport
type Settings struct {
	Transport string `env:"TRANSPORT,default=memory" description:"memory, mqtt, kafka, redis or sqs"`

	MQTTAddress    string `env:"MQTT_ADDRESS" description:"listen address of the embedded broker"`
	MQTTCertFile   string `env:"MQTT_CERT_FILE" description:"enables TLS"`
	MQTTKeyFile    string `env:"MQTT_KEY_FILE"`
	MQTTCACertFile string `env:"MQTT_CA_CERT_FILE" description:"requires client certificates"`
	MQTTPolicy     bool   `env:"MQTT_ENFORCE_POLICY" description:"restrict clients to the topics of their client id"`

	KafkaBrokers string `env:"KAFKA_BROKERS" description:"comma separated list of brokers"`
	KafkaTopic   string `env:"KAFKA_TOPIC,default=iotf"`
	KafkaGroupID string `env:"KAFKA_GROUP_ID"`

	RedisAddress  string `env:"REDIS_ADDRESS,default=localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0"`

	SQSQueueURL  string `env:"SQS_QUEUE_URL"`
	AWSRegion    string `env:"AWS_REGION"`
	AWSAccessID  string `env:"AWS_ACCESS_KEY_ID"`
	AWSAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
}

// FromEnv reads the settings from the environment
func FromEnv() (Settings, error) {
	var s Settings
	if err := envdecode.Decode(&s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Open opens the transport named in s. An embedded MQTT broker is started.
func Open(ctx context.Context, s Settings, log *logrus.Entry) (transport.Transport, error) {
	if log == nil {
		log = logger.Default()
	}
	switch s.Transport {
	case Memory, "":
		return transport.NewMemory(), nil
	case MQTT:
		b, err := mqtt.NewBroker(&mqtt.Builder{
			Address:       s.MQTTAddress,
			CertFile:      s.MQTTCertFile,
			KeyFile:       s.MQTTKeyFile,
			CACertFile:    s.MQTTCACertFile,
			EnforcePolicy: s.MQTTPolicy,
			Logger:        log,
		})
		if err != nil {
			return nil, err
		}
		b.Start()
		return b, nil
	case Kafka:
		return kafka.New(&kafka.Builder{
			Brokers: splitList(s.KafkaBrokers),
			Topic:   s.KafkaTopic,
			GroupID: s.KafkaGroupID,
			Logger:  log,
		})
	case Redis:
		client, err := redis.NewClient(redis.Config{
			Address:  s.RedisAddress,
			Password: s.RedisPassword,
			DB:       s.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return redis.New(client, log), nil
	case SQS:
		client, err := sqs.NewClient(ctx, sqs.Configuration{
			QueueURL:  s.SQSQueueURL,
			AWSRegion: s.AWSRegion,
			AccessID:  s.AWSAccessID,
			AccessKey: s.AWSAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return sqs.New(client, s.SQSQueueURL, log)
	}
	return nil, fmt.Errorf("unknown transport %q", s.Transport)
}

func splitList(s string) []string {
	var list []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
