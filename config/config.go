// Package config loads the process configuration once at startup and
// hands a plain struct down the wiring. Every key can come from the
// environment or from an optional config file named by NJORD_CONFIG.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr string

	WALDir          string
	WALSegmentSize  int64
	WALSegmentAge   time.Duration
	WALSyncOnAppend bool

	StoreDir  string
	OutboxDir string

	SnapshotInterval time.Duration

	KafkaBrokers     []string
	KafkaOrdersTopic string
	KafkaOrdersGroup string
	KafkaOrdersDLQ   string
	KafkaEventsTopic string
	BroadcastEvery   time.Duration
}

func Load() (*Config, error) {
	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("WAL_DIR", "./data/wal")
	viper.SetDefault("WAL_SEGMENT_SIZE", 2*1024*1024)
	viper.SetDefault("WAL_SEGMENT_AGE", "1m")
	viper.SetDefault("WAL_SYNC_ON_APPEND", true)
	viper.SetDefault("STORE_DIR", "./data/store")
	viper.SetDefault("OUTBOX_DIR", "./data/outbox")
	viper.SetDefault("SNAPSHOT_INTERVAL", "30s")
	viper.SetDefault("KAFKA_BROKERS", []string{})
	viper.SetDefault("KAFKA_ORDERS_TOPIC", "njord.orders")
	viper.SetDefault("KAFKA_ORDERS_GROUP", "njord-engine")
	viper.SetDefault("KAFKA_ORDERS_DLQ", "njord.orders.dlq")
	viper.SetDefault("KAFKA_EVENTS_TOPIC", "njord.events")
	viper.SetDefault("BROADCAST_EVERY", "250ms")
	viper.AutomaticEnv()

	if path := viper.GetString("NJORD_CONFIG"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	return &Config{
		HTTPAddr:         viper.GetString("HTTP_ADDR"),
		WALDir:           viper.GetString("WAL_DIR"),
		WALSegmentSize:   viper.GetInt64("WAL_SEGMENT_SIZE"),
		WALSegmentAge:    viper.GetDuration("WAL_SEGMENT_AGE"),
		WALSyncOnAppend:  viper.GetBool("WAL_SYNC_ON_APPEND"),
		StoreDir:         viper.GetString("STORE_DIR"),
		OutboxDir:        viper.GetString("OUTBOX_DIR"),
		SnapshotInterval: viper.GetDuration("SNAPSHOT_INTERVAL"),
		KafkaBrokers:     viper.GetStringSlice("KAFKA_BROKERS"),
		KafkaOrdersTopic: viper.GetString("KAFKA_ORDERS_TOPIC"),
		KafkaOrdersGroup: viper.GetString("KAFKA_ORDERS_GROUP"),
		KafkaOrdersDLQ:   viper.GetString("KAFKA_ORDERS_DLQ"),
		KafkaEventsTopic: viper.GetString("KAFKA_EVENTS_TOPIC"),
		BroadcastEvery:   viper.GetDuration("BROADCAST_EVERY"),
	}, nil
}
