package config

// Default returns a Config populated with the built-in defaults.
func Default() Config {
	return Config{
		Queue: Queue{Backend: DefaultQueueBackend},
		Redis: Redis{
			Addr: DefaultRedisAddr,
			Key:  DefaultRedisKey,
		},
		Kafka: Kafka{Topic: DefaultKafkaTopic},
		Database: Database{
			Driver:             DefaultDBDriver,
			StatusTable:        DefaultStatusTable,
			ASINField:          DefaultASINField,
			SiteField:          DefaultSiteField,
			UpdateTimeField:    DefaultUpdateTimeField,
			VerificationMethod: DefaultVerification,
			FreshnessWindow:    int(DefaultFreshnessWindow.Seconds()),
			MaxOpenConns:       DefaultDBMaxOpenConns,
		},
		SSH: SSH{Port: 22},
		OSS: OSS{
			MainImagePattern: DefaultMainImagePattern,
			SubImagePattern:  DefaultSubImagePattern,
			SubImageCount:    DefaultSubImageCount,
			ImageMode:        DefaultImageMode,
		},
		Verification: Verification{
			DBTimeout:     int(DefaultDBTimeout.Seconds()),
			OSSTimeout:    int(DefaultOSSTimeout.Seconds()),
			CheckInterval: int(DefaultCheckInterval.Seconds()),
			MaxRetries:    DefaultMaxRetries,
			Workers:       DefaultWorkers,
			ProbeTimeout:  int(DefaultProbeTimeout.Seconds()),
		},
		Export:  Export{Dir: ResultDir},
		Logging: Logging{Level: "info", Format: "console"},
	}
}
