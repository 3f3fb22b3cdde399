package shared

import (
	"log"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/launchlens/launch-lens/utils/config"
)

func unmarshalLaunchpads(k *koanf.Koanf) []config.Launchpad {
	var launchpads []config.Launchpad
	err := k.Unmarshal("launchpads", &launchpads)
	if err != nil {
		log.Fatalf("Unmarshal launchpads error: %v", err)
	}
	return launchpads
}

func NewKoanfInstance() *koanf.Koanf {
	k := koanf.New(".")

	defaultValues := map[string]interface{}{
		"app.name":                     "launch-lens",
		"app.host":                     ":8080",
		"app.idle-timeout":             50 * time.Second,
		"app.print-routes":             false,
		"app.prefork":                  false,
		"app.production":               false,
		"redis.keeplive-interval":      30 * time.Second,
		"redis.retry-count":            3,
		"ingestion.interval":           5 * time.Minute,
		"ingestion.lock-ttl":           4 * time.Minute,
		"crawler.poll-base-delay":      2 * time.Second,
		"crawler.poll-max-attempts":    6,
		"llm.max-tokens":               1024,
		"chain.sale-cutoff-percent":    5.0,
		"chain.transfer-lookback":      2000,
	}

	if err := k.Load(confmap.Provider(defaultValues, "."), nil); err != nil {
		log.Fatalf("error loading default values: %v", err)
	}

	if err := k.Load(file.Provider("config/default.yaml"), yaml.Parser()); err != nil {
		log.Panicf("Error loading default config: %v", err)
	}
	log.Println("Load local config!")

	// Env vars override the file values. launch_lens_redis_url maps to redis.url.
	if err := k.Load(env.ProviderWithValue("launch_lens_", ".", func(s string, v string) (string, interface{}) {
		key := strings.Replace(strings.TrimPrefix(s, "launch_lens_"), "_", ".", -1)

		if strings.Contains(v, " ") {
			return key, strings.Split(v, " ")
		}

		return key, v
	}), nil); err != nil {
		log.Panicf("Error loading env: %v", err)
	}

	unmarshalLaunchpads(k)
	return k
}
