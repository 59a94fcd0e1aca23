package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func New() map[string]string {
	return FromEntries(os.Environ())
}

// FromEntries builds a config map from KEY=VALUE entries.
func FromEntries(environ []string) map[string]string {
	envAsMap := make(map[string]string, len(environ))
	for _, entry := range environ {
		if entry != "" {
			key, value := split(entry)
			envAsMap[key] = value
		}
	}
	return envAsMap
}

// assumes entry is not the empty string
func split(entry string) (key, value string) {
	parts := strings.SplitN(entry, "=", 2)
	if len(parts) < 2 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func GetString(config map[string]string, key string, defaultValue string) string {
	if config == nil {
		return defaultValue
	}

	if val, ok := config[key]; ok && strings.TrimSpace(val) != "" {
		return strings.TrimSpace(val)
	}
	return defaultValue
}

func GetInt(config map[string]string, key string, defaultValue int) int {
	s := GetString(config, key, "")
	if s == "" {
		return defaultValue
	}

	asInt, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}

	return asInt
}

func GetInt64(config map[string]string, key string, defaultValue int64) int64 {
	s := GetString(config, key, "")
	if s == "" {
		return defaultValue
	}

	asInt, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return defaultValue
	}
	return asInt
}

func GetBool(config map[string]string, key string, defaultValue bool) bool {
	s := GetString(config, key, "")
	if s == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(s)
	if err != nil {
		return defaultValue
	}
	return b
}

// GetSeconds reads an integer number of seconds.
func GetSeconds(config map[string]string, key string, defaultValue time.Duration) time.Duration {
	n := GetInt(config, key, -1)
	if n < 0 {
		return defaultValue
	}
	return time.Duration(n) * time.Second
}

// GetList splits a comma separated value, dropping empty items.
func GetList(config map[string]string, key string, defaultValue []string) []string {
	s := GetString(config, key, "")
	if s == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
