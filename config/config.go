package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"fieldops/internal/geo"
)

const (
	defaultPocketBaseURL = "http://127.0.0.1:8090"
	defaultListenAddr    = ":8080"
	defaultConfigFile    = "config.yaml"
	defaultUTCOffset     = "+09:00"
	defaultLocale        = "ko"
)

type Config struct {
	// PocketBase External Server
	PocketBaseURL   string // PocketBase server URL (e.g., http://192.168.100.100:8090)
	PocketBaseToken string // Service token, used when a request carries no user token

	// Telegram Bot
	TelegramBotToken string
	AuthorizedChatID int64 // admin chat receiving notifications, 0 disables them

	// HTTP API
	ListenAddr string

	// Expo push gateway
	ExpoPushURL     string
	ExpoAccessToken string

	// Attendance
	Geofence            geo.Geofence
	AllowFallbackCenter bool
	WorkDateZone        *time.Location
	Locale              string
	Watchdog            time.Duration // 0 keeps the service default
}

// fileConfig is the optional YAML layer. Values may reference ${ENV_VARS}.
type fileConfig struct {
	PocketBase struct {
		URL   string `yaml:"url"`
		Token string `yaml:"token"`
	} `yaml:"pocketbase"`

	Telegram struct {
		Token       string `yaml:"token"`
		AdminChatID string `yaml:"admin_chat_id"`
	} `yaml:"telegram"`

	Server struct {
		Listen string `yaml:"listen"`
	} `yaml:"server"`

	Push struct {
		URL         string `yaml:"url"`
		AccessToken string `yaml:"access_token"`
	} `yaml:"push"`

	Attendance struct {
		Latitude            *float64 `yaml:"latitude"`
		Longitude           *float64 `yaml:"longitude"`
		RadiusMeters        *float64 `yaml:"radius_m"`
		AllowFallbackCenter *bool    `yaml:"allow_fallback_center"`
		UTCOffset           string   `yaml:"work_date_utc_offset"`
		Locale              string   `yaml:"locale"`
		Watchdog            string   `yaml:"watchdog"`
	} `yaml:"attendance"`
}

func LoadConfig() (*Config, error) {
	cwd, _ := os.Getwd()
	log.Printf("Current working directory: %s", cwd)

	if err := godotenv.Load(); err != nil {
		log.Printf("godotenv.Load() error: %v", err)
	}

	path, explicit := os.LookupEnv("FIELDOPS_CONFIG")
	if !explicit {
		path = defaultConfigFile
	}
	file, err := readFile(path)
	if err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		file = &fileConfig{}
	} else {
		log.Printf("Loaded config file %s", path)
	}

	return build(file)
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// readFile parses the YAML file at path after substituting ${VAR} placeholders
func readFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	content := placeholder.ReplaceAllStringFunc(string(data), func(m string) string {
		return os.Getenv(placeholder.FindStringSubmatch(m)[1])
	})

	var fc fileConfig
	if err := yaml.Unmarshal([]byte(content), &fc); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return &fc, nil
}

// build merges environment variables over the file layer
func build(fc *fileConfig) (*Config, error) {
	cfg := &Config{
		PocketBaseURL:    pick("POCKETBASE_URL", fc.PocketBase.URL, defaultPocketBaseURL),
		PocketBaseToken:  pick("POCKETBASE_TOKEN", fc.PocketBase.Token, ""),
		TelegramBotToken: pick("TELEGRAM_BOT_TOKEN", fc.Telegram.Token, ""),
		ListenAddr:       pick("LISTEN_ADDR", fc.Server.Listen, defaultListenAddr),
		ExpoPushURL:      pick("EXPO_PUSH_URL", fc.Push.URL, ""),
		ExpoAccessToken:  pick("EXPO_ACCESS_TOKEN", fc.Push.AccessToken, ""),
		Locale:           pick("LOCALE", fc.Attendance.Locale, defaultLocale),
		Geofence:         geo.DefaultGeofence(),
	}

	if s := pick("AUTHORIZED_CHAT_ID", fc.Telegram.AdminChatID, ""); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid AUTHORIZED_CHAT_ID value: %w", err)
		}
		cfg.AuthorizedChatID = id
	}

	var err error
	if cfg.Geofence.Center.Lat, err = pickFloat("GEOFENCE_LAT", fc.Attendance.Latitude, cfg.Geofence.Center.Lat); err != nil {
		return nil, err
	}
	if cfg.Geofence.Center.Lng, err = pickFloat("GEOFENCE_LNG", fc.Attendance.Longitude, cfg.Geofence.Center.Lng); err != nil {
		return nil, err
	}
	if cfg.Geofence.RadiusMeters, err = pickFloat("GEOFENCE_RADIUS_M", fc.Attendance.RadiusMeters, cfg.Geofence.RadiusMeters); err != nil {
		return nil, err
	}
	if cfg.Geofence.RadiusMeters <= 0 {
		return nil, fmt.Errorf("invalid GEOFENCE_RADIUS_M value: %v", cfg.Geofence.RadiusMeters)
	}

	fallback := fc.Attendance.AllowFallbackCenter != nil && *fc.Attendance.AllowFallbackCenter
	if s := os.Getenv("ALLOW_FALLBACK_CENTER"); s != "" {
		if fallback, err = strconv.ParseBool(s); err != nil {
			return nil, fmt.Errorf("invalid ALLOW_FALLBACK_CENTER value: %w", err)
		}
	}
	cfg.AllowFallbackCenter = fallback

	if cfg.WorkDateZone, err = ParseUTCOffset(pick("WORK_DATE_UTC_OFFSET", fc.Attendance.UTCOffset, defaultUTCOffset)); err != nil {
		return nil, err
	}

	if s := pick("WATCHDOG", fc.Attendance.Watchdog, ""); s != "" {
		if cfg.Watchdog, err = time.ParseDuration(s); err != nil {
			return nil, fmt.Errorf("invalid WATCHDOG value: %w", err)
		}
	}

	return cfg, nil
}

// pick returns the env var, else the file value, else def
func pick(env, file, def string) string {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v
	}
	if file != "" {
		return file
	}
	return def
}

func pickFloat(env string, file *float64, def float64) (float64, error) {
	if s := os.Getenv(env); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value: %w", env, err)
		}
		return v, nil
	}
	if file != nil {
		return *file, nil
	}
	return def, nil
}

// ParseUTCOffset turns "+09:00", "-0330" or "Z" into a fixed zone
func ParseUTCOffset(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "Z" || s == "UTC" {
		return time.UTC, nil
	}
	t, err := time.Parse("-07:00", s)
	if err != nil {
		if t, err = time.Parse("-0700", s); err != nil {
			return nil, fmt.Errorf("invalid UTC offset %q", s)
		}
	}
	_, offset := t.Zone()
	return time.FixedZone("UTC"+s, offset), nil
}
