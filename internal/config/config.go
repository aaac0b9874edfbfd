// Package config loads server configuration from YAML, the same format
// and load-with-defaults pattern the rest of the pack's config layer uses.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Server holds all configuration for the client lifecycle and packet
// protocol engine.
type Server struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// Logging
	LogLevel string `yaml:"log_level"` // debug, info, warn, error (default: info)

	// Tick loop
	TickRate int `yaml:"tick_rate"` // sv_fps equivalent; snapshotMsec = 1000/snaps is clamped against this

	// Slots
	MaxClients      int    `yaml:"max_clients"`
	PrivateClients  int    `yaml:"private_clients"`
	PrivatePassword string `yaml:"private_password"`

	// Content verification
	PureMode bool          `yaml:"pure_mode"`
	Content  ContentConfig `yaml:"content"`

	// SinglePlayer shuts the door on the whole handshake: a local
	// single-player session must never accept remote clients.
	SinglePlayer bool `yaml:"single_player"`

	// Connection policy
	MinPing            int  `yaml:"min_ping"`             // ms, 0 disables
	MaxPing            int  `yaml:"max_ping"`              // ms, 0 disables
	ReconnectCooldown  int  `yaml:"reconnect_cooldown"`    // seconds
	ClientsPerIP       int  `yaml:"clients_per_ip"`
	LANForceRate       bool `yaml:"lan_force_rate"`
	Public             bool `yaml:"public"`                // false = dedicated/LAN server
	AllowLegacyProtocol bool `yaml:"allow_legacy_protocol"`
	GameName           string `yaml:"game_name"`
	Protocol           int    `yaml:"protocol"`

	// Flood protection
	FloodProtect          int `yaml:"flood_protect"`           // max reliable commands per window before clientOK=false
	UserinfoFloodWindow   int `yaml:"userinfo_flood_window_ms"` // ms; re-arm window for delayed userinfo updates

	// Zombie linger
	ZombieLingerSeconds int `yaml:"zombie_linger_seconds"`

	// Outbound send queue.
	SendQueueSize int    `yaml:"send_queue_size"`
	WriteTimeout  string `yaml:"write_timeout"` // duration, e.g. "2s"

	// Demo recording is an external collaborator; only the flag lives here.
	AutoRecordDemo bool `yaml:"auto_record_demo"`

	// VoIP is an optional sidecar; absent means the feature is off.
	VoIPEnabled      bool `yaml:"voip_enabled"`
	VoIPQueueMaxSize int  `yaml:"voip_queue_max_size"`

	Database DatabaseConfig `yaml:"database"`
}

// ContentConfig carries the checksums pure-content verification validates
// against: the two module checksums and the loaded pak set. Populated by
// whatever loads the content store; the engine only compares.
type ContentConfig struct {
	CgameChecksum int32   `yaml:"cgame_checksum"`
	UIChecksum    int32   `yaml:"ui_checksum"`
	PakChecksums  []int32 `yaml:"pak_checksums"`
}

// DatabaseConfig holds PostgreSQL connection parameters for the ban list
// store.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Default returns Server config with sensible defaults.
func Default() Server {
	return Server{
		BindAddress:         "0.0.0.0",
		Port:                27960,
		LogLevel:            "info",
		TickRate:            20,
		MaxClients:          32,
		PrivateClients:      0,
		PrivatePassword:     "",
		PureMode:            true,
		MinPing:             0,
		MaxPing:             0,
		ReconnectCooldown:   15,
		ClientsPerIP:        3,
		LANForceRate:        true,
		Public:              true,
		AllowLegacyProtocol: false,
		GameName:            "Q3A",
		Protocol:            68,
		FloodProtect:        10,
		UserinfoFloodWindow: 5000,
		ZombieLingerSeconds: 2,
		SendQueueSize:       256,
		WriteTimeout:        "2s",
		AutoRecordDemo:      false,
		VoIPEnabled:         false,
		VoIPQueueMaxSize:    32,
		Database: DatabaseConfig{
			Host:    "127.0.0.1",
			Port:    5432,
			User:    "arenacore",
			Password: "arenacore",
			DBName:  "arenacore",
			SSLMode: "disable",
		},
	}
}

// Load loads server config from a YAML file. If the file doesn't exist,
// returns defaults.
func Load(path string) (Server, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
