// Package config implements spec §6.6's configuration surface: TOML
// decoding with environment-variable expansion and encrypted-secret
// fields, grounded on pkg/serve/config.go, pkg/serve/httpserver/config.go,
// and pkg/serve/sshserver/config.go's ServerConfig shape.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-sql-driver/mysql"

	"github.com/mega-forge/mega-core/internal/digest"
)

// Duration decodes TOML duration strings ("10s", "2h") the way
// pkg/serve/config.go's Duration wrapper does.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

const maxAllowedPacket = 16777216

// Database mirrors serve.Database: connection parameters plus an
// encrypted password field.
type Database struct {
	Name    string   `toml:"name"`
	User    string   `toml:"user"`
	Host    string   `toml:"host"`
	Port    int      `toml:"port"`
	Passwd  string   `toml:"passwd"`
	Timeout Duration `toml:"timeout,omitempty"`
}

func (d *Database) Decrypt(dec *Decrypter) {
	if dec == nil || d == nil {
		return
	}
	if passwd, err := dec.Decrypt(d.Passwd); err == nil {
		d.Passwd = passwd
	}
}

func (d *Database) MakeConfig() *mysql.Config {
	if d.Timeout.Duration == 0 {
		d.Timeout.Duration = 30 * time.Second
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Passwd
	cfg.DBName = d.Name
	cfg.Net = "tcp"
	cfg.Addr = d.Host + ":" + strconv.Itoa(d.Port)
	cfg.Timeout = d.Timeout.Duration
	cfg.ReadTimeout = d.Timeout.Duration
	cfg.WriteTimeout = d.Timeout.Duration
	cfg.ParseTime = true
	cfg.InterpolateParams = true
	cfg.MaxAllowedPacket = maxAllowedPacket
	return cfg
}

// Redis configures the distributed-lock backend (spec §4.L).
type Redis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password,omitempty"`
	DB       int    `toml:"db,omitempty"`
}

func (r *Redis) Decrypt(dec *Decrypter) {
	if dec == nil || r == nil {
		return
	}
	if pw, err := dec.Decrypt(r.Password); err == nil {
		r.Password = pw
	}
}

// Cache sizes the pack decode LRU (spec §4.D, §5).
type Cache struct {
	NumCounters int64 `toml:"num_counters"`
	MaxCost     int64 `toml:"max_cost"`
	BufferItems int64 `toml:"buffer_items"`
}

// ObjectStorage selects and configures the bytes tier (spec §6.6
// object_storage.backend).
type ObjectStorage struct {
	Backend string `toml:"backend"` // local | s3-compatible | gcs
	Root    string `toml:"root,omitempty"`
	S3      *S3    `toml:"s3,omitempty"`
	GCS     *GCS   `toml:"gcs,omitempty"`
}

type S3 struct {
	Endpoint        string `toml:"endpoint,omitempty"`
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region,omitempty"`
	AccessKeyID     string `toml:"access_key_id"`
	AccessKeySecret string `toml:"access_key_secret"`
}

func (s *S3) Decrypt(dec *Decrypter) {
	if dec == nil || s == nil {
		return
	}
	if v, err := dec.Decrypt(s.AccessKeyID); err == nil {
		s.AccessKeyID = v
	}
	if v, err := dec.Decrypt(s.AccessKeySecret); err == nil {
		s.AccessKeySecret = v
	}
}

type GCS struct {
	Bucket          string `toml:"bucket"`
	CredentialsFile string `toml:"credentials_file,omitempty"`
}

// Pack configures spec §4.D's decode cache and encode heuristics.
type Pack struct {
	DecodeWindowBytes    int64   `toml:"decode_window_bytes"`
	EncodeWindowEntries  int     `toml:"encode_window_entries"`
	EncodeDeltaThreshold float64 `toml:"encode_delta_threshold"`
}

// MergeQueue configures spec §4.J's processor.
type MergeQueue struct {
	ProcessorEnabled bool     `toml:"processor_enabled"`
	ProcessorTTL     Duration `toml:"processor_ttl,omitempty"`
	MaxRetries       int      `toml:"max_retries,omitempty"`
}

// Buck configures spec §4.K's session limits and upload concurrency.
type Buck struct {
	MaxFileSize        int64 `toml:"max_file_size"`
	MaxFiles           int   `toml:"max_files"`
	GlobalPermits      int64 `toml:"global_permits"`
	LargeFilePermits   int64 `toml:"large_file_permits"`
	LargeFileThreshold int64 `toml:"large_file_threshold"`
}

// Session configures the buck session expiry sweep (spec §4.K, §6.6):
// TTL is the interval at which the sweeper marks expired sessions.
// Session lifetime itself is the fixed buck.SessionTTL, and no package
// reads RetentionDays.
type Session struct {
	TTL           Duration `toml:"ttl,omitempty"`
	RetentionDays int      `toml:"retention_days,omitempty"`
}

// LFS configures spec §4.M's presign lifetime.
type LFS struct {
	PresignTTL Duration `toml:"presign_ttl,omitempty"`
	Secret     string   `toml:"secret"`
	HTTPSBase  string   `toml:"https_base"`
}

func (l *LFS) Decrypt(dec *Decrypter) {
	if dec == nil || l == nil {
		return
	}
	if v, err := dec.Decrypt(l.Secret); err == nil {
		l.Secret = v
	}
}

// HTTP configures internal/httpd's listener (spec §6.6 http.bind).
type HTTP struct {
	Bind         string   `toml:"bind"`
	ReadTimeout  Duration `toml:"read_timeout,omitempty"`
	WriteTimeout Duration `toml:"write_timeout,omitempty"`
	IdleTimeout  Duration `toml:"idle_timeout,omitempty"`
}

// SSH configures internal/sshd's listener (spec §6.6 ssh.bind,
// ssh.host_key_path). AuthorizedKeysPath is optional: when unset,
// internal/sshd accepts any client key and logs its fingerprint,
// since spec §6.2 specifies the subsystem commands but leaves key
// provisioning unspecified.
type SSH struct {
	Bind               string `toml:"bind"`
	HostKeyPath        string `toml:"host_key_path"`
	AuthorizedKeysPath string `toml:"authorized_keys_path,omitempty"`
}

// Config is the top-level TOML document (spec §6.6, enumerated).
type Config struct {
	HashAlgorithm string `toml:"hash_algorithm"` // sha1 | sha256

	DecryptedKey string `toml:"decrypted_key,omitempty"`

	Database      *Database      `toml:"database,omitempty"`
	Redis         *Redis         `toml:"redis,omitempty"`
	Cache         *Cache         `toml:"cache,omitempty"`
	ObjectStorage *ObjectStorage `toml:"object_storage,omitempty"`
	Pack          *Pack          `toml:"pack,omitempty"`
	MergeQueue    *MergeQueue    `toml:"merge_queue,omitempty"`
	Buck          *Buck          `toml:"buck,omitempty"`
	Session       *Session       `toml:"session,omitempty"`
	LFS           *LFS           `toml:"lfs,omitempty"`
	HTTP          *HTTP          `toml:"http,omitempty"`
	SSH           *SSH           `toml:"ssh,omitempty"`
}

// withDefaults returns the baseline Config that Load decodes on top of,
// matching the defaults enumerated in spec §6.6.
func withDefaults() *Config {
	return &Config{
		HashAlgorithm: "sha1",
		Cache: &Cache{
			NumCounters: 1e9,
			MaxCost:     20,
			BufferItems: 64,
		},
		Pack: &Pack{
			EncodeWindowEntries:  20,
			EncodeDeltaThreshold: 0.5,
		},
		MergeQueue: &MergeQueue{
			ProcessorTTL: Duration{10 * time.Second},
			MaxRetries:   5,
		},
		Session: &Session{
			TTL: Duration{24 * time.Hour},
		},
		LFS: &LFS{
			PresignTTL: Duration{time.Hour},
		},
		HTTP: &HTTP{Bind: "127.0.0.1:8080"},
		SSH:  &SSH{Bind: "127.0.0.1:2222"},
	}
}

// Algorithm resolves the configured digest.Algorithm, for passing to
// digest.Init at startup.
func (c *Config) Algorithm() (digest.Algorithm, error) {
	return digest.AlgorithmFromString(c.HashAlgorithm)
}

// Load reads and decodes a TOML config file, expanding ${VAR} /
// $VAR environment references first when expandEnv is set (spec §A
// "Configuration"), then decrypting secret fields against
// DecryptedKey.
func Load(path string, expandEnv bool) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := string(raw)
	if expandEnv {
		text = os.ExpandEnv(text)
	}

	cfg := withDefaults()
	if _, err := toml.Decode(text, cfg); err != nil {
		return nil, err
	}

	if cfg.DecryptedKey != "" {
		dec, err := NewDecrypter(cfg.DecryptedKey)
		if err != nil {
			return nil, err
		}
		cfg.Database.Decrypt(dec)
		cfg.Redis.Decrypt(dec)
		if cfg.ObjectStorage != nil {
			cfg.ObjectStorage.S3.Decrypt(dec)
		}
		cfg.LFS.Decrypt(dec)
	}
	return cfg, nil
}
