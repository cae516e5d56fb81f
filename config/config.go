// Package config, uygulamanın tüm konfigürasyonunu merkezi olarak yönetir.
// Environment variable'lardan okur, .env dosyasını da destekler.
//
// Go'da "struct" bir veri yapısıdır — birden fazla field'ı bir arada tutar.
// Config struct'ı tüm ayarları tek bir yerde toplar, böylece
// her yerde ayrı ayrı os.Getenv() çağırmak yerine tek bir Config nesnesi taşırız.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config, uygulamanın tüm konfigürasyon değerlerini taşır.
// Her alt bölüm ayrı bir struct — Single Responsibility: her struct tek bir concern'ü temsil eder.
type Config struct {
	Server    ServerConfig
	Data      DataConfig
	Upload    UploadConfig
	Voting    VotingConfig
	Sweep     SweepConfig
	ServerCmd string // çocuk sürece geçirilecek kabuk komutu (pozisyonel CLI argümanı)
}

// ServerConfig, HTTP server ayarları.
type ServerConfig struct {
	Host string
	Port int
}

// DataConfig, kalıcı durum dosyalarının yaşadığı dizinler.
type DataConfig struct {
	Dir      string // data/
	ServeDir string // server/ (ops.json)
	WebRoot  string // web/ statik kök
}

// UploadConfig, itiraz/kanıt görseli yükleme ayarları.
type UploadConfig struct {
	Dir     string // data/uploads
	MaxSize int64  // byte cinsinden, varsayılan 10 MiB
}

// VotingConfig, oylama motoru ayarları.
type VotingConfig struct {
	Threshold            int           // eşik geçmesi için gereken benzersiz oy sayısı
	UnexecutedRequestTTL time.Duration // 0 = devre dışı (spec.md §9 kararı)
}

// SweepConfig, ChildProcess'in stdout/stderr tamponlarının kırpma eşiğini
// taşır. proc.New'e geçirilir; iobuf.Buffer, tüketilmiş veri bu boyuta
// ulaşınca baştan kırpılır.
type SweepConfig struct {
	CompactionThreshold int // byte cinsinden; <= 0 ise iobuf.DefaultCompactionThreshold kullanılır
}

// Load, environment variable'lardan ve pozisyonel CLI argümanlarından Config
// oluşturur. .env dosyası varsa önce onu yükler (development kolaylığı için).
//
// Go'da error handling: Go'da exception/try-catch yoktur.
// Fonksiyonlar hata durumunda (value, error) tuple'ı döner.
// Çağıran taraf her zaman error'ı kontrol ETMEK ZORUNDADIR.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	if len(args) < 1 || args[0] == "" {
		return nil, fmt.Errorf("usage: %s <serverCommand> [port]", os.Args[0])
	}
	serverCmd := args[0]

	port := 8080
	if len(args) >= 2 && args[1] != "" {
		p, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("invalid port argument %q: %w", args[1], err)
		}
		port = p
	} else if envPort := getEnv("PORT", ""); envPort != "" {
		p, err := strconv.Atoi(envPort)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		port = p
	}

	threshold, err := strconv.Atoi(getEnv("VOTE_THRESHOLD", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid VOTE_THRESHOLD: %w", err)
	}

	unexecTTLMinutes, err := strconv.Atoi(getEnv("UNEXECUTED_REQUEST_TTL_MINUTES", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid UNEXECUTED_REQUEST_TTL_MINUTES: %w", err)
	}

	maxUploadSize, err := strconv.ParseInt(getEnv("UPLOAD_MAX_SIZE", "10485760"), 10, 64) // 10 MiB
	if err != nil {
		return nil, fmt.Errorf("invalid UPLOAD_MAX_SIZE: %w", err)
	}

	compactionThreshold, err := strconv.Atoi(getEnv("COMPACTION_THRESHOLD_BYTES", "4096"))
	if err != nil {
		return nil, fmt.Errorf("invalid COMPACTION_THRESHOLD_BYTES: %w", err)
	}

	dataDir := getEnv("DATA_DIR", "./data")

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		Data: DataConfig{
			Dir:      dataDir,
			ServeDir: getEnv("SERVER_DIR", "./server"),
			WebRoot:  getEnv("WEB_ROOT", "./web"),
		},
		Upload: UploadConfig{
			Dir:     getEnv("UPLOAD_DIR", dataDir+"/uploads"),
			MaxSize: maxUploadSize,
		},
		Voting: VotingConfig{
			Threshold:            threshold,
			UnexecutedRequestTTL: time.Duration(unexecTTLMinutes) * time.Minute,
		},
		Sweep: SweepConfig{
			CompactionThreshold: compactionThreshold,
		},
		ServerCmd: serverCmd,
	}

	return cfg, nil
}

// Addr, HTTP server'ın dinleyeceği adresi döner (ör: "0.0.0.0:8080").
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PlayersPath, BanRegistry'nin bilinen oyuncu dosyasının yolunu döner.
func (c *DataConfig) PlayersPath() string { return c.Dir + "/players.list" }

// BannedPath, BanRegistry'nin yasak kaydı dosyasının yolunu döner.
func (c *DataConfig) BannedPath() string { return c.Dir + "/banned.list" }

// ForbiddenPath, yasak komut tablosunun dosya yolunu döner.
func (c *DataConfig) ForbiddenPath() string { return c.Dir + "/forbidden_commands.list" }

// RequestsPath, RequestVoteEngine'in kalıcı kayıt dosyasının yolunu döner.
func (c *DataConfig) RequestsPath() string { return c.Dir + "/requests.dat" }

// OpsPath, operatör listesi dosyasının yolunu döner.
func (c *DataConfig) OpsPath() string { return c.ServeDir + "/ops.json" }

// getEnv, environment variable'ı okur, yoksa fallback değeri döner.
func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
