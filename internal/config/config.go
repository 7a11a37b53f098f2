// Package config defines the configuration structures for the whole
// application and loads them from a YAML file plus environment variables.
// cleanenv lets the same struct be filled from both sources, which keeps
// local runs and Docker deployments on a single code path. Every field the
// service cannot run without is marked env-required, so a broken deployment
// fails at startup instead of on the first emission attempt.
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root structure joining every configuration section of the
// application. It is loaded once at startup and treated as immutable.
type Config struct {
	Env        string     `yaml:"env" env:"ENV" env-required:"true"`
	Postgres   Postgres   `yaml:"postgres" env-required:"true"`
	Redis      Redis      `yaml:"redis" env-required:"true"`
	Kafka      Kafka      `yaml:"kafka" env-required:"true"`
	HTTPServer HTTPServer `yaml:"http_server" env-required:"true"`
	Emitente   Emitente   `yaml:"emitente" env-required:"true"`
	Fiscal     Fiscal     `yaml:"fiscal" env-required:"true"`
}

// Postgres holds the connection parameters for the PostgreSQL database.
type Postgres struct {
	Username string `yaml:"username" env:"POSTGRES_USER" env-required:"true"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-required:"true"`
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-required:"true"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-required:"true"`
	Database string `yaml:"database" env:"POSTGRES_DB" env-required:"true"`
}

// Redis holds the connection parameters for the product catalog cache.
type Redis struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-required:"true"`
	Port     string `yaml:"port" env:"REDIS_PORT" env-required:"true"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
}

// Kafka holds the parameters for the sales intake topic and the fiscal
// events topic, including producer and consumer tuning.
type Kafka struct {
	BootstrapServers []string `yaml:"bootstrap.servers" env:"KAFKA_BOOTSTRAP_SERVERS" env-required:"true"`
	SalesTopic       string   `yaml:"sales_topic" env-required:"true"`
	FiscalTopic      string   `yaml:"fiscal_topic" env-required:"true"`
	Producer         Producer `yaml:"producer" env-required:"true"`
	Consumer         Consumer `yaml:"consumer" env-required:"true"`
}

// Producer defines the Kafka producer settings.
type Producer struct {
	Acks              int    `yaml:"acks" env-required:"true"`
	EnableIdempotence bool   `yaml:"enable.idempotence"`
	Retries           int    `yaml:"retries"`
	TransactionalId   string `yaml:"transactional.id"`
}

// Consumer defines the Kafka consumer group settings.
type Consumer struct {
	GroupId          string `yaml:"group.id" env-required:"true"`
	AutoOffsetReset  string `yaml:"auto.offset.reset" env-required:"true"`
	EnableAutoCommit bool   `yaml:"enable.auto.commit"`
	SecurityProtocol string `yaml:"security.protocol"`
	IsolationLevel   int8   `yaml:"isolation.level"`
}

// HTTPServer holds the parameters of the embedded HTTP server.
type HTTPServer struct {
	Address     string        `yaml:"address" env-required:"true"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// Emitente is the merchant identity stamped on every fiscal document.
// The fields mirror the registration data held by SEFAZ; MunicipioCodigo is
// the IBGE municipality code.
type Emitente struct {
	RazaoSocial     string `yaml:"razao_social" env:"EMIT_RAZAO_SOCIAL" env-required:"true"`
	CNPJ            string `yaml:"cnpj" env:"EMIT_CNPJ" env-required:"true"`
	IE              string `yaml:"inscricao_estadual" env:"EMIT_IE" env-required:"true"`
	Logradouro      string `yaml:"logradouro" env:"EMIT_LOGRADOURO" env-required:"true"`
	Numero          string `yaml:"numero" env:"EMIT_NUMERO" env-required:"true"`
	Bairro          string `yaml:"bairro" env:"EMIT_BAIRRO" env-required:"true"`
	MunicipioCodigo string `yaml:"municipio_codigo" env:"EMIT_MUN_CODE" env-required:"true"`
	UF              string `yaml:"uf" env:"EMIT_UF" env-required:"true"`
	CEP             string `yaml:"cep" env:"EMIT_CEP" env-required:"true"`
}

// Fiscal holds everything needed to sign and submit an NFC-e: the A1
// certificate bundle, the CSC pair, the target environment, the
// merchant-level item defaults and the gateway submission policy.
type Fiscal struct {
	CertPath     string `yaml:"cert_path" env:"CERTIFICATE_PATH" env-required:"true"`
	CertPassword string `yaml:"cert_password" env:"CERTIFICATE_PASSWORD" env-required:"true"`
	CSCID        string `yaml:"csc_id" env:"CSC_ID" env-required:"true"`
	CSCToken     string `yaml:"csc_token" env:"CSC_TOKEN" env-required:"true"`

	// Ambiente selects the SEFAZ endpoint set: 1 = produção, 2 = homologação.
	Ambiente int `yaml:"ambiente" env:"FISCAL_AMBIENTE" env-default:"2"`

	// Item-level defaults applied when a product row carries no override.
	NCM     string `yaml:"ncm" env-default:"22021000"`
	CFOP    string `yaml:"cfop" env-default:"5102"`
	Unidade string `yaml:"unidade" env-default:"UN"`

	Gateway Gateway `yaml:"gateway"`
}

// Gateway bounds the regulator round-trip. Rejections are never retried;
// MaxAttempts applies to transport failures only.
type Gateway struct {
	Timeout     time.Duration `yaml:"timeout" env-default:"15s"`
	MaxAttempts int           `yaml:"max_attempts" env-default:"3"`
	Backoff     time.Duration `yaml:"backoff" env-default:"2s"`
}

// MustLoad reads the configuration from the file pointed to by the
// CONFIG_PATH environment variable plus the process environment.
//
// The "Must" prefix signals that the function terminates the process on any
// loading or parsing error. The service cannot do anything useful without a
// valid configuration, so failing at startup is the correct behavior.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}

	if _, err := os.Stat(configPath); err != nil {
		log.Fatalf("config file does not exist: %s", configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}

	return &cfg
}
