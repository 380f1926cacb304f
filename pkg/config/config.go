package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App      AppConfig
	DB       DBConfig
	JWT      JWTConfig
	HTTP     HTTPConfig
	Hacienda HaciendaConfig
}

// HaciendaConfig configuración de factura electrónica v4.4 (Hacienda, Costa Rica).
// Se valida una sola vez al arranque; los servicios nunca consultan env en caliente.
type HaciendaConfig struct {
	Env string // "stag" = sandbox/habilitación, "prod" = producción, "dev" = no envía

	// Material de firma: o un contenedor .p12 (ruta o base64 inline) o par PEM.
	CertP12Path      string
	CertP12Base64    string
	CertPassword     string
	CertPEMPath      string // certificado PEM (si no se usa .p12)
	KeyPEMPath       string // llave privada PEM
	KeyPassphrase    string // passphrase de la llave PEM si está cifrada
	SkipEnvCertGuard bool   // true desactiva la guardia entorno/emisor del certificado

	// Credenciales del IDP (grant password) y endpoints. Vacíos usan los oficiales según Env.
	Username     string
	Password     string
	ClientID     string
	TokenURL     string
	RecepcionURL string

	// Datos del emisor usados en la Clave y como fallback del XML firmado.
	EmisorTipo        string // 01 física, 02 jurídica, 03 DIMEX, 04 NITE
	EmisorNumero      string // solo dígitos; obligatorio (sin fallback hardcodeado)
	ProveedorSistemas string // cédula del proveedor de sistemas (v4.4)
	CodigoActividad   string // código de actividad económica del emisor (6 dígitos)

	// Ruta local del XSD v4.4; se usa en xsi:schemaLocation.
	SchemaLocation string
}

// Validate revisa la coherencia mínima de la configuración Hacienda.
// No valida el certificado en sí (eso lo hace el Certificate Manager al cargarlo).
func (c HaciendaConfig) Validate() error {
	switch c.Env {
	case "dev", "stag", "prod":
	default:
		return fmt.Errorf("config: HACIENDA_ENV %q inválido (usar dev|stag|prod)", c.Env)
	}
	if c.Env != "dev" {
		if c.Username == "" || c.Password == "" {
			return fmt.Errorf("config: HACIENDA_USERNAME/HACIENDA_PASSWORD requeridos para env %q", c.Env)
		}
	}
	hasP12 := c.CertP12Path != "" || c.CertP12Base64 != ""
	hasPEM := c.CertPEMPath != "" && c.KeyPEMPath != ""
	if !hasP12 && !hasPEM {
		return fmt.Errorf("config: defina HACIENDA_CERT_P12_PATH/HACIENDA_CERT_P12_BASE64 o el par HACIENDA_CERT_PEM_PATH + HACIENDA_KEY_PEM_PATH")
	}
	return nil
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

// DBConfig configuración de PostgreSQL.
// Si DatabaseURL no está vacío, se usa como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido, si no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN devuelve el connection string para PostgreSQL con URL encoding para caracteres especiales.
func (c DBConfig) DSN() string {
	userInfo := url.UserPassword(c.User, c.Password)

	u := &url.URL{
		Scheme:   "postgres",
		User:     userInfo,
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}

	return u.String()
}

// JWTConfig configuración de JWT.
type JWTConfig struct {
	Secret     string
	Expiration int // minutos
	Issuer     string
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, DB_HOST, HACIENDA_ENV, etc.
func Load() (*Config, error) {
	v := viper.New()

	// Opcional: archivo de configuración (.env o config.env)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:  getString(v, "APP_ENV", "development"),
			Name: getString(v, "APP_NAME", "facturacion-cr"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "facturacion_cr"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:     getString(v, "JWT_SECRET", ""),
			Expiration: getInt(v, "JWT_EXPIRATION_MINUTES", 60),
			Issuer:     getString(v, "JWT_ISSUER", "facturacion-cr"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		Hacienda: HaciendaConfig{
			Env:               getString(v, "HACIENDA_ENV", "stag"),
			CertP12Path:       getString(v, "HACIENDA_CERT_P12_PATH", ""),
			CertP12Base64:     getString(v, "HACIENDA_CERT_P12_BASE64", ""),
			CertPassword:      getString(v, "HACIENDA_CERT_PASSWORD", ""),
			CertPEMPath:       getString(v, "HACIENDA_CERT_PEM_PATH", ""),
			KeyPEMPath:        getString(v, "HACIENDA_KEY_PEM_PATH", ""),
			KeyPassphrase:     getString(v, "HACIENDA_KEY_PASSPHRASE", ""),
			SkipEnvCertGuard:  getBool(v, "HACIENDA_SKIP_ENV_CERT_GUARD", false),
			Username:          getString(v, "HACIENDA_USERNAME", ""),
			Password:          getString(v, "HACIENDA_PASSWORD", ""),
			ClientID:          getString(v, "HACIENDA_CLIENT_ID", ""),
			TokenURL:          getString(v, "HACIENDA_TOKEN_URL", ""),
			RecepcionURL:      getString(v, "HACIENDA_RECEPCION_URL", ""),
			EmisorTipo:        getString(v, "HACIENDA_EMISOR_TIPO", "01"),
			EmisorNumero:      getString(v, "HACIENDA_EMISOR_NUMERO", ""),
			ProveedorSistemas: getString(v, "HACIENDA_PROVEEDOR_SISTEMAS", ""),
			CodigoActividad:   getString(v, "HACIENDA_CODIGO_ACTIVIDAD", ""),
			SchemaLocation:    getString(v, "HACIENDA_SCHEMA_LOCATION", "TiqueteElectronico_V4.4.xsd"),
		},
	}

	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, _ := strconv.Atoi(v.GetString(key))
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

func getBool(v *viper.Viper, key string, def bool) bool {
	if v.IsSet(key) {
		return v.GetBool(key)
	}
	return def
}
