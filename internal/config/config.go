package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/geocoder89/tickethub/internal/domain/layout"
	"github.com/geocoder89/tickethub/internal/qrlink"
)

// ConfigError is a missing or malformed setting. It is fatal at startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// ErrInvalid matches every *ConfigError via errors.Is.
var ErrInvalid = errors.New("invalid configuration")

func (e *ConfigError) Is(target error) bool { return target == ErrInvalid }

type Columns struct {
	Timestamp    string
	Name         string `validate:"required"`
	Email        string `validate:"required"`
	TicketStatus string `validate:"required"`
	EmailStatus  string `validate:"required"`
	AttendeeID   string
}

type Config struct {
	Env      string
	LogLevel string

	SourceBackend   string `validate:"oneof=sheets"`
	SheetLink       string `validate:"required_if=SourceBackend sheets"`
	SheetName       string `validate:"required"`
	GoogleCredsPath string
	Columns         Columns

	StorageBackend   string `validate:"oneof=drive minio local"`
	TicketsFolder    string `validate:"required"`
	QRFolder         string
	LocalStorageRoot string `validate:"required_if=StorageBackend local"`
	MinIOEndpoint    string `validate:"required_if=StorageBackend minio"`
	MinIOAccessKey   string
	MinIOSecretKey   string
	MinIOBucket      string `validate:"required_if=StorageBackend minio"`
	MinIOUseSSL      bool

	MailBackend      string `validate:"oneof=smtp log"`
	SMTPHost         string `validate:"required_if=MailBackend smtp"`
	SMTPPort         int    `validate:"gt=0"`
	SenderEmail      string `validate:"omitempty,email"`
	SenderPassword   string
	EmailSubject     string `validate:"required"`
	EmailBodyPath    string `validate:"required"`
	EmailMaxAttempts int    `validate:"gt=0"`

	AttendanceURLTemplate string `validate:"required"`
	AttendanceStatus      string `validate:"required"`
	LinkSigningSecret     string

	PollInterval time.Duration `validate:"gt=0"`
	FetchRetries int           `validate:"gte=0"`

	TaggedTemplatePath string `validate:"required"`
	BlankTemplatePath  string `validate:"required"`
	FontPath           string
	TextColor          string `validate:"required"`
	TesseractCmd       string `validate:"required"`
	SkipDetection      bool
	LayoutStatePath    string  `validate:"required"`
	DetectFontScale    float64 `validate:"gt=0"`
	DetectQRScale      float64 `validate:"gt=0"`
	NameMargin         int     `validate:"gte=0"`
	OverflowPolicy     string  `validate:"oneof=shrink fail"`
	LayoutDefaults     layout.Defaults

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	OTLPEndpoint  string
	HTTPAddr      string `validate:"required"`
	AdminSecret   string

	TraceSampleRatio  float64 `validate:"gte=0,lte=1"`
	// bcrypt hash; enables password login for admin tokens
	AdminPasswordHash string
}

// Load reads .env (when present) and the environment, then validates the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, &ConfigError{Field: ".env", Reason: err.Error()}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (Config, error) {
	var parseErrs []error

	intVar := func(key string, fallback int) int {
		v, err := getEnvInt(key, fallback)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		return v
	}
	boolVar := func(key string, fallback bool) bool {
		v, err := getEnvBool(key, fallback)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		return v
	}
	floatVar := func(key string, fallback float64) float64 {
		v, err := getEnvFloat(key, fallback)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		return v
	}

	cfg := Config{
		Env:      getEnv("APP_ENV", "dev"),
		LogLevel: getEnv("LOG_LEVEL", ""),

		SourceBackend:   getEnv("SOURCE_BACKEND", "sheets"),
		SheetLink:       getEnv("MAIN_SHEET_LINK", ""),
		SheetName:       getEnv("MAIN_SHEET_NAME", "Form_Responses_1"),
		GoogleCredsPath: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		Columns: Columns{
			Timestamp:    getEnv("COL_TIMESTAMP", "Timestamp"),
			Name:         getEnv("COL_NAME", "Name"),
			Email:        getEnv("COL_EMAIL", "Email"),
			TicketStatus: getEnv("COL_TICKET_STATUS", "Ticket Status"),
			EmailStatus:  getEnv("COL_EMAIL_STATUS", "Email Status"),
			AttendeeID:   getEnv("COL_ATTENDEE_ID", ""),
		},

		StorageBackend:   getEnv("STORAGE_BACKEND", "drive"),
		TicketsFolder:    getEnv("TICKETS_FOLDER_ID", ""),
		QRFolder:         getEnv("QR_CODES_FOLDER_ID", ""),
		LocalStorageRoot: getEnv("LOCAL_STORAGE_ROOT", ""),
		MinIOEndpoint:    getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:   getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:   getEnv("MINIO_SECRET_KEY", ""),
		MinIOBucket:      getEnv("MINIO_BUCKET", "tickethub-artifacts"),
		MinIOUseSSL:      boolVar("MINIO_USE_SSL", false),

		MailBackend:      getEnv("MAIL_BACKEND", "smtp"),
		SMTPHost:         getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:         intVar("SMTP_PORT", 465),
		SenderEmail:      getEnv("SENDER_EMAIL", ""),
		SenderPassword:   getEnv("SENDER_APP_PASSWORD", ""),
		EmailSubject:     getEnv("EMAIL_SUBJECT", "Your Event E-Ticket is Here!"),
		EmailBodyPath:    getEnv("EMAIL_MESSAGE_PATH", ""),
		EmailMaxAttempts: intVar("EMAIL_MAX_ATTEMPTS", 3),

		AttendanceURLTemplate: getEnv("ATTENDANCE_URL_TEMPLATE", ""),
		AttendanceStatus:      getEnv("ATTENDANCE_STATUS", "Present"),
		LinkSigningSecret:     getEnv("LINK_SIGNING_SECRET", ""),

		PollInterval: time.Duration(intVar("POLLING_INTERVAL_SECONDS", 30)) * time.Second,
		FetchRetries: intVar("FETCH_RETRIES", 3),

		TaggedTemplatePath: getEnv("TICKET_TEMPLATE_WITH_TAGS_PATH", ""),
		BlankTemplatePath:  getEnv("TICKET_TEMPLATE_EMPTY_PATH", ""),
		FontPath:           getEnv("FONT_PATH", ""),
		TextColor:          getEnv("TEXT_COLOR", "#000000"),
		TesseractCmd:       getEnv("TESSERACT_CMD_PATH", "tesseract"),
		SkipDetection:      boolVar("SKIP_DETECTION", false),
		LayoutStatePath:    getEnv("LAYOUT_STATE_PATH", "layout.yaml"),
		DetectFontScale:    floatVar("DETECT_FONT_SCALE", 1.0),
		DetectQRScale:      floatVar("DETECT_QR_SCALE", 1.0),
		NameMargin:         intVar("NAME_MARGIN", 20),
		OverflowPolicy:     getEnv("OVERFLOW_POLICY", "shrink"),
		LayoutDefaults: layout.Defaults{
			NameX:    intVar("DEFAULT_NAME_X", 0),
			NameY:    intVar("DEFAULT_NAME_Y", 750),
			FontSize: intVar("DEFAULT_FONT_SIZE", 60),
			QRY:      intVar("DEFAULT_QR_Y", 950),
			QRSize:   intVar("DEFAULT_QR_SIZE", 350),
		},

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       intVar("REDIS_DB", 0),
		OTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8081"),
		AdminSecret:   getEnv("ADMIN_JWT_SECRET", ""),

		TraceSampleRatio:  floatVar("OTEL_TRACES_SAMPLER_ARG", 1.0),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
	}

	if len(parseErrs) > 0 {
		return Config{}, errors.Join(parseErrs...)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports the first invalid field as a *ConfigError.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigError{Field: fe.Namespace(), Reason: describe(fe)}
		}
		return &ConfigError{Field: "config", Reason: err.Error()}
	}

	if c.MailBackend == "smtp" && c.SenderEmail == "" {
		return &ConfigError{Field: "SENDER_EMAIL", Reason: "is required when MAIL_BACKEND=smtp"}
	}

	if c.AdminPasswordHash != "" && c.AdminSecret == "" {
		return &ConfigError{Field: "ADMIN_PASSWORD_HASH", Reason: "requires ADMIN_JWT_SECRET"}
	}

	if err := qrlink.ValidateTemplate(c.AttendanceURLTemplate, c.LinkSigningSecret != ""); err != nil {
		return &ConfigError{Field: "ATTENDANCE_URL_TEMPLATE", Reason: err.Error()}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	case "email":
		return fmt.Sprintf("%q is not an email address", fe.Value())
	default:
		return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
	}
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, &ConfigError{Field: key, Reason: fmt.Sprintf("%q is not an integer", v)}
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, &ConfigError{Field: key, Reason: fmt.Sprintf("%q is not a boolean", v)}
	}
	return b, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback, &ConfigError{Field: key, Reason: fmt.Sprintf("%q is not a number", v)}
	}
	return f, nil
}
