package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	RefData   RefDataConfig
	KurrentDB KurrentDBConfig
	Auth      AuthConfig
	Triage    TriageConfig
}

type ServerConfig struct {
	Port int
	Env  string
	// RateLimitRPS and RateLimitBurst configure the global request limiter.
	RateLimitRPS   int
	RateLimitBurst int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// RefDataConfig selects where the reference-data snapshot is loaded from.
type RefDataConfig struct {
	// Source: "postgres", "mssql" (legacy HIS import), or "seed"
	// (embedded demo dataset)
	Source string
	// MSSQLDSN is the connection string for the legacy HIS import
	MSSQLDSN string
}

// KurrentDBConfig holds configuration for the pipeline audit event sink.
type KurrentDBConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Insecure bool
	Username string
	Password string
}

type AuthConfig struct {
	// Enabled gates the JWT bearer middleware on the triage API
	Enabled   bool
	JWTSecret string
}

// TriageConfig holds every tunable decision threshold. Nothing in the
// decision units hardcodes these values.
type TriageConfig struct {
	// EmergencySpO2 is the saturation below which the coordinator exits
	// to the Emergency outcome without running further units.
	EmergencySpO2 int
	// CriticalSpO2 and WarningSpO2 drive red-flag generation in imaging.
	CriticalSpO2 int
	WarningSpO2  int
	// EscalationConfidence: imaging confidence below this escalates.
	// The classifier never reports below 0.40, so values under that
	// floor (including the 0.30 default) leave this rule inert.
	EscalationConfidence float64
	// RedFlagKeywords are symptom substrings that raise warning flags.
	RedFlagKeywords []string

	// MaxOTCOptions caps the therapy candidate list.
	MaxOTCOptions int

	// DefaultLat/DefaultLon is the metro-center fallback when the
	// patient's pincode has no coordinate entry.
	DefaultLat float64
	DefaultLon float64

	// SearchRadiusKm bounds the pharmacy search.
	SearchRadiusKm float64
	// DeliverySpeedKmph is the assumed courier speed for ETA.
	DeliverySpeedKmph float64
	// BaseDeliveryFee and PerKmCharge price the delivery leg.
	BaseDeliveryFee float64
	PerKmCharge     float64

	// MaxDoctors caps the doctor match list.
	MaxDoctors int
	// Doctor match score weights over normalized terms; should sum to ~1.
	DoctorSpecialtyWeight    float64
	DoctorExperienceWeight   float64
	DoctorAvailabilityWeight float64
	DoctorDistanceWeight     float64
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port:           getEnvInt("SERVER_PORT", 8080),
			Env:            getEnv("ENV", "development"),
			RateLimitRPS:   getEnvInt("RATE_LIMIT_RPS", 50),
			RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 100),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "triage"),
			Password: getEnv("DB_PASSWORD", "triage"),
			Database: getEnv("DB_NAME", "triage"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		RefData: RefDataConfig{
			Source:   getEnv("REFDATA_SOURCE", "seed"),
			MSSQLDSN: getEnv("REFDATA_MSSQL_DSN", ""),
		},
		KurrentDB: KurrentDBConfig{
			Enabled:  getEnvBool("KURRENTDB_ENABLED", false),
			Host:     getEnv("KURRENTDB_HOST", "localhost"),
			Port:     getEnvInt("KURRENTDB_PORT", 2113),
			Insecure: getEnvBool("KURRENTDB_INSECURE", true),
			Username: getEnv("KURRENTDB_USERNAME", ""),
			Password: getEnv("KURRENTDB_PASSWORD", ""),
		},
		Auth: AuthConfig{
			Enabled:   getEnvBool("AUTH_ENABLED", false),
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
		},
		Triage: TriageConfig{
			EmergencySpO2:        getEnvInt("EMERGENCY_SPO2_THRESHOLD", 90),
			CriticalSpO2:         getEnvInt("CRITICAL_SPO2_THRESHOLD", 88),
			WarningSpO2:          getEnvInt("WARNING_SPO2_THRESHOLD", 92),
			EscalationConfidence: getEnvFloat("ESCALATION_CONFIDENCE_THRESHOLD", 0.30),
			RedFlagKeywords: getEnvSlice("RED_FLAG_KEYWORDS", []string{
				"chest pain",
				"shortness of breath",
				"breathing difficulty",
				"confusion",
				"disorientation",
				"unconscious",
				"unresponsive",
				"severe pain",
				"coughing blood",
				"severe headache",
				"seizure",
			}),
			MaxOTCOptions:            getEnvInt("THERAPY_MAX_OTC_OPTIONS", 5),
			DefaultLat:               getEnvFloat("DEFAULT_LOCATION_LAT", 19.0760),
			DefaultLon:               getEnvFloat("DEFAULT_LOCATION_LON", 72.8777),
			SearchRadiusKm:           getEnvFloat("PHARMACY_SEARCH_RADIUS_KM", 25),
			DeliverySpeedKmph:        getEnvFloat("PHARMACY_DELIVERY_SPEED_KMPH", 30),
			BaseDeliveryFee:          getEnvFloat("PHARMACY_BASE_DELIVERY_FEE", 25),
			PerKmCharge:              getEnvFloat("PHARMACY_PER_KM_CHARGE", 5),
			MaxDoctors:               getEnvInt("DOCTOR_MAX_RESULTS", 5),
			DoctorSpecialtyWeight:    getEnvFloat("DOCTOR_SPECIALTY_WEIGHT", 0.40),
			DoctorExperienceWeight:   getEnvFloat("DOCTOR_EXPERIENCE_WEIGHT", 0.30),
			DoctorAvailabilityWeight: getEnvFloat("DOCTOR_AVAILABILITY_WEIGHT", 0.20),
			DoctorDistanceWeight:     getEnvFloat("DOCTOR_DISTANCE_WEIGHT", 0.10),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
