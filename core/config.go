package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kat-co/vala"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug    bool
		TestMode bool
		Env      string // DEV (default), TEST, QA, PROD
		Build    string
		WorkDir  string

		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		SendgridApiKey   string
		RollbarToken     string

		Server   ServerConfig
		Database DatabaseConfig
		Program  ProgramConfig
	}

	ServerConfig struct {
		Host               string
		ApiHost            string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		DisableTLS    bool
	}

	// ProgramConfig holds the accountability program constants.
	ProgramConfig struct {
		Timezone             string // fixed wall-clock timezone for all deadlines
		Weeks                int    // program length
		LockThreshold        int    // consecutive misses before account lock
		RollingWindow        int    // weeks in the rolling revenue average
		StageReportsNeeded   int    // valid reports to clear stage 1
		Stage3Multiplier     float64
		GraduationMultiplier float64
	}
)

func (c DatabaseConfig) Address() string {
	return c.Host + ":" + c.Port
}

// Location resolves the program timezone. All deadlines are pinned to it;
// client clocks carry no authority.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Program.Timezone)
	if err != nil {
		log.Fatalf("config: unknown timezone %q: %v", c.Program.Timezone, err)
	}
	return loc
}

func NewConfig(build ...string) *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Hatua")
	v.SetDefault("secretKey", "w3y(2mk$#s8_hatua-dev-only_f1&b0q!7d^vjz*p4xh9")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverApiHost", ":8000")
	v.SetDefault("serverDebugHost", ":4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("databaseEngine", "postgres")
	v.SetDefault("databaseName", "hatua")
	v.SetDefault("databaseUser", "hatua")
	v.SetDefault("databasePassword", "hatua")
	v.SetDefault("databaseAdminUser", "")
	v.SetDefault("databaseAdminPassword", "")
	v.SetDefault("databaseHost", "localhost")
	v.SetDefault("databasePort", "5432")
	v.SetDefault("databaseDisableTLS", true)

	v.SetDefault("programTimezone", "Africa/Lagos")
	v.SetDefault("programWeeks", 12)
	v.SetDefault("programLockThreshold", 2)
	v.SetDefault("programRollingWindow", 3)
	v.SetDefault("programStageReportsNeeded", 2)
	v.SetDefault("programStage3Multiplier", 2.0)
	v.SetDefault("programGraduationMultiplier", 4.0)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Debug:    v.GetBool("debug"),
		TestMode: env == "TEST",
		Env:      env,
		WorkDir:  wd,

		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		DefaultFromEmail: mail.Address{Address: v.GetString("defaultFromEmail")},
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),

		Server: ServerConfig{
			Host:               v.GetString("serverHost"),
			ApiHost:            v.GetString("serverApiHost"),
			DebugHost:          v.GetString("serverDebugHost"),
			ShutdownTimeout:    v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("databaseEngine"),
			Name:          v.GetString("databaseName"),
			User:          v.GetString("databaseUser"),
			Password:      v.GetString("databasePassword"),
			AdminUser:     v.GetString("databaseAdminUser"),
			AdminPassword: v.GetString("databaseAdminPassword"),
			Host:          v.GetString("databaseHost"),
			Port:          v.GetString("databasePort"),
			DisableTLS:    v.GetBool("databaseDisableTLS"),
		},
		Program: ProgramConfig{
			Timezone:             v.GetString("programTimezone"),
			Weeks:                v.GetInt("programWeeks"),
			LockThreshold:        v.GetInt("programLockThreshold"),
			RollingWindow:        v.GetInt("programRollingWindow"),
			StageReportsNeeded:   v.GetInt("programStageReportsNeeded"),
			Stage3Multiplier:     v.GetFloat64("programStage3Multiplier"),
			GraduationMultiplier: v.GetFloat64("programGraduationMultiplier"),
		},
	}
	if len(build) > 0 {
		conf.Build = build[0]
	}

	// fail fast on settings PROD cannot run without
	if env == "PROD" {
		err := vala.BeginValidation().Validate(
			vala.StringNotEmpty(conf.SecretKey, "secretKey"),
			vala.StringNotEmpty(conf.SendgridApiKey, "sendgridApiKey"),
			vala.StringNotEmpty(conf.RollbarToken, "rollbarToken"),
			vala.StringNotEmpty(conf.Database.Password, "databasePassword"),
		).Check()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	return conf
}
