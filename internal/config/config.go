/**
 * @description
 * This file is responsible for managing the configuration of the functions
 * backend. It uses the Viper library to read settings from environment
 * variables or a .env file, making the application environment-agnostic.
 *
 * @dependencies
 * - github.com/spf13/viper: For configuration management.
 *
 * @notes
 * - Configuration is loaded into a `Config` struct for type-safe access
 *   throughout the application.
 * - The service-role key and JWT secret are sensitive: they bypass
 *   row-level security and sign session tokens respectively. They must only
 *   ever be provided via the deployment environment.
 */
package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	ServerPort             string `mapstructure:"SERVER_PORT"`
	DatabaseURL            string `mapstructure:"DATABASE_URL"`
	SupabaseURL            string `mapstructure:"SUPABASE_URL"`
	ServiceRoleKey         string `mapstructure:"SUPABASE_SERVICE_ROLE_KEY"`
	JWTSecret              string `mapstructure:"SUPABASE_JWT_SECRET"`
	ExpoPushURL            string `mapstructure:"EXPO_PUSH_URL"`
	RabbitMQURL            string `mapstructure:"RABBITMQ_URL"`
	RedisURL               string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix   string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	ReferralRatePerMinute  int    `mapstructure:"REFERRAL_RATE_LIMIT_PER_MINUTE"`
	RequestRatePerMinute   int    `mapstructure:"REQUEST_RATE_LIMIT_PER_MINUTE"`
	AdminUserPageSize      int    `mapstructure:"ADMIN_USER_PAGE_SIZE"`
	AdminUserMaxPages      int    `mapstructure:"ADMIN_USER_MAX_PAGES"`
	InviteRedirectURL      string `mapstructure:"INVITE_REDIRECT_URL"`
	FollowUpCronSpec       string `mapstructure:"FOLLOWUP_CRON_SPEC"`
	FollowUpAgeHours       int    `mapstructure:"FOLLOWUP_AGE_HOURS"`
	AllowedOrigins         string `mapstructure:"ALLOWED_ORIGINS"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig() (config Config, err error) {
	viper.AddConfigPath(".")
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8090")
	viper.SetDefault("EXPO_PUSH_URL", "https://exp.host/--/api/v2/push/send")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "vineme:rate_limit")
	viper.SetDefault("REFERRAL_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("REQUEST_RATE_LIMIT_PER_MINUTE", 120)
	viper.SetDefault("ADMIN_USER_PAGE_SIZE", 200)
	viper.SetDefault("ADMIN_USER_MAX_PAGES", 50)
	viper.SetDefault("FOLLOWUP_CRON_SPEC", "0 * * * *")
	viper.SetDefault("FOLLOWUP_AGE_HOURS", 48)

	// Bind env vars explicitly
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("SUPABASE_URL")
	_ = viper.BindEnv("SUPABASE_SERVICE_ROLE_KEY")
	_ = viper.BindEnv("SUPABASE_JWT_SECRET")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("INVITE_REDIRECT_URL")
	_ = viper.BindEnv("ALLOWED_ORIGINS")

	err = viper.ReadInConfig()
	if err != nil {
		// If the config file is not found, it's not a fatal error,
		// as we can rely on environment variables.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("Error reading config file: %s", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		log.Fatalf("Unable to decode into struct: %v", err)
	}

	return config, nil
}
