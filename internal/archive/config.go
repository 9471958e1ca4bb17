package archive

import "github.com/spf13/viper"

// Config holds the object-store settings for the draft archive. The
// archive is optional: an empty endpoint disables it and discarded
// drafts are simply not preserved.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Enabled reports whether an archive endpoint is configured.
func (c *Config) Enabled() bool { return c.Endpoint != "" }

// LoadConfig reads the archive settings from the environment.
func LoadConfig() *Config {
	viper.AutomaticEnv()
	viper.SetDefault("MINIO_BUCKET", "inkwave-drafts")
	return &Config{
		Endpoint:  viper.GetString("MINIO_ENDPOINT"),
		AccessKey: viper.GetString("MINIO_ACCESS_KEY"),
		SecretKey: viper.GetString("MINIO_SECRET_KEY"),
		UseSSL:    viper.GetBool("MINIO_USE_SSL"),
		Bucket:    viper.GetString("MINIO_BUCKET"),
	}
}
