package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// exampleConfig mirrors config.Config with yaml tags so `config init` can
// render a starting file. Durations are strings because viper parses them
// from their text form.
type exampleConfig struct {
	Server struct {
		Port         int    `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
		IdleTimeout  string `yaml:"idle_timeout"`
	} `yaml:"server"`
	Database struct {
		Postgres struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			User     string `yaml:"user"`
			Password string `yaml:"password"`
			Database string `yaml:"database"`
			SSLMode  string `yaml:"sslmode"`
		} `yaml:"postgres"`
	} `yaml:"database"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`
	Sweep struct {
		StuckInterval  string `yaml:"stuck_interval"`
		FreezeInterval string `yaml:"freeze_interval"`
	} `yaml:"sweep"`
	Cache struct {
		TTL string `yaml:"ttl"`
	} `yaml:"cache"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

func defaultExampleConfig() exampleConfig {
	var c exampleConfig
	c.Server.Port = 8090
	c.Server.ReadTimeout = "15s"
	c.Server.WriteTimeout = "15s"
	c.Server.IdleTimeout = "60s"
	c.Database.Postgres.Host = "localhost"
	c.Database.Postgres.Port = 5432
	c.Database.Postgres.User = "questforge"
	c.Database.Postgres.Database = "questforge"
	c.Database.Postgres.SSLMode = "disable"
	c.Redis.Enabled = true
	c.Redis.Addr = "localhost:6379"
	c.NATS.URL = "nats://localhost:4222"
	c.Sweep.StuckInterval = "1m"
	c.Sweep.FreezeInterval = "24h"
	c.Cache.TTL = "30s"
	c.Logging.Level = "info"
	c.Logging.Format = "json"
	return c
}

var configInitOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example config file",
	Long: `config init renders a config file populated with the defaults. Every
key can also be set through the environment as QUESTFORGE_SECTION_KEY,
for example QUESTFORGE_DATABASE_POSTGRES_HOST.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(defaultExampleConfig())
		if err != nil {
			return fmt.Errorf("render config: %w", err)
		}

		if configInitOutput == "-" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}

		if _, err := os.Stat(configInitOutput); err == nil {
			return fmt.Errorf("%s already exists, remove it first", configInitOutput)
		}
		if err := os.WriteFile(configInitOutput, data, 0o644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configInitOutput)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitOutput, "output", "config.yaml", "destination file, - for stdout")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
