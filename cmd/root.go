package cmd

import (
	"errors"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "kozi-chatbot"
)

type Config struct {
	Database  string           `mapstructure:"database"`
	Knowledge *KnowledgeConfig `mapstructure:"knowledge"`
	Gemini    *GeminiConfig    `mapstructure:"gemini"`
	Jobs      *JobsConfig      `mapstructure:"jobs"`
}

type KnowledgeConfig struct {
	Database     string `mapstructure:"database"`
	EmbeddingDim int    `mapstructure:"embedding-dim"`
}

type GeminiConfig struct {
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	EmbedModel string `mapstructure:"embed-model"`
}

type JobsConfig struct {
	BaseURL         string `mapstructure:"base-url"`
	CredentialsFile string `mapstructure:"credentials-file"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "kozi-chatbot is a conversational assistant for the Kozi job-placement platform",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}
	if err := viper.BindEnv("jobs.credentials-file", "KOZI_JOBS_CREDENTIALS_FILE"); err != nil {
		log.Fatalf("binding KOZI_JOBS_CREDENTIALS_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is kozi-chatbot.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	viper.SetDefault("database", "kozi.db")
	viper.SetDefault("knowledge.database", "knowledge.db")
	viper.SetDefault("knowledge.embedding-dim", 3072)
}

func initConfig() {
	// Config needed only for the chat and ingest commands. If neither was
	// called we can skip initialization.
	if chatCmd.CalledAs() == "" && ingestCmd.CalledAs() == "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// We can't proceed if the config file parsed with error. A missing file
	// is fine since every key has a default or an environment binding.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
