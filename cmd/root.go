package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/drg911/htb-pro-card/internal/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `	 _     _   _                        _
	| |__ | |_| |__   ___ __ _ _ __ __| |
	| '_ \| __| '_ \ / __/ _' | '__/ _' |
	| | | | |_| |_) | (_| (_| | | | (_| |
	|_| |_|\__|_.__/ \___\__,_|_|  \__,_|

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "htbcard",
	Short: "Hack The Box profile cards, badges and progress widgets.",
	Long: LOGO + `htbcard fetches Hack The Box profile statistics from the Labs API or a JSON relay,
caches them and renders them as HTML fragments, from the command line or over HTTP.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.htbcard.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("token", "", "HTB Labs API token (overrides labs.token)")

	viper.BindPFlag("http.proxy", rootCmd.PersistentFlags().Lookup("proxy"))
	viper.BindPFlag("labs.token", rootCmd.PersistentFlags().Lookup("token"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("defaults.id", "")
	v.SetDefault("defaults.ttl", 43200)
	v.SetDefault("defaults.badge", true)
	v.SetDefault("defaults.json_url", "")

	v.SetDefault("labs.base_url", "https://labs.hackthebox.com")
	v.SetDefault("labs.token", "")
	v.SetDefault("labs.timeout", "15s")
	v.SetDefault("relay.timeout", "10s")
	v.SetDefault("relay.allowed_domains", []string{})
	v.SetDefault("http.retries", 2)
	v.SetDefault("http.proxy", "")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.fallback", "none")
	v.SetDefault("cache.sqlite_path", "")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.username", "")
	v.SetDefault("server.password", "")

	v.SetDefault("warmup.enabled", false)
	v.SetDefault("warmup.brokers", []string{"localhost:9092"})
	v.SetDefault("warmup.topic", "htbcard-warmup")
	v.SetDefault("warmup.group", "htbcard")
}

// writeDefaultConfig creates path holding only the built-in defaults, so
// flags and environment values of the current run stay out of it.
func writeDefaultConfig(path string) error {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	return v.SafeWriteConfigAs(path)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	setDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".htbcard")
		viper.SetConfigType("yaml")
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.htbcard.yaml"
			if err := writeDefaultConfig(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	_ = godotenv.Load()
	viper.SetEnvPrefix("htbcard")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.BindEnv("labs.token", "HTB_API_TOKEN", "HTBCARD_LABS_TOKEN")

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
