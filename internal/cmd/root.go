package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/d2c-launcher/coordinator/internal/cmd/config"
	appconfig "github.com/d2c-launcher/coordinator/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "d2c-coordinator",
	Short: "Real-time session coordinator for the matchmaking client",
	Long: `d2c-coordinator watches the local identity provider, exchanges its
session credential for a backend access token, keeps the Game Coordinator
socket connected and tracks queue, ready-check, party and invite state.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/d2c-coordinator/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(identityCmd)
	config.Register(rootCmd)
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	appconfig.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(appconfig.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(appconfig.EnvPrefix)
	// Replace dots with underscores for nested keys in env vars
	// e.g., D2C_CHANNEL_SOCKET_URL for channel.socket_url
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	_ = appconfig.BindEnv()

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
