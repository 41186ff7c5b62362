// cisternctl is a thin operator CLI: it frames and sends one request
// per invocation over the controller's serial link and prints the
// decoded response. Adapted from the teacher's cmd/hermodctl/root.go
// cobra+viper bootstrap.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	port    string
	baud    int
)

var rootCmd = &cobra.Command{
	Use:   "cisternctl",
	Short: "cisternctl drives a water controller over its serial link",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cisternctl.yaml)")
	rootCmd.PersistentFlags().StringVar(&port, "port", "/dev/ttyUSB0", "serial device path")
	rootCmd.PersistentFlags().IntVar(&baud, "baud", 9600, "serial baud rate")
	viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("baud", rootCmd.PersistentFlags().Lookup("baud"))

	rootCmd.AddCommand(modeCmd, tanksCmd, sourcesCmd, saveCmd, resetCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, _ := os.UserHomeDir()
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".cisternctl")
	}

	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		port = viper.GetString("port")
		baud = viper.GetInt("baud")
	}
}

func main() {
	Execute()
}
