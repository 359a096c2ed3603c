package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "questforge-worker",
	Short: "QuestForge progression worker",
	Long: `questforge-worker consumes event envelopes from the bus and drives
the progression engines: campaign rules, badges, quests, streaks,
referral commissions and reward redemptions.`,
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
