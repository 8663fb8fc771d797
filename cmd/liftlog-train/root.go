package main

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	userID  int
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "liftlog-train",
	Short:         "Track a strength workout against a LiftLog server",
	Long:          `liftlog-train starts, pauses and finishes workout sessions, records sets and runs rest timers. Sessions live on the server, so a workout started here survives a restart and can be picked up again with "train".`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "liftlog.yaml",
		"client config file (optional)")
	rootCmd.PersistentFlags().IntVarP(&userID, "user", "u", 0,
		"act as this user id on a dev-mode server (default: ask the server)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"log engine and transport activity to stderr")

	rootCmd.AddCommand(
		routinesCmd,
		selectCmd,
		statusCmd,
		trainCmd,
		historyCmd,
		summaryCmd,
		mcpCmd,
	)
	for _, c := range lifecycleCmds() {
		rootCmd.AddCommand(c)
	}
}
