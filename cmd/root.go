package cmd

import (
	"fmt"
	"log"
	"os"

	"EchoQuiz/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "echoquiz_server",
	Short: "EchoQuiz is a media transcription and quiz generation service.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting EchoQuiz server...")
		// server.Start now handles its own port and logging for startup.
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
