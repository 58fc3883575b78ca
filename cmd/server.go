package cmd

import (
	"EchoQuiz/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动EchoQuiz服务器",
	Long:  `启动EchoQuiz转录出题系统的HTTP服务器，提供API服务与实时通道`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
