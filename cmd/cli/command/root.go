package command

// root.go defines the root command for the tcpgateway CLI.
// set up the global flags here.

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverAddr string        // Global flag for TCP server address
	framing    string        // frame format, must match the server
	timeout    time.Duration // per call timeout
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tcpgateway-cli",
	Short: "tcpgateway-cli - client for the tcpgateway TCP service",
	Long: `tcpgateway-cli sends JSON requests to a tcpgateway server over TCP and prints
the response message. Available endpoints:
- /api/       uppercase the message
- /api/hello  fixed greeting

Use "tcpgateway-cli command -h" to see all available commands.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err) // Print error to standard error
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags = available to all subcommands
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:8000", "TCP server address")
	rootCmd.PersistentFlags().StringVar(&framing, "framing", "length", "frame format: length or crlf")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
}
