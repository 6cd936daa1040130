package command

import (
	"context"
	"fmt"

	"tcpgateway/cmd/cli/command/client"
	"tcpgateway/internal/microservices/tcp"

	"github.com/spf13/cobra"
)

var (
	endpoint string
	message  string
)

// sendCmd sends a single request and prints the response message
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one request to the server",
	Long: `Connect to the server, send {"endpoint": ..., "message": ...} as one frame
and print the message of the response.

The server closes the connection without answering malformed requests,
which is reported as an error.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := call(cmd.Context(), tcp.Request{Endpoint: endpoint, Message: message})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
		return nil
	},
}

// helloCmd is a shortcut for send --endpoint /api/hello
var helloCmd = &cobra.Command{
	Use:   "hello",
	Short: "Ask the server for its greeting",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := call(cmd.Context(), tcp.Request{Endpoint: tcp.EndpointHello})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
		return nil
	},
}

func call(ctx context.Context, req tcp.Request) (tcp.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	codec, err := tcp.NewCodec(framing, tcp.MaxMessageSize)
	if err != nil {
		return tcp.Response{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tcpClient := client.NewTCPClient(serverAddr, codec)
	if err := tcpClient.Connect(ctx); err != nil {
		return tcp.Response{}, fmt.Errorf("failed to connect: %w", err)
	}
	defer tcpClient.Disconnect()

	resp, err := tcpClient.Call(ctx, req)
	if err != nil {
		return tcp.Response{}, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func init() {
	sendCmd.Flags().StringVarP(&endpoint, "endpoint", "e", tcp.EndpointUppercase, "endpoint to call")
	sendCmd.Flags().StringVarP(&message, "message", "m", "", "message to send")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(helloCmd)
}
