package main

import "tcpgateway/cmd/cli/command"

func main() {
	command.Execute()
}
