package main

import "github.com/devpool/chatsync/cmd/chatctl/cmd"

func main() {
	cmd.Execute()
}
