package main

import "github.com/saittam/debsync/cmd/debsync/cmd"

func main() {
	cmd.Execute()
}
