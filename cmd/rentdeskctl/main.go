package main

import "github.com/rentdesk/rentdesk/cmd/rentdeskctl/cli"

func main() {
	cli.Execute()
}
