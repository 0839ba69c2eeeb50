package main

import "github.com/drg911/htb-pro-card/cmd"

func main() {
	cmd.Execute()
}
