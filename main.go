package main

import "github.com/larkvale/webtome/cmd"

func main() {
	cmd.Execute()
}
