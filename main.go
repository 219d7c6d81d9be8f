package main

import "github.com/nextlevelbuilder/opsclaw/cmd"

func main() {
	cmd.Execute()
}
