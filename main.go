package main

import "github.com/nextlevelbuilder/vcwarden/cmd"

func main() {
	cmd.Execute()
}
