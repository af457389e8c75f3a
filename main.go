package main

import "github.com/nextlevelbuilder/gosentinel/cmd"

func main() {
	cmd.Execute()
}
