package main

import "github.com/conneroisu/soltranslator/cmd"

func main() {
	cmd.Execute()
}
