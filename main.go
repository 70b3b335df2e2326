package main

import "github.com/webharvest/webharvest/cmd"

func main() {
	cmd.Execute()
}
