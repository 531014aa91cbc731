package main

import "helpt/cmd"

func main() {
	cmd.Execute()
}
