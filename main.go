package main

import "github.com/KaramelBytes/analyst/cmd"

func main() {
	cmd.Execute()
}
