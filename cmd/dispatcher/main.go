package main

import "github.com/dispatch-sh/dispatcher/internal/cmd"

func main() {
	cmd.Execute()
}
