package main

import "github.com/t-okubo/repo-census/cmd"

func main() {
	cmd.Execute()
}
