package main

import "github.com/dbsmedya/contentsync/cmd/contentsync/cmd"

func main() {
	cmd.Execute()
}
