package main

import "wesense/cmd"

func main() {
	cmd.Execute()
}
