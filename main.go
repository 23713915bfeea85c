package main

import "quincy-backend/cmd"

func main() {
	cmd.Run()
}
