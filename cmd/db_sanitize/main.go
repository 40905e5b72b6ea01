package main

import "towerstats/process/sanitize"

func main() {
	sanitize.Run()
}
