package main

import "opinionbot/internal/app"

func main() {
	app.Main()
}
