package main

import (
	"embed"

	"github.com/hmrnsp/vid2mp3/cmd"
)

//go:embed frontend/index.html
var appAssets embed.FS

func main() {
	cmd.Execute(appAssets)
}
