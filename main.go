package main

import (
	"github.com/myooken/p2pShareDisplay/cmd"
	"github.com/myooken/p2pShareDisplay/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
