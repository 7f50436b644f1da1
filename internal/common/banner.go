package common

import (
	"fmt"

	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and the upstream endpoints
func PrintBanner(config *Config) {
	banner.Print("Corrudash", GetVersion())
	fmt.Printf("  snapshot: %s\n", config.Snapshot.BaseURL)
	fmt.Printf("  live:     %s %s\n", config.Live.URL, config.Live.Topic)
	fmt.Printf("  serving:  http://%s:%d\n\n", config.Server.Host, config.Server.Port)
}
