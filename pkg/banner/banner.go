package banner

import (
	"fmt"
)

const banner = `
███████╗██╗  ██╗██╗██████╗ ██████╗  ██████╗  █████╗ ██████╗ ██████╗
██╔════╝██║  ██║██║██╔══██╗██╔══██╗██╔═══██╗██╔══██╗██╔══██╗██╔══██╗
███████╗███████║██║██████╔╝██████╔╝██║   ██║███████║██████╔╝██║  ██║
╚════██║██╔══██║██║██╔═══╝ ██╔══██╗██║   ██║██╔══██║██╔══██╗██║  ██║
███████║██║  ██║██║██║     ██████╔╝╚██████╔╝██║  ██║██║  ██║██████╔╝
╚══════╝╚═╝  ╚═╝╚═╝╚═╝     ╚═════╝  ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚═════╝
`

// Print writes the startup banner with the effective runtime settings.
func Print(addr, dbPath, auxPath, sources, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:     %s\n", addr)
	fmt.Printf("DB Path:    %s\n", dbPath)
	fmt.Printf("Aux Path:   %s\n", auxPath)
	if version != "" {
		fmt.Printf("Version:    %s\n", version)
	}
	if sources != "" {
		fmt.Printf("Config sources: %s\n", sources)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /api/v3/accounts                   - Create an account (awaits cache refresh)")
	fmt.Println("GET  /api/v3/users/find/{username}      - Look up a user by name")
	fmt.Println("GET  /api/v3/notification/socket        - Personal push socket (websocket)")
	fmt.Println("GET  /api/v3/conversations/{id}/socket  - Conversation push socket (websocket)")
	fmt.Println("GET  /metrics                           - Prometheus metrics")
	fmt.Println("GET  /docs/                             - API documentation")
}
