package banner

import (
	"fmt"

	"ticketchat/pkg/config"
)

const banner = `
████████╗██╗ ██████╗██╗  ██╗███████╗████████╗ ██████╗██╗  ██╗ █████╗ ████████╗
╚══██╔══╝██║██╔════╝██║ ██╔╝██╔════╝╚══██╔══╝██╔════╝██║  ██║██╔══██╗╚══██╔══╝
   ██║   ██║██║     █████╔╝ █████╗     ██║   ██║     ███████║███████║   ██║
   ██║   ██║██║     ██╔═██╗ ██╔══╝     ██║   ██║     ██╔══██║██╔══██║   ██║
   ██║   ██║╚██████╗██║  ██╗███████╗   ██║   ╚██████╗██║  ██║██║  ██║   ██║
   ╚═╝   ╚═╝ ╚═════╝╚═╝  ╚═╝╚══════╝   ╚═╝    ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝
`

// Print writes the startup banner and a short readiness checklist derived
// from the effective config.
func Print(cfg *config.Config, source, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", cfg.Addr())
	fmt.Printf("DB Path:  %s\n", cfg.Server.DBPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if source == "" {
		source = "flags"
	}
	fmt.Printf("Config:   %s\n", source)

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/chats                      - Create a freestanding conversation")
	fmt.Println("GET  /v1/chats?page=&limit=         - List the caller's conversations")
	fmt.Println("POST /v1/chats/{id}/messages        - Send a message")
	fmt.Println("GET  /v1/chats/{id}/messages        - Read messages (newest first)")
	fmt.Println("POST /v1/tickets/{ticketId}/chat    - Ensure the ticket's conversation")
	fmt.Println("GET  /v1/ws                         - Realtime gateway (websocket)")

	fmt.Println("\n== Production? ================================================")
	if n := len(cfg.Security.APIKeys.Backend); n > 0 {
		fmt.Printf("- Backend API keys: OK (%d)\n", n)
	} else if cfg.Security.APIKeys.AllowUnauth {
		fmt.Println("- Backend API keys: NONE (allow_unauth is set, dev only)")
	} else {
		fmt.Println("- Backend API keys: MISSING (required for backend services)")
	}
	if cfg.Security.Encryption.Key != "" {
		fmt.Println("- Encryption: key configured")
	} else {
		fmt.Println("- Encryption: NO KEY (server will refuse to start)")
	}
	if cfg.Notify.URL != "" {
		fmt.Printf("- Notifications: %s\n", cfg.Notify.URL)
	} else {
		fmt.Println("- Notifications: disabled")
	}
	if cfg.Maintenance.Compaction != "" {
		fmt.Printf("- Compaction: cron=%s\n", cfg.Maintenance.Compaction)
	} else {
		fmt.Println("- Compaction: disabled")
	}

	fmt.Println("\n== Logs: ======================================================")
}
