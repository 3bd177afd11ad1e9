package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func routesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List the demo server's registered routes",
		Run: func(cmd *cobra.Command, args []string) {
			rows := []struct{ method, template, desc string }{
				{"GET", "/ping", `returns "pong"`},
				{"POST", "/echo", "echoes the request body"},
				{"GET", "/users/{id}", "reports the captured path parameter"},
				{"GET", "/whoami", "mints or reuses a session cookie"},
				{"GET", "/set-cookie-demo", "demonstrates a Set-Cookie response"},
			}
			for _, r := range rows {
				fmt.Printf("  %-5s %-20s %s\n", r.method, r.template, r.desc)
			}
		},
	}
}
