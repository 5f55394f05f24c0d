package main

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the portal HTTP and websocket server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd, "")
		if err != nil {
			return err
		}
		defer rt.Close()
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			rt.Config.Server.Addr = addr
		}
		return rt.Serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address, overrides server.addr")
	rootCmd.AddCommand(serveCmd)
}
