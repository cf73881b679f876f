package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/plexar-dev/plexar/pkg/fetch"
	"github.com/plexar-dev/plexar/pkg/log"
)

var connectTLS bool

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect <host:port>",
	Short: "Open a raw socket and pipe stdin/stdout through it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ec, fetcher, err := newExecContext()
		if err != nil {
			return err
		}
		defer ec.Close()

		opts := &fetch.SocketOptions{}
		if connectTLS {
			opts.SecureTransport = "on"
		}
		sock, err := fetcher.Connect(cmd.Context(), ec, args[0], opts)
		if err != nil {
			return err
		}
		defer sock.Close()

		errc := make(chan error, 2)
		go func() {
			_, err := io.Copy(sock, os.Stdin)
			errc <- err
		}()
		go func() {
			_, err := io.Copy(os.Stdout, sock)
			errc <- err
		}()
		select {
		case err := <-errc:
			if err != nil {
				log.Errorf("connection error: %v", err)
			}
			return err
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		}
	},
}

func init() {
	connectCmd.Flags().BoolVar(&connectTLS, "tls", false, "Wrap the connection in TLS.")
	rootCmd.AddCommand(connectCmd)
}
