// Command fetch-client sends one request to a fetch proxy and prints the
// response body.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/die-net/fetchproxy/internal/client"
	"github.com/die-net/fetchproxy/internal/dialer"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		proxyAddr string
		upstream  string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "fetch-client URL [USER [PASS]]",
		Short: "Fetch a resource through a fetch proxy",
		Long: `fetch-client asks a fetch proxy for one resource and prints what comes back.

  fetch-client http://example.com/index.html
  fetch-client ftp://ftp.example.com/readme.txt
  fetch-client ftp://ftp.example.com/readme.txt USER        (password "anonymous")
  fetch-client ftp://ftp.example.com/readme.txt USER PASS`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := client.RequestLine(args)
			if err != nil {
				_ = cmd.Usage()
				return err
			}

			d, err := dialer.New(dialer.Config{}, upstream)
			if err != nil {
				return fmt.Errorf("invalid --via: %w", err)
			}

			c := &client.Client{Addr: proxyAddr, Dialer: d, Timeout: timeout}
			body, err := c.Fetch(cmd.Context(), line)
			fmt.Fprint(cmd.OutOrStdout(), body)
			return err
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.Flags().StringVarP(&proxyAddr, "proxy", "p", client.DefaultProxyAddr, "Proxy address (host:port)")
	cmd.Flags().StringVar(&upstream, "via", "direct://", "Reach the proxy through: direct:// | http://host:port | socks5://host:port")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up after this long (0 waits forever)")

	return cmd
}
