package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	goccyjson "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/plexar-dev/plexar/config"
	"github.com/plexar-dev/plexar/pkg/fetch"
	"github.com/plexar-dev/plexar/pretty"
)

var (
	fetchMethod   string
	fetchBody     string
	fetchHeaders  []string
	fetchRedirect string
	fetchCache    string
	fetchInit     string
	fetchShowHdrs bool
)

// newExecContext loads the config, applies the compatibility gates, and
// builds an execution context with the default outgoing channel bound to a
// plain HTTP transport.
func newExecContext() (*fetch.ExecContext, *fetch.Fetcher, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	fetch.SetCompatFlags(fetch.CompatFromConfig(cfg))

	ec := fetch.NewExecContext(
		fetch.WithChannel(0, fetch.NewHTTPTransport()),
	)
	fetcher := fetch.NewChannelFetcher(0, true)
	return ec, fetcher, nil
}

func parseHeaderFlags(raw []string) (http.Header, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	h := make(http.Header)
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q, want Name: Value", kv)
		}
		h.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return h, nil
}

func printResponse(ctx context.Context, resp *fetch.Response) error {
	fmt.Printf("%d %s\n", resp.Status(), resp.StatusText())
	if resp.Redirected() {
		fmt.Printf("via %s\n", strings.Join(resp.URLList(), " -> "))
	}
	if fetchShowHdrs {
		pretty.HeaderTable(resp.Headers()).Print()
	}
	if !resp.HasBody() {
		return nil
	}
	text, err := resp.Text(ctx)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Fetch a URL",
	Long:  `Build a request from the given flags and run it through the fetch pipeline, following redirects per the redirect mode.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ec, fetcher, err := newExecContext()
		if err != nil {
			return err
		}
		defer ec.Close()

		var init *fetch.RequestInit
		if fetchInit != "" {
			var raw map[string]any
			if err := goccyjson.Unmarshal([]byte(fetchInit), &raw); err != nil {
				return fmt.Errorf("invalid --init: %w", err)
			}
			init, err = fetch.DecodeRequestInit(raw)
			if err != nil {
				return err
			}
		} else {
			init = &fetch.RequestInit{}
		}
		if fetchMethod != "" {
			init.Method = fetchMethod
		}
		if fetchBody != "" {
			init.Body = fetchBody
		}
		if fetchRedirect != "" {
			init.Redirect = fetchRedirect
		}
		if fetchCache != "" {
			init.Cache = fetchCache
		}
		h, err := parseHeaderFlags(fetchHeaders)
		if err != nil {
			return err
		}
		if h != nil {
			init.Headers = h
		}

		resp, err := fetch.FetchImpl(cmd.Context(), ec, fetcher, args[0], init)
		if err != nil {
			return err
		}
		return printResponse(cmd.Context(), resp)
	},
}

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <url>",
	Short: "GET a URL via the verb helper",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ec, fetcher, err := newExecContext()
		if err != nil {
			return err
		}
		defer ec.Close()
		resp, err := fetcher.Get(cmd.Context(), ec, args[0])
		if err != nil {
			return err
		}
		return printResponse(cmd.Context(), resp)
	},
}

// putCmd represents the put command
var putCmd = &cobra.Command{
	Use:   "put <url>",
	Short: "PUT a body to a URL via the verb helper",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ec, fetcher, err := newExecContext()
		if err != nil {
			return err
		}
		defer ec.Close()

		body := fetchBody
		if body == "-" {
			data, err := readAllStdin()
			if err != nil {
				return err
			}
			body = string(data)
		}
		resp, err := fetcher.Put(cmd.Context(), ec, args[0], body, nil)
		if err != nil {
			return err
		}
		return printResponse(cmd.Context(), resp)
	},
}

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <url>",
	Short: "DELETE a URL via the verb helper",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ec, fetcher, err := newExecContext()
		if err != nil {
			return err
		}
		defer ec.Close()
		resp, err := fetcher.Delete(cmd.Context(), ec, args[0])
		if err != nil {
			return err
		}
		return printResponse(cmd.Context(), resp)
	},
}

func readAllStdin() ([]byte, error) {
	return io.ReadAll(os.Stdin)
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchMethod, "method", "X", "", "Request method.")
	fetchCmd.Flags().StringVarP(&fetchBody, "data", "d", "", "Request body.")
	fetchCmd.Flags().StringArrayVarP(&fetchHeaders, "header", "H", nil, "Request header, Name: Value. Repeatable.")
	fetchCmd.Flags().StringVar(&fetchRedirect, "redirect", "", "Redirect mode: follow or manual.")
	fetchCmd.Flags().StringVar(&fetchCache, "cache", "", "Cache mode: no-store or no-cache.")
	fetchCmd.Flags().StringVar(&fetchInit, "init", "", "Request initializer as a JSON object.")
	fetchCmd.Flags().BoolVarP(&fetchShowHdrs, "include-headers", "i", false, "Print response headers.")
	putCmd.Flags().StringVarP(&fetchBody, "data", "d", "", "Request body, or - for stdin.")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(deleteCmd)
}
