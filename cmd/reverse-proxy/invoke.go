package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Dermot10/reverse-proxy/internal/observability"
	"github.com/Dermot10/reverse-proxy/internal/proxy"
	"github.com/Dermot10/reverse-proxy/internal/server"
	"github.com/Dermot10/reverse-proxy/internal/transform"
)

type invokeOptions struct {
	eventFile string
	method    string
	path      string
	data      string
	headers   []string
	params    []string
	title     string
	replaces  []string
}

func newInvokeCmd(root *rootOptions) *cobra.Command {
	opts := &invokeOptions{}

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Run a single request through the pipeline",
		Long: `Run a single request through the pipeline and print the response envelope.

The request is either a JSON event, read from a file or from stdin with
--event -, or built from flags.

Examples:
  # GET the page behind /google and retitle it
  reverse-proxy invoke --path /google --title "Proxied"

  # POST a JSON body
  reverse-proxy invoke --method POST --path /jsonplaceholder \
    --header Content-Type=application/json \
    --data '{"userId": 1, "title": "foo", "body": "bar"}'

  # Run an event document
  echo '{"httpMethod": "GET", "path": "/google"}' | reverse-proxy invoke --event -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInvoke(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.eventFile, "event", "e", "", "JSON event file, - for stdin")
	cmd.Flags().StringVarP(&opts.method, "method", "X", "GET", "HTTP method")
	cmd.Flags().StringVar(&opts.path, "path", "", "route path, e.g. /google")
	cmd.Flags().StringVarP(&opts.data, "data", "d", "", "raw request body")
	cmd.Flags().StringArrayVarP(&opts.headers, "header", "H", nil, "request header as name=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.params, "param", nil, "query parameter as name=value (repeatable)")
	cmd.Flags().StringVar(&opts.title, "title", "", "replace the page title")
	cmd.Flags().StringArrayVar(&opts.replaces, "replace", nil, "text replacement as old=new (repeatable, applied in order)")
	return cmd
}

func runInvoke(cmd *cobra.Command, root *rootOptions, opts *invokeOptions) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if root.logLevel == "" {
		cfg.Logging.Level = "warn"
	}
	cfg.Logging.Output = "stderr"

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	_, p, err := newPipeline(cfg, logger, nil, observability.NoopTracer())
	if err != nil {
		return err
	}

	var resp *proxy.ParsedResponse
	if opts.eventFile != "" {
		data, readErr := readEvent(cmd.InOrStdin(), opts.eventFile)
		if readErr != nil {
			return readErr
		}
		resp, err = p.RunEventJSON(cmd.Context(), data)
	} else {
		desc, transformOpts, buildErr := opts.descriptor()
		if buildErr != nil {
			return buildErr
		}
		resp, err = p.Run(cmd.Context(), desc, transformOpts)
	}

	out := cmd.OutOrStdout()
	if err != nil {
		_, body := server.NewErrorBody(err)
		_ = writeJSON(out, body)
		return fmt.Errorf("invocation failed: %w", err)
	}
	return writeJSON(out, server.NewEnvelope(resp))
}

func readEvent(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(name) //nolint:gosec // operator-supplied event path
	if err != nil {
		return nil, fmt.Errorf("failed to read event file %s: %w", name, err)
	}
	return data, nil
}

// descriptor builds a request from the individual flags.
func (o *invokeOptions) descriptor() (*proxy.Descriptor, *transform.Options, error) {
	headers, err := parsePairs("header", o.headers)
	if err != nil {
		return nil, nil, err
	}
	params, err := parsePairs("param", o.params)
	if err != nil {
		return nil, nil, err
	}

	desc := &proxy.Descriptor{
		Method:  o.method,
		Path:    o.path,
		Params:  params,
		Headers: headers,
	}
	if o.data != "" {
		desc.Body = o.data
	}

	transformOpts := &transform.Options{PageTitle: o.title}
	for _, r := range o.replaces {
		old, repl, ok := strings.Cut(r, "=")
		if !ok || old == "" {
			return nil, nil, fmt.Errorf("invalid --replace %q: expected old=new", r)
		}
		transformOpts.TextReplacements = append(transformOpts.TextReplacements, transform.Replacement{Old: old, New: repl})
	}
	if transformOpts.IsEmpty() {
		transformOpts = nil
	}
	return desc, transformOpts, nil
}

func parsePairs(flag string, pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --%s %q: expected name=value", flag, pair)
		}
		out[strings.TrimSpace(name)] = value
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
