package cmd

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/formsurge/internal/formschema"
	"github.com/xkilldash9x/formsurge/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newInspectCmd() *cobra.Command {
	var format string

	inspectCmd := &cobra.Command{
		Use:   "inspect <FORM_URL>",
		Short: "Extract (or load the cached) form structure and print it",
		Args: cobra.MatchAll(cobra.ExactArgs(1), func(_ *cobra.Command, args []string) error {
			_, err := validateFormURL(args[0])
			return err
		}),
		RunE: func(cmd *cobra.Command, args []string) error {
			formURL, err := validateFormURL(args[0])
			if err != nil {
				return err
			}
			src := schemaSource{}
			if src.refresh, err = cmd.Flags().GetBool("refresh"); err != nil {
				return err
			}
			if src.static, err = cmd.Flags().GetBool("static"); err != nil {
				return err
			}

			ctx := cmd.Context()
			cfg := configFrom(ctx)
			logger := observability.GetLogger()

			client, err := newHTTPClient(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to build HTTP client: %w", err)
			}
			defer client.CloseIdleConnections()

			// Progress lines go to stderr so stdout stays machine-readable.
			schema, err := acquireSchema(ctx, cmd.ErrOrStderr(), cfg, formURL, src, client, logger)
			if err != nil {
				return err
			}
			out, err := renderSchema(schema, format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	inspectCmd.Flags().StringVarP(&format, "format", "f", "json", "output format (json or yaml)")
	return inspectCmd
}

func renderSchema(schema *formschema.Schema, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "json":
		b, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema: %w", err)
		}
		return append(b, '\n'), nil
	case "yaml", "yml":
		b, err := yaml.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrUsage, format)
	}
}
