package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formsurge/internal/browser/stealth"
	"github.com/xkilldash9x/formsurge/internal/config"
	"github.com/xkilldash9x/formsurge/internal/formschema"
	"github.com/xkilldash9x/formsurge/internal/observability"
	"github.com/xkilldash9x/formsurge/internal/payload"
	"github.com/xkilldash9x/formsurge/internal/submitter"
	"github.com/xkilldash9x/formsurge/internal/synth"
)

// ErrDeclined is returned when the operator answers no at the confirmation prompt.
var ErrDeclined = errors.New("submission declined")

// confirmPrompt asks a yes/no question on the terminal. Replaced in tests.
var confirmPrompt = func(message string) (bool, error) {
	ok := false
	err := survey.AskOne(&survey.Confirm{Message: message, Default: false}, &ok)
	return ok, err
}

type submitOptions struct {
	schemaSource
	dryRun  bool
	confirm bool
}

func submitOptionsFromFlags(flags *pflag.FlagSet) (submitOptions, error) {
	var opts submitOptions
	var err error
	if opts.refresh, err = flags.GetBool("refresh"); err != nil {
		return opts, err
	}
	if opts.static, err = flags.GetBool("static"); err != nil {
		return opts, err
	}
	if opts.dryRun, err = flags.GetBool("dry-run"); err != nil {
		return opts, err
	}
	if opts.confirm, err = flags.GetBool("confirm"); err != nil {
		return opts, err
	}
	return opts, nil
}

// runSubmit acquires the schema for formURL and posts count responses to it.
func runSubmit(ctx context.Context, cmd *cobra.Command, cfg *config.Config, formURL string, count int, opts submitOptions) error {
	logger := observability.GetLogger()
	out := cmd.OutOrStdout()

	client, err := newHTTPClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build HTTP client: %w", err)
	}
	defer client.CloseIdleConnections()

	schema, err := acquireSchema(ctx, out, cfg, formURL, opts.schemaSource, client, logger)
	if err != nil {
		return err
	}
	printSchemaSummary(out, schema)

	builder := payload.NewBuilder(synth.NewSeeded(cfg.Submit.Seed))

	if opts.dryRun {
		for i := 1; i <= count; i++ {
			fmt.Fprintf(out, "[%d/%d] %s\n", i, count, builder.Build(schema).Encode())
		}
		return nil
	}

	if opts.confirm && count > 0 {
		ok, err := confirmPrompt(fmt.Sprintf("Submit %d responses to %s?", count, schema.SubmissionTarget))
		if err != nil {
			return fmt.Errorf("confirmation prompt failed: %w", err)
		}
		if !ok {
			return ErrDeclined
		}
	}

	fmt.Fprintf(out, "Submitting %d responses...\n", count)
	driver := submitter.New(client, builder, submitter.Options{
		MinDelay:       cfg.Submit.MinDelay,
		MaxDelay:       cfg.Submit.MaxDelay,
		MaxRate:        cfg.Submit.MaxRate,
		Seed:           cfg.Submit.Seed,
		UserAgent:      cfg.Browser.UserAgent,
		AcceptLanguage: stealth.DefaultPersona.AcceptLanguage(),
		Headers:        cfg.Network.Headers,
		OnResult:       func(r submitter.Result) { printResult(out, r) },
	}, logger)

	summary, err := driver.Run(ctx, schema, formURL, count)
	fmt.Fprintf(out, "Done. %d/%d submissions successful.\n", summary.Succeeded, count)
	if err != nil {
		return err
	}
	logger.Info("Run complete.",
		zap.String("run_id", summary.RunID),
		zap.Int("succeeded", summary.Succeeded),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return nil
}

func printResult(out io.Writer, r submitter.Result) {
	switch r.Status {
	case submitter.StatusSubmitted:
		fmt.Fprintf(out, "[%d/%d] submitted (HTTP %d)\n", r.Attempt, r.Total, r.HTTPStatus)
	case submitter.StatusRejected:
		fmt.Fprintf(out, "[%d/%d] returned %d\n", r.Attempt, r.Total, r.HTTPStatus)
	default:
		fmt.Fprintf(out, "[%d/%d] error: %v\n", r.Attempt, r.Total, r.Err)
	}
}

func printSchemaSummary(out io.Writer, schema *formschema.Schema) {
	counts := schema.CountByKind()
	fmt.Fprintf(out, "Found %d questions", len(schema.Questions))
	sep := " ("
	for _, k := range formschema.AllKinds() {
		if n := counts[k]; n > 0 {
			fmt.Fprintf(out, "%s%s: %d", sep, k, n)
			sep = ", "
		}
	}
	if sep == ", " {
		fmt.Fprint(out, ")")
	}
	fmt.Fprintln(out)
}
