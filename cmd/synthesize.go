package cmd

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic-cli/internal/browser/dom"
	"github.com/xkilldash9x/mimic-cli/internal/observability"
	"github.com/xkilldash9x/mimic-cli/internal/selector"
)

func newSynthesizeCmd() *cobra.Command {
	var (
		htmlPath string
		target   string
		asJSON   bool
	)

	synthCmd := &cobra.Command{
		Use:   "synthesize --html page.html --target <css>",
		Short: "Print the most stable selector for an element of a saved HTML page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			f, err := os.Open(htmlPath)
			if err != nil {
				return fmt.Errorf("failed to open page: %w", err)
			}
			defer f.Close()

			page, err := dom.NewPage(f, dom.Config{
				TestIDAttribute: cfg.Synthesis().TestIDAttribute,
				Logger:          logger,
			})
			if err != nil {
				return fmt.Errorf("failed to parse page: %w", err)
			}

			opts, verifierOpts := synthesisOptions(cfg.Synthesis())
			verifier := selector.NewVerifier(page, logger, verifierOpts)
			synth := selector.NewSynthesizer(page, verifier, logger, opts)
			res, err := synth.Resolve(ctx, selector.TargetLocator(selector.CSS(target)))
			if err != nil {
				return fmt.Errorf("synthesis failed for %q: %w", target, err)
			}
			logger.Debug("Synthesized selector", zap.String("strategy", res.Strategy))

			if asJSON {
				out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(res.Descriptor, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), selector.String(res.Descriptor))
			return nil
		},
	}

	synthCmd.Flags().StringVar(&htmlPath, "html", "", "Saved HTML page to synthesize against.")
	synthCmd.Flags().StringVar(&target, "target", "", "CSS selector of the target element.")
	synthCmd.Flags().BoolVar(&asJSON, "json", false, "Print the descriptor as JSON.")
	_ = synthCmd.MarkFlagRequired("html")
	_ = synthCmd.MarkFlagRequired("target")
	return synthCmd
}
