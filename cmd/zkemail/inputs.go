package zkemail

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mynextid/email-zk/circuit"
	"github.com/mynextid/email-zk/commitment"
	"github.com/mynextid/email-zk/dkim"
	"github.com/spf13/cobra"
)

type inputsConfig struct {
	emailFile   string
	accountCode string
	regexFile   string
	outputFile  string
	archiveURL  string

	emailParams circuit.EmailCircuitParams
	regexParams circuit.RegexCircuitParams
}

// regexFileConfig is the on-disk layout of a --regexes file.
type regexFileConfig struct {
	DecomposedRegexes []circuit.DecomposedRegex `json:"decomposedRegexes"`
	ExternalInputs    []circuit.ExternalInput   `json:"externalInputs"`
}

func NewInputsCmd() *cobra.Command {
	cfg := &inputsConfig{}

	cmd := &cobra.Command{
		Use:   "inputs",
		Short: "Generate circuit inputs from a DKIM-signed email",
		Long:  `Parse and verify a raw email, then print the circuit inputs as JSON. With --regexes the inputs are driven by a decomposed-regex config instead of the email-auth layout.`,
		Example: `  # Email-auth circuit inputs
  zkemail inputs -e email.eml --account-code 0x01eb...

  # Generic inputs from a decomposed-regex config
  zkemail inputs -e email.eml --regexes regexes.json --prover-eth-address 0x9401...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInputs(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.emailFile, "email", "e", "", "Path to the raw email file")
	cmd.Flags().StringVar(&cfg.accountCode, "account-code", "", "Account code as 0x-prefixed hex (email-auth mode)")
	cmd.Flags().StringVar(&cfg.regexFile, "regexes", "", "Path to a decomposed-regex JSON config (generic mode)")
	cmd.Flags().StringVarP(&cfg.outputFile, "output", "o", "", "Write inputs to a file instead of stdout")
	cmd.Flags().StringVar(&cfg.archiveURL, "archive-url", "", "zk.email key archive base URL (empty = DNS lookup only)")

	cmd.Flags().BoolVar(&cfg.emailParams.IgnoreBodyHashCheck, "ignore-body-hash", false, "Skip the body hash check and drop body signals")
	cmd.Flags().IntVar(&cfg.emailParams.MaxHeaderLength, "max-header", 0, "Header capacity in bytes (0 = default)")
	cmd.Flags().IntVar(&cfg.emailParams.MaxBodyLength, "max-body", 0, "Body capacity in bytes (0 = default)")
	cmd.Flags().StringVar(&cfg.emailParams.ShaPrecomputeSelector, "sha-precompute-selector", "", "Regex selecting where the body SHA is precomputed")

	cmd.Flags().BoolVar(&cfg.regexParams.RemoveSoftLineBreaks, "remove-soft-line-breaks", false, "Strip quoted-printable soft line breaks (generic mode)")
	cmd.Flags().StringVar(&cfg.regexParams.ProverETHAddress, "prover-eth-address", "", "Prover's Ethereum address (generic mode)")

	cobra.CheckErr(cmd.MarkFlagRequired("email"))

	return cmd
}

func runInputs(ctx context.Context, cfg *inputsConfig) error {
	raw, err := os.ReadFile(cfg.emailFile)
	if err != nil {
		return fmt.Errorf("failed to read email: %w", err)
	}

	var resolver dkim.Resolver
	if cfg.archiveURL != "" {
		resolver = dkim.NewFallbackResolver(
			dkim.NewArchiveResolver(cfg.archiveURL, nil),
			dkim.NewDNSResolver(),
		)
	} else {
		resolver = dkim.NewDNSResolver()
	}

	var inputs []byte
	if cfg.regexFile != "" {
		regexRaw, err := os.ReadFile(cfg.regexFile)
		if err != nil {
			return fmt.Errorf("failed to read regex config: %w", err)
		}
		var regexCfg regexFileConfig
		if err := json.Unmarshal(regexRaw, &regexCfg); err != nil {
			return fmt.Errorf("invalid regex config: %w", err)
		}

		cfg.regexParams.MaxHeaderLength = cfg.emailParams.MaxHeaderLength
		if cfg.regexParams.MaxHeaderLength == 0 {
			cfg.regexParams.MaxHeaderLength = circuit.MaxHeaderPaddedBytes
		}
		cfg.regexParams.MaxBodyLength = cfg.emailParams.MaxBodyLength
		if cfg.regexParams.MaxBodyLength == 0 {
			cfg.regexParams.MaxBodyLength = circuit.MaxBodyPaddedBytes
		}
		cfg.regexParams.IgnoreBodyHashCheck = cfg.emailParams.IgnoreBodyHashCheck
		cfg.regexParams.ShaPrecomputeSelector = cfg.emailParams.ShaPrecomputeSelector

		m, err := circuit.GenerateCircuitInputsWithDecomposedRegexes(
			ctx, string(raw), regexCfg.DecomposedRegexes, regexCfg.ExternalInputs, cfg.regexParams, resolver)
		if err != nil {
			return fmt.Errorf("failed to generate inputs: %w", err)
		}
		inputs, err = json.MarshalIndent(m, "", "  ")
		if err != nil {
			return err
		}
	} else {
		if cfg.accountCode == "" {
			return fmt.Errorf("--account-code is required unless --regexes is given")
		}
		code, err := commitment.AccountCodeFromHex(cfg.accountCode)
		if err != nil {
			return fmt.Errorf("invalid account code: %w", err)
		}
		inputs, err = circuit.GenerateEmailCircuitInput(ctx, string(raw), &code, &cfg.emailParams, resolver)
		if err != nil {
			return fmt.Errorf("failed to generate inputs: %w", err)
		}
	}

	if cfg.outputFile != "" {
		if err := os.WriteFile(cfg.outputFile, inputs, 0644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	fmt.Println(string(inputs))
	return nil
}
