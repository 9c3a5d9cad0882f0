package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/canonical/bootstream/shared/cmd"
	"github.com/canonical/bootstream/shared/logger"
	"github.com/canonical/bootstream/shared/ops"
	"github.com/canonical/bootstream/shared/sign"
	"github.com/canonical/bootstream/shared/version"
)

type cmdGlobal struct {
	flagVersion bool
	flagHelp    bool
	flagVerbose bool
	flagDebug   bool
}

// signFlags are the signing options shared by every mutating subcommand.
type signFlags struct {
	flagNoSign  bool
	flagKeyring string
	flagSignKey string
	flagSigner  string
	flagKeyFile string
}

func (f *signFlags) register(c *cobra.Command) {
	c.Flags().BoolVarP(&f.flagNoSign, "no-sign", "u", false, "Do not re-sign files")
	c.Flags().StringVar(&f.flagKeyring, "keyring", "", "Keyring used to verify existing signatures before mutating")
	c.Flags().StringVar(&f.flagSignKey, "sign-key", "", "Key id to sign with (gpg backend)")
	c.Flags().StringVar(&f.flagSigner, "signer", "gpg", "Signing backend (gpg or ed25519)")
	c.Flags().StringVar(&f.flagKeyFile, "key", "", "Key file (ed25519 backend)")
}

// signer builds the configured signing capability, or nil with --no-sign.
func (f *signFlags) signer() (sign.Signer, error) {
	if f.flagNoSign {
		return nil, nil
	}

	switch f.flagSigner {
	case "gpg":
		return &sign.GPG{KeyID: f.flagSignKey, Keyring: f.flagKeyring}, nil
	case "ed25519":
		if f.flagKeyFile == "" {
			return nil, fmt.Errorf("%w: the ed25519 backend needs --key", sign.ErrKeyringUnavailable)
		}

		return sign.LoadEd25519(f.flagKeyFile)
	}

	return nil, fmt.Errorf("Unknown signing backend %q", f.flagSigner)
}

func main() {
	globalCmd := cmdGlobal{}

	app := &cobra.Command{}
	app.Use = "bootstream-util"
	app.Short = "Manage versioned, signed boot image streams"
	app.Long = cmd.FormatSection("Description", `Manage versioned, signed boot image streams

This tool maintains the simplestreams metadata tree that network-boot
clients use to discover boot image artifacts: it records newly built
versions, copies or removes versions across many products at once, and
keeps the detached (.gpg) and self-contained (.sjson) signed forms of
every document in lockstep with its content.`)
	app.SilenceUsage = true
	app.CompletionOptions = cobra.CompletionOptions{DisableDefaultCmd: true}

	app.PersistentFlags().BoolVar(&globalCmd.flagVersion, "version", false, "Print version number")
	app.PersistentFlags().BoolVarP(&globalCmd.flagHelp, "help", "h", false, "Print help")
	app.PersistentFlags().BoolVarP(&globalCmd.flagVerbose, "verbose", "v", false, "Show all information messages")
	app.PersistentFlags().BoolVarP(&globalCmd.flagDebug, "debug", "d", false, "Show all debug messages")

	app.PersistentPreRun = func(c *cobra.Command, args []string) {
		logger.InitLogger(globalCmd.flagVerbose, globalCmd.flagDebug)
	}

	app.SetVersionTemplate("{{.Version}}\n")
	app.Version = version.Version

	createVersionCmd := cmdCreateVersion{global: &globalCmd}
	app.AddCommand(createVersionCmd.command())

	copyVersionCmd := cmdCopyVersion{global: &globalCmd}
	app.AddCommand(copyVersionCmd.command())

	removeVersionCmd := cmdRemoveVersion{global: &globalCmd}
	app.AddCommand(removeVersionCmd.command())

	signCmd := cmdSign{global: &globalCmd}
	app.AddCommand(signCmd.command())

	verifyCmd := cmdVerify{global: &globalCmd}
	app.AddCommand(verifyCmd.command())

	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// printResult renders the decision list and, in commit mode, the files
// that were actually rewritten.
func printResult(res *ops.Result, committed bool) {
	rows := res.Rows()
	if len(rows) > 0 {
		cmd.RenderTable(os.Stdout, []string{"PRODUCT", "VERSION", "ACTION", "DETAIL"}, rows)
	}

	if !committed {
		fmt.Printf("%d change(s) planned (dry-run, nothing written)\n", res.Mutations())
		return
	}

	fmt.Printf("%d change(s) applied\n", res.Mutations())
	for _, path := range res.Written {
		fmt.Printf("  wrote %s\n", path)
	}
}
