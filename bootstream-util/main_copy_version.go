package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canonical/bootstream/shared/cmd"
	"github.com/canonical/bootstream/shared/filter"
	"github.com/canonical/bootstream/shared/ops"
	"github.com/canonical/bootstream/shared/stream"
)

type cmdCopyVersion struct {
	global *cmdGlobal
	sign   signFlags

	flagDryRun bool
}

func (c *cmdCopyVersion) command() *cobra.Command {
	cobraCmd := &cobra.Command{}
	cobraCmd.Use = "copy-version <data_d> <from_version> <to_version> [filters...]"
	cobraCmd.Short = "Copy a version of matching products to a new version"
	cobraCmd.Long = cmd.FormatSection("Description", `Copy a version of matching products to a new version

For every product matching the filters that has <from_version>, a deep
copy of its version record is inserted under <to_version>. Products
already holding <to_version> are skipped, never overwritten. Filters are
of the form field=value (exact) or field~pattern (regular expression).`)

	cobraCmd.RunE = c.run
	cobraCmd.Flags().BoolVarP(&c.flagDryRun, "dry-run", "n", false, "Only report what would be done")
	c.sign.register(cobraCmd)

	return cobraCmd
}

func (c *cmdCopyVersion) run(cobraCmd *cobra.Command, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("Missing required arguments")
	}

	filters, err := filter.Parse(args[3:])
	if err != nil {
		return err
	}

	s, err := stream.Load(args[0])
	if err != nil {
		return err
	}

	signer, err := c.sign.signer()
	if err != nil {
		return err
	}

	engine := ops.NewEngine(s, signer)

	commit := !c.flagDryRun
	if commit && c.sign.flagKeyring != "" {
		err = engine.Preflight()
		if err != nil {
			return err
		}
	}

	res, err := engine.CopyVersion(args[1], args[2], filters, commit)
	if err != nil {
		return err
	}

	printResult(res, commit)
	return nil
}
