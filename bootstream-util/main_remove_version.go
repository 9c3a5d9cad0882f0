package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canonical/bootstream/shared/cmd"
	"github.com/canonical/bootstream/shared/filter"
	"github.com/canonical/bootstream/shared/ops"
	"github.com/canonical/bootstream/shared/stream"
)

type cmdRemoveVersion struct {
	global *cmdGlobal
	sign   signFlags

	flagDryRun bool
}

func (c *cmdRemoveVersion) command() *cobra.Command {
	cobraCmd := &cobra.Command{}
	cobraCmd.Use = "remove-version <data_d> <version> [filters...]"
	cobraCmd.Short = "Remove a version from matching products"
	cobraCmd.Long = cmd.FormatSection("Description", `Remove a version from matching products

Deletes the version record from every product matching the filters.
Products without that version are reported and skipped. Artifact files
are not touched; only the metadata documents change.`)

	cobraCmd.RunE = c.run
	cobraCmd.Flags().BoolVarP(&c.flagDryRun, "dry-run", "n", false, "Only report what would be done")
	c.sign.register(cobraCmd)

	return cobraCmd
}

func (c *cmdRemoveVersion) run(cobraCmd *cobra.Command, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("Missing required arguments")
	}

	filters, err := filter.Parse(args[2:])
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

	res, err := engine.RemoveVersion(args[1], filters, commit)
	if err != nil {
		return err
	}

	printResult(res, commit)
	return nil
}
