package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canonical/bootstream/shared/cmd"
	"github.com/canonical/bootstream/shared/ops"
	"github.com/canonical/bootstream/shared/stream"
)

type cmdSign struct {
	global *cmdGlobal
	sign   signFlags
}

func (c *cmdSign) command() *cobra.Command {
	cobraCmd := &cobra.Command{}
	cobraCmd.Use = "sign <data_d>"
	cobraCmd.Short = "Regenerate the index and re-sign the stream"
	cobraCmd.Long = cmd.FormatSection("Description", `Regenerate the index and re-sign the stream

Rebuilds index.json from the product files on disk, then regenerates the
detached (.gpg) and self-contained (.sjson) signed forms of every
document. Product files are signed over their exact current bytes.`)

	cobraCmd.RunE = c.run
	c.sign.register(cobraCmd)

	return cobraCmd
}

func (c *cmdSign) run(cobraCmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("Missing required arguments")
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

	res, err := engine.SignStream()
	if err != nil {
		return err
	}

	for _, path := range res.Written {
		fmt.Printf("  wrote %s\n", path)
	}

	return nil
}
