package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canonical/bootstream/shared/cmd"
	"github.com/canonical/bootstream/shared/ops"
	"github.com/canonical/bootstream/shared/stream"
)

type cmdVerify struct {
	global *cmdGlobal
	sign   signFlags

	flagArtifacts bool
}

func (c *cmdVerify) command() *cobra.Command {
	cobraCmd := &cobra.Command{}
	cobraCmd.Use = "verify <data_d>"
	cobraCmd.Short = "Check the integrity of a published stream"
	cobraCmd.Long = cmd.FormatSection("Description", `Check the integrity of a published stream

Verifies every document's detached and self-contained signatures against
its current content without modifying anything. With --artifacts every
referenced artifact file is also re-hashed and compared against the
recorded checksum and size.`)

	cobraCmd.RunE = c.run
	cobraCmd.Flags().BoolVar(&c.flagArtifacts, "artifacts", false, "Also verify artifact checksums and sizes")
	c.sign.register(cobraCmd)

	return cobraCmd
}

func (c *cmdVerify) run(cobraCmd *cobra.Command, args []string) error {
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

	findings, err := engine.VerifyStream(c.flagArtifacts)
	if err != nil {
		return err
	}

	if len(findings) > 0 {
		for _, finding := range findings {
			fmt.Printf("  %s\n", finding)
		}

		return fmt.Errorf("Stream verification failed with %d problem(s)", len(findings))
	}

	fmt.Println("Stream verified OK")
	return nil
}
