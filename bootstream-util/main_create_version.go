package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/canonical/bootstream/shared/cmd"
	"github.com/canonical/bootstream/shared/ops"
	"github.com/canonical/bootstream/shared/stream"
)

type cmdCreateVersion struct {
	global *cmdGlobal
	sign   signFlags

	flagDryRun bool
}

// versionManifest is the YAML file the build pipeline hands over for each
// built product/version: the owning product file, the product identity and
// attributes, and the named items with precomputed hashes.
type versionManifest struct {
	ContentID  string                  `yaml:"content_id"`
	DataType   string                  `yaml:"datatype,omitempty"`
	ProductID  string                  `yaml:"product_id"`
	Attributes map[string]string       `yaml:"attributes,omitempty"`
	Version    string                  `yaml:"version"`
	Items      map[string]manifestItem `yaml:"items"`
}

type manifestItem struct {
	FileType string `yaml:"ftype"`
	Path     string `yaml:"path"`
	SHA256   string `yaml:"sha256"`
	Size     int64  `yaml:"size"`
}

func (c *cmdCreateVersion) command() *cobra.Command {
	cobraCmd := &cobra.Command{}
	cobraCmd.Use = "create-version <data_d> <manifest.yaml>"
	cobraCmd.Short = "Record a newly built product version in the stream"
	cobraCmd.Long = cmd.FormatSection("Description", `Record a newly built product version in the stream

The manifest names the product file, product and version plus every item
(kernel, initrd, squashfs, ...) with its path relative to <data_d> and
the checksum and size computed by the build. Each item is re-verified
against the tree before anything is written. An existing version record
is wholly replaced, so rebuilding a version never accretes stale items.`)

	cobraCmd.RunE = c.run
	cobraCmd.Flags().BoolVarP(&c.flagDryRun, "dry-run", "n", false, "Only report what would be done")
	c.sign.register(cobraCmd)

	return cobraCmd
}

func (c *cmdCreateVersion) run(cobraCmd *cobra.Command, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("Missing required arguments")
	}

	req, err := loadManifest(args[1])
	if err != nil {
		return err
	}

	s, err := stream.LoadOrInit(args[0])
	if err != nil {
		return err
	}

	signer, err := c.sign.signer()
	if err != nil {
		return err
	}

	engine := ops.NewEngine(s, signer)

	commit := !c.flagDryRun
	res, err := engine.CreateVersion(req, commit)
	if err != nil {
		return err
	}

	printResult(res, commit)
	return nil
}

func loadManifest(path string) (ops.CreateRequest, error) {
	req := ops.CreateRequest{}

	data, err := os.ReadFile(path)
	if err != nil {
		return req, err
	}

	manifest := versionManifest{}
	err = yaml.Unmarshal(data, &manifest)
	if err != nil {
		return req, fmt.Errorf("Can't parse manifest %q: %w", path, err)
	}

	req.ContentID = manifest.ContentID
	req.DataType = manifest.DataType
	req.ProductID = manifest.ProductID
	req.Attributes = manifest.Attributes
	req.VersionID = manifest.Version
	req.Items = make(map[string]stream.Item, len(manifest.Items))

	for name, item := range manifest.Items {
		fileType := item.FileType
		if fileType == "" {
			fileType = name
		}

		req.Items[name] = stream.Item{
			FileType: fileType,
			Path:     item.Path,
			SHA256:   item.SHA256,
			Size:     item.Size,
		}
	}

	return req, nil
}
