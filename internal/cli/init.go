package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/boards/internal/paths"
)

// configFile is the subset of config.yaml that init pins down.
type configFile struct {
	Backend string `yaml:"backend"`
	DataDir string `yaml:"data_dir,omitempty"`
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize board storage",
		Long: "Create the configuration and data directories, record the resolved backend\n" +
			"and data directory in config.yaml, and apply the storage schema.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := pinConfig(paths.ConfigFile(a.settings.ConfigDir), a.settings.Backend.Backend, a.settings.Backend.DataDir); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			err := a.withSession(cmd, func(_ context.Context, _ *session) error { return nil })
			if err != nil {
				return fmt.Errorf("initialize storage: %w", err)
			}
			return a.emit(cmd.OutOrStdout(), map[string]string{
				"config_dir": a.settings.ConfigDir,
				"data_dir":   a.settings.Backend.DataDir,
				"backend":    a.settings.Backend.Backend,
			}, func(w io.Writer) {
				fmt.Fprintf(w, "Initialized %s storage in %s\n", a.settings.Backend.Backend, a.settings.Backend.DataDir)
			})
		},
	}
}

// pinConfig sets backend and data_dir in config.yaml, keeping every other
// key and comment already in the file.
func pinConfig(path, backend, dataDir string) error {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		var fresh yaml.Node
		if err := fresh.Encode(configFile{Backend: backend, DataDir: dataDir}); err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{&fresh}}
	}
	mapping := doc.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return fmt.Errorf("%s: top level is not a mapping", path)
	}
	setScalar(mapping, "backend", backend)
	setScalar(mapping, "data_dir", dataDir)

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}

func setScalar(mapping *yaml.Node, key, value string) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content[i+1].Kind = yaml.ScalarNode
			mapping.Content[i+1].Tag = "!!str"
			mapping.Content[i+1].Value = value
			return
		}
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value},
	)
}
