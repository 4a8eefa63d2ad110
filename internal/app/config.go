package app

import (
	"io"

	"gopkg.in/yaml.v3"
)

// ShowConfig prints the resolved configuration as YAML with secrets masked.
func (a *App) ShowConfig(out io.Writer) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(a.Config.Redacted()); err != nil {
		return err
	}
	return enc.Close()
}
