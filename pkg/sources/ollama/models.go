package ollama

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/jmorganca/ollama/api"
	"github.com/mb0/glob"
	"github.com/pkg/errors"
)

// Model is one entry of a models configuration file.
type Model struct {
	LocalName        string `json:"localname"`
	Model            string `json:"model"`
	Size             int64  `json:"size"`
	Provider         string `json:"provider"`
	InternalProvider string `json:"internalprovider"`
	Stream           bool   `json:"stream"`
}

type ModelsConfig struct {
	Models []Model `json:"models"`
}

// ListModels returns the models installed on the server, optionally filtered
// by a glob pattern on their name.
func ListModels(ctx context.Context, client *api.Client, pattern string) ([]Model, error) {
	resp, err := client.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not list ollama models")
	}

	ret := []Model{}
	for _, m := range resp.Models {
		if pattern != "" {
			matching, err := glob.Match(pattern, m.Name)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid model pattern %s", pattern)
			}
			if !matching {
				continue
			}
		}
		ret = append(ret, Model{
			LocalName:        m.Name + " with Ollama",
			Model:            m.Name,
			Size:             m.Size,
			Provider:         "ollama",
			InternalProvider: "ollama",
			Stream:           true,
		})
	}
	return ret, nil
}

func WriteModelsConfig(filename string, models []Model) error {
	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "could not create directory for %s", filename)
		}
	}
	b, err := json.MarshalIndent(ModelsConfig{Models: models}, "", "    ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, b, 0644); err != nil {
		return errors.Wrapf(err, "could not write models config %s", filename)
	}
	return nil
}
