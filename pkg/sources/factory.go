package sources

import (
	"github.com/go-go-golems/quanda/pkg/conversation"
	"github.com/go-go-golems/quanda/pkg/settings"
	"github.com/go-go-golems/quanda/pkg/sources/canned"
	"github.com/go-go-golems/quanda/pkg/sources/ollama"
	"github.com/go-go-golems/quanda/pkg/sources/openai"
	"github.com/pkg/errors"
)

// NewGenerator builds the generator answering questions for the configured
// provider.
func NewGenerator(s *settings.Settings) (conversation.Generator, error) {
	settings_ := s.Clone()
	if err := settings_.Validate(); err != nil {
		return nil, err
	}

	switch settings_.Provider {
	case settings.ProviderCanned:
		return canned.NewGenerator(settings_.MockAnswer), nil

	case settings.ProviderOpenAI:
		client := openai.NewClient(settings_.APIKey, settings_.BaseURL)
		return openai.NewGenerator(client, settings_.Model, openai.WithStream(settings_.Stream)), nil

	case settings.ProviderOllama:
		client, err := ollama.NewClient(settings_.Host)
		if err != nil {
			return nil, err
		}
		return ollama.NewGenerator(client, settings_.Model, settings_.Stream), nil
	}

	return nil, errors.Wrapf(settings.ErrUnknownProvider, "%q", string(settings_.Provider))
}
