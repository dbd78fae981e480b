package settings

import (
	_ "embed"
	"fmt"
	"strconv"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Provider string

const (
	ProviderCanned Provider = "canned"
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
)

var ErrUnknownProvider = errors.New("unknown provider")

// Settings select and configure the backend answering questions.
type Settings struct {
	Provider   Provider `mapstructure:"provider" yaml:"provider" json:"provider"`
	Model      string   `mapstructure:"model" yaml:"model,omitempty" json:"model,omitempty"`
	Host       string   `mapstructure:"host" yaml:"host,omitempty" json:"host,omitempty"`
	BaseURL    string   `mapstructure:"base-url" yaml:"base-url,omitempty" json:"base-url,omitempty"`
	APIKey     string   `mapstructure:"api-key" yaml:"-" json:"-"`
	Stream     bool     `mapstructure:"stream" yaml:"stream" json:"stream"`
	MockAnswer string   `mapstructure:"mock-answer" yaml:"mock-answer,omitempty" json:"mock-answer,omitempty"`
	Encoding   string   `mapstructure:"encoding" yaml:"encoding,omitempty" json:"encoding,omitempty"`
}

type flagDefinition struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Default string `yaml:"default"`
	Help    string `yaml:"help"`
}

//go:embed "flags/settings.yaml"
var settingsFlagsYAML []byte

func loadFlagDefinitions() ([]flagDefinition, error) {
	var doc struct {
		Flags []flagDefinition `yaml:"flags"`
	}
	if err := yaml.Unmarshal(settingsFlagsYAML, &doc); err != nil {
		return nil, errors.Wrap(err, "could not parse settings flags")
	}
	return doc.Flags, nil
}

// AddFlags registers one flag per setting on fs.
func AddFlags(fs *pflag.FlagSet) error {
	defs, err := loadFlagDefinitions()
	if err != nil {
		return err
	}
	for _, d := range defs {
		switch d.Type {
		case "string":
			fs.String(d.Name, d.Default, d.Help)
		case "bool":
			b := false
			if d.Default != "" {
				b, err = strconv.ParseBool(d.Default)
				if err != nil {
					return errors.Wrapf(err, "invalid default for flag %s", d.Name)
				}
			}
			fs.Bool(d.Name, b, d.Help)
		default:
			return errors.Errorf("flag %s has unsupported type %s", d.Name, d.Type)
		}
	}
	return nil
}

// SetDefaults registers the default of every setting with v, so that
// configurations without flags (tests, library users) see them too.
func SetDefaults(v *viper.Viper) error {
	defs, err := loadFlagDefinitions()
	if err != nil {
		return err
	}
	for _, d := range defs {
		if d.Default == "" {
			continue
		}
		v.SetDefault(d.Name, d.Default)
	}
	return nil
}

func NewSettings() *Settings {
	return &Settings{
		Provider: ProviderCanned,
		Host:     "http://localhost:11434",
		Stream:   true,
	}
}

// FromViper reads the settings out of v, after its defaults were set.
func FromViper(v *viper.Viper) (*Settings, error) {
	if err := SetDefaults(v); err != nil {
		return nil, err
	}
	ret := NewSettings()
	if err := v.Unmarshal(ret); err != nil {
		return nil, errors.Wrap(err, "could not decode settings")
	}
	return ret, nil
}

func (s *Settings) Validate() error {
	switch s.Provider {
	case ProviderCanned:
		return nil
	case ProviderOpenAI, ProviderOllama:
		if s.Model == "" {
			return errors.Errorf("provider %s needs a model", s.Provider)
		}
		return nil
	default:
		return errors.Wrapf(ErrUnknownProvider, "%q", string(s.Provider))
	}
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

func (s *Settings) String() string {
	if s.Model == "" {
		return string(s.Provider)
	}
	return fmt.Sprintf("%s/%s", s.Provider, s.Model)
}
