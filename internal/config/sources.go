package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Source kinds select the adapter that handles a record.
const (
	KindStatic  = "static"
	KindFeed    = "feed"
	KindDynamic = "dynamic"
)

// Source is one immutable extraction recipe. Fields are kind-specific;
// Validate reports the ones a kind requires.
type Source struct {
	Name     string `yaml:"name" validate:"required"`
	Kind     string `yaml:"kind" validate:"oneof=static feed dynamic"`
	URL      string `yaml:"url" validate:"required_unless=Kind dynamic,omitempty,url"`
	BaseURL  string `yaml:"base_url" validate:"omitempty,url"`
	Language string `yaml:"language" validate:"omitempty,oneof=ru kz"`
	Limit    int    `yaml:"limit" validate:"gte=0,lte=50"`
	Disabled bool   `yaml:"disabled"`

	// static
	ContainerSelector string `yaml:"container_selector" validate:"required_if=Kind static"`
	TitleSelector     string `yaml:"title_selector" validate:"required_if=Kind static"`
	LinkSelector      string `yaml:"link_selector"`

	// dynamic
	SeedURL       string            `yaml:"seed_url" validate:"required_if=Kind dynamic,omitempty,url"`
	APIMatch      string            `yaml:"api_match" validate:"required_if=Kind dynamic"`
	APIURL        string            `yaml:"api_url" validate:"required_if=Kind dynamic"`
	Project       string            `yaml:"project"`
	TokenHeader   string            `yaml:"token_header"`
	HashParam     string            `yaml:"hash_param"`
	ReplayHeaders []string          `yaml:"replay_headers"`
	ItemsPath     string            `yaml:"items_path"`
	TitleField    string            `yaml:"title_field"`
	LinkField     string            `yaml:"link_field"`
	LinkTemplate  string            `yaml:"link_template"`
	DateField     string            `yaml:"date_field"`
	ExtraHeaders  map[string]string `yaml:"extra_headers"`
}

// SourcesConfig is the YAML catalogue structure:
//
//	sources:
//	  - name: Kapital
//	    kind: static
//	    url: https://kapital.kz/tourism
type SourcesConfig struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads the source catalogue from a YAML file and drops
// disabled records.
func LoadSources(path string) ([]Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources file: %w", err)
	}
	defer f.Close()

	var cfg SourcesConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode sources file: %w", err)
	}

	active := make([]Source, 0, len(cfg.Sources))
	var errs []error
	seen := make(map[string]struct{}, len(cfg.Sources))
	for i := range cfg.Sources {
		src := cfg.Sources[i].withDefaults()
		if src.Disabled {
			continue
		}
		if err := src.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("source #%d (%s): %w", i+1, src.Name, err))
			continue
		}
		if _, dup := seen[src.Name]; dup {
			errs = append(errs, fmt.Errorf("source #%d: duplicate name %q", i+1, src.Name))
			continue
		}
		seen[src.Name] = struct{}{}
		active = append(active, src)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return active, nil
}

func (s Source) withDefaults() Source {
	s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
	if s.Kind == "" {
		s.Kind = KindStatic
	}
	if s.Limit <= 0 {
		s.Limit = 5
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	s.Language = strings.ToLower(s.Language)
	if s.Kind == KindDynamic {
		if s.TokenHeader == "" {
			s.TokenHeader = "Authorization"
		}
		if s.TitleField == "" {
			s.TitleField = "title"
		}
	}
	return s
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the record carries what its adapter needs.
func (s Source) Validate() error {
	if err := validate.Struct(s); err != nil {
		return err
	}
	if s.Kind == KindDynamic && s.LinkField == "" && s.LinkTemplate == "" {
		return errors.New("dynamic source needs link_field or link_template")
	}
	return nil
}
