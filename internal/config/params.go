package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed params.yaml
var defaultParamsYAML []byte

// Binarization methods
const (
	BinarizeAdaptive = "adaptive"
	BinarizeFixed    = "fixed"
)

// FallbackLanguage is used for languages without a parameter table
const FallbackLanguage = "eng"

// PreprocessParams is the fully resolved parameter set for one (language, document type) pair
type PreprocessParams struct {
	Binarization    string  `yaml:"binarization_method" json:"binarizationMethod"`
	Threshold       int     `yaml:"threshold" json:"threshold"`
	BlockSize       int     `yaml:"block_size" json:"blockSize"`
	CValue          float64 `yaml:"c_value" json:"cValue"`
	BlurKernel      int     `yaml:"blur_kernel" json:"blurKernel"`
	DenoiseH        float64 `yaml:"denoise_h" json:"denoiseH"`
	EdgeEnhancement float64 `yaml:"edge_enhancement" json:"edgeEnhancement"`
	Contrast        float64 `yaml:"contrast" json:"contrast"`
	Sharpness       float64 `yaml:"sharpness" json:"sharpness"`
}

// ParamOverride holds only the keys a table entry sets
type ParamOverride struct {
	Binarization    *string  `yaml:"binarization_method"`
	Threshold       *int     `yaml:"threshold"`
	BlockSize       *int     `yaml:"block_size"`
	CValue          *float64 `yaml:"c_value"`
	BlurKernel      *int     `yaml:"blur_kernel"`
	DenoiseH        *float64 `yaml:"denoise_h"`
	EdgeEnhancement *float64 `yaml:"edge_enhancement"`
	Contrast        *float64 `yaml:"contrast"`
	Sharpness       *float64 `yaml:"sharpness"`
}

// Apply returns p with every key set in o replaced
func (o ParamOverride) Apply(p PreprocessParams) PreprocessParams {
	if o.Binarization != nil {
		p.Binarization = *o.Binarization
	}
	if o.Threshold != nil {
		p.Threshold = *o.Threshold
	}
	if o.BlockSize != nil {
		p.BlockSize = *o.BlockSize
	}
	if o.CValue != nil {
		p.CValue = *o.CValue
	}
	if o.BlurKernel != nil {
		p.BlurKernel = *o.BlurKernel
	}
	if o.DenoiseH != nil {
		p.DenoiseH = *o.DenoiseH
	}
	if o.EdgeEnhancement != nil {
		p.EdgeEnhancement = *o.EdgeEnhancement
	}
	if o.Contrast != nil {
		p.Contrast = *o.Contrast
	}
	if o.Sharpness != nil {
		p.Sharpness = *o.Sharpness
	}
	return p
}

// merge layers other on top of o key by key
func (o ParamOverride) merge(other ParamOverride) ParamOverride {
	if other.Binarization != nil {
		o.Binarization = other.Binarization
	}
	if other.Threshold != nil {
		o.Threshold = other.Threshold
	}
	if other.BlockSize != nil {
		o.BlockSize = other.BlockSize
	}
	if other.CValue != nil {
		o.CValue = other.CValue
	}
	if other.BlurKernel != nil {
		o.BlurKernel = other.BlurKernel
	}
	if other.DenoiseH != nil {
		o.DenoiseH = other.DenoiseH
	}
	if other.EdgeEnhancement != nil {
		o.EdgeEnhancement = other.EdgeEnhancement
	}
	if other.Contrast != nil {
		o.Contrast = other.Contrast
	}
	if other.Sharpness != nil {
		o.Sharpness = other.Sharpness
	}
	return o
}

type paramFile struct {
	Languages     map[string]ParamOverride `yaml:"languages"`
	DocumentTypes map[string]ParamOverride `yaml:"document_types"`
}

// ParamTable is the resolved lookup table. Every (language, document type)
// combination is computed when the table is loaded, so Lookup never merges.
type ParamTable struct {
	resolved map[string]map[string]PreprocessParams
}

// LoadParamTable parses the embedded defaults and, when path is not empty,
// layers the YAML file at path on top of them.
func LoadParamTable(path string) (*ParamTable, error) {
	var defaults paramFile
	if err := yaml.Unmarshal(defaultParamsYAML, &defaults); err != nil {
		return nil, fmt.Errorf("failed to parse embedded params: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read params file %s: %w", path, err)
		}
		var custom paramFile
		if err := yaml.Unmarshal(data, &custom); err != nil {
			return nil, fmt.Errorf("failed to parse params file %s: %w", path, err)
		}
		defaults = layer(defaults, custom)
	}

	return resolve(defaults)
}

// ParseParamTable builds a table from YAML bytes on top of the embedded defaults
func ParseParamTable(data []byte) (*ParamTable, error) {
	var defaults, custom paramFile
	if err := yaml.Unmarshal(defaultParamsYAML, &defaults); err != nil {
		return nil, fmt.Errorf("failed to parse embedded params: %w", err)
	}
	if err := yaml.Unmarshal(data, &custom); err != nil {
		return nil, fmt.Errorf("failed to parse params: %w", err)
	}
	return resolve(layer(defaults, custom))
}

func layer(base, top paramFile) paramFile {
	if base.Languages == nil {
		base.Languages = map[string]ParamOverride{}
	}
	if base.DocumentTypes == nil {
		base.DocumentTypes = map[string]ParamOverride{}
	}
	for lang, o := range top.Languages {
		base.Languages[lang] = base.Languages[lang].merge(o)
	}
	for dt, o := range top.DocumentTypes {
		base.DocumentTypes[dt] = base.DocumentTypes[dt].merge(o)
	}
	return base
}

func resolve(f paramFile) (*ParamTable, error) {
	if _, ok := f.Languages[FallbackLanguage]; !ok {
		return nil, fmt.Errorf("params table has no %q entry", FallbackLanguage)
	}

	table := &ParamTable{resolved: make(map[string]map[string]PreprocessParams, len(f.Languages))}
	for lang, lo := range f.Languages {
		langParams := lo.Apply(PreprocessParams{Binarization: BinarizeAdaptive})
		if err := langParams.Validate(); err != nil {
			return nil, fmt.Errorf("language %s: %w", lang, err)
		}
		byType := map[string]PreprocessParams{"": langParams}
		for dt, do := range f.DocumentTypes {
			p := do.Apply(langParams)
			if err := p.Validate(); err != nil {
				return nil, fmt.Errorf("language %s, document type %s: %w", lang, dt, err)
			}
			byType[dt] = p
		}
		table.resolved[lang] = byType
	}
	return table, nil
}

// Lookup returns parameters for a language and optional document type.
// Unknown languages use the eng table; unknown document types use the language defaults.
func (t *ParamTable) Lookup(language, documentType string) PreprocessParams {
	byType, ok := t.resolved[language]
	if !ok {
		byType = t.resolved[FallbackLanguage]
	}
	if p, ok := byType[documentType]; ok {
		return p
	}
	return byType[""]
}

// Languages lists languages with a dedicated table
func (t *ParamTable) Languages() []string {
	langs := make([]string, 0, len(t.resolved))
	for l := range t.resolved {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// DocumentTypes lists the known document type presets
func (t *ParamTable) DocumentTypes() []string {
	var types []string
	for dt := range t.resolved[FallbackLanguage] {
		if dt != "" {
			types = append(types, dt)
		}
	}
	sort.Strings(types)
	return types
}

// Validate checks a resolved parameter set
func (p PreprocessParams) Validate() error {
	if p.Binarization != BinarizeAdaptive && p.Binarization != BinarizeFixed {
		return fmt.Errorf("binarization_method must be %q or %q, got %q", BinarizeAdaptive, BinarizeFixed, p.Binarization)
	}
	if p.Threshold < 0 || p.Threshold > 255 {
		return fmt.Errorf("threshold must be between 0 and 255, got %d", p.Threshold)
	}
	if p.BlockSize < 3 {
		return fmt.Errorf("block_size must be at least 3, got %d", p.BlockSize)
	}
	if p.BlurKernel < 0 {
		return fmt.Errorf("blur_kernel must not be negative, got %d", p.BlurKernel)
	}
	if p.DenoiseH < 0 || p.Contrast < 0 || p.Sharpness < 0 || p.EdgeEnhancement < 0 {
		return fmt.Errorf("strength parameters must not be negative")
	}
	return nil
}
