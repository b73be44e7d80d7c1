package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"catalog/repricer/internal/category"
	"catalog/repricer/internal/domain"
	"catalog/repricer/internal/pricing"
)

// Settings is the user editable pricing document.
type Settings struct {
	Mappings           domain.ColumnMappings `mapstructure:"mappings" json:"mappings"`
	Targets            domain.Targets        `mapstructure:"targets" json:"targets"`
	Categories         CategorySettings      `mapstructure:"categories" json:"categories"`
	ProfitSegments     []SegmentSettings     `mapstructure:"profit_segments" json:"profit_segments"`
	GlobalMinProfit    float64               `mapstructure:"global_min_profit" json:"global_min_profit"`
	EnableGlobalMin    bool                  `mapstructure:"enable_global_min" json:"enable_global_min"`
	BasePriceSource    string                `mapstructure:"base_price_source" json:"base_price_source"`
	Rounding           RoundingSettings      `mapstructure:"rounding" json:"rounding"`
	Limits             LimitSettings         `mapstructure:"limits" json:"limits"`
	Output             OutputSettings        `mapstructure:"output" json:"output"`
	CategoryExtraction ExtractionSettings    `mapstructure:"category_extraction" json:"category_extraction"`
	SelectedCategories []string              `mapstructure:"selected_categories" json:"selected_categories"`
}

// CategorySettings keeps raw values so a single bad entry does not reject
// the whole document.
type CategorySettings struct {
	DefaultDiscount any            `mapstructure:"default_discount" json:"default_discount"`
	Mapping         map[string]any `mapstructure:"mapping" json:"mapping"`
}

type SegmentSettings struct {
	Min        any    `mapstructure:"min" json:"min"`
	Max        any    `mapstructure:"max" json:"max"`
	Type       string `mapstructure:"type" json:"type"`
	Value      any    `mapstructure:"value" json:"value"`
	ExtraAdded any    `mapstructure:"extra_added" json:"extra_added,omitempty"`
	ProfitMin  any    `mapstructure:"profit_min" json:"profit_min,omitempty"`
	ProfitMax  any    `mapstructure:"profit_max" json:"profit_max,omitempty"`
}

type RoundingSettings struct {
	Mode       string  `mapstructure:"mode" json:"mode"`
	Step       float64 `mapstructure:"step" json:"step"`
	EndsWith99 bool    `mapstructure:"ends_with_99" json:"ends_with_99"`
}

type LimitSettings struct {
	MinDiscountedPrice float64 `mapstructure:"min_discounted_price" json:"min_discounted_price"`
	MaxDiscountedPrice float64 `mapstructure:"max_discounted_price" json:"max_discounted_price"`
	MaxIncreaseTL      float64 `mapstructure:"max_increase_tl" json:"max_increase_tl"`
	MaxIncreasePercent float64 `mapstructure:"max_increase_percent" json:"max_increase_percent"`
}

type OutputSettings struct {
	MaxRowsPerFile   int    `mapstructure:"max_rows_per_file" json:"max_rows_per_file"`
	OutputDir        string `mapstructure:"output_dir" json:"output_dir"`
	FilenameTemplate string `mapstructure:"filename_template" json:"filename_template"`
}

// FileName renders the name of the n-th output part (1-based).
func (o OutputSettings) FileName(n int) string {
	name := strings.ReplaceAll(o.FilenameTemplate, "{n}", fmt.Sprint(n))
	if o.OutputDir == "" {
		return name
	}
	return filepath.Join(o.OutputDir, name)
}

type ExtractionSettings struct {
	Mode       string   `mapstructure:"mode" json:"mode"`
	Delimiters []string `mapstructure:"delimiters" json:"delimiters"`
}

// LoadSettings reads the settings document at path on top of the defaults.
// A missing file yields the defaults.
func LoadSettings(path string) (*Settings, error) {
	v := viper.New()
	setSettingsDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("json")

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading settings file: %w", err)
		}
		found = false
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unable to decode settings: %w", err)
	}

	// viper folds map keys to lower case; category names are matched exactly.
	if found {
		mapping, err := readCategoryMapping(path)
		if err != nil {
			return nil, err
		}
		if mapping != nil {
			s.Categories.Mapping = mapping
		}
	}
	if s.Categories.Mapping == nil {
		s.Categories.Mapping = map[string]any{}
	}

	return &s, nil
}

func readCategoryMapping(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading settings file: %w", err)
	}

	var doc struct {
		Categories struct {
			Mapping map[string]any `json:"mapping"`
		} `json:"categories"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unable to decode category mapping: %w", err)
	}
	return doc.Categories.Mapping, nil
}

// Save writes the settings to path as indented JSON.
func (s *Settings) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return fmt.Errorf("unable to encode settings: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create settings directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing settings file: %w", err)
	}
	return nil
}

// PricingConfig turns the document into the read only pricing configuration.
// Segments that cannot be read are left out.
func (s *Settings) PricingConfig() *pricing.Config {
	segments := make([]pricing.Segment, 0, len(s.ProfitSegments))
	for _, raw := range s.ProfitSegments {
		if seg, ok := pricing.NewSegment(raw.Min, raw.Max, raw.Type, raw.Value, raw.ExtraAdded); ok {
			segments = append(segments, seg)
		}
	}

	delimiters := s.CategoryExtraction.Delimiters
	if len(delimiters) == 0 {
		delimiters = category.ExtractionDelimiters
	}

	return &pricing.Config{
		Columns:          s.Mappings,
		BasePriceSource:  s.BasePriceSource,
		Delimiters:       delimiters,
		Discounts:        pricing.NewDiscountTable(s.Categories.DefaultDiscount, s.Categories.Mapping),
		Segments:         segments,
		GlobalMinEnabled: s.EnableGlobalMin,
		GlobalMinProfit:  s.GlobalMinProfit,
		Rounding: pricing.RoundingConfig{
			Mode:       pricing.ParseRoundingMode(s.Rounding.Mode),
			Step:       s.Rounding.Step,
			EndsWith99: s.Rounding.EndsWith99,
		},
		Limits: pricing.Limits{
			MinDiscountedPrice: s.Limits.MinDiscountedPrice,
			MaxDiscountedPrice: s.Limits.MaxDiscountedPrice,
		},
	}
}

func setSettingsDefaults(v *viper.Viper) {
	for _, key := range []string{
		"stock_code_col", "product_name_col", "category_col",
		"buy_price_col", "sell_price_col", "discounted_price_col", "market_price_col",
		"variant_col", "variant_value_col", "stock_col",
	} {
		v.SetDefault("mappings."+key, "")
	}
	v.SetDefault("mappings.is_variant_mode", false)
	v.SetDefault("mappings.show_unique_variant", false)
	v.SetDefault("mappings.no_category_mode", false)
	v.SetDefault("mappings.include_zero_stock", true)

	v.SetDefault("targets.update_discounted", true)
	v.SetDefault("targets.update_sell", true)
	v.SetDefault("targets.update_market", false)

	v.SetDefault("categories.default_discount", 50.0)
	v.SetDefault("categories.mapping", map[string]any{})

	v.SetDefault("profit_segments", []map[string]any{
		{"min": 0, "max": 499, "type": "TL", "value": 200, "profit_min": 0, "profit_max": 0},
		{"min": 500, "max": 999, "type": "TL", "value": 300, "profit_min": 0, "profit_max": 0},
		{"min": 1000, "max": 999999, "type": "PERCENT", "value": 30, "profit_min": 0, "profit_max": 0},
	})
	v.SetDefault("global_min_profit", 200.0)
	v.SetDefault("enable_global_min", false)
	v.SetDefault("base_price_source", domain.BuyPriceSource)

	v.SetDefault("rounding.mode", "ceiling")
	v.SetDefault("rounding.step", 10)
	v.SetDefault("rounding.ends_with_99", true)

	v.SetDefault("limits.min_discounted_price", 75.0)
	v.SetDefault("limits.max_discounted_price", 1000.0)
	v.SetDefault("limits.max_increase_tl", 0)
	v.SetDefault("limits.max_increase_percent", 0)

	v.SetDefault("output.max_rows_per_file", 5000)
	v.SetDefault("output.output_dir", "")
	v.SetDefault("output.filename_template", "output_part_{n}.xlsx")

	v.SetDefault("category_extraction.mode", "first_delimiter")
	v.SetDefault("category_extraction.delimiters", []string{";", ">", "|", ","})

	v.SetDefault("selected_categories", []string{})
}
