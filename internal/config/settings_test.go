package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog/repricer/internal/category"
	"catalog/repricer/internal/domain"
	"catalog/repricer/internal/pricing"
)

func TestLoadSettings_Defaults(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.True(t, s.Targets.UpdateDiscounted)
	assert.True(t, s.Targets.UpdateSell)
	assert.False(t, s.Targets.UpdateMarket)
	assert.True(t, s.Mappings.IncludeZeroStock)
	assert.Equal(t, domain.BuyPriceSource, s.BasePriceSource)
	assert.Equal(t, "ceiling", s.Rounding.Mode)
	assert.InDelta(t, 10.0, s.Rounding.Step, 1e-9)
	assert.True(t, s.Rounding.EndsWith99)
	assert.InDelta(t, 75.0, s.Limits.MinDiscountedPrice, 1e-9)
	assert.InDelta(t, 1000.0, s.Limits.MaxDiscountedPrice, 1e-9)
	assert.Equal(t, 5000, s.Output.MaxRowsPerFile)
	assert.Equal(t, []string{";", ">", "|", ","}, s.CategoryExtraction.Delimiters)
	require.Len(t, s.ProfitSegments, 3)
	assert.Equal(t, "PERCENT", s.ProfitSegments[2].Type)
	assert.NotNil(t, s.Categories.Mapping)

	cfg := s.PricingConfig()
	assert.Len(t, cfg.Segments, 3)
	assert.InDelta(t, 0.5, cfg.Discounts.Resolve("anything"), 1e-9)
	assert.Equal(t, pricing.Ceiling, cfg.Rounding.Mode)
	assert.False(t, cfg.GlobalMinEnabled)
	assert.InDelta(t, 200.0, cfg.GlobalMinProfit, 1e-9)
}

func TestLoadSettings_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"mappings": {"category_col": "KATEGORILER", "buy_price_col": "ALIS"},
		"categories": {"default_discount": 30, "mapping": {"Fantezi": 40, "İç Giyim": "25"}},
		"rounding": {"mode": "floor"},
		"profit_segments": [
			{"min": 0, "max": 100, "type": "TL", "value": 10},
			{"min": "bozuk", "max": 200, "type": "TL", "value": 20},
			{"min": 100, "max": 500, "type": "yüzde", "value": 10, "extra_added": 5}
		],
		"enable_global_min": true,
		"selected_categories": ["Giyim > Alt Giyim"]
	}`), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "KATEGORILER", s.Mappings.CategoryColumn)
	assert.Equal(t, "ALIS", s.Mappings.BuyPriceColumn)
	assert.True(t, s.Mappings.IncludeZeroStock, "nested defaults survive a partial section")
	assert.Equal(t, "floor", s.Rounding.Mode)
	assert.InDelta(t, 10.0, s.Rounding.Step, 1e-9)
	assert.Equal(t, []string{"Giyim > Alt Giyim"}, s.SelectedCategories)
	assert.Contains(t, s.Categories.Mapping, "Fantezi")
	assert.Contains(t, s.Categories.Mapping, "İç Giyim")

	cfg := s.PricingConfig()
	assert.Equal(t, pricing.Floor, cfg.Rounding.Mode)
	assert.True(t, cfg.GlobalMinEnabled)
	assert.InDelta(t, 0.40, cfg.Discounts.Resolve("Fantezi"), 1e-9)
	assert.InDelta(t, 0.25, cfg.Discounts.Resolve("İç Giyim"), 1e-9)
	assert.InDelta(t, 0.30, cfg.Discounts.Resolve("fantezi"), 1e-9)
	require.Len(t, cfg.Segments, 2)
	assert.Equal(t, pricing.Percent, cfg.Segments[1].Kind)
	assert.InDelta(t, 5.0, cfg.Segments[1].Extra, 1e-9)
}

func TestLoadSettings_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"mappings": `), 0o644))

	_, err := LoadSettings(path)
	assert.Error(t, err)
}

func TestSettings_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")

	s, err := LoadSettings(path)
	require.NoError(t, err)
	s.Categories.Mapping["Aksesuar"] = 15.0
	s.SelectedCategories = []string{"Aksesuar"}
	s.Mappings.StockColumn = "STOK"
	require.NoError(t, s.Save(path))

	loaded, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "STOK", loaded.Mappings.StockColumn)
	assert.Equal(t, []string{"Aksesuar"}, loaded.SelectedCategories)
	assert.InDelta(t, 0.15, loaded.PricingConfig().Discounts.Resolve("Aksesuar"), 1e-9)
}

func TestPricingConfig_DefaultDelimiters(t *testing.T) {
	s := &Settings{}
	assert.Equal(t, category.ExtractionDelimiters, s.PricingConfig().Delimiters)
}

func TestOutputSettings_FileName(t *testing.T) {
	o := OutputSettings{FilenameTemplate: "output_part_{n}.xlsx"}
	assert.Equal(t, "output_part_3.xlsx", o.FileName(3))

	o.OutputDir = "out"
	assert.Equal(t, filepath.Join("out", "output_part_1.xlsx"), o.FileName(1))
}
