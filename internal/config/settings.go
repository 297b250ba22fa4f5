package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Sequence codes issued by the numbering service.
const (
	SequenceBoqProject     = "boq.project"
	SequenceBoqSubcontract = "boq.subcontract"
	SequenceCertificate    = "boq.payment.certificate"
	SequenceVariation      = "boq.variation"
	SequenceSaleOrder      = "sale.order"
	SequencePurchaseOrder  = "purchase.order"
	SequenceInvoice        = "account.move"
)

// Settings are the operator-tunable BOQ defaults.
type Settings struct {
	DefaultRetentionRule string                    `mapstructure:"defaultRetentionRule"`
	DefaultCurrency      string                    `mapstructure:"defaultCurrency"`
	Sequences            map[string]SequenceFormat `mapstructure:"sequences"`
}

type SequenceFormat struct {
	Prefix  string `mapstructure:"prefix"`
	Padding int    `mapstructure:"padding"`
}

func DefaultSettings() Settings {
	return Settings{
		DefaultRetentionRule: "RET 5%",
		DefaultCurrency:      "IDR",
		Sequences: map[string]SequenceFormat{
			SequenceBoqProject:     {Prefix: "BOQ/", Padding: 5},
			SequenceBoqSubcontract: {Prefix: "SBOQ/", Padding: 5},
			SequenceCertificate:    {Prefix: "PC/", Padding: 5},
			SequenceVariation:      {Prefix: "VO/", Padding: 5},
			SequenceSaleOrder:      {Prefix: "SO/", Padding: 5},
			SequencePurchaseOrder:  {Prefix: "PO/", Padding: 5},
			SequenceInvoice:        {Prefix: "INV/", Padding: 5},
		},
	}
}

// SequenceFormat returns the configured format for code, falling back to an
// upper-cased code prefix.
func (s Settings) SequenceFormat(code string) SequenceFormat {
	if format, ok := s.Sequences[code]; ok && format.Padding > 0 {
		return format
	}
	return SequenceFormat{Prefix: strings.ToUpper(code) + "/", Padding: 5}
}

type SettingsHolder struct {
	current atomic.Value // holds Settings
}

// NewStaticSettingsHolder returns a holder that never reloads.
func NewStaticSettingsHolder(s Settings) *SettingsHolder {
	holder := &SettingsHolder{}
	holder.current.Store(s)
	return holder
}

func NewSettingsHolder() (*SettingsHolder, error) {
	// Sequence codes contain dots, so nested keys use "::".
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))

	v.SetConfigName("boq")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/boqledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BOQ")
	v.SetEnvKeyReplacer(strings.NewReplacer("::", "_"))
	v.AutomaticEnv()

	defaults := DefaultSettings()
	v.SetDefault("boq::defaultRetentionRule", defaults.DefaultRetentionRule)
	v.SetDefault("boq::defaultCurrency", defaults.DefaultCurrency)
	v.SetDefault("boq::sequences", defaults.Sequences)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeSettings(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticSettingsHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeSettings(v)
		if err != nil {
			log.Printf("[boq-settings] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[boq-settings] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *SettingsHolder) Get() Settings {
	return h.current.Load().(Settings)
}

func decodeSettings(v *viper.Viper) (Settings, error) {
	var cfg Settings
	if err := v.UnmarshalKey("boq", &cfg); err != nil {
		return Settings{}, err
	}
	if err := validateSettings(cfg); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

func validateSettings(cfg Settings) error {
	if strings.TrimSpace(cfg.DefaultRetentionRule) == "" {
		return errors.New("boq.defaultRetentionRule cannot be empty")
	}
	if strings.TrimSpace(cfg.DefaultCurrency) == "" {
		return errors.New("boq.defaultCurrency cannot be empty")
	}
	for code, format := range cfg.Sequences {
		if format.Padding < 0 {
			return errors.New("boq.sequences." + code + ".padding cannot be negative")
		}
	}
	return nil
}
