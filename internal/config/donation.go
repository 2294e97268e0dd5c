package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// DonationConfig holds operator settings that can change without a restart.
type DonationConfig struct {
	ReceiptDelay       time.Duration `mapstructure:"receiptDelay"`
	ReceiptsEnabled    bool          `mapstructure:"receiptsEnabled"`
	ReceiptSenderName  string        `mapstructure:"receiptSenderName"`
	DefaultCurrency    string        `mapstructure:"defaultCurrency"`
	RejectOrphans      bool          `mapstructure:"rejectOrphans"`
	PaymentDescription string        `mapstructure:"paymentDescription"`
	ReturnURL          string        `mapstructure:"returnUrl"`
}

func DefaultDonationConfig() DonationConfig {
	return DonationConfig{
		ReceiptDelay:       time.Minute,
		ReceiptsEnabled:    true,
		ReceiptSenderName:  "Kudos Donations",
		DefaultCurrency:    "EUR",
		RejectOrphans:      false,
		PaymentDescription: "Donation",
		ReturnURL:          "",
	}
}

type DonationConfigHolder struct {
	current atomic.Value // holds DonationConfig
}

// NewStaticDonationConfigHolder returns a holder that never reloads.
func NewStaticDonationConfigHolder(cfg DonationConfig) *DonationConfigHolder {
	holder := &DonationConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewDonationConfigHolder() (*DonationConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("donation")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/kudos")
	v.AddConfigPath(".")

	v.SetEnvPrefix("KUDOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultDonationConfig()
	v.SetDefault("donation.receiptDelay", defaults.ReceiptDelay)
	v.SetDefault("donation.receiptsEnabled", defaults.ReceiptsEnabled)
	v.SetDefault("donation.receiptSenderName", defaults.ReceiptSenderName)
	v.SetDefault("donation.defaultCurrency", defaults.DefaultCurrency)
	v.SetDefault("donation.rejectOrphans", defaults.RejectOrphans)
	v.SetDefault("donation.paymentDescription", defaults.PaymentDescription)
	v.SetDefault("donation.returnUrl", defaults.ReturnURL)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	var cfg DonationConfig
	if err := v.UnmarshalKey("donation", &cfg); err != nil {
		return nil, err
	}
	if err := validateDonationConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticDonationConfigHolder(cfg)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated DonationConfig
		if err := v.UnmarshalKey("donation", &updated); err != nil {
			log.Printf("[donation-config] reload failed: %v", err)
			return
		}
		if err := validateDonationConfig(updated); err != nil {
			log.Printf("[donation-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[donation-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *DonationConfigHolder) Get() DonationConfig {
	if h == nil {
		return DefaultDonationConfig()
	}
	return h.current.Load().(DonationConfig)
}

func validateDonationConfig(cfg DonationConfig) error {
	if cfg.ReceiptDelay < 0 {
		return errors.New("donation.receiptDelay cannot be negative")
	}
	if len(strings.TrimSpace(cfg.DefaultCurrency)) != 3 {
		return errors.New("donation.defaultCurrency must be an ISO 4217 code")
	}
	return nil
}
