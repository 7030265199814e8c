package stripe

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// CatalogHolder serves the current bundle catalog. The catalog can be
// replaced at runtime by editing catalog.yml; webhooks always revalidate
// against whatever Get returns at that moment.
type CatalogHolder struct {
	current atomic.Value // holds Catalog
}

type bundleEntry struct {
	PriceID     string  `mapstructure:"price_id"`
	Credits     float64 `mapstructure:"credits"`
	AmountCents int64   `mapstructure:"amount_cents"`
	Currency    string  `mapstructure:"currency"`
}

func NewCatalogHolder(log *zap.Logger) (*CatalogHolder, error) {
	logger := log.Named("recharge.catalog")
	v := viper.New()

	v.SetConfigName("catalog")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/stemforge/config")
	v.AddConfigPath("/etc/stemforge")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STEMFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &CatalogHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(DefaultCatalog())
		return holder, nil
	}

	catalog, err := catalogFromConfig(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(catalog)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := catalogFromConfig(v)
		if err != nil {
			logger.Warn("invalid catalog ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		logger.Info("catalog reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// StaticCatalog wraps a fixed catalog, bypassing the config file. Used by
// tests and by callers that manage the catalog themselves.
func StaticCatalog(catalog Catalog) *CatalogHolder {
	holder := &CatalogHolder{}
	holder.current.Store(catalog)
	return holder
}

func (h *CatalogHolder) Get() Catalog {
	return h.current.Load().(Catalog)
}

func catalogFromConfig(v *viper.Viper) (Catalog, error) {
	var entries []bundleEntry
	if err := v.UnmarshalKey("bundles", &entries); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.New("bundles cannot be empty")
	}

	catalog := make(Catalog, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry.PriceID) == "" {
			return nil, errors.New("bundle price_id cannot be empty")
		}
		if entry.Credits <= 0 || entry.AmountCents <= 0 {
			return nil, errors.New("bundle credits and amount_cents must be positive")
		}
		currency := entry.Currency
		if currency == "" {
			currency = "usd"
		}
		catalog[entry.PriceID] = Bundle{
			PriceID:     entry.PriceID,
			Credits:     entry.Credits,
			AmountCents: entry.AmountCents,
			Currency:    currency,
		}
	}
	return catalog, nil
}
