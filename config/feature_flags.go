package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Flag names.
const (
	FeatureNotifyOfferMail      = "notify.offer_mail"
	FeatureNotifyWithdrawalMail = "notify.withdrawal_mail"
	FeatureCatalogLiveLookup    = "catalog.live_lookup" // estimate against the live catalog
	FeatureCatalogCompare       = "catalog.compare"
)

var (
	ErrFeatureNotFound       = errors.New("feature not found")
	ErrInvalidRolloutPercent = errors.New("rollout percent must be 0-100")
)

type Feature struct {
	Name           string
	Description    string
	Enabled        bool
	RolloutPercent int // 0-100
}

// FeatureContext identifies who a flag is evaluated for. A nil context
// evaluates the flag globally.
type FeatureContext struct {
	StudentID string
	IsAdmin   bool
}

// FeatureFlags holds toggles with a percentage rollout. A student always
// lands in the same bucket for a given flag.
type FeatureFlags struct {
	mu        sync.RWMutex
	features  map[string]*Feature
	overrides map[string]map[string]bool // student -> flag -> enabled
}

var defaultFeatures = []Feature{
	{Name: FeatureNotifyOfferMail, Description: "Send an e-mail when a seat is offered"},
	{Name: FeatureNotifyWithdrawalMail, Description: "Send an e-mail when a lower wish is withdrawn"},
	{Name: FeatureCatalogLiveLookup, Description: "Estimate scores against the live open data catalog", Enabled: true, RolloutPercent: 100},
	{Name: FeatureCatalogCompare, Description: "Compare up to three programs", Enabled: true, RolloutPercent: 100},
}

// LoadFeatureFlags starts from the defaults and applies FEATURE_<NAME>
// variables, e.g. FEATURE_NOTIFY_OFFER_MAIL=true or FEATURE_CATALOG_COMPARE=25.
// Values that are neither a bool nor a percent are ignored.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:  make(map[string]*Feature, len(defaultFeatures)),
		overrides: make(map[string]map[string]bool),
	}
	for _, f := range defaultFeatures {
		f := f
		if raw := os.Getenv(envKey(f.Name)); raw != "" {
			if pct, ok := parseRollout(raw); ok {
				f.Enabled, f.RolloutPercent = pct > 0, pct
			}
		}
		ff.features[f.Name] = &f
	}
	return ff
}

// envKey maps "notify.offer_mail" to "FEATURE_NOTIFY_OFFER_MAIL".
func envKey(name string) string {
	return "FEATURE_" + strings.ToUpper(strings.ReplaceAll(name, ".", "_"))
}

func parseRollout(raw string) (int, bool) {
	if on, err := strconv.ParseBool(raw); err == nil {
		if on {
			return 100, true
		}
		return 0, true
	}
	pct, err := strconv.Atoi(raw)
	return pct, err == nil && pct >= 0 && pct <= 100
}

// IsEnabled resolves a flag. Order: per-student override, unknown flag
// (off), admin (on), disabled (off), rollout bucket.
func (ff *FeatureFlags) IsEnabled(name string, fc *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	var student string
	if fc != nil {
		student = fc.StudentID
	}
	if on, ok := ff.overrides[student][name]; ok && student != "" {
		return on
	}

	f, ok := ff.features[name]
	switch {
	case !ok:
		return false
	case fc != nil && fc.IsAdmin:
		return true
	case !f.Enabled:
		return false
	case f.RolloutPercent < 100 && student != "":
		return bucket(name, student) < uint64(f.RolloutPercent)
	}
	return f.RolloutPercent > 0
}

func bucket(flag, student string) uint64 {
	return xxhash.Sum64String(flag+"/"+student) % 100
}

func (ff *FeatureFlags) SetUserOverride(studentID, name string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.overrides[studentID] == nil {
		ff.overrides[studentID] = make(map[string]bool)
	}
	ff.overrides[studentID][name] = enabled
}

// SetRolloutPercent also enables the flag when percent > 0 and disables it
// at 0.
func (ff *FeatureFlags) SetRolloutPercent(name string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	f, ok := ff.features[name]
	if !ok {
		return ErrFeatureNotFound
	}
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}
	f.Enabled, f.RolloutPercent = percent > 0, percent
	return nil
}

func (ff *FeatureFlags) EnableFeature(name string) error  { return ff.SetRolloutPercent(name, 100) }
func (ff *FeatureFlags) DisableFeature(name string) error { return ff.SetRolloutPercent(name, 0) }

// GetAllFeatures returns copies.
func (ff *FeatureFlags) GetAllFeatures() map[string]Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make(map[string]Feature, len(ff.features))
	for name, f := range ff.features {
		out[name] = *f
	}
	return out
}
