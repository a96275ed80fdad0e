// -----------------------------------------------------------------------
// Quota Guard - per-tenant knowledge-base size enforcement
// -----------------------------------------------------------------------

package quota

import (
	"context"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// defaultTierLimits are the built-in knowledge-base size caps in MB.
// A tiers file from configuration overrides them.
var defaultTierLimits = map[string]float64{
	"starter":      10,
	"professional": 100,
	"business":     500,
	"enterprise":   2000,
}

// Guard enforces tenant quotas by delegating the atomic reserve to storage
type Guard struct {
	logger      arbor.ILogger
	tenants     interfaces.TenantStorage
	tierLimits  map[string]float64
	defaultTier string
}

// NewGuard creates the quota guard, loading tier overrides when configured
func NewGuard(logger arbor.ILogger, tenants interfaces.TenantStorage, config *common.QuotaConfig) (interfaces.QuotaService, error) {
	limits := make(map[string]float64, len(defaultTierLimits))
	for tier, limit := range defaultTierLimits {
		limits[tier] = limit
	}

	if config.TiersFile != "" {
		loaded, err := loadTiersFile(config.TiersFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load tiers file: %w", err)
		}
		for tier, limit := range loaded {
			limits[tier] = limit
		}
		logger.Info().Str("file", config.TiersFile).Int("tiers", len(loaded)).Msg("Loaded tier limit overrides")
	}

	defaultTier := config.DefaultTier
	if defaultTier == "" {
		defaultTier = "starter"
	}
	if _, ok := limits[defaultTier]; !ok {
		return nil, fmt.Errorf("default tier %q has no limit defined", defaultTier)
	}

	return &Guard{
		logger:      logger,
		tenants:     tenants,
		tierLimits:  limits,
		defaultTier: defaultTier,
	}, nil
}

// TryReserve atomically reserves deltaMB of quota for a tenant. A rejection
// returns a QuotaExceededError, which callers treat as terminal.
func (g *Guard) TryReserve(ctx context.Context, tenantID string, deltaMB float64) (*interfaces.Reservation, error) {
	tenant, err := g.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	tier := g.defaultTier
	if tenant != nil && tenant.Tier != "" {
		tier = tenant.Tier
	}

	if tenant != nil && tenant.Exempt {
		g.logger.Debug().Str("tenant_id", tenantID).Msg("Tenant exempt from quota enforcement")
		// Still track usage so an un-exempted tenant starts from accurate numbers
		_, current, err := g.tenants.AtomicCheckAndUpdateSize(ctx, tenantID, deltaMB, float64(1<<40))
		if err != nil {
			return nil, err
		}
		return &interfaces.Reservation{Approved: true, CurrentSizeMB: current}, nil
	}

	limit, ok := g.tierLimits[tier]
	if !ok {
		g.logger.Warn().Str("tenant_id", tenantID).Str("tier", tier).Msg("Unknown tier, falling back to default")
		limit = g.tierLimits[g.defaultTier]
		tier = g.defaultTier
	}

	approved, current, err := g.tenants.AtomicCheckAndUpdateSize(ctx, tenantID, deltaMB, limit)
	if err != nil {
		return nil, err
	}

	if !approved {
		g.logger.Info().
			Str("tenant_id", tenantID).
			Str("tier", tier).
			Str("attempted_mb", fmt.Sprintf("%.2f", deltaMB)).
			Str("current_mb", fmt.Sprintf("%.2f", current)).
			Str("limit_mb", fmt.Sprintf("%.0f", limit)).
			Msg("Quota reservation rejected")

		return &interfaces.Reservation{Approved: false, CurrentSizeMB: current, LimitMB: limit},
			&models.QuotaExceededError{
				TenantID:    tenantID,
				Tier:        tier,
				AttemptedMB: deltaMB,
				CurrentMB:   current,
				LimitMB:     limit,
			}
	}

	return &interfaces.Reservation{Approved: true, CurrentSizeMB: current, LimitMB: limit}, nil
}

// ContentSizeMB converts a content byte length to megabytes
func ContentSizeMB(contentLength int) float64 {
	return float64(contentLength) / (1024 * 1024)
}

// tiersFile is the YAML shape for tier limit overrides
type tiersFile struct {
	Tiers []models.TierLimit `yaml:"tiers"`
}

func loadTiersFile(path string) (map[string]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var parsed tiersFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}

	limits := make(map[string]float64, len(parsed.Tiers))
	for _, tier := range parsed.Tiers {
		if tier.Name == "" || tier.KnowledgeBaseSizeMB <= 0 {
			return nil, fmt.Errorf("invalid tier entry: %+v", tier)
		}
		limits[tier.Name] = tier.KnowledgeBaseSizeMB
	}
	return limits, nil
}
