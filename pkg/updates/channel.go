package updates

import (
	"strconv"
	"strings"

	"github.com/core-tools/hsu-launcher/pkg/apps"
	"github.com/core-tools/hsu-launcher/pkg/config"
	"github.com/core-tools/hsu-launcher/pkg/logging"
)

// Version is the three-part product version used for ordering. Unparsable
// components compare as zero so exotic version strings degrade instead of
// failing.
type Version struct {
	Year   int
	Minor  int
	Bugfix int
}

// ParseVersion splits a version string on dots and underscores into its
// three leading numeric components
func ParseVersion(value string) Version {
	components := strings.FieldsFunc(value, func(r rune) bool {
		return r == '.' || r == '_'
	})

	numbers := [3]int{}
	for i := 0; i < len(components) && i < 3; i++ {
		if n, err := strconv.Atoi(components[i]); err == nil {
			numbers[i] = n
		}
	}
	return Version{Year: numbers[0], Minor: numbers[1], Bugfix: numbers[2]}
}

// Compare orders two versions: -1, 0 or 1
func Compare(a, b Version) int {
	pairs := [3][2]int{{a.Year, b.Year}, {a.Minor, b.Minor}, {a.Bugfix, b.Bugfix}}
	for _, pair := range pairs {
		if pair[0] < pair[1] {
			return -1
		}
		if pair[0] > pair[1] {
			return 1
		}
	}
	return 0
}

// Resolver decides which update candidates a run config may be offered,
// honoring its channel and the vetted catalog
type Resolver struct {
	catalog *Catalog
	logger  logging.Logger
}

func NewResolver(catalog *Catalog, logger logging.Logger) *Resolver {
	return &Resolver{
		catalog: catalog,
		logger:  logger,
	}
}

// IsUpdateApplicable reports whether updates may be offered to a config at
// all. Trees owned by an external package manager update through that
// manager; a config on the unknown channel qualifies only when its
// installed version is on the vetted list.
func (r *Resolver) IsUpdateApplicable(rc *config.RunConfig, product string) bool {
	if apps.IsPackageManagerPath(rc.AppPath) {
		r.logger.Debugf("Updates not applicable, package manager tree, config: %s, path: %s", rc.Name, rc.AppPath)
		return false
	}

	switch rc.UpdateChannel {
	case config.UpdateChannelTested, config.UpdateChannelNotTested:
		return true
	default:
		return r.catalog.Contains(product, rc.LastVersion)
	}
}

// allowsVersion reports whether the config's channel admits a candidate
func (r *Resolver) allowsVersion(rc *config.RunConfig, product, version string) bool {
	if rc.UpdateChannel == config.UpdateChannelNotTested {
		return true
	}
	return r.catalog.Contains(product, version)
}

// LatestFrom picks the newest candidate the config's channel admits that is
// strictly newer than the installed version. The second return is false
// when nothing qualifies.
func (r *Resolver) LatestFrom(rc *config.RunConfig, product string, available []string) (string, bool) {
	if !r.IsUpdateApplicable(rc, product) {
		return "", false
	}

	installed := ParseVersion(rc.LastVersion)

	best := ""
	bestVersion := installed
	for _, candidate := range available {
		if !r.allowsVersion(rc, product, candidate) {
			continue
		}
		parsed := ParseVersion(candidate)
		if Compare(parsed, bestVersion) > 0 {
			best = candidate
			bestVersion = parsed
		}
	}

	if best == "" {
		return "", false
	}
	r.logger.Infof("Update candidate found, config: %s, product: %s, version: %s", rc.Name, product, best)
	return best, true
}
