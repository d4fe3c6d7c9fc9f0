/*Package config loads and validates the Parallel Manager's
construction-time configuration: dimension, radius_scale, ghost_layers,
domain limits, lb_props, and lb_method.

Config loading is a two-stage process: an unparsed, gcfg-friendly Raw
struct is read from disk, then validated and defaulted into the Config
the rest of the program actually uses. A separately callable CheckInit
lets an already-constructed Config re-validate itself and return a
descriptive error rather than panic inline, for callers that mutate a
Config after Process. Backed by gopkg.in/gcfg.v1.
*/
package config

import (
	"fmt"

	"gopkg.in/gcfg.v1"

	"github.com/phil-mansfield/pmanager/partition"
	"github.com/phil-mansfield/pmanager/perr"
)

// DefaultLBProps is the default `lb_props` list used when a config omits
// lb_props entirely: the full physics property set a particle array may
// carry.
var DefaultLBProps = []string{
	"x", "y", "z", "ax", "ay", "az",
	"u", "v", "w", "au", "av", "aw",
	"rho", "arho", "m", "h", "gid", "tag",
}

// Raw is the unprocessed, gcfg-decoded form of a manager config file, one
// [manager] INI section. Every field is optional at this stage;
// defaulting and validation happen in Process.
type Raw struct {
	Manager struct {
		Dimension   int
		RadiusScale float64
		GhostLayers int
		LBProps     string // comma-separated; empty means DefaultLBProps
		LBMethod    string
		DomainMinX, DomainMinY, DomainMinZ float64
		DomainMaxX, DomainMaxY, DomainMaxZ float64
		HasDomain   bool
	}
}

// ParseFile reads and gcfg-decodes an INI-style config file into a Raw.
func ParseFile(path string) (*Raw, error) {
	raw := &Raw{}
	if err := gcfg.ReadFileInto(raw, path); err != nil {
		return nil, perr.Newf(perr.ConfigError, "config: could not parse %q: %v", path, err)
	}
	return raw, nil
}

// Config is the validated, defaulted configuration the rest of the
// manager consumes.
type Config struct {
	Dimension   int
	RadiusScale float64
	GhostLayers int
	LBProps     []string
	LBMethod    partition.Method

	HasDomain          bool
	DomainMin, DomainMax [3]float64
}

// Process validates and defaults a Raw into a Config, reporting invalid
// lb_props names, invalid domains, and unknown lb_method values as fatal
// ConfigErrors. validProps is the set of property names the caller's
// particle arrays actually have, checked here so an unknown-property
// lb_props entry is caught before the first Update call rather than
// mid-exchange.
func (r *Raw) Process(validProps map[string]bool) (*Config, error) {
	c := &Config{
		Dimension:   r.Manager.Dimension,
		RadiusScale: r.Manager.RadiusScale,
		GhostLayers: r.Manager.GhostLayers,
	}

	if c.Dimension == 0 {
		c.Dimension = 2
	}
	if c.Dimension == 3 {
		perr.Warnf("config: dimension=3 requested, but the core only bins in 2D (z is pinned to bin 0); proceeding in 2D")
	} else if c.Dimension != 2 {
		return nil, perr.Newf(perr.ConfigError, "config: dimension must be 2 (or 3, accepted but treated as 2), got %d", c.Dimension)
	}

	if c.RadiusScale == 0 {
		c.RadiusScale = 2.0
	}
	if c.RadiusScale <= 0 {
		return nil, perr.Newf(perr.ConfigError, "config: radius_scale must be positive, got %g", c.RadiusScale)
	}

	if r.Manager.GhostLayers == 0 {
		c.GhostLayers = 2
	}
	if c.GhostLayers < 0 {
		return nil, perr.Newf(perr.ConfigError, "config: ghost_layers must be >= 0, got %d", c.GhostLayers)
	}

	if r.Manager.LBProps == "" {
		c.LBProps = append([]string{}, DefaultLBProps...)
	} else {
		c.LBProps = splitCSV(r.Manager.LBProps)
	}
	for _, p := range c.LBProps {
		if validProps != nil && !validProps[p] {
			return nil, perr.Newf(perr.ConfigError, "config: lb_props names unknown property %q", p)
		}
	}

	method := r.Manager.LBMethod
	if method == "" {
		method = "rcb"
	}
	parsed, ok := partition.ParseMethod(method)
	if !ok {
		return nil, perr.Newf(perr.ConfigError, "config: unknown lb_method %q", method)
	}
	c.LBMethod = parsed

	if r.Manager.HasDomain {
		c.HasDomain = true
		c.DomainMin = [3]float64{r.Manager.DomainMinX, r.Manager.DomainMinY, r.Manager.DomainMinZ}
		c.DomainMax = [3]float64{r.Manager.DomainMaxX, r.Manager.DomainMaxY, r.Manager.DomainMaxZ}
		for a := 0; a < 3; a++ {
			if c.DomainMin[a] >= c.DomainMax[a] {
				return nil, perr.Newf(perr.ConfigError, "config: domain min must be < max on axis %d (got %g >= %g)", a, c.DomainMin[a], c.DomainMax[a])
			}
		}
	}

	return c, nil
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, trimSpace(s[start:i]))
			}
			start = i + 1
		}
	}
	return out
}

func trimSpace(s string) string {
	for len(s) > 0 && s[0] == ' ' {
		s = s[1:]
	}
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}

// CheckInit re-validates an already-constructed Config, used by
// manager.New as a final guard before binding the config to a live
// Comm.
func (c *Config) CheckInit() error {
	if c.Dimension != 2 && c.Dimension != 3 {
		return perr.Newf(perr.ConfigError, "config: dimension must be 2 or 3")
	}
	if c.RadiusScale <= 0 {
		return perr.Newf(perr.ConfigError, "config: radius_scale must be positive")
	}
	if c.GhostLayers < 0 {
		return perr.Newf(perr.ConfigError, "config: ghost_layers must be >= 0")
	}
	if len(c.LBProps) == 0 {
		return perr.Newf(perr.ConfigError, "config: lb_props must not be empty")
	}
	seen := map[string]bool{}
	for _, p := range c.LBProps {
		if seen[p] {
			return perr.Newf(perr.ConfigError, "config: lb_props contains duplicate property %q", p)
		}
		seen[p] = true
	}
	return nil
}

// String renders a Config for diagnostic log output.
func (c *Config) String() string {
	return fmt.Sprintf("Config{dim=%d radius_scale=%g ghost_layers=%d lb_method=%s lb_props=%v}",
		c.Dimension, c.RadiusScale, c.GhostLayers, c.LBMethod, c.LBProps)
}
