package source

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"pkgsynth/plan"
	"pkgsynth/version"
)

// ManifestDependency is one name(+constraint) entry inside a manifest
// dependency alternative.
type ManifestDependency struct {
	Name       string `yaml:"name"`
	Constraint string `yaml:"constraint"`
}

// ManifestAlternative is one `|`-separated choice inside a manifest
// package's depends clause.
type ManifestAlternative struct {
	Enable       string               `yaml:"enable"`
	Reflect      string               `yaml:"reflect"`
	Prefer       string               `yaml:"prefer"`
	Accept       string               `yaml:"accept"`
	Require      string               `yaml:"require"`
	Dependencies []ManifestDependency `yaml:"dependencies"`
}

// ManifestDepends is one depends clause of a manifest package.
type ManifestDepends struct {
	Buildtime    bool                  `yaml:"buildtime"`
	Comment      string                `yaml:"comment"`
	Alternatives []ManifestAlternative `yaml:"alternatives"`
}

// ManifestPackage is one package entry in a packages.yaml manifest.
type ManifestPackage struct {
	Name          string            `yaml:"name"`
	Version       string            `yaml:"version"`
	Type          string            `yaml:"type"` // "lib", "exe", "other"
	Binless       bool              `yaml:"binless"`
	Depends       []ManifestDepends `yaml:"depends"`
	SystemVersion map[string]string `yaml:"system_version"`
}

// Manifest is the top-level shape of a packages.yaml file: the
// stand-in this repository uses in place of parsing the real build2
// manifest grammar, which is outside the planner's scope.
type Manifest struct {
	Packages []ManifestPackage `yaml:"packages"`
}

// ParsePackageType maps a manifest's type string to plan.PackageType,
// defaulting to TypeUnspecified for an empty or unrecognized value.
func ParsePackageType(s string) plan.PackageType {
	switch s {
	case "lib":
		return plan.TypeLib
	case "exe":
		return plan.TypeExe
	case "other":
		return plan.TypeOther
	default:
		return plan.TypeUnspecified
	}
}

// LoadManifestYAML parses a packages.yaml document's bytes into
// AvailablePackage values, tagging every Location with fragmentID.
func LoadManifestYAML(data []byte, fragmentID string) ([]*plan.AvailablePackage, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing package manifest: %w", err)
	}

	out := make([]*plan.AvailablePackage, 0, len(m.Packages))
	for _, mp := range m.Packages {
		v, err := version.Parse(mp.Version)
		if err != nil {
			return nil, fmt.Errorf("package %s: %w", mp.Name, err)
		}

		ap := &plan.AvailablePackage{
			Name:    mp.Name,
			Version: v,
			Type:    ParsePackageType(mp.Type),
			Binless: mp.Binless,
			Locations: []plan.Location{
				{Fragment: fragmentID, InRepoPath: mp.Name},
			},
			SystemVersion: mp.SystemVersion,
		}

		for _, md := range mp.Depends {
			da := plan.DependencyAlternatives{
				Buildtime: md.Buildtime,
				Comment:   md.Comment,
			}
			for _, ma := range md.Alternatives {
				alt := plan.DependencyAlternative{
					Enable:          ma.Enable,
					Reflect:         ma.Reflect,
					Prefer:          ma.Prefer,
					Accept:          ma.Accept,
					HasPreferAccept: ma.Prefer != "" || ma.Accept != "",
					Require:         ma.Require,
					HasRequire:      ma.Require != "",
				}
				for _, dep := range ma.Dependencies {
					d := plan.Dependency{Name: dep.Name}
					if dep.Constraint != "" {
						c, err := version.ParseConstraint(dep.Constraint)
						if err != nil {
							return nil, fmt.Errorf("package %s: dependency %s: %w", mp.Name, dep.Name, err)
						}
						d.Constraint = c
						d.HasConstraint = true
					}
					alt.Dependencies = append(alt.Dependencies, d)
				}
				da.Alternatives = append(da.Alternatives, alt)
			}
			ap.Depends = append(ap.Depends, da)
		}

		out = append(out, ap)
	}
	return out, nil
}

// LoadManifestFile reads and parses path.
func LoadManifestFile(path string, fragmentID string) ([]*plan.AvailablePackage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading package manifest %s: %w", path, err)
	}
	return LoadManifestYAML(data, fragmentID)
}
