package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/graphops/indexer-agent/shared/errs"
)

// LoadSpecificationFile reads, normalizes and validates one network
// specification YAML file.
func LoadSpecificationFile(path string) (*NetworkSpecification, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(err, errs.IE044)
	}
	spec := &NetworkSpecification{}
	if err := yaml.UnmarshalStrict(raw, spec); err != nil {
		return nil, errs.Wrap(errors.Wrapf(err, "file %s", path), errs.IE044)
	}
	if err := spec.Normalize(); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, errors.Wrapf(err, "file %s", path)
	}
	return spec, nil
}

// LoadSpecifications reads every YAML file in dir, one network per file,
// ordered by file name. Duplicate network identifiers across files are
// rejected.
func LoadSpecifications(dir string) ([]*NetworkSpecification, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.Wrap(err, errs.IE044)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yml", ".yaml":
			files = append(files, entry.Name())
		}
	}
	if len(files) == 0 {
		return nil, errs.Wrap(errors.Errorf("no network specification files in %s", dir), errs.IE044)
	}
	sort.Strings(files)

	seen := make(map[string]string)
	specs := make([]*NetworkSpecification, 0, len(files))
	for _, name := range files {
		spec, err := LoadSpecificationFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[spec.NetworkIdentifier]; dup {
			return nil, errs.Wrap(errors.Errorf("network %s configured by both %s and %s", spec.NetworkIdentifier, prev, name), errs.IE043)
		}
		seen[spec.NetworkIdentifier] = name
		log.WithFields(logrus.Fields{
			"protocolNetwork": spec.NetworkIdentifier,
			"file":            name,
		}).Info("Loaded network specification")
		specs = append(specs, spec)
	}
	return specs, nil
}
