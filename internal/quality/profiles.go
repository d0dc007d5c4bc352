package quality

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// profileFile is the on-disk layout of a weight profile file:
//
//	profiles:
//	  engineering:
//	    technical: 0.3
//	    completeness: 0.2
//	    ...
type profileFile struct {
	Profiles map[string]map[string]float64 `yaml:"profiles"`
}

// LoadProfilesFile reads weight profiles from a YAML file.
func LoadProfilesFile(path string) (map[string]Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading weight profiles: %w", err)
	}
	return ParseProfiles(data)
}

// ParseProfiles decodes weight profiles from YAML.
func ParseProfiles(data []byte) (map[string]Weights, error) {
	var pf profileFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing weight profiles: %w", err)
	}

	out := make(map[string]Weights, len(pf.Profiles))
	for name, raw := range pf.Profiles {
		w := make(Weights, len(raw))
		for dim, v := range raw {
			w[Dimension(dim)] = v
		}
		out[name] = w
	}
	return out, nil
}

// LoadFile loads profiles from path into the scorer.
func (s *Scorer) LoadFile(path string) error {
	profiles, err := LoadProfilesFile(path)
	if err != nil {
		return err
	}
	if rejected := s.LoadProfiles(profiles); len(rejected) > 0 {
		s.logger.Warn("weight profiles loaded with rejections", "path", path, "rejected", len(rejected))
	}
	return nil
}

// Watch reloads the profile file whenever it is written until ctx is done.
// The parent directory is watched so editors that replace the file are seen.
func (s *Scorer) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating profile watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("resolving profile path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := s.LoadFile(abs); err != nil {
					s.logger.Error("reloading weight profiles", "path", abs, "error", err)
					continue
				}
				s.logger.Info("weight profiles reloaded", "path", abs)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Error("profile watcher", "error", err)
			}
		}
	}()
	return nil
}
