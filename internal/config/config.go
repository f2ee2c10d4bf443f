// Package config reads and writes the agentsync.yaml file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/msageha/agentsync/internal/model"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "agentsync.yaml"

// Load overlays path on the defaults. A missing file yields the defaults unchanged.
// The result is not validated, so callers can apply overrides first.
func Load(path string) (model.Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return model.DefaultConfig(), nil
	}
	if err != nil {
		return model.Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	cfg, err := decode(data)
	if err != nil {
		return model.Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func decode(data []byte) (model.Config, error) {
	cfg := model.DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.Config{}, err
	}
	return cfg, nil
}

// Save validates cfg and replaces path with it. The written file must load back as a valid
// config equal to cfg before it replaces the old one, which is kept as path.bak.
func Save(path string, cfg model.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}
	content, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}
	return replaceFile(path, content, func(written []byte) error {
		got, err := decode(written)
		if err != nil {
			return err
		}
		if err := got.Validate(); err != nil {
			return err
		}
		if !cmp.Equal(got, cfg) {
			return fmt.Errorf("config changed on reload: %s", cmp.Diff(cfg, got))
		}
		return nil
	})
}

// replaceFile stages content next to path, checks the staged bytes with verify and renames
// them over path. path is untouched when any step fails.
func replaceFile(path string, content []byte, verify func(written []byte) error) error {
	staged, err := stage(filepath.Dir(path), content)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(staged) }()

	written, err := os.ReadFile(staged)
	if err != nil {
		return fmt.Errorf("read staged config: %w", err)
	}
	if err := verify(written); err != nil {
		return fmt.Errorf("verify staged config: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".bak"); err != nil {
			return fmt.Errorf("back up %s: %w", path, err)
		}
	}
	if err := os.Rename(staged, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// stage writes content to a synced temp file in dir and returns its name.
func stage(dir string, content []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".agentsync-tmp-*.yaml")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	_, err = tmp.Write(content)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	return tmp.Name(), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
