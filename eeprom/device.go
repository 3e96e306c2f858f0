package eeprom

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// File keeps the image in a single file, replaced atomically on save.
type File struct {
	Path string
}

func (f File) Load() ([]byte, error) {
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("eeprom image not found, starting blank", "path", f.Path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", f.Path, err)
	}
	return b, nil
}

func (f File) Save(image []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.Path), filepath.Base(f.Path)+".*")
	if err != nil {
		return fmt.Errorf("could not create temp image: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(image); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("could not write temp image: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("could not sync temp image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close temp image: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("could not replace %s: %w", f.Path, err)
	}
	return nil
}

// Memory keeps the image in memory. Err, when set, fails every Save.
type Memory struct {
	Image []byte
	Err   error
	Saves int
}

func (m *Memory) Load() ([]byte, error) {
	b := make([]byte, len(m.Image))
	copy(b, m.Image)
	return b, nil
}

func (m *Memory) Save(image []byte) error {
	if m.Err != nil {
		return m.Err
	}
	m.Image = make([]byte, len(image))
	copy(m.Image, image)
	m.Saves++
	return nil
}
