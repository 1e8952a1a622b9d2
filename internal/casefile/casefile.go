// Package casefile reads and writes portable case archives. An archive is
// a zstd-compressed tarball holding the C source of a case plus a YAML
// metadata file, so a case can be re-bisected on another machine or against
// a newer compiler without re-reducing it.
package casefile

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"ccbisect/internal/errors"
)

const (
	sourceName = "case.c"
	metaName   = "meta.yaml"
)

// Case is a self-contained bisection case.
type Case struct {
	ID        string    `yaml:"id"`
	Project   string    `yaml:"project"`
	Marker    string    `yaml:"marker,omitempty"`
	OptLevel  string    `yaml:"opt_level,omitempty"`
	Flags     []string  `yaml:"flags,omitempty"`
	Good      string    `yaml:"good"`
	Bad       string    `yaml:"bad"`
	CreatedAt time.Time `yaml:"created_at"`

	// Result is the verified boundary commit of the last bisection of
	// this case, once one has run.
	Result string `yaml:"result,omitempty"`

	// Code is the C source, stored as its own archive member rather than
	// inline in the metadata.
	Code string `yaml:"-"`
}

// New returns a case with a fresh ID and creation time.
func New(project, good, bad, code string) *Case {
	return &Case{
		ID:        uuid.New().String(),
		Project:   project,
		Good:      good,
		Bad:       bad,
		CreatedAt: time.Now().UTC(),
		Code:      code,
	}
}

// Validate checks that the case carries everything a bisection needs.
func (c *Case) Validate() error {
	var missing []string
	if c.Project == "" {
		missing = append(missing, "project")
	}
	if c.Good == "" {
		missing = append(missing, "good")
	}
	if c.Bad == "" {
		missing = append(missing, "bad")
	}
	if strings.TrimSpace(c.Code) == "" {
		missing = append(missing, "source")
	}
	if len(missing) > 0 {
		return errors.Newf(errors.CaseInvalid, "case is missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Save writes the case as a zstd-compressed tar archive at path.
func Save(path string, c *Case) error {
	if err := c.Validate(); err != nil {
		return err
	}

	meta, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode case metadata: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create case archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	for _, member := range []struct {
		name string
		data []byte
	}{
		{metaName, meta},
		{sourceName, []byte(c.Code)},
	} {
		hdr := &tar.Header{
			Name:    member.name,
			Mode:    0644,
			Size:    int64(len(member.data)),
			ModTime: c.CreatedAt,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("failed to write archive member %s: %w", member.name, err)
		}
		if _, err := tw.Write(member.data); err != nil {
			return fmt.Errorf("failed to write archive member %s: %w", member.name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish compression: %w", err)
	}
	return f.Close()
}

// Load reads a case archive written by Save.
func Load(path string) (*Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open case archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, errors.New(errors.CaseInvalid, "case archive is not zstd-compressed", nil).WithDetails(map[string]any{"path": path})
	}
	defer zr.Close()

	var c Case
	var haveMeta, haveSource bool

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.New(errors.CaseInvalid, "case archive is corrupt", nil).WithDetails(map[string]any{"path": path})
		}
		switch hdr.Name {
		case metaName:
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("failed to read case metadata: %w", err)
			}
			if err := yaml.Unmarshal(data, &c); err != nil {
				return nil, errors.New(errors.CaseInvalid, "case metadata is not valid YAML", nil).WithDetails(map[string]any{"path": path})
			}
			haveMeta = true
		case sourceName:
			var buf bytes.Buffer
			if _, err := io.Copy(&buf, tr); err != nil {
				return nil, fmt.Errorf("failed to read case source: %w", err)
			}
			c.Code = buf.String()
			haveSource = true
		}
	}

	if !haveMeta || !haveSource {
		return nil, errors.New(errors.CaseInvalid, "case archive is missing meta.yaml or case.c", nil).WithDetails(map[string]any{"path": path})
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
