package probes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"asinpusher/config"
	"asinpusher/types"
)

// Image verification modes.
const (
	ModeMainOnly  = "main_only"
	ModeAllImages = "all_images"
	ModeAnyImage  = "any_image"
)

// ObjectStat reports whether an object key exists. common.S3 satisfies it.
type ObjectStat interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// ObjectStoreOptions describes where crawled images are stored and how many must exist.
// Patterns may use the {site}, {asin} and {index} placeholders.
type ObjectStoreOptions struct {
	MainPattern   string
	SubPattern    string
	SubImageCount int
	Mode          string
}

// ObjectStoreProbe checks the image bucket for a record.
type ObjectStoreProbe struct {
	store ObjectStat
	opts  ObjectStoreOptions
}

// NewObjectStoreProbe validates opts. Problems are reported as *config.ConfigError.
func NewObjectStoreProbe(store ObjectStat, opts ObjectStoreOptions) (*ObjectStoreProbe, error) {
	if store == nil {
		return nil, &config.ConfigError{Field: "oss", Err: errors.New("object store client is nil")}
	}
	if opts.Mode == "" {
		opts.Mode = ModeMainOnly
	}
	if strings.TrimSpace(opts.MainPattern) == "" {
		return nil, &config.ConfigError{Field: "oss.main_image_pattern", Err: errors.New("must be set")}
	}
	switch opts.Mode {
	case ModeMainOnly:
	case ModeAllImages, ModeAnyImage:
		if opts.SubImageCount < 0 {
			return nil, &config.ConfigError{Field: "oss.sub_image_count", Err: errors.New("must not be negative")}
		}
		if opts.SubImageCount > 0 && !strings.Contains(opts.SubPattern, "{index}") {
			return nil, &config.ConfigError{Field: "oss.sub_image_pattern", Err: errors.New("must contain {index}")}
		}
	default:
		return nil, &config.ConfigError{Field: "oss.image_verification_mode", Err: fmt.Errorf("unsupported value %q", opts.Mode)}
	}
	return &ObjectStoreProbe{store: store, opts: opts}, nil
}

// Name implements Probe.
func (p *ObjectStoreProbe) Name() string { return BackendObjectStorage }

// Keys returns the object keys inspected for rec, primary image first.
func (p *ObjectStoreProbe) Keys(rec types.Record) []string {
	keys := []string{render(p.opts.MainPattern, rec, -1)}
	if p.opts.Mode == ModeMainOnly {
		return keys
	}
	for i := 0; i < p.opts.SubImageCount; i++ {
		keys = append(keys, render(p.opts.SubPattern, rec, i))
	}
	return keys
}

// Check implements Probe.
func (p *ObjectStoreProbe) Check(ctx context.Context, rec types.Record) Result {
	keys := p.Keys(rec)

	found := 0
	var firstErr error
	for _, key := range keys {
		ok, err := p.store.Exists(ctx, key)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("stat %s: %w", key, err)
			}
			if p.opts.Mode != ModeAnyImage {
				break
			}
			continue
		}
		if ok {
			found++
			if p.opts.Mode == ModeAnyImage {
				break
			}
			continue
		}
		if p.opts.Mode != ModeAnyImage {
			// A single missing object already decides main_only and all_images.
			return NotFound()
		}
	}

	if found > 0 && (p.opts.Mode == ModeAnyImage || found == len(keys)) {
		return Found(map[string]string{"objects": strconv.Itoa(found)})
	}
	if firstErr != nil {
		return Errored(&ProbeError{Backend: BackendObjectStorage, Record: rec, Err: firstErr})
	}
	return NotFound()
}

func render(pattern string, rec types.Record, index int) string {
	pairs := []string{"{site}", rec.Site, "{asin}", rec.ID}
	if index >= 0 {
		pairs = append(pairs, "{index}", strconv.Itoa(index))
	}
	return strings.NewReplacer(pairs...).Replace(pattern)
}
