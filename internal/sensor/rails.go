package sensor

import (
	"io"
	"strings"

	"codeberg.org/mutker/jetpwmon/internal/errors"
)

// FromRails builds the ordered source list from explicit rail definitions.
// Indices follow definition order. With no rails and simulate set, the two
// simulated CPU and GPU system rails are returned.
func FromRails(rails []Rail, simulate bool) ([]Source, error) {
	errFactory := errors.New()

	if len(rails) == 0 {
		if !simulate {
			return nil, errFactory.New(ErrNoSensorsConfig)
		}
		return []Source{
			NewSimulated(Identity{Index: 0, Name: "CPU"}, SystemProfile, 1),
			NewSimulated(Identity{Index: 1, Name: "GPU"}, SystemProfile, 2),
		}, nil
	}

	sources := make([]Source, 0, len(rails))
	for i, rail := range rails {
		src, err := fromRail(i, rail)
		if err != nil {
			_ = CloseAll(sources)
			return nil, err
		}
		sources = append(sources, src)
	}

	return sources, nil
}

func fromRail(index int, rail Rail) (Source, error) {
	errFactory := errors.New()
	id := Identity{Index: index, Name: strings.TrimSpace(rail.Name)}

	invalid := func(reason string) error {
		return errFactory.WithData(ErrInvalidRail, struct {
			Index  int
			Name   string
			Reason string
		}{
			Index:  index,
			Name:   rail.Name,
			Reason: reason,
		})
	}

	kind := Kind(strings.ToLower(string(rail.Kind)))
	if id.Name == "" && kind != KindNVML {
		return nil, invalid("missing name")
	}

	switch kind {
	case KindHwmon, KindIIO:
		if rail.Path == "" {
			return nil, invalid("missing path")
		}
		if rail.Channel < 0 {
			return nil, invalid("negative channel")
		}
		if kind == KindHwmon {
			return NewHwmonRail(id, rail.Path, rail.Channel), nil
		}
		return NewIIORail(id, rail.Path, rail.Channel), nil
	case KindSupply:
		if rail.Path == "" {
			return nil, invalid("missing path")
		}
		return NewSupply(id, rail.Path), nil
	case KindNVML:
		if rail.Device < 0 {
			return nil, invalid("negative device index")
		}
		return NewNVML(id, rail.Device)
	case KindSimulated:
		return NewSimulated(id, I2CProfile, int64(index)+1), nil
	default:
		return nil, errFactory.WithData(ErrUnknownKind, rail.Kind)
	}
}

// CloseAll closes every source that holds resources and returns the first
// error encountered.
func CloseAll(sources []Source) error {
	var first error
	for _, src := range sources {
		c, ok := src.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
