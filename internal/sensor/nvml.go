package sensor

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/jetpwmon/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// powerReader is the slice of nvml.Device used here, kept narrow for tests.
type powerReader interface {
	GetPowerUsage() (uint32, nvml.Return)
}

// Library reference-counts nvml.Init/Shutdown across NVML sources.
type Library struct {
	mu   sync.Mutex
	refs int
}

var defaultLibrary = &Library{}

func (l *Library) acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.refs == 0 {
		if ret := nvml.Init(); !IsNVMLSuccess(ret) {
			return errors.New().Wrap(ErrNVMLInitFailed, newNVMLError(ret))
		}
	}
	l.refs++

	return nil
}

func (l *Library) release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.refs == 0 {
		return errors.New().New(ErrNVMLNotOpen)
	}

	l.refs--
	if l.refs > 0 {
		return nil
	}

	if ret := nvml.Shutdown(); !IsNVMLSuccess(ret) {
		return errors.New().Wrap(ErrNVMLShutdown, newNVMLError(ret))
	}

	return nil
}

type nvmlSource struct {
	id        Identity
	device    powerReader
	lib       *Library
	closeOnce sync.Once
	closeErr  error
}

// NewNVML opens the NVIDIA GPU at the given index. NVML only reports board
// power, so voltage and current read as zero. If id.Name is empty the
// device name is used.
func NewNVML(id Identity, index int) (Source, error) {
	errFactory := errors.New()

	if err := defaultLibrary.acquire(); err != nil {
		return nil, err
	}

	device, ret := nvml.DeviceGetHandleByIndex(index)
	if !IsNVMLSuccess(ret) {
		_ = defaultLibrary.release()
		return nil, errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret))
	}

	if id.Name == "" {
		name, ret := device.GetName()
		if !IsNVMLSuccess(ret) {
			_ = defaultLibrary.release()
			return nil, errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret))
		}
		id.Name = name
	}

	return newNVMLSource(id, device, defaultLibrary), nil
}

func newNVMLSource(id Identity, device powerReader, lib *Library) *nvmlSource {
	id.Kind = KindNVML
	return &nvmlSource{id: id, device: device, lib: lib}
}

func (s *nvmlSource) Identity() Identity {
	return s.id
}

func (s *nvmlSource) Read(_ context.Context) (Reading, error) {
	milliWatts, ret := s.device.GetPowerUsage()
	if !IsNVMLSuccess(ret) {
		return Reading{}, errors.New().Wrap(ErrSensorUnavailable, newNVMLError(ret))
	}

	return Reading{
		Power:     float64(milliWatts) * milli,
		Timestamp: time.Now(),
	}, nil
}

// Close releases this source's hold on the NVML library.
func (s *nvmlSource) Close() error {
	s.closeOnce.Do(func() {
		if s.lib != nil {
			s.closeErr = s.lib.release()
		}
	})
	return s.closeErr
}
