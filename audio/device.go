package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Device abstracts a capture backend so the session logic can run against
// desktop hardware, mobile bindings, or a test double.
type Device interface {
	// Open acquires the device and begins delivering PCM chunks to the
	// callback until Close. The callback must not retain the slice.
	Open(onChunk func([]int16)) error
	Close() error
	SampleRate() int
}

// PortAudioDevice captures from a PortAudio input device.
type PortAudioDevice struct {
	deviceID        int // 0 selects the system default
	sampleRate      int
	framesPerBuffer int
	stream          *portaudio.Stream
}

func NewPortAudioDevice(deviceID, sampleRate, framesPerBuffer int) *PortAudioDevice {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	return &PortAudioDevice{
		deviceID:        deviceID,
		sampleRate:      sampleRate,
		framesPerBuffer: framesPerBuffer,
	}
}

func (d *PortAudioDevice) SampleRate() int { return d.sampleRate }

func (d *PortAudioDevice) Open(onChunk func([]int16)) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	params, err := d.streamParameters()
	if err != nil {
		portaudio.Terminate()
		return err
	}

	stream, err := portaudio.OpenStream(params, func(in []int16) {
		chunk := make([]int16, len(in))
		copy(chunk, in)
		onChunk(chunk)
	})
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("failed to open audio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	d.stream = stream
	return nil
}

func (d *PortAudioDevice) Close() error {
	if d.stream == nil {
		return nil
	}
	stream := d.stream
	d.stream = nil

	if err := stream.Stop(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("failed to stop audio stream: %w", err)
	}
	if err := stream.Close(); err != nil {
		portaudio.Terminate()
		return fmt.Errorf("failed to close audio stream: %w", err)
	}
	return portaudio.Terminate()
}

func (d *PortAudioDevice) streamParameters() (portaudio.StreamParameters, error) {
	var device *portaudio.DeviceInfo

	if d.deviceID > 0 { // only use a specific device if explicitly requested
		devices, err := portaudio.Devices()
		if err != nil {
			return portaudio.StreamParameters{}, fmt.Errorf("failed to get audio devices: %w", err)
		}
		if d.deviceID >= len(devices) {
			return portaudio.StreamParameters{}, fmt.Errorf("invalid device ID %d", d.deviceID)
		}
		device = devices[d.deviceID]
		if device.MaxInputChannels == 0 {
			return portaudio.StreamParameters{}, fmt.Errorf("device %q is not an input device", device.Name)
		}
	} else {
		defaultDevice, err := portaudio.DefaultInputDevice()
		if err != nil {
			return portaudio.StreamParameters{}, fmt.Errorf("failed to get default input device: %w", err)
		}
		device = defaultDevice
	}

	return portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: DefaultChannels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(d.sampleRate),
		FramesPerBuffer: d.framesPerBuffer,
	}, nil
}

// ListDevices returns the available audio input devices.
func ListDevices() ([]portaudio.DeviceInfo, error) {
	err := portaudio.Initialize()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	inputDevices := make([]portaudio.DeviceInfo, 0)
	for _, device := range devices {
		if device.MaxInputChannels > 0 {
			inputDevices = append(inputDevices, *device)
		}
	}

	return inputDevices, nil
}
