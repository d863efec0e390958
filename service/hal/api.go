package hal

// API of the hardware abstraction layer used by the auxiliary I/O
// channels. It covers one machine's worth of digital output pins and
// PWM channels, plus a monotonic clock for phase deadlines.
//
// Implementations must tolerate concurrent calls; the command path and
// the periodic sync task both reach the hardware through this API.
type API interface {
	// SetDigital drives the given pin as a plain digital output.
	SetDigital(pin int, on bool) error
	// ConfigurePWM programs a PWM channel at the given base frequency and
	// resolution and attaches it to the given pin.
	// Calling it again reprograms the channel.
	ConfigurePWM(channel, pin int, frequencyHz uint32, resolutionBits uint8) error
	// WriteDuty sets the raw duty of a PWM channel.
	// Returns the duty that was active before the write.
	WriteDuty(channel int, duty uint32) (uint32, error)
	// ReadDuty returns the currently active raw duty of a PWM channel.
	ReadDuty(channel int) (uint32, error)
	// Now returns monotonic time in microseconds.
	Now() uint64
	// Close releases all claimed pins and channels.
	Close() error
}
