package gpio

import "github.com/rs/zerolog"

// A Builder can build GPIOs.
type Builder struct {
	numLines int
	log      zerolog.Logger
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		numLines: DefaultNumLines,
		log:      zerolog.Nop(),
	}
}

// WithNumLines sets the number of lines.
func (b Builder) WithNumLines(n int) Builder {
	b.numLines = n
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(log zerolog.Logger) Builder {
	b.log = log
	return b
}

// Build creates a GPIO.
func (b Builder) Build(name string) *GPIO {
	if b.numLines <= 0 || b.numLines > MaxLines {
		panic("number of lines must be between 1 and 32")
	}

	return &GPIO{
		name:     name,
		numLines: b.numLines,
		log:      b.log.With().Str("device", name).Logger(),
		outputs:  make([]OutputFunc, b.numLines),
		in:       make([]uint8, b.numLines),
		out:      make([]uint8, b.numLines),
	}
}
