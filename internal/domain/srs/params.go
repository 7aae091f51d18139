package srs

// Params defines all configurable parameters for the SRS algorithm
type Params struct {
	// Core limits
	MinEaseFactor     float64
	InitialEaseFactor float64

	// PassThreshold is the lowest quality that counts as a successful recall
	PassThreshold int

	// Interval ramp, in days
	FailInterval   int
	FirstInterval  int
	SecondInterval int
}

// ParamsConfig allows overriding the default parameters when creating a new Params instance
type ParamsConfig struct {
	MinEaseFactor     float64
	InitialEaseFactor float64
	PassThreshold     int
	FailInterval      int
	FirstInterval     int
	SecondInterval    int
}

// NewDefaultParams creates a new Params instance with default values
func NewDefaultParams() *Params {
	return &Params{
		MinEaseFactor:     1.3,
		InitialEaseFactor: 2.5,
		PassThreshold:     3,
		FailInterval:      1,
		FirstInterval:     1,
		SecondInterval:    6,
	}
}

// NewParams creates a new Params instance with custom configuration
func NewParams(config ParamsConfig) *Params {
	params := NewDefaultParams()

	if config.MinEaseFactor > 0 {
		params.MinEaseFactor = config.MinEaseFactor
	}
	if config.InitialEaseFactor > 0 {
		params.InitialEaseFactor = config.InitialEaseFactor
	}
	if config.PassThreshold > 0 {
		params.PassThreshold = config.PassThreshold
	}
	if config.FailInterval > 0 {
		params.FailInterval = config.FailInterval
	}
	if config.FirstInterval > 0 {
		params.FirstInterval = config.FirstInterval
	}
	if config.SecondInterval > 0 {
		params.SecondInterval = config.SecondInterval
	}

	return params
}
