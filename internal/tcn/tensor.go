package tcn

// Tensor is a single-sample feature tensor stored channel-major:
// channel c occupies Data[c*Length : (c+1)*Length]. A batch is an
// ordered slice of these, one element per sample.
type Tensor struct {
	Channels int
	Length   int
	Data     []float32
}

// NewTensor allocates a zeroed tensor of the given shape.
func NewTensor(channels, length int) Tensor {
	return Tensor{
		Channels: channels,
		Length:   length,
		Data:     make([]float32, channels*length),
	}
}

// Row returns the time series of one channel as a shared slice.
func (t Tensor) Row(c int) []float32 {
	return t.Data[c*t.Length : (c+1)*t.Length]
}

// At returns the value at channel c, time step i.
func (t Tensor) At(c, i int) float32 {
	return t.Data[c*t.Length+i]
}
