package tcn

// NumChannels is the number of cepstral coefficients per input frame.
const NumChannels = 13

// NumClasses is the size of the output logit vector.
const NumClasses = 2

// poolFactor is the fixed downsampling factor of every pooling stage.
const poolFactor = 4

// Stage describes one convolution layer of the classifier: a 1-D
// convolution with "same" padding, optionally followed by an ELU
// activation and a max-pool downsampling step.
type Stage struct {
	In       int // input channels
	Out      int // output channels
	Kernel   int // kernel size (odd)
	Activate bool
	Pool     int // max-pool factor after activation, 0 = none
}

// Architecture returns the canonical stage list of the trained
// classifier: a kernel-1 projection followed by paired kernel-3
// convolutions, with an ELU and a 4x max-pool closing each pair.
// Channel width doubles roughly every two pooling stages,
// 13 -> 32 -> 64 -> 128 -> 256 -> 512, across seven pools.
func Architecture() []Stage {
	return []Stage{
		{In: NumChannels, Out: 32, Kernel: 1},
		{In: 32, Out: 32, Kernel: 3},
		{In: 32, Out: 32, Kernel: 3, Activate: true, Pool: poolFactor},
		{In: 32, Out: 64, Kernel: 3},
		{In: 64, Out: 64, Kernel: 3, Activate: true, Pool: poolFactor},
		{In: 64, Out: 128, Kernel: 3},
		{In: 128, Out: 128, Kernel: 3, Activate: true, Pool: poolFactor},
		{In: 128, Out: 128, Kernel: 3},
		{In: 128, Out: 128, Kernel: 3, Activate: true, Pool: poolFactor},
		{In: 128, Out: 256, Kernel: 3},
		{In: 256, Out: 256, Kernel: 3, Activate: true, Pool: poolFactor},
		{In: 256, Out: 256, Kernel: 3},
		{In: 256, Out: 256, Kernel: 3, Activate: true, Pool: poolFactor},
		{In: 256, Out: 512, Kernel: 3},
		{In: 512, Out: 512, Kernel: 3, Activate: true, Pool: poolFactor},
		{In: 512, Out: 512, Kernel: 3},
		{In: 512, Out: 512, Kernel: 3, Activate: true},
	}
}

// SafeLength returns the minimum time-axis length that survives every
// pooling stage in the list: the product of all pool factors. For the
// canonical architecture this is 4^7 = 16384. The normalizer derives
// its fixed output length from this so the two cannot drift apart.
func SafeLength(stages []Stage) int {
	n := 1
	for _, st := range stages {
		if st.Pool > 1 {
			n *= st.Pool
		}
	}
	return n
}
