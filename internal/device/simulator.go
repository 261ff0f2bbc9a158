package device

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/ayusman/myomod/internal/telemetry"
)

// SimulatorConfig sets the rate of each synthetic stream. A zero rate
// disables the stream. DropEvery > 0 skips every Nth frame of each stream
// while still advancing its counter, which shows up as counter gaps.
type SimulatorConfig struct {
	HandPoseHz    float64
	EMGHz         float64
	FilteredEMGHz float64
	DropEvery     int
	Seed          int64
}

// DefaultSimulatorConfig mirrors the rates of the physical device.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		HandPoseHz:    50,
		EMGHz:         66,
		FilteredEMGHz: 50,
		Seed:          1,
	}
}

// Simulator synthesizes the three notification streams: a slow open/close
// cycle staggered across the fingers, and EMG noise with periodic bursts.
type Simulator struct {
	cfg SimulatorConfig
}

// NewSimulator creates a simulator.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	return &Simulator{cfg: cfg}
}

// Name implements Source.
func (s *Simulator) Name() string {
	return "simulator"
}

// Subscribe implements Source. All three streams are produced by one
// goroutine.
func (s *Simulator) Subscribe(ctx context.Context) (*Subscription, error) {
	return NewSubscription(ctx, s.run), nil
}

type simStream struct {
	kind    telemetry.Kind
	ticker  *time.Ticker
	counter uint8
	sent    int
}

func (s *Simulator) run(ctx context.Context, emit EmitFunc) error {
	rng := rand.New(rand.NewSource(s.cfg.Seed))
	start := time.Now()

	var streams []*simStream
	for _, st := range []struct {
		kind telemetry.Kind
		hz   float64
	}{
		{telemetry.KindHandPose, s.cfg.HandPoseHz},
		{telemetry.KindRawEMG, s.cfg.EMGHz},
		{telemetry.KindFilteredEMG, s.cfg.FilteredEMGHz},
	} {
		if st.hz <= 0 {
			continue
		}
		t := time.NewTicker(time.Duration(float64(time.Second) / st.hz))
		defer t.Stop()
		streams = append(streams, &simStream{kind: st.kind, ticker: t})
	}

	// Nil channels never fire, so disabled streams simply stay silent.
	tick := func(i int) <-chan time.Time {
		if i < len(streams) {
			return streams[i].ticker.C
		}
		return nil
	}

	for {
		var st *simStream
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick(0):
			st = streams[0]
		case <-tick(1):
			st = streams[1]
		case <-tick(2):
			st = streams[2]
		}

		elapsed := time.Since(start)
		f := synth(st.kind, elapsed, st.counter, rng)
		st.counter++
		st.sent++

		if s.cfg.DropEvery > 0 && st.sent%s.cfg.DropEvery == 0 {
			continue
		}
		if !emit(Notification{Kind: st.kind, Data: telemetry.Encode(f), ReceivedAt: time.Now()}) {
			return ctx.Err()
		}
	}
}

// synth builds the frame of stream k at time t into the run.
func synth(k telemetry.Kind, t time.Duration, counter uint8, rng *rand.Rand) telemetry.Frame {
	switch k {
	case telemetry.KindHandPose:
		return HandPoseAt(t, counter)
	case telemetry.KindRawEMG:
		return emgAt(t, counter, rng)
	default:
		return filteredAt(t, counter)
	}
}

// HandPoseAt returns the simulated hand pose at time t: each finger cycles
// between open and closed every four seconds, a little behind the previous
// finger, and the wrist sways around neutral.
func HandPoseAt(t time.Duration, counter uint8) telemetry.HandPose {
	const period = 4.0
	sec := t.Seconds()
	wave := func(phase float64) float64 {
		return 0.5 - 0.5*math.Cos(2*math.Pi*(sec/period-phase))
	}
	return telemetry.HandPose{
		ThumbFlex:       wave(0),
		ThumbOpposition: wave(0.5),
		IndexFlex:       wave(0.05),
		MiddleFlex:      wave(0.1),
		RingFlex:        wave(0.15),
		PinkyFlex:       wave(0.2),
		WristFlex:       0.5 + 0.2*math.Sin(2*math.Pi*sec/7),
		WristRotation:   0.5 + 0.3*math.Sin(2*math.Pi*sec/11),
		Counter:         counter,
	}
}

// activation is the simulated muscle activity in [0, 1]: a burst during the
// closing half of the hand cycle.
func activation(t time.Duration) float64 {
	return HandPoseAt(t, 0).MiddleFlex
}

func emgAt(t time.Duration, counter uint8, rng *rand.Rand) telemetry.EMG {
	e := telemetry.EMG{Counter: counter}
	amp := 0.05 + activation(t)
	for ch := range e.Channels {
		gain := 1 - 0.1*float64(ch)
		for i := range e.Channels[ch] {
			e.Channels[ch][i] = float32(rng.NormFloat64() * amp * gain)
		}
	}
	return e
}

func filteredAt(t time.Duration, counter uint8) telemetry.FilteredEMG {
	f := telemetry.FilteredEMG{Counter: counter}
	a := activation(t)
	for ch := range f.Channels {
		f.Channels[ch] = float32(a * (1 - 0.1*float64(ch)))
	}
	if a > 0.5 {
		f.State = 1
	}
	return f
}
