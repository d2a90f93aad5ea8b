package latencytest

import (
	"bytes"
	"os"
	"time"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// Channel is the transport-facing contract the measurement driver runs
// against. StreamConn and PacketConn both satisfy it.
type Channel interface {
	SendData(payload []byte) error
	RecvEcho() ([]byte, error)
	FinishBurst(count int) error
	SendTerminate() error
	// Reliable reports whether every echo is delivered and verified. The
	// datagram transport returns false: probe timeouts there are recorded,
	// not fatal, and bursts are fire-and-forget.
	Reliable() bool
	Close() error
}

// Trial describes one throughput burst.
type Trial struct {
	Count int `yaml:"count"`
	Size  int `yaml:"size"`
}

// Plan is the measurement schedule: latency probes first, then throughput
// trials, in the order given. It is created once per run and not modified.
type Plan struct {
	LatencySizes []int   `yaml:"latency_sizes"`
	Throughput   []Trial `yaml:"throughput"`
}

// DefaultPlan returns the reference schedule.
func DefaultPlan() *Plan {
	return &Plan{
		LatencySizes: []int{8, 64, 512},
		Throughput: []Trial{
			{Count: 16384, Size: 64},
			{Count: 4096, Size: 256},
			{Count: 1024, Size: 1024},
		},
	}
}

// LoadPlan reads a measurement plan from a YAML file.
func LoadPlan(path string) (*Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errPrefix+"failed to read plan %s", path)
	}
	plan := &Plan{}
	if err := yaml.Unmarshal(raw, plan); err != nil {
		return nil, errors.Wrapf(err, errPrefix+"failed to parse plan %s", path)
	}
	return plan, nil
}

// LatencyResult is the outcome of one round-trip probe. NoResponse marks a
// datagram probe that timed out; its RTT is meaningless.
type LatencyResult struct {
	Size       int
	RTT        time.Duration
	NoResponse bool
}

// ThroughputResult is the outcome of one timed burst.
type ThroughputResult struct {
	Count         int
	Size          int
	Elapsed       time.Duration
	BitsPerSecond float64
}

// Report collects the results of one driver run.
type Report struct {
	Latency    []LatencyResult
	Throughput []ThroughputResult
}

// Driver executes measurement plans against a Channel.
type Driver struct {
	logger Logger
}

// NewDriver creates a driver logging through logger. Nil disables logging.
func NewDriver(logger Logger) *Driver {
	if logger == nil {
		logger = dummyLogger{}
	}
	return &Driver{logger: logger}
}

// Run executes the whole plan: every latency probe, then every throughput
// trial, then termination. Termination is always the last thing on the
// wire, even when a step fails; the partial report is returned alongside
// the error in that case.
func (d *Driver) Run(ch Channel, plan *Plan) (*Report, error) {
	report := &Report{}
	var err error
	report.Latency, err = d.RunLatencyProbes(ch, plan.LatencySizes)
	if err != nil {
		d.Finish(ch)
		return report, err
	}
	for _, trial := range plan.Throughput {
		res, err := d.RunThroughputTrial(ch, trial.Count, trial.Size)
		if err != nil {
			d.Finish(ch)
			return report, err
		}
		report.Throughput = append(report.Throughput, res)
	}
	return report, d.Finish(ch)
}

// RunLatencyProbes times one echo round trip per size, in order. On a
// reliable channel the decrypted echo must equal the probe, otherwise the
// run fails with ErrEchoMismatch. On an unreliable channel a missing echo
// is recorded as NoResponse and the remaining probes still run.
func (d *Driver) RunLatencyProbes(ch Channel, sizes []int) ([]LatencyResult, error) {
	results := make([]LatencyResult, 0, len(sizes))
	for _, size := range sizes {
		payload := make([]byte, size)
		start := time.Now()
		if err := ch.SendData(payload); err != nil {
			return results, err
		}
		echo, err := ch.RecvEcho()
		if err != nil {
			if !ch.Reliable() && errors.Is(err, ErrNoResponse) {
				d.logger.WithField("size", size).Info("No echo within timeout")
				results = append(results, LatencyResult{Size: size, NoResponse: true})
				continue
			}
			return results, err
		}
		rtt := time.Since(start)
		if ch.Reliable() && !bytes.Equal(echo, payload) {
			return results, errors.Wrapf(ErrEchoMismatch, "probe size %d", size)
		}
		d.logger.WithFields(map[string]interface{}{
			"size": size,
			"rtt":  rtt,
		}).Debug("Latency probe complete")
		results = append(results, LatencyResult{Size: size, RTT: rtt})
	}
	return results, nil
}

// RunThroughputTrial sends count copies of a size-byte filler payload and
// measures the wall-clock time until the burst is complete. On the stream
// transport completion includes draining every echo and the phase-end
// handshake; on the datagram transport the burst ends with the last send.
func (d *Driver) RunThroughputTrial(ch Channel, count, size int) (ThroughputResult, error) {
	payload := bytes.Repeat([]byte{'x'}, size)
	start := time.Now()
	for i := 0; i < count; i++ {
		if err := ch.SendData(payload); err != nil {
			return ThroughputResult{}, err
		}
	}
	if err := ch.FinishBurst(count); err != nil {
		return ThroughputResult{}, err
	}
	elapsed := time.Since(start)
	res := ThroughputResult{
		Count:         count,
		Size:          size,
		Elapsed:       elapsed,
		BitsPerSecond: bitRate(count, size, elapsed),
	}
	d.logger.WithFields(map[string]interface{}{
		"count":   count,
		"size":    size,
		"elapsed": elapsed,
	}).Debug("Throughput trial complete")
	return res, nil
}

// minElapsed floors the elapsed time used for rate computation at one
// millisecond, the measurement resolution of the protocol. A burst faster
// than one tick can therefore never divide by zero.
const minElapsed = time.Millisecond

func bitRate(count, size int, elapsed time.Duration) float64 {
	if elapsed < minElapsed {
		elapsed = minElapsed
	}
	return float64(count) * float64(size) * 8 / elapsed.Seconds()
}

// Finish sends the transport's termination signal and releases the channel.
func (d *Driver) Finish(ch Channel) error {
	err := ch.SendTerminate()
	if cerr := ch.Close(); err == nil {
		err = cerr
	}
	return err
}
