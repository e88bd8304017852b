package learner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	ilrep "github.com/HumanCompatibleAI/il-representations"
	"github.com/HumanCompatibleAI/il-representations/augmenters"
	"github.com/HumanCompatibleAI/il-representations/decoders"
	"github.com/HumanCompatibleAI/il-representations/encoders"
	"github.com/HumanCompatibleAI/il-representations/extenders"
	"github.com/HumanCompatibleAI/il-representations/losses"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec/anyvec32"
)

var testShape = ilrep.ImageShape{Width: 12, Height: 12, Depth: 2}

func TestFetcherRejectsChannelsLast(t *testing.T) {
	c := anyvec32.CurrentCreator()
	_, err := NewFetcher(c, ilrep.ImageShape{Width: 3, Height: 12, Depth: 12})
	if err == nil {
		t.Error("expected error for a channels-last shape")
	}
}

func TestFetcherPermute(t *testing.T) {
	c := anyvec32.CurrentCreator()
	f, err := NewFetcher(c, ilrep.ImageShape{Width: 3, Height: 3, Depth: 2})
	if err != nil {
		t.Fatal(err)
	}
	f.NormalizePixels = false

	// Channels-first: all of channel 0, then all of channel 1.
	obs := make([]float32, 18)
	for i := range obs {
		obs[i] = float32(i)
	}
	sample := &PairSample{
		Context: anyvec32.MakeVectorData(obs),
		Target:  anyvec32.MakeVectorData(obs),
	}
	raw, err := f.Fetch(SlicePairList{sample})
	if err != nil {
		t.Fatal(err)
	}
	out := raw.(*Batch).Contexts.Data().([]float32)
	// Depth-minor: pixel (y, x) holds channels 0 and 1 adjacently.
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			base := (y*3 + x) * 2
			if out[base] != float32(y*3+x) || out[base+1] != float32(9+y*3+x) {
				t.Fatalf("pixel (%d,%d): got %f,%f", y, x, out[base], out[base+1])
			}
		}
	}
}

func TestFetcherNormalizes(t *testing.T) {
	c := anyvec32.CurrentCreator()
	f, err := NewFetcher(c, ilrep.ImageShape{Width: 3, Height: 3, Depth: 1})
	if err != nil {
		t.Fatal(err)
	}
	obs := make([]float32, 9)
	for i := range obs {
		obs[i] = 255
	}
	sample := &PairSample{
		Context: anyvec32.MakeVectorData(obs),
		Target:  anyvec32.MakeVectorData(obs),
	}
	raw, err := f.Fetch(SlicePairList{sample})
	if err != nil {
		t.Fatal(err)
	}
	for _, x := range raw.(*Batch).Contexts.Data().([]float32) {
		if x != 1 {
			t.Errorf("expected 1 but got %f", x)
			break
		}
	}
}

func TestFetcherBadSample(t *testing.T) {
	c := anyvec32.CurrentCreator()
	f, err := NewFetcher(c, ilrep.ImageShape{Width: 3, Height: 3, Depth: 1})
	if err != nil {
		t.Fatal(err)
	}
	sample := &PairSample{
		Context: anyvec32.MakeVectorData(make([]float32, 4)),
		Target:  anyvec32.MakeVectorData(make([]float32, 9)),
	}
	if _, err := f.Fetch(SlicePairList{sample}); err == nil {
		t.Error("expected error for a mis-sized sample")
	}
}

func TestFetcherInconsistentExtra(t *testing.T) {
	c := anyvec32.CurrentCreator()
	f, err := NewFetcher(c, ilrep.ImageShape{Width: 3, Height: 3, Depth: 1})
	if err != nil {
		t.Fatal(err)
	}
	f.ExtraSize = 2
	with := &PairSample{
		Context:      anyvec32.MakeVectorData(make([]float32, 9)),
		Target:       anyvec32.MakeVectorData(make([]float32, 9)),
		ExtraContext: anyvec32.MakeVectorData([]float32{1, 2}),
	}
	without := &PairSample{
		Context: anyvec32.MakeVectorData(make([]float32, 9)),
		Target:  anyvec32.MakeVectorData(make([]float32, 9)),
	}
	if _, err := f.Fetch(SlicePairList{with, without}); err == nil {
		t.Error("expected error for partially present extra context")
	}
	if _, err := f.Fetch(SlicePairList{without, with}); err == nil {
		t.Error("expected error for partially present extra context")
	}
}

// countingExtender wraps another extender and counts Extend calls,
// which equals the number of optimizer updates taken.
type countingExtender struct {
	Wrapped ilrep.BatchExtender
	Calls   int
}

func (c *countingExtender) Extend(context, target *ilrep.Distribution) (*ilrep.Distribution,
	*ilrep.Distribution) {
	c.Calls++
	return c.Wrapped.Extend(context, target)
}

// modeRecorder records SetTrainMode transitions.
type modeRecorder struct {
	ilrep.LossDecoder
	Modes []bool
}

func (m *modeRecorder) SetTrainMode(train bool) {
	m.Modes = append(m.Modes, train)
}

func newTestLearner(t *testing.T, decoder ilrep.LossDecoder,
	extender ilrep.BatchExtender) *Learner {
	c := anyvec32.CurrentCreator()
	fetcher, err := NewFetcher(c, testShape)
	if err != nil {
		t.Fatal(err)
	}
	enc, err := encoders.NewCNN(c, testShape, 4,
		encoders.CNNConfig{Arch: "SmallCNN", Hidden: 8})
	if err != nil {
		t.Fatal(err)
	}
	return &Learner{
		Fetcher:     fetcher,
		Encoder:     enc,
		Decoder:     decoder,
		Extender:    extender,
		Loss:        &losses.CrossEntropy{Temperature: 0.5},
		Params:      enc.Parameters(),
		Transformer: &anysgd.Adam{},
		Rater:       anysgd.ConstRater(0.001),
		BatchSize:   2,
	}
}

func testSamples(n int) SlicePairList {
	res := make(SlicePairList, n)
	for i := range res {
		obs := make([]float32, testShape.Size())
		for j := range obs {
			obs[j] = float32((i*31 + j*7) % 255)
		}
		res[i] = &PairSample{
			Context:    anyvec32.MakeVectorData(obs),
			Target:     anyvec32.MakeVectorData(obs),
			Trajectory: i,
			Timestep:   i,
		}
	}
	return res
}

func TestLearnerRuns(t *testing.T) {
	c := anyvec32.CurrentCreator()
	l := newTestLearner(t, &decoders.NoOp{Dim: 4},
		extenders.NewQueue(c, 8, 4))
	history, err := l.Learn(testSamples(6), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 epoch losses but got %d", len(history))
	}
}

func TestLearnerStepCap(t *testing.T) {
	// 10 samples at batch size 2 is 5 batches; a cap of 2 must
	// take exactly 2 optimizer updates per epoch and still run
	// end-of-epoch bookkeeping once.
	counter := &countingExtender{Wrapped: extenders.Identity{}}
	recorder := &modeRecorder{LossDecoder: &decoders.NoOp{Dim: 4}}
	l := newTestLearner(t, recorder, counter)
	l.MaxStepsPerEpoch = 2

	history, err := l.Learn(testSamples(10), 1)
	if err != nil {
		t.Fatal(err)
	}
	if counter.Calls != 2 {
		t.Errorf("expected 2 updates but got %d", counter.Calls)
	}
	if len(history) != 1 {
		t.Errorf("expected 1 epoch loss but got %d", len(history))
	}
	expected := []bool{true, false}
	if len(recorder.Modes) != len(expected) {
		t.Fatalf("expected %d mode switches but got %d",
			len(expected), len(recorder.Modes))
	}
	for i, x := range expected {
		if recorder.Modes[i] != x {
			t.Errorf("mode switch %d: expected %v but got %v",
				i, x, recorder.Modes[i])
		}
	}
}

func TestLearnerCheckpoints(t *testing.T) {
	dir := t.TempDir()
	l := newTestLearner(t, &decoders.NoOp{Dim: 4}, extenders.Identity{})
	l.MaxStepsPerEpoch = 1
	l.SaveInterval = 2
	l.LogDir = dir

	if _, err := l.Learn(testSamples(4), 3); err != nil {
		t.Fatal(err)
	}
	for _, epoch := range []int{0, 2} {
		for _, component := range []string{EncoderCheckpoint, DecoderCheckpoint} {
			if _, err := os.Stat(CheckpointPath(dir, component, epoch)); err != nil {
				t.Errorf("missing checkpoint: %s epoch %d", component, epoch)
			}
		}
	}
	if _, err := os.Stat(CheckpointPath(dir, EncoderCheckpoint, 1)); err == nil {
		t.Error("epoch 1 should not be checkpointed at interval 2")
	}

	obj, err := LoadCheckpoint(dir, EncoderCheckpoint, 2)
	if err != nil {
		t.Fatal(err)
	}
	enc, ok := obj.(*encoders.CNN)
	if !ok {
		t.Fatalf("checkpoint loaded as %T", obj)
	}
	if enc.ReprDim() != 4 {
		t.Errorf("expected repr dim 4 but got %d", enc.ReprDim())
	}
}

func TestLearnerLogging(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatal(err)
	}
	l := newTestLearner(t, &decoders.NoOp{Dim: 4}, extenders.Identity{})
	l.MaxStepsPerEpoch = 2
	l.Logger = logger

	if _, err := l.Learn(testSamples(4), 1); err != nil {
		t.Fatal(err)
	}
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "progress.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows but got %d lines", len(lines))
	}
	if !strings.Contains(lines[0], "loss") {
		t.Errorf("header should contain the loss column: %q", lines[0])
	}
}

func TestConfigLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	conf := `
log_dir: /tmp/run
channels: 3
height: 84
width: 84
queue_size: 4096
`
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Arch != "BasicCNN" || loaded.BatchSize != 256 {
		t.Error("defaults should be applied")
	}
	if loaded.ProjectionDim != loaded.RepresentationDim {
		t.Error("projection dim should default to the representation dim")
	}
}

func TestConfigUnknownKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	conf := `
channels: 3
height: 84
width: 84
learning_rte: 0.01
`
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestConfigValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	conf := `
channels: 84
height: 3
width: 84
`
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for a channels-last shape")
	}
}

func TestBuild(t *testing.T) {
	c := anyvec32.CurrentCreator()
	conf := &Config{
		LogDir:            t.TempDir(),
		Channels:          testShape.Depth,
		Height:            testShape.Height,
		Width:             testShape.Width,
		Arch:              "SmallCNN",
		RepresentationDim: 4,
		BatchSize:         2,
		QueueSize:         8,
		MaxStepsPerEpoch:  1,
	}
	conf.Default()
	if err := conf.Validate(); err != nil {
		t.Fatal(err)
	}
	l, err := Build(c, conf)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Logger.Close()

	if _, ok := l.Decoder.(*decoders.MomentumProjectionHead); !ok {
		t.Errorf("decoder built as %T", l.Decoder)
	}
	if _, ok := l.Extender.(*extenders.Queue); !ok {
		t.Errorf("extender built as %T", l.Extender)
	}
	history, err := l.Learn(testSamples(4), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 epoch loss but got %d", len(history))
	}
	if _, err := os.Stat(CheckpointPath(conf.LogDir, EncoderCheckpoint, 0)); err != nil {
		t.Error("missing encoder checkpoint for epoch 0")
	}
}

func TestBuildBadAugmentation(t *testing.T) {
	c := anyvec32.CurrentCreator()
	conf := &Config{
		Channels: testShape.Depth,
		Height:   testShape.Height,
		Width:    testShape.Width,
		Arch:     "SmallCNN",
		Augmentation: []augmenters.TransformSpec{
			{Name: "pad", Size: 2},
		},
	}
	conf.Default()
	if _, err := Build(c, conf); err == nil {
		t.Error("expected error for shape-changing augmentation")
	}
}

func TestLoggerRejectsNewKeys(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()

	logger.Record("loss", 1)
	if err := logger.Dump(0); err != nil {
		t.Fatal(err)
	}
	logger.Record("loss", 2)
	logger.Record("surprise", 3)
	if err := logger.Dump(1); err == nil {
		t.Error("expected error for a key missing from the header")
	}
}
