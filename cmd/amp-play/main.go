package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/ebitengine/oto/v3"
	"golang.org/x/term"

	"github.com/cwbudde/algo-tubeamp/amp"
	"github.com/cwbudde/algo-tubeamp/internal/audioio"
	"github.com/cwbudde/algo-tubeamp/internal/live"
	"github.com/cwbudde/algo-tubeamp/preset"
)

func main() {
	inputPath := flag.String("input", "", "DI input WAV path")
	presetPath := flag.String("preset", "", "Preset JSON file path (empty = defaults)")
	sampleRate := flag.Int("sample-rate", 48000, "Playback sample rate in Hz")
	stereo := flag.Bool("stereo", true, "Play the mono result on both channels")
	loop := flag.Bool("loop", true, "Loop the input")
	bufferMS := flag.Int("buffer-ms", 40, "Output buffer length in milliseconds")
	flag.Parse()

	if *inputPath == "" {
		die("-input is required")
	}
	params := amp.NewDefaultParams()
	if *presetPath != "" {
		p, err := preset.LoadJSON(*presetPath)
		if err != nil {
			die("Error loading preset %q: %v", *presetPath, err)
		}
		params = p
	}
	in, err := audioio.ReadMonoAt(*inputPath, *sampleRate)
	if err != nil {
		die("Error reading input %q: %v", *inputPath, err)
	}
	a, err := amp.NewAmplifier(*sampleRate, params)
	if err != nil {
		die("Error building amplifier: %v", err)
	}
	controls := amp.NewControls(a)

	channels := 1
	if *stereo {
		channels = 2
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   *sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   time.Duration(*bufferMS) * time.Millisecond,
	})
	if err != nil {
		die("Error opening audio output: %v", err)
	}
	<-ready

	stream := live.NewStream(a, controls, in, channels, *loop)
	player := ctx.NewPlayer(stream)
	player.Play()
	defer player.Close()

	quit := make(chan struct{})
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			die("Error switching terminal to raw mode: %v", err)
		}
		defer func() { _ = term.Restore(fd, oldState) }()
		fmt.Printf("%s\r\n%s\r\n", live.Help, live.Status(controls))
		go readKeys(controls, quit)
	} else {
		fmt.Println("stdin is not a terminal; knobs are fixed. Press Ctrl-C to stop.")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-quit:
			return
		case <-sig:
			return
		case <-tick.C:
			if !player.IsPlaying() {
				if err := player.Err(); err != nil {
					fmt.Fprintf(os.Stderr, "playback error: %v\r\n", err)
				}
				return
			}
		}
	}
}

func readKeys(c *amp.Controls, quit chan<- struct{}) {
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			close(quit)
			return
		}
		switch live.HandleKey(c, buf[0]) {
		case live.ActionQuit:
			close(quit)
			return
		case live.ActionChanged:
			fmt.Printf("\r%s", live.Status(c))
		}
	}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
