// Command fskmodem sends and receives text over an acoustic FSK link and
// simulates the link through an underwater channel model.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/jeongseonghan/acoustic-modem/internal/audio"
	"github.com/jeongseonghan/acoustic-modem/internal/audio/device"
	"github.com/jeongseonghan/acoustic-modem/internal/channel"
	"github.com/jeongseonghan/acoustic-modem/internal/config"
	"github.com/jeongseonghan/acoustic-modem/internal/report"
	"github.com/jeongseonghan/acoustic-modem/internal/server"
	"github.com/jeongseonghan/acoustic-modem/internal/sim"
	"github.com/jeongseonghan/acoustic-modem/internal/station"
	"github.com/jeongseonghan/acoustic-modem/internal/wavio"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, args []string) error
}

var commands = []command{
	{"send", "send [flags] TEXT...      play a text packet (or a tone with --tone)", runSend},
	{"listen", "listen [flags]            decode packets from the microphone", runListen},
	{"decode", "decode [flags] FILE.wav   decode packets from a recording", runDecode},
	{"simulate", "simulate [flags]          run the link through the channel model", runSimulate},
	{"serve", "serve [flags]             start the HTTP API and websocket monitor", runServe},
	{"devices", "devices                   list audio devices", runDevices},
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: fskmodem COMMAND [flags]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %s\n", c.usage)
	}
	fmt.Fprintf(os.Stderr, "\nRun 'fskmodem COMMAND --help' for command flags.\n")
}

func main() {
	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "--help" {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	name := os.Args[1]
	for _, c := range commands {
		if c.name == name {
			err := c.run(ctx, os.Args[2:])
			if errors.Is(err, pflag.ErrHelp) {
				return
			}
			if err != nil {
				log.WithField("command", name).Fatal(err)
			}
			return
		}
	}
	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}

// common holds the flags every command accepts.
type common struct {
	configPath string
	logLevel   string
	logJSON    bool
	bitRate    float64
	medium     string
	distance   float64
}

func addCommon(fs *pflag.FlagSet) *common {
	c := &common{}
	fs.StringVarP(&c.configPath, "config", "c", "", "YAML config file")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.BoolVar(&c.logJSON, "log-json", false, "Log as JSON")
	fs.Float64VarP(&c.bitRate, "bit-rate", "b", 0, "Bit rate in bps (overrides config)")
	return c
}

func addChannel(fs *pflag.FlagSet, c *common) {
	fs.StringVarP(&c.medium, "medium", "m", "", "Channel medium: none, saltwater, freshwater, coastal, arctic")
	fs.Float64VarP(&c.distance, "distance", "d", 0, "Link distance in metres (overrides config)")
}

// load reads the config file, applies flag overrides and sets up logging.
func (c *common) load(fs *pflag.FlagSet) (*config.File, error) {
	f := config.Default()
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath)
		if err != nil {
			return nil, err
		}
		f = loaded
	}
	if fs.Changed("log-level") {
		f.Log.Level = c.logLevel
	}
	if fs.Changed("log-json") {
		f.Log.JSON = c.logJSON
	}
	if fs.Changed("bit-rate") {
		f.Modem.BitRate = c.bitRate
	}
	if fs.Changed("medium") {
		m, err := channel.ParseMedium(c.medium)
		if err != nil {
			return nil, err
		}
		f.Channel.Medium = m
	}
	if fs.Changed("distance") {
		f.Channel.Distance = c.distance
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := f.Log.Apply(); err != nil {
		return nil, err
	}
	log.WithField("config", c.configPath).Debug("Config loaded")
	return f, nil
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false
	return fs
}

func stationOptions(f *config.File) (station.Options, error) {
	mc, err := f.ModemConfig()
	if err != nil {
		return station.Options{}, err
	}
	return station.Options{Modem: mc, Layout: f.Packet, Level: f.Audio.Level}, nil
}

// openAudio initializes PortAudio and opens a stream. The returned func
// releases both.
func openAudio(f *config.File) (*audio.Stream, func(), error) {
	if err := audio.Init(); err != nil {
		return nil, nil, err
	}
	stream, err := audio.NewStream(audio.Options{SampleRate: f.Audio.SampleRate, BlockSize: f.Audio.BlockSize})
	if err != nil {
		audio.Terminate()
		return nil, nil, err
	}
	return stream, func() {
		if err := stream.Close(); err != nil {
			log.WithError(err).Warn("Close audio stream")
		}
		audio.Terminate()
	}, nil
}

func runSend(ctx context.Context, args []string) error {
	fs := newFlagSet("send")
	c := addCommon(fs)
	tone := fs.Float64("tone", 0, "Play a calibration tone at this frequency in Hz instead of a packet")
	seconds := fs.Float64("seconds", 2, "Tone duration in seconds")
	out := fs.StringP("out", "o", "", "Write the packet waveform to this WAV file instead of playing it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := c.load(fs)
	if err != nil {
		return err
	}
	opts, err := stationOptions(f)
	if err != nil {
		return err
	}
	text := strings.Join(fs.Args(), " ")

	if *out != "" {
		st, err := station.New(opts, nil, nil)
		if err != nil {
			return err
		}
		wave, err := st.Waveform(st.NextText(text))
		if err != nil {
			return err
		}
		if err := wavio.WriteFile(*out, wave, int(opts.Modem.SampleRate)); err != nil {
			return err
		}
		log.WithFields(log.Fields{"file": *out, "samples": len(wave)}).Info("Waveform written")
		return nil
	}

	stream, release, err := openAudio(f)
	if err != nil {
		return err
	}
	defer release()
	st, err := station.New(opts, stream, nil)
	if err != nil {
		return err
	}
	if *tone > 0 {
		return st.PlayTone(ctx, *tone, *seconds)
	}
	if text == "" {
		return fmt.Errorf("send needs TEXT or --tone")
	}
	_, err = st.Send(ctx, text)
	return err
}

func runListen(ctx context.Context, args []string) error {
	fs := newFlagSet("listen")
	c := addCommon(fs)
	squelch := fs.Float64("squelch", -1, "Peak level that wakes the receiver (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := c.load(fs)
	if err != nil {
		return err
	}
	if *squelch >= 0 {
		f.Modem.Squelch = *squelch
	}
	opts, err := stationOptions(f)
	if err != nil {
		return err
	}

	stream, release, err := openAudio(f)
	if err != nil {
		return err
	}
	defer release()
	st, err := station.New(opts, nil, stream)
	if err != nil {
		return err
	}

	go printEvents(ctx, st.Events())
	return st.Listen(ctx)
}

func printEvents(ctx context.Context, events <-chan station.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			switch e.Kind {
			case station.EventReceived:
				fmt.Printf("[%s #%d] %s\n", e.Type, e.Seq, e.Text)
			case station.EventCorrupt, station.EventError:
				fmt.Printf("[%s] %s\n", e.Kind, e.Error)
			}
		}
	}
}

func runDecode(_ context.Context, args []string) error {
	fs := newFlagSet("decode")
	c := addCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("decode needs exactly one WAV file")
	}
	f, err := c.load(fs)
	if err != nil {
		return err
	}
	samples, rate, err := wavio.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	opts, err := stationOptions(f)
	if err != nil {
		return err
	}
	if float64(rate) != opts.Modem.SampleRate {
		log.WithFields(log.Fields{"file": rate, "config": opts.Modem.SampleRate}).Warn("Using the recording's sample rate")
		opts.Modem.SampleRate = float64(rate)
	}

	st, err := station.New(opts, nil, nil)
	if err != nil {
		return err
	}
	packets, err := st.Decode(samples)
	if err != nil {
		return err
	}
	for _, p := range packets {
		fmt.Printf("[%s #%d] %s\n", p.Type, p.Seq, p.Payload)
	}
	log.WithField("packets", len(packets)).Info("Decode finished")
	return nil
}

func runSimulate(ctx context.Context, args []string) error {
	fs := newFlagSet("simulate")
	c := addCommon(fs)
	addChannel(fs, c)
	bits := fs.IntP("bits", "n", 64, "Random data bits per trial")
	seed := fs.Int64("seed", 1, "Payload and noise seed")
	distances := fs.Float64Slice("sweep", nil, "Distances in metres to sweep, e.g. 10,100,1000")
	trials := fs.IntP("trials", "t", 5, "Trials per sweep distance")
	chart := fs.String("chart", "", "Write an HTML chart to this file")
	wavOut := fs.String("wav", "", "Write the received waveform to this WAV file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := c.load(fs)
	if err != nil {
		return err
	}
	mc, err := f.ModemConfig()
	if err != nil {
		return err
	}

	params := f.ChannelParameters()
	params.Seed = *seed
	sc := sim.Scenario{
		Modem:    mc,
		Channel:  params,
		DataBits: *bits,
		Seed:     *seed,
		Lead:     sim.DefaultScenario().Lead,
		Trail:    sim.DefaultScenario().Trail,
	}

	if len(*distances) > 0 {
		points, err := sim.Sweep(ctx, sc, *distances, *trials)
		if err != nil {
			return err
		}
		fmt.Printf("%-12s %-10s %s\n", "distance_m", "mean_ber", "lost")
		for _, p := range points {
			fmt.Printf("%-12g %-10.4f %d/%d\n", p.Distance, p.MeanBER, p.Lost, p.Trials)
		}
		if *chart != "" {
			return writeChart(*chart, func(w *os.File) error {
				return report.RenderSweep(w, points, params.Medium.String())
			})
		}
		return nil
	}

	res, err := sim.Run(ctx, sc)
	if err != nil {
		return err
	}
	fmt.Printf("medium:   %s\n", res.Medium)
	fmt.Printf("distance: %g m\n", res.Distance)
	fmt.Printf("found:    %v (score %.3f, offset %d)\n", res.Found, res.Score, res.Offset)
	fmt.Printf("sent:     %s\n", bitString(res.TxBits))
	fmt.Printf("received: %s\n", bitString(res.RxBits))
	fmt.Printf("BER:      %.4f (%d errors)\n", res.BER, res.Errors)

	if *wavOut != "" {
		if err := wavio.WriteFile(*wavOut, res.RxSignal, int(mc.SampleRate)); err != nil {
			return err
		}
	}
	if *chart != "" {
		return writeChart(*chart, func(w *os.File) error {
			return report.RenderRun(w, res, mc)
		})
	}
	return nil
}

func writeChart(path string, render func(*os.File) error) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart: %w", err)
	}
	if err := render(out); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	log.WithField("file", path).Info("Chart written")
	return nil
}

func bitString(bits []byte) string {
	var b strings.Builder
	for _, bit := range bits {
		b.WriteByte('0' + bit)
	}
	return b.String()
}

func runServe(ctx context.Context, args []string) error {
	fs := newFlagSet("serve")
	c := addCommon(fs)
	addChannel(fs, c)
	addr := fs.String("addr", "", "Listen address (overrides config)")
	static := fs.String("static", "", "Static web directory (overrides config)")
	listen := fs.Bool("listen", false, "Capture from the microphone and stream decoded packets")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := c.load(fs)
	if err != nil {
		return err
	}
	if *addr != "" {
		f.Server.Addr = *addr
	}
	if *static != "" {
		f.Server.StaticDir = *static
	}
	opts, err := stationOptions(f)
	if err != nil {
		return err
	}

	var (
		capturer station.Capturer
		devices  server.DeviceLister
	)
	if *listen {
		stream, release, err := openAudio(f)
		if err != nil {
			return err
		}
		defer release()
		capturer = stream
		devices = audio.Devices
	}
	st, err := station.New(opts, nil, capturer)
	if err != nil {
		return err
	}

	sc := sim.DefaultScenario()
	sc.Modem = opts.Modem
	sc.Channel = f.ChannelParameters()

	srv := server.NewServer(f.Server.Addr, server.NewHandlers(st, sc, devices), f.Server.StaticDir)
	fmt.Printf("\n  Acoustic modem server running at http://%s\n\n", f.Server.Addr)
	return srv.Start(ctx, *listen)
}

func runDevices(_ context.Context, args []string) error {
	fs := newFlagSet("devices")
	c := addCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := c.load(fs); err != nil {
		return err
	}
	if err := audio.Init(); err != nil {
		return err
	}
	defer audio.Terminate()

	report, err := audio.Devices()
	if err != nil {
		return err
	}
	device.Write(os.Stdout, report)
	return nil
}
