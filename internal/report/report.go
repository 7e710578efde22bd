// Package report renders simulation results as interactive HTML charts.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	log "github.com/sirupsen/logrus"

	"github.com/jeongseonghan/acoustic-modem/internal/modem"
	"github.com/jeongseonghan/acoustic-modem/internal/sim"
)

// PreviewSymbols is how many bit periods the waveform panels show.
const PreviewSymbols = 20

// RenderRun writes the four-panel view of one simulated link: the
// transmitted, received and filtered waveforms over the first symbols and a
// comparison of sent and decoded bits.
func RenderRun(w io.Writer, res sim.Result, cfg modem.Config) error {
	start := time.Now()
	spb := cfg.SamplesPerBit()
	n := PreviewSymbols * spb

	page := components.NewPage()
	page.PageTitle = "FSK link simulation"
	page.AddCharts(
		waveformChart("Transmitted FSK",
			fmt.Sprintf("bit rate %g bps, 0 = %g Hz, 1 = %g Hz", cfg.BitRate, cfg.Freq0, cfg.Freq1),
			res.TxSignal, n),
		waveformChart("Received",
			fmt.Sprintf("%s, %g m", res.Medium, res.Distance),
			res.RxSignal, n),
		waveformChart("Filtered",
			fmt.Sprintf("bandpass %.0f-%.0f Hz", min(cfg.Freq0, cfg.Freq1)-cfg.GuardBand, max(cfg.Freq0, cfg.Freq1)+cfg.GuardBand),
			res.Filtered, n),
		bitChart(res),
	)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render run: %w", err)
	}
	log.WithField("time", time.Since(start)).Debug("Run report rendered")
	return nil
}

// RenderSweep writes the BER-vs-distance chart of a sweep.
func RenderSweep(w io.Writer, points []sim.Point, medium string) error {
	line := newLine("Bit error rate vs distance", medium, "Distance, m", "BER")

	x := make([]string, len(points))
	ber := make([]opts.LineData, len(points))
	lost := make([]opts.LineData, len(points))
	for i, p := range points {
		x[i] = fmt.Sprintf("%g", p.Distance)
		ber[i] = opts.LineData{Value: p.MeanBER}
		lost[i] = opts.LineData{Value: float64(p.Lost) / float64(max(p.Trials, 1))}
	}
	line.SetXAxis(x).
		AddSeries("Mean BER", ber).
		AddSeries("Lost frames", lost)

	if err := line.Render(w); err != nil {
		return fmt.Errorf("render sweep: %w", err)
	}
	return nil
}

func waveformChart(title, subtitle string, signal []float64, n int) *charts.Line {
	line := newLine(title, subtitle, "Time, samples", "Amplitude")
	n = min(n, len(signal))
	x := make([]int, n)
	data := make([]opts.LineData, n)
	for i := range n {
		x[i] = i
		data[i] = opts.LineData{Value: signal[i]}
	}
	line.SetXAxis(x).AddSeries(title, data)
	return line
}

func bitChart(res sim.Result) *charts.Line {
	errs := 0
	n := min(PreviewSymbols, len(res.TxBits))
	x := make([]int, n)
	tx := make([]opts.LineData, n)
	rx := make([]opts.LineData, n)
	marks := make([]opts.LineData, n)
	for i := range n {
		x[i] = i
		tx[i] = opts.LineData{Value: int(res.TxBits[i])}
		// "-" leaves a gap in the series.
		rx[i] = opts.LineData{Value: "-"}
		marks[i] = opts.LineData{Value: "-"}
		if i < len(res.RxBits) {
			rx[i] = opts.LineData{Value: int(res.RxBits[i])}
			if res.RxBits[i] != res.TxBits[i] {
				marks[i] = opts.LineData{Value: 0.5}
				errs++
			}
		}
	}

	subtitle := fmt.Sprintf("%d errors in first %d bits, BER %.4f", errs, n, res.BER)
	if !res.Found {
		subtitle = "preamble not found"
	}
	line := newLine("Bit comparison", subtitle, "Bit position", "Value")
	line.SetXAxis(x).
		AddSeries("Transmitted", tx).
		AddSeries("Received", rx).
		AddSeries("Errors", marks)
	return line
}

func newLine(title, subtitle, xName, yName string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			BackgroundColor: "#ffffff",
			Width:           "100%",
			Height:          "360px",
			PageTitle:       title,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: subtitle,
		}),
		charts.WithDataZoomOpts(opts.DataZoom{
			Type:       "inside",
			Start:      0,
			End:        100,
			XAxisIndex: []int{0},
		}),
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(true),
			Top:  "5%",
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
		charts.WithToolboxOpts(opts.Toolbox{
			Show: opts.Bool(true),
			Feature: &opts.ToolBoxFeature{
				SaveAsImage: &opts.ToolBoxFeatureSaveAsImage{
					Show:  opts.Bool(true),
					Type:  "png",
					Title: "Save as image",
				},
			},
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name: xName,
			SplitLine: &opts.SplitLine{
				Show: opts.Bool(true),
			},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name:  yName,
			Type:  "value",
			Scale: opts.Bool(true),
		}),
	)
	return line
}
