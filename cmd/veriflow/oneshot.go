package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/normanking/veriflow/internal/analysis"
	"github.com/normanking/veriflow/internal/avatar"
	"github.com/normanking/veriflow/internal/avatar3d"
	"github.com/normanking/veriflow/internal/chart"
	"github.com/normanking/veriflow/internal/scene"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(chart.Palette[0]))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#a0a0a0"))
	valueStyle = lipgloss.NewStyle().Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(chart.Palette[2]))
)

// barWidth is the longest terminal bar drawn by ask.
const barWidth = 30

// ═══════════════════════════════════════════════════════════════════════════════
// ASK / CHART
// ═══════════════════════════════════════════════════════════════════════════════

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the dataset (one-shot query)",
		Long: `Ask a question and print the summary with a terminal chart.

Examples:
  veriflow ask "Show the 3 most expensive products"
  veriflow ask "Stock distribution by category"`,
		Args:          cobra.MinimumNArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := analyzeOnce(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render("Error: "+analysis.UserMessage(err)))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderAnswer(res))
			return nil
		},
	}
}

func chartCmd() *cobra.Command {
	var (
		out    string
		width  int
		height int
	)

	cmd := &cobra.Command{
		Use:   "chart [question]",
		Short: "Render the chart answering a question to a PNG or SVG file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := chart.ParseFormat(strings.TrimPrefix(filepath.Ext(out), "."))
			if err != nil {
				return err
			}

			question := strings.Join(args, " ")
			res, err := analyzeOnce(cmd.Context(), question)
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			defer f.Close()

			if err := chart.Render(f, res.Chart, format, chart.Options{Width: width, Height: height, Title: question}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", labelStyle.Render("wrote"), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "chart.png", "output file (.png or .svg)")
	cmd.Flags().IntVar(&width, "width", chart.DefaultWidth, "image width")
	cmd.Flags().IntVar(&height, "height", chart.DefaultHeight, "image height")
	return cmd
}

func analyzeOnce(ctx context.Context, question string) (*analysis.Result, error) {
	data, err := loadDataset(cfg.Dataset.Path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	res, err := newAnalyzer().Analyze(ctx, question, data)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, analysis.ErrAnalysisUnavailable
	}
	return res, nil
}

// renderAnswer prints the summary followed by a horizontal bar per data point.
func renderAnswer(res *analysis.Result) string {
	var b strings.Builder
	b.WriteString(res.Summary)

	if !res.Chart.Renderable() {
		return b.String()
	}

	b.WriteString("\n\n")
	b.WriteString(titleStyle.Render(strings.ToUpper(string(res.Chart.Type)) + " chart"))
	b.WriteString("\n")

	longest := lo.Max(lo.Map(res.Chart.Data, func(p analysis.DataPoint, _ int) int { return lipgloss.Width(p.Name) }))
	peak := lo.MaxBy(res.Chart.Data, func(a, b analysis.DataPoint) bool { return a.Value > b.Value }).Value
	total := lo.SumBy(res.Chart.Data, func(p analysis.DataPoint) float64 { return max(p.Value, 0) })

	for i, p := range res.Chart.Data {
		n := 0
		if peak > 0 && p.Value > 0 {
			n = max(1, int(p.Value/peak*barWidth))
		}
		bar := lipgloss.NewStyle().Foreground(lipgloss.Color(chart.Palette[i%len(chart.Palette)])).Render(strings.Repeat("█", n))

		value := fmt.Sprintf("%g", p.Value)
		if res.Chart.Type == analysis.ChartPie && total > 0 {
			value = fmt.Sprintf("%g (%.0f%%)", p.Value, p.Value/total*100)
		}
		fmt.Fprintf(&b, "%s %s %s\n", labelStyle.Render(fmt.Sprintf("%-*s", longest, p.Name)), bar, valueStyle.Render(value))
	}
	return strings.TrimRight(b.String(), "\n")
}

// ═══════════════════════════════════════════════════════════════════════════════
// AVATAR RIG
// ═══════════════════════════════════════════════════════════════════════════════

type rigFlags struct {
	mood    string
	overlay string
	frames  int
	dt      float64
	seed    int64
}

func (f *rigFlags) register(cmd *cobra.Command, frames int) {
	cmd.Flags().StringVar(&f.mood, "mood", string(avatar.MoodIdle), "mood: idle, listening, thinking or speaking")
	cmd.Flags().StringVar(&f.overlay, "overlay", string(avatar.OverlayDefault), "overlay: default, user_typing, confirmation or analysis_complete")
	cmd.Flags().IntVar(&f.frames, "frames", frames, "frames to simulate")
	cmd.Flags().Float64Var(&f.dt, "dt", 1.0/60, "seconds per frame")
	cmd.Flags().Int64Var(&f.seed, "seed", 1, "random seed for blinks and glances")
}

// simulate drives a headless rig in the requested state, calling fn after each frame.
func (f *rigFlags) simulate(fn func(avatar3d.Pose) error) (avatar3d.Pose, error) {
	mood, err := avatar.ParseMood(f.mood)
	if err != nil {
		return avatar3d.Pose{}, err
	}
	overlay, err := avatar.ParseOverlay(f.overlay)
	if err != nil {
		return avatar3d.Pose{}, err
	}
	if f.frames < 0 || f.dt <= 0 {
		return avatar3d.Pose{}, fmt.Errorf("frames must be >= 0 and dt > 0")
	}

	// A manual clock keeps timed overlays pinned for the whole run.
	ctrl := avatar.NewController(avatar.WithScheduler(avatar.NewManualScheduler()))
	defer ctrl.Close()
	switch mood {
	case avatar.MoodListening:
		ctrl.SetListening(true)
	case avatar.MoodThinking:
		ctrl.SetLoading(true)
	case avatar.MoodSpeaking:
		ctrl.SetSpeaking(true)
	}
	ctrl.SetOverlay(overlay)

	av := avatar3d.NewAvatar(ctrl, rand.New(rand.NewSource(f.seed)))
	pose := av.Pose()
	for i := 0; i < f.frames; i++ {
		pose = av.Update(float32(f.dt))
		if fn != nil {
			if err := fn(pose); err != nil {
				return pose, err
			}
		}
	}
	return pose, nil
}

func poseCmd() *cobra.Command {
	var flags rigFlags

	cmd := &cobra.Command{
		Use:   "pose",
		Short: "Run the avatar rig headless and print each pose as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			_, err := flags.simulate(func(p avatar3d.Pose) error { return enc.Encode(p) })
			return err
		},
	}
	flags.register(cmd, 60)
	return cmd
}

func exportSceneCmd() *cobra.Command {
	var (
		flags rigFlags
		out   string
	)

	cmd := &cobra.Command{
		Use:   "export-scene",
		Short: "Pose the robot and save it as a glTF scene",
		RunE: func(cmd *cobra.Command, args []string) error {
			pose, err := flags.simulate(nil)
			if err != nil {
				return err
			}
			robot := scene.NewRobot()
			robot.Apply(pose)
			if err := robot.Save(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s, %s, t=%.2fs)\n",
				labelStyle.Render("wrote"), out, pose.Mood, pose.Overlay, pose.Time)
			return nil
		},
	}
	flags.register(cmd, 90)
	cmd.Flags().StringVarP(&out, "out", "o", "robot.glb", "output file (.glb or .gltf)")
	return cmd
}
