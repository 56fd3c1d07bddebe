package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/multi-agent/run-transcript/internal/config"
	"github.com/multi-agent/run-transcript/internal/content"
	"github.com/multi-agent/run-transcript/internal/datamodel"
	"github.com/multi-agent/run-transcript/internal/runview"
	"github.com/multi-agent/run-transcript/internal/termrender"
	pkgerr "github.com/multi-agent/run-transcript/pkg/errors"
	"github.com/multi-agent/run-transcript/pkg/logger"
)

// loadConfig 读取配置并把日志导向 stderr。
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	logger.InitTo(cmd.ErrOrStderr(), cfg.AppEnv, cfg.LogLevel)
	return cfg, nil
}

// readInput 读取文件; "-" 或缺省时读 stdin。
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, pkgerr.Wrapf(err, "runview.readInput", "read %s", args[0])
	}
	return data, nil
}

func newRenderCmd() *cobra.Command {
	var (
		showLLMEvents bool
		width         int
		fragmentPath  string
		asJSON        bool
		expand        bool
	)
	cmd := &cobra.Command{
		Use:   "render [file|-]",
		Short: "Render a run snapshot (JSON) as a transcript",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			var run datamodel.Run
			if err := json.Unmarshal(data, &run); err != nil {
				return pkgerr.Wrap(pkgerr.ErrInvalidInput, "runview.render", "decode run: "+err.Error())
			}

			var frag *datamodel.StreamingFragment
			if fragmentPath != "" {
				raw, err := os.ReadFile(fragmentPath)
				if err != nil {
					return pkgerr.Wrapf(err, "runview.render", "read %s", fragmentPath)
				}
				frag = &datamodel.StreamingFragment{}
				if err := json.Unmarshal(raw, frag); err != nil {
					return pkgerr.Wrap(pkgerr.ErrInvalidInput, "runview.render", "decode fragment: "+err.Error())
				}
			}

			show := cfg.ShowLLMCallEvents
			if cmd.Flags().Changed("show-llm-events") {
				show = showLLMEvents
			}
			opts := runview.OptionsFor(show, cfg.TextThreshold, cfg.JSONThreshold, cfg.MaxNestedDepth)
			view, err := runview.Build(&run, frag, opts)
			if err != nil {
				logger.Error("render failed", logger.FieldRunID, run.ID, logger.FieldStatus, run.Status, logger.FieldError, err)
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			}
			_, err = fmt.Fprint(out, termrender.Render(view, termrender.Options{Width: width, Expand: expand}))
			return err
		},
	}
	cmd.Flags().BoolVar(&showLLMEvents, "show-llm-events", false, "Show internal LLM call events")
	cmd.Flags().IntVar(&width, "width", 0, "Output width in columns (default 100)")
	cmd.Flags().StringVar(&fragmentPath, "fragment", "", "Streaming fragment JSON to overlay")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the rendered view as JSON")
	cmd.Flags().BoolVar(&expand, "expand", false, "Show truncated content in full")
	return cmd
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [file|-]",
		Short: "Classify a message content value and print its variant",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(cmd); err != nil {
				return err
			}
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			v := content.Classify(data)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), content.Stringify(v))
			return err
		},
	}
}
