package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/jarvis/jarvis/generation/scene"
)

var (
	sceneFile   string
	sceneOutput string
)

func sceneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scene",
		Short: "Generate or modify 3D scenes",
	}

	generate := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Generate a scene from a description",
		Long: `Generate a 3D scene built from primitives and print it as JSON.

Examples:
  jarvis scene generate "a red sports car"
  jarvis scene generate "a lighthouse on a rock" -o lighthouse.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSceneGenerate,
	}
	generate.Flags().StringVarP(&sceneOutput, "output", "o", "", "write the result to a file instead of stdout")

	modify := &cobra.Command{
		Use:   "modify [instruction]",
		Short: "Modify an existing scene",
		Long: `Apply a modification to a scene file and print the complete updated scene.

Examples:
  jarvis scene modify --scene car.json "make the wheels gold"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSceneModify,
	}
	modify.Flags().StringVarP(&sceneFile, "scene", "s", "", "scene JSON file (an array of objects or a previous result)")
	modify.Flags().StringVarP(&sceneOutput, "output", "o", "", "write the result to a file instead of stdout")
	_ = modify.MarkFlagRequired("scene")

	cmd.AddCommand(generate, modify)
	return cmd
}

func runSceneGenerate(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	res := newSceneGenerator(a).Generate(cmd.Context(), strings.Join(args, " "))
	return writeResult(cmd, res)
}

func runSceneModify(cmd *cobra.Command, args []string) error {
	current, err := loadScene(sceneFile)
	if err != nil {
		return err
	}

	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	res := newSceneGenerator(a).Modify(cmd.Context(), current, strings.Join(args, " "))
	return writeResult(cmd, res)
}

func newSceneGenerator(a *app) *scene.Generator {
	return scene.NewGenerator(a.factory.CreateProvider(), scene.Options{
		Model:           a.cfg.Scene.Model,
		MaxTokens:       a.cfg.Scene.MaxTokens,
		Temperature:     a.cfg.Scene.Temperature,
		Timeout:         a.cfg.Scene.Timeout,
		SceneCharBudget: a.cfg.Scene.SceneCharBudget,
		FallbackObjects: a.cfg.Scene.FallbackObjects,
	}, a.logger)
}

// loadScene accepts a bare object array or a previous {"objects": [...]} result.
func loadScene(path string) ([]scene.SceneObject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene: %w", err)
	}

	var wrapped struct {
		Objects json.RawMessage `json:"objects"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Objects) > 0 {
		data = wrapped.Objects
	}

	if err := scene.ValidateScene(data); err != nil {
		return nil, fmt.Errorf("invalid scene %s: %w", path, err)
	}

	var objects []scene.SceneObject
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, fmt.Errorf("failed to decode scene: %w", err)
	}
	return objects, nil
}

func writeResult(cmd *cobra.Command, res *scene.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}

	if sceneOutput != "" {
		if err := os.WriteFile(sceneOutput, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	}

	if !res.Success {
		return fmt.Errorf("scene generation failed: %s", res.Error)
	}
	return nil
}
