package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/jarvis/jarvis/memory/service"
)

var knowledgeJSON bool

func knowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Inspect or prune what the assistant has learned",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List learned topics",
		Args:  cobra.NoArgs,
		RunE:  runKnowledgeList,
	}
	list.Flags().BoolVar(&knowledgeJSON, "json", false, "output as JSON")

	forget := &cobra.Command{
		Use:   "forget [substring]",
		Short: "Forget every topic containing substring",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runKnowledgeForget,
	}

	cmd.AddCommand(list, forget)
	return cmd
}

func runKnowledgeList(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	kb, err := a.factory.CreateKnowledgeBase(cmd.Context())
	if err != nil {
		return err
	}

	entries := kb.All()
	out := cmd.OutOrStdout()
	if knowledgeJSON {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "Nothing learned yet.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s  %s\n    %s\n", e.LearnedAt.Format("2006-01-02 15:04"), e.Topic, preview(e.Content, 120))
	}
	return nil
}

func runKnowledgeForget(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	kb, err := a.factory.CreateKnowledgeBase(cmd.Context())
	if err != nil {
		return err
	}

	substr := strings.Join(args, " ")
	removed, err := kb.Forget(cmd.Context(), substr)
	fmt.Fprintln(cmd.OutOrStdout(), service.ForgetMessage(substr, removed, err))
	return nil
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
